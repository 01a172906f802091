package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/pf-bet-engine/internal/engine"
	"github.com/MJE43/pf-bet-engine/internal/house"
)

// SecurityLogger writes audit and security events. Seeds are only ever
// logged as truncated hashes and credentials are redacted.
type SecurityLogger struct {
	log *slog.Logger
}

func NewSecurityLogger(log *slog.Logger) *SecurityLogger {
	return &SecurityLogger{log: log.With("channel", "security")}
}

// LogSecurityEvent records failed auth, throttling and rejected input.
func (sl *SecurityLogger) LogSecurityEvent(r *http.Request, eventType, description string, context map[string]any) {
	sl.log.Warn("security_event",
		"request_id", middleware.GetReqID(r.Context()),
		"type", eventType,
		"description", description,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
		"context", sanitizeContext(context),
	)
}

// LogAuditEvent records privileged actions such as admin ledger changes.
func (sl *SecurityLogger) LogAuditEvent(requestID, action, resource, outcome string, details map[string]any) {
	sl.log.Info("audit_event",
		"request_id", requestID,
		"action", action,
		"resource", resource,
		"outcome", outcome,
		"details", sanitizeContext(details),
	)
}

// LogVerifyOperation records an offline replay without the seed itself.
func (sl *SecurityLogger) LogVerifyOperation(requestID string, req house.VerifyRequest, res house.VerifyResult) {
	sl.log.Info("verify_operation",
		"request_id", requestID,
		"game", req.Game,
		"server_hash", hashSeed(req.ServerSeed),
		"client_hash", hashSeed(req.ClientSeed),
		"nonce", req.Nonce,
		"params", sanitizeContext(req.Params),
		"multiplier", res.Multiplier,
	)
}

func hashSeed(seed string) string {
	if seed == "" {
		return "empty"
	}
	return engine.HashSeed(seed)[:16]
}

func sanitizeContext(context map[string]any) map[string]any {
	if context == nil {
		return nil
	}

	sanitized := make(map[string]any, len(context))
	for key, value := range context {
		switch key {
		case "server_seed", "serverSeed", "client_seed", "clientSeed":
			if s, ok := value.(string); ok {
				sanitized[key+"_hash"] = hashSeed(s)
			} else {
				sanitized[key+"_hash"] = "non_string_value"
			}
		case "secret", "password", "token", "authorization", "api_key":
			sanitized[key] = "[REDACTED]"
		default:
			sanitized[key] = value
		}
	}
	return sanitized
}
