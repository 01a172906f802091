package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/pf-bet-engine/internal/errs"
)

// ErrorBuilder assembles an EngineError.
type ErrorBuilder struct {
	errType   string
	message   string
	context   map[string]any
	requestID string
}

func NewError(errType, message string) *ErrorBuilder {
	return &ErrorBuilder{
		errType: errType,
		message: message,
		context: make(map[string]any),
	}
}

func (eb *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	eb.context[key] = value
	return eb
}

func (eb *ErrorBuilder) WithRequestID(requestID string) *ErrorBuilder {
	eb.requestID = requestID
	return eb
}

func (eb *ErrorBuilder) Build() EngineError {
	ctx := eb.context
	if len(ctx) == 0 {
		ctx = nil
	}
	return EngineError{
		Type:      eb.errType,
		Message:   eb.message,
		Context:   ctx,
		RequestID: eb.requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// statusFor maps an error code to its HTTP status.
func statusFor(code errs.Code) int {
	switch code {
	case errs.CodeInvalidParameters:
		return http.StatusBadRequest
	case errs.CodeUnauthorized:
		return http.StatusUnauthorized
	case errs.CodeNotFound:
		return http.StatusNotFound
	case errs.CodeInsufficientFunds, errs.CodeRoundClosed, errs.CodeRoundAlreadyResolved:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler turns domain errors into EngineError responses and logs them.
type ErrorHandler struct {
	log      *slog.Logger
	security *SecurityLogger
}

func NewErrorHandler(log *slog.Logger, security *SecurityLogger) *ErrorHandler {
	return &ErrorHandler{log: log, security: security}
}

// HandleError writes the response for err. Invariant violations and unknown
// errors are logged in full but reach the client without detail.
func (eh *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetReqID(r.Context())

	var verr ValidationError
	if errors.As(err, &verr) {
		eh.HandleValidationError(w, r, verr.Field, verr.Message)
		return
	}

	var engineErr EngineError
	if errors.As(err, &engineErr) {
		eh.respond(w, r, http.StatusBadRequest, engineErr, err)
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		eh.respond(w, r, http.StatusGatewayTimeout,
			NewError(ErrTypeTimeout, "request timed out").WithRequestID(requestID).Build(), err)
		return
	}

	code := errs.CodeOf(err)
	switch {
	case errs.IsInvariant(err):
		eh.respond(w, r, http.StatusInternalServerError,
			NewError(ErrTypeResolutionFailed, resolutionFailedMessage).WithRequestID(requestID).Build(), err)
	case code == errs.CodeInternal:
		eh.respond(w, r, http.StatusInternalServerError,
			NewError(ErrTypeInternal, "internal server error").WithRequestID(requestID).Build(), err)
	default:
		var e *errs.Error
		errors.As(err, &e)
		b := NewError(string(code), e.Message).WithRequestID(requestID)
		if errs.IsUserRecoverable(err) {
			b.WithContext("retryable", true)
		}
		eh.respond(w, r, statusFor(code), b.Build(), err)
	}
}

// HandleValidationError rejects a malformed request before it reaches the house.
func (eh *ErrorHandler) HandleValidationError(w http.ResponseWriter, r *http.Request, field, message string) {
	engineErr := NewError(ErrTypeValidation, fmt.Sprintf("validation failed: %s", message)).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("field", field).
		Build()
	eh.security.LogSecurityEvent(r, "validation_failure", message, map[string]any{"field": field})
	eh.respond(w, r, http.StatusBadRequest, engineErr, nil)
}

func (eh *ErrorHandler) respond(w http.ResponseWriter, r *http.Request, status int, engineErr EngineError, cause error) {
	eh.logError(r, engineErr, status, cause)
	writeErrorResponse(w, status, engineErr)
}

func (eh *ErrorHandler) logError(r *http.Request, engineErr EngineError, status int, cause error) {
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}

	attrs := []any{
		"type", engineErr.Type,
		"category", GetErrorCategory(engineErr.Type),
		"status", status,
		"request_id", engineErr.RequestID,
		"method", r.Method,
		"path", r.URL.Path,
	}
	for key, value := range engineErr.Context {
		// Seeds never reach the log.
		if key == "server_seed" || key == "serverSeed" {
			continue
		}
		attrs = append(attrs, key, value)
	}
	if cause != nil {
		attrs = append(attrs, "error", cause)
	}
	eh.log.Log(r.Context(), level, engineErr.Message, attrs...)
}

func writeErrorResponse(w http.ResponseWriter, status int, engineErr EngineError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.Header().Set("X-Error-Type", engineErr.Type)
	w.Header().Set("X-Error-Category", string(GetErrorCategory(engineErr.Type)))
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(engineErr); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// RecoveryHandler converts a handler panic into a 500 with no detail.
func (eh *ErrorHandler) RecoveryHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				requestID := middleware.GetReqID(r.Context())
				eh.log.Error("panic recovered",
					"request_id", requestID, "method", r.Method, "path", r.URL.Path, "panic", fmt.Sprint(rvr))

				writeErrorResponse(w, http.StatusInternalServerError,
					NewError(ErrTypeInternal, "internal server error").WithRequestID(requestID).Build())
			}
		}()

		next.ServeHTTP(w, r)
	})
}
