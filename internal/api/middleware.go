package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/MJE43/pf-bet-engine/internal/errs"
)

type ctxKey int

const userIDKey ctxKey = iota

// userID returns the caller set by GatewayAuth.
func userID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// requestLogger logs one line per request.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}

// IPRateLimiter keeps one token bucket per client address.
type IPRateLimiter struct {
	mu  sync.Mutex
	ips map[string]*visitor
	r   rate.Limit
	b   int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		ips: make(map[string]*visitor),
		r:   r,
		b:   b,
	}
}

func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	v, ok := i.ips[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(i.r, i.b)}
		i.ips[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// Sweep forgets clients idle for longer than idle.
func (i *IPRateLimiter) Sweep(idle time.Duration) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	cutoff := time.Now().Add(-idle)
	n := 0
	for ip, v := range i.ips {
		if v.lastSeen.Before(cutoff) {
			delete(i.ips, ip)
			n++
		}
	}
	return n
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.GetLimiter(clientIP(r)).Allow() {
			s.security.LogSecurityEvent(r, "rate_limited", "request rate exceeded", nil)
			engineErr := NewError(ErrTypeRateLimit, "too many requests").
				WithRequestID(middleware.GetReqID(r.Context())).
				Build()
			s.errors.respond(w, r, http.StatusTooManyRequests, engineErr, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// GatewayAuth admits requests forwarded by the trusted gateway. The gateway
// authenticates the player and passes the id in X-User-ID. With no gateway
// token configured every user request is refused.
func (s *Server) GatewayAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !tokenMatches(s.cfg.GatewayToken, r.Header.Get("X-Gateway-Token")) {
			s.security.LogSecurityEvent(r, "auth_failure", "gateway token rejected", nil)
			s.errors.HandleError(w, r, errs.New(errs.CodeUnauthorized, "missing or invalid X-Gateway-Token"))
			return
		}
		user := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if user == "" {
			s.errors.HandleError(w, r, errs.New(errs.CodeUnauthorized, "X-User-ID is required"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, user)))
	})
}

// AdminAuth guards ledger mutations behind the admin bearer token.
func (s *Server) AdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || !tokenMatches(s.cfg.AdminToken, strings.TrimSpace(token)) {
			s.security.LogSecurityEvent(r, "auth_failure", "admin token rejected", nil)
			s.errors.HandleError(w, r, errs.New(errs.CodeUnauthorized, "admin token required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// tokenMatches is false whenever the expected token is unset.
func tokenMatches(expected, got string) bool {
	if expected == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

// CORSMiddleware allows browser clients behind the gateway to call the read endpoints.
func (s *Server) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Gateway-Token, X-User-ID, X-Request-Id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
