package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/MJE43/pf-bet-engine/internal/config"
	"github.com/MJE43/pf-bet-engine/internal/events"
	"github.com/MJE43/pf-bet-engine/internal/house"
	"github.com/MJE43/pf-bet-engine/internal/logger"
)

// Server is the HTTP surface of the engine.
type Server struct {
	cfg       config.ServerConfig
	house     *house.Service
	hub       *events.Hub
	errors    *ErrorHandler
	security  *SecurityLogger
	limiter   *IPRateLimiter
	log       *slog.Logger
	startTime time.Time
}

// NewServer builds the server. hub may be nil, which disables /round/stream.
func NewServer(cfg config.ServerConfig, svc *house.Service, hub *events.Hub) *Server {
	log := logger.With("component", "api")
	security := NewSecurityLogger(log)
	return &Server{
		cfg:       cfg,
		house:     svc,
		hub:       hub,
		errors:    NewErrorHandler(log, security),
		security:  security,
		limiter:   NewIPRateLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.BurstSize),
		log:       log,
		startTime: time.Now(),
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(s.errors.RecoveryHandler)
	r.Use(s.CORSMiddleware)

	r.Get("/health", s.handleHealthCheck)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/health/live", s.handleLiveness)
	r.Get("/version", s.handleVersion)

	// Long-lived; kept outside the request timeout.
	r.Get("/round/stream", s.handleStream)

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)
		if s.cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(s.cfg.RequestTimeout))
		}

		r.Get("/games", s.handleListGames)
		r.Post("/verify", s.handleVerify)
		r.Get("/fairness/{seedId}", s.handleFairness)
		r.Get("/round/{table}/current", s.handleCurrentRound)

		r.Group(func(r chi.Router) {
			r.Use(s.GatewayAuth)

			r.Post("/bet", s.handlePlaceBet)
			r.Get("/bets/{betId}/replay", s.handleReplay)
			r.Post("/fairness/rotate", s.handleRotate)
			r.Post("/round/{table}/join", s.handleJoinRound)
			r.Post("/round/{roundId}/cashout", s.handleCashout)
			r.Post("/round/{roundId}/autocashout", s.handleAutoCashout)
			r.Get("/ledger/{userId}/history", s.handleHistory)
			r.Get("/ledger/{userId}/balance", s.handleBalance)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.AdminAuth)

			r.Post("/accounts/{userId}/credit", s.handleCredit)
			r.Post("/accounts/{userId}/rank", s.handleSetRank)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorResponse(w, http.StatusNotFound,
			NewError("not_found", "no such route").WithRequestID(middleware.GetReqID(r.Context())).Build())
	})

	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Routes(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	go s.sweepLimiter(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("http server stopped")
	return nil
}

func (s *Server) sweepLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.limiter.Sweep(10 * time.Minute); n > 0 {
				s.log.Debug("rate limiter swept", "clients", n)
			}
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("encode response", "error", err)
	}
}
