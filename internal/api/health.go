package api

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

type HealthCheckResponse struct {
	Status        HealthStatus           `json:"status"`
	Timestamp     string                 `json:"timestamp"`
	EngineVersion string                 `json:"engine_version"`
	GitCommit     string                 `json:"git_commit,omitempty"`
	BuildTime     string                 `json:"build_time,omitempty"`
	Uptime        string                 `json:"uptime"`
	Checks        map[string]HealthCheck `json:"checks"`
	System        SystemInfo             `json:"system"`
	RequestID     string                 `json:"request_id,omitempty"`
}

type HealthCheck struct {
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	LastChecked string       `json:"last_checked"`
	Duration    string       `json:"duration,omitempty"`
}

type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	NumCPU        int    `json:"num_cpu"`
	GOMAXPROCS    int    `json:"gomaxprocs"`
	MemoryAlloc   uint64 `json:"memory_alloc_bytes"`
	MemoryTotal   uint64 `json:"memory_total_bytes"`
	MemorySys     uint64 `json:"memory_sys_bytes"`
	GCCycles      uint32 `json:"gc_cycles"`
}

// handleHealthCheck reports every dependency. Only a failing store makes the
// engine unhealthy; a missing live feed or round table only degrades it.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	checks := map[string]HealthCheck{
		"store":  s.checkStore(r.Context()),
		"games":  s.checkGames(),
		"rounds": s.checkRounds(),
		"stream": s.checkStream(),
	}

	overall := HealthStatusHealthy
	for name, c := range checks {
		switch {
		case c.Status == HealthStatusUnhealthy && name == "store":
			overall = HealthStatusUnhealthy
		case c.Status != HealthStatusHealthy && overall == HealthStatusHealthy:
			overall = HealthStatusDegraded
		}
	}

	status := http.StatusOK
	if overall == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, HealthCheckResponse{
		Status:        overall,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		EngineVersion: EngineVersion,
		GitCommit:     GitCommit,
		BuildTime:     BuildTime,
		Uptime:        time.Since(s.startTime).String(),
		Checks:        checks,
		System:        systemInfo(),
		RequestID:     middleware.GetReqID(r.Context()),
	})
}

// handleReadiness is ready once the store answers and at least one game is loaded.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ready := true
	message := "ready"

	if c := s.checkStore(r.Context()); c.Status != HealthStatusHealthy {
		ready, message = false, c.Message
	} else if len(s.house.Games()) == 0 {
		ready, message = false, "no games available"
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, map[string]any{
		"ready":          ready,
		"message":        message,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"engine_version": EngineVersion,
		"request_id":     middleware.GetReqID(r.Context()),
	})
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"alive":          true,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"engine_version": EngineVersion,
		"uptime":         time.Since(s.startTime).String(),
		"request_id":     middleware.GetReqID(r.Context()),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GetVersionInfo())
}

func timedCheck(fn func() (HealthStatus, string)) HealthCheck {
	start := time.Now()
	status, msg := fn()
	return HealthCheck{
		Status:      status,
		Message:     msg,
		LastChecked: time.Now().UTC().Format(time.RFC3339),
		Duration:    time.Since(start).String(),
	}
}

func (s *Server) checkStore(ctx context.Context) HealthCheck {
	return timedCheck(func() (HealthStatus, string) {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.house.Ready(ctx); err != nil {
			return HealthStatusUnhealthy, "store unreachable: " + err.Error()
		}
		return HealthStatusHealthy, "store reachable"
	})
}

func (s *Server) checkGames() HealthCheck {
	return timedCheck(func() (HealthStatus, string) {
		n := len(s.house.Games())
		if n == 0 {
			return HealthStatusUnhealthy, "no games available"
		}
		return HealthStatusHealthy, fmt.Sprintf("%d games available", n)
	})
}

func (s *Server) checkRounds() HealthCheck {
	return timedCheck(func() (HealthStatus, string) {
		tables := s.house.Tables()
		if len(tables) == 0 {
			return HealthStatusDegraded, "no round tables configured"
		}
		return HealthStatusHealthy, fmt.Sprintf("%d round tables", len(tables))
	})
}

func (s *Server) checkStream() HealthCheck {
	return timedCheck(func() (HealthStatus, string) {
		if s.hub == nil {
			return HealthStatusDegraded, "live stream disabled"
		}
		return HealthStatusHealthy, fmt.Sprintf("%d clients connected", s.hub.Online())
	})
}

func systemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemInfo{
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		GOMAXPROCS:    runtime.GOMAXPROCS(0),
		MemoryAlloc:   m.Alloc,
		MemoryTotal:   m.TotalAlloc,
		MemorySys:     m.Sys,
		GCCycles:      m.NumGC,
	}
}
