package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each dependency probe made by /health.
const healthCheckTimeout = 2 * time.Second

// Health statuses.
const (
	healthOK        = "ok"
	healthDegraded  = "degraded"
	healthUnhealthy = "unhealthy"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Get("/counters", s.handleListCounters)
		r.Route("/counter/{key}", func(r chi.Router) {
			r.Get("/", s.handleGetCounter)
			r.Put("/", s.handlePutCounter)
			r.Delete("/", s.handleDeleteCounter)
			r.Post("/increment", s.handleIncrementCounter)
			r.Get("/history", s.handleCounterHistory)
		})

		r.Get("/user", s.handleGetUser)

		// WebSocket (session validated in handler when identity is enabled)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
}

// handleHealth reports the database and optional dependencies.
// The database is required: if it fails the probe answers 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  healthOK,
		Version: s.version,
		Checks:  make(map[string]string, len(s.checks)+1),
	}

	status := http.StatusOK
	if err := s.probe(r.Context(), s.db); err != nil {
		s.logger.Warn("database health check failed", "error", err)
		resp.Checks["database"] = "error"
		resp.Status = healthUnhealthy
		status = http.StatusServiceUnavailable
	} else {
		resp.Checks["database"] = healthOK
	}

	for name, check := range s.checks {
		if err := s.probe(r.Context(), check); err != nil {
			s.logger.Warn("dependency health check failed", "dependency", name, "error", err)
			resp.Checks[name] = "error"
			if resp.Status == healthOK {
				resp.Status = healthDegraded
			}
			continue
		}
		resp.Checks[name] = healthOK
	}

	writeJSON(w, status, resp)
}

func (s *Server) probe(ctx context.Context, check HealthChecker) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	return check.HealthCheck(ctx)
}
