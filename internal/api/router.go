package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/conversations", s.handleListConversations)
	})

	return r
}

// Health status values.
const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
	statusOK       = "ok"
)

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
}

// handleHealth reports 200 when the broker is connected and the chat
// adapter is running, 503 otherwise. Optional components are reported but
// do not change the overall status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  statusHealthy,
		Version: s.version,
		Checks:  make(map[string]string, 4),
	}

	required := map[string]HealthChecker{
		"mqtt":     s.mqtt,
		"telegram": s.telegram,
	}
	for name, checker := range required {
		result := runCheck(r.Context(), checker)
		resp.Checks[name] = result
		if result != statusOK {
			resp.Status = statusDegraded
		}
	}

	if s.database != nil {
		resp.Checks["database"] = runCheck(r.Context(), s.database)
	}
	if s.influxdb != nil {
		resp.Checks["influxdb"] = runCheck(r.Context(), s.influxdb)
	}

	if !s.bridge.Healthy() {
		resp.Status = statusDegraded
	}

	status := http.StatusOK
	if resp.Status != statusHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func runCheck(ctx context.Context, checker HealthChecker) string {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := checker.HealthCheck(ctx); err != nil {
		return err.Error()
	}
	return statusOK
}

// handleListConversations returns the conversation registry.
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	if s.conversations == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "registry disabled")
		return
	}

	list, err := s.conversations.List(r.Context())
	if err != nil {
		s.logger.Error("listing conversations failed", "error", err)
		writeInternalError(w, "failed to list conversations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": list,
		"count":         len(list),
	})
}
