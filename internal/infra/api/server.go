package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"velvet-metal/internal/domain/model"
	"velvet-metal/internal/infra/logging"
	"velvet-metal/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server exposes the small JSON surface: the tier catalogue and health.
type Server struct {
	tiers  usecase.TierUseCase
	checks []HealthCheck
	log    *zerolog.Logger
}

func NewServer(tiers usecase.TierUseCase, logger *zerolog.Logger, checks ...HealthCheck) *Server {
	return &Server{tiers: tiers, checks: checks, log: logger}
}

// Register attaches handlers to the router.
func (s *Server) Register(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.With(Timeout(10*time.Second)).Get("/api/v1/tiers", s.handleTiers)
}

func (s *Server) handleTiers(w http.ResponseWriter, r *http.Request) {
	tiers, err := s.tiers.List(r.Context())
	resp := struct {
		Data  []*model.SubscriptionTier `json:"data"`
		Error string                    `json:"error,omitempty"`
	}{Data: tiers}
	status := http.StatusOK
	if err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("tier list failed")
		resp.Error = "tiers unavailable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for _, c := range s.checks {
		if err := c.Check(ctx); err != nil {
			failed[c.Name] = err.Error()
		}
	}
	if len(failed) > 0 {
		logging.With(r.Context(), s.log).Warn().Interface("failed", failed).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "failed": failed})
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
