package api

import (
	"fmt"
	"net/http"

	"github.com/BinJu/train/pkg/metrics"
	"github.com/go-chi/chi/v5"
)

// healthRoutes mounts the health, readiness, liveness and metrics endpoints
func (s *Server) healthRoutes(r chi.Router) {
	r.Get("/health", metrics.HealthHandler())
	r.Get("/ready", s.readyHandler)
	r.Get("/live", metrics.LivenessHandler())
	r.Handle("/metrics", metrics.Handler())
}

// readyHandler probes the store and the queue before reporting readiness,
// so a wedged database shows up without waiting for a loop to trip on it.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.ListArtifactIDs(); err != nil {
		metrics.UpdateComponent("store", false, fmt.Sprintf("error: %v", err))
	} else {
		metrics.UpdateComponent("store", true, "ok")
	}

	if depth, err := s.queue.Depth(r.Context()); err != nil {
		metrics.UpdateComponent("queue", false, fmt.Sprintf("error: %v", err))
	} else {
		metrics.QueueDepth.Set(float64(depth))
		metrics.UpdateComponent("queue", true, "ok")
	}

	metrics.ReadyHandler()(w, r)
}
