package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/BinJu/train/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)
	for _, name := range metrics.CriticalComponents {
		metrics.RegisterComponent(name, true, "ok")
	}

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"liveness", "/live", http.StatusOK},
		{"health", "/health", http.StatusOK},
		{"metrics", "/metrics", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, tt.path, "", nil)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestReadyProbesStoreAndQueue(t *testing.T) {
	env := newTestEnv(t)

	metrics.RegisterComponent("scheduler", false, "not started")
	metrics.RegisterComponent("reconciler", false, "not started")

	w := env.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var status metrics.HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, "ready", status.Components["store"])
	assert.Equal(t, "ready", status.Components["queue"])

	metrics.UpdateComponent("scheduler", true, "running")
	metrics.UpdateComponent("reconciler", true, "running")
	t.Cleanup(func() {
		metrics.UpdateComponent("scheduler", false, "stopped")
		metrics.UpdateComponent("reconciler", false, "stopped")
	})

	w = env.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestsAreCounted(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodGet, "/api/v1/art/ghost", "", nil)

	w := env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `train_api_requests_total{method="GET /api/v1/art/{id}",status="404"}`))
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
