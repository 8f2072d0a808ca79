package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetHealth(version string) {
	healthChecker = newHealthChecker()
	healthChecker.version = version
}

func registerAllCritical() {
	for _, name := range CriticalComponents {
		RegisterComponent(name, true, "")
	}
}

func TestRegisterComponent(t *testing.T) {
	resetHealth("")

	RegisterComponent("queue", true, "sqlite open")

	require.Len(t, healthChecker.components, 1)
	comp := healthChecker.components["queue"]
	assert.True(t, comp.Healthy)
	assert.Equal(t, "sqlite open", comp.Message)
}

func TestGetHealth(t *testing.T) {
	tests := []struct {
		name       string
		register   func()
		wantStatus string
	}{
		{
			name:       "all healthy",
			register:   registerAllCritical,
			wantStatus: "healthy",
		},
		{
			name: "one unhealthy",
			register: func() {
				registerAllCritical()
				UpdateComponent("reconciler", false, "store closed")
			},
			wantStatus: "unhealthy",
		},
		{
			name: "optional component down",
			register: func() {
				registerAllCritical()
				RegisterComponent("runner", false, "tkn not found")
			},
			wantStatus: "degraded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth("1.0.0")
			tt.register()

			health := GetHealth()
			assert.Equal(t, tt.wantStatus, health.Status)
			assert.Equal(t, "1.0.0", health.Version)
		})
	}

	resetHealth("")
	RegisterComponent("store", false, "disk full")
	RegisterComponent("runner", false, "timeout")
	health := GetHealth()
	assert.Equal(t, "unhealthy: disk full", health.Components["store"])
	assert.Equal(t, "failing: runner, store", health.Message)
}

func TestGetReadiness(t *testing.T) {
	resetHealth("")
	registerAllCritical()
	assert.Equal(t, "ready", GetReadiness().Status)

	resetHealth("")
	RegisterComponent("store", true, "")
	readiness := GetReadiness()
	assert.Equal(t, "not_ready", readiness.Status)
	assert.NotEmpty(t, readiness.Message)
	assert.Equal(t, "not registered", readiness.Components["scheduler"])

	resetHealth("")
	registerAllCritical()
	UpdateComponent("scheduler", false, "stopped")
	assert.Equal(t, "not_ready", GetReadiness().Status)
}

func TestHealthHandlers(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		register func()
		wantCode int
		wantBody string
	}{
		{"health ok", HealthHandler(), registerAllCritical, http.StatusOK, "healthy"},
		{"health broken", HealthHandler(), func() { RegisterComponent("queue", false, "locked") }, http.StatusServiceUnavailable, "unhealthy"},
		{"health degraded", HealthHandler(), func() { RegisterComponent("runner", false, "unreachable") }, http.StatusOK, "degraded"},
		{"ready ok", ReadyHandler(), registerAllCritical, http.StatusOK, "ready"},
		{"ready missing", ReadyHandler(), func() {}, http.StatusServiceUnavailable, "not_ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth("test")
			tt.register()

			w := httptest.NewRecorder()
			tt.handler(w, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.wantCode, w.Code)
			var status HealthStatus
			require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
			assert.Equal(t, tt.wantBody, status.Status)
		})
	}
}

func TestLivenessHandler(t *testing.T) {
	resetHealth("")

	w := httptest.NewRecorder()
	LivenessHandler()(w, httptest.NewRequest(http.MethodGet, "/live", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "alive", response["status"])
	assert.NotEmpty(t, response["uptime"])
}
