package metrics

import (
	"encoding/json"
	"net/http"
	"slices"
	"sort"
	"sync"
	"time"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)

// HealthStatus is the body of the health and readiness endpoints
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

// CriticalComponents must all be registered and healthy for readiness. Any
// other component that reports a problem only degrades health.
var CriticalComponents = []string{"store", "queue", "scheduler", "reconciler"}

var healthChecker = newHealthChecker()

// ComponentHealth is the last state a component reported
type ComponentHealth struct {
	Name    string
	Healthy bool
	Message string
	Updated time.Time
}

// HealthChecker holds the component registry
type HealthChecker struct {
	mu         sync.RWMutex
	components map[string]ComponentHealth
	startTime  time.Time
	version    string
}

func newHealthChecker() *HealthChecker {
	return &HealthChecker{
		components: make(map[string]ComponentHealth),
		startTime:  time.Now(),
	}
}

// SetVersion sets the version string for health responses
func SetVersion(version string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.version = version
}

// RegisterComponent records a component's state, replacing any earlier one
func RegisterComponent(name string, healthy bool, message string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()

	healthChecker.components[name] = ComponentHealth{
		Name:    name,
		Healthy: healthy,
		Message: message,
		Updated: time.Now(),
	}
}

// UpdateComponent is RegisterComponent for components that already exist;
// the scheduler and reconciler loops call it after every pass.
func UpdateComponent(name string, healthy bool, message string) {
	RegisterComponent(name, healthy, message)
}

func isCritical(name string) bool {
	return slices.Contains(CriticalComponents, name)
}

// GetHealth reports every registered component. A failing critical
// component makes the process unhealthy; any other failure degrades it.
func GetHealth() HealthStatus {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	status := StatusHealthy
	var failing []string
	components := make(map[string]string, len(healthChecker.components))

	for name, comp := range healthChecker.components {
		if comp.Healthy {
			components[name] = StatusHealthy
			continue
		}
		components[name] = "unhealthy: " + comp.Message
		failing = append(failing, name)
		if isCritical(name) {
			status = StatusUnhealthy
		} else if status == StatusHealthy {
			status = StatusDegraded
		}
	}

	return healthChecker.snapshot(status, components, failingMessage(failing))
}

// GetReadiness reports whether every critical component is up
func GetReadiness() HealthStatus {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	status := StatusReady
	message := ""
	components := make(map[string]string, len(CriticalComponents))

	for _, name := range CriticalComponents {
		comp, exists := healthChecker.components[name]
		switch {
		case !exists:
			components[name] = "not registered"
			if message == "" {
				message = "waiting for " + name + " initialization"
			}
		case !comp.Healthy:
			components[name] = "not ready: " + comp.Message
			if message == "" {
				message = "waiting for " + name
			}
		default:
			components[name] = StatusReady
			continue
		}
		status = StatusNotReady
	}

	return healthChecker.snapshot(status, components, message)
}

// snapshot must be called with mu held
func (h *HealthChecker) snapshot(status string, components map[string]string, message string) HealthStatus {
	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Message:    message,
		Version:    h.version,
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
	}
}

func failingMessage(names []string) string {
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	msg := "failing: " + names[0]
	for _, n := range names[1:] {
		msg += ", " + n
	}
	return msg
}

func writeStatus(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// HealthHandler serves /health. Degraded is still 200.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := GetHealth()
		code := http.StatusOK
		if health.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeStatus(w, code, health)
	}
}

// ReadyHandler serves /ready
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		readiness := GetReadiness()
		code := http.StatusOK
		if readiness.Status != StatusReady {
			code = http.StatusServiceUnavailable
		}
		writeStatus(w, code, readiness)
	}
}

// LivenessHandler answers 200 as long as the process can serve HTTP
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, map[string]string{
			"status": "alive",
			"uptime": time.Since(healthChecker.startTime).Round(time.Second).String(),
		})
	}
}
