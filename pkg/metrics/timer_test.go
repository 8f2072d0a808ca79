package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewTimer(t *testing.T) {
	timer := NewTimer()
	assert.False(t, timer.start.IsZero())
	assert.Less(t, time.Since(timer.start), time.Second)
}

func TestTimerDurationIncreases(t *testing.T) {
	timer := NewTimer()

	var last time.Duration
	for i := 0; i < 3; i++ {
		time.Sleep(10 * time.Millisecond)
		d := timer.Duration()
		assert.Greater(t, d, last)
		last = d
	}
	assert.GreaterOrEqual(t, last, 30*time.Millisecond)
}

func TestTimerObserveDuration(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_duration_seconds",
		Help: "Test duration histogram",
	})

	NewTimer().ObserveDuration(histogram)

	assert.Equal(t, 1, testutil.CollectAndCount(histogram))
}

func TestTimerObserveDurationVec(t *testing.T) {
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "test_duration_vec_seconds",
		Help: "Test duration histogram vec",
	}, []string{"pass"})

	timer := NewTimer()
	timer.ObserveDurationVec(vec, "sync")
	timer.ObserveDurationVec(vec, "reschedule")

	assert.Equal(t, 2, testutil.CollectAndCount(vec))
}
