package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Inventory metrics, refreshed by the Collector
	ArtifactsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "train_artifacts_total",
			Help: "Total number of artifacts",
		},
	)

	InstancesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "train_instances_total",
			Help: "Number of instances by rollout kind, state and dirty flag",
		},
		[]string{"kind", "state", "dirty"},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "train_queue_depth",
			Help: "Number of artifact ids waiting in the queue",
		},
	)

	AccountStock = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "train_account_stock",
			Help: "Units left in each account pool",
		},
		[]string{"account"},
	)

	// Scheduler metrics
	DispatchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "train_dispatch_latency_seconds",
			Help:    "Time taken to process one dequeued artifact",
			Buckets: prometheus.DefBuckets,
		},
	)

	RolloutsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "train_rollouts_dispatched_total",
			Help: "Rollout dispatch attempts by kind and resulting status",
		},
		[]string{"kind", "status"},
	)

	InstancesStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "train_instances_started_total",
			Help: "Runs started by rollout kind",
		},
		[]string{"kind"},
	)

	// Reconciler metrics
	ReconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "train_reconcile_duration_seconds",
			Help:    "Duration of one reconciliation pass",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pass"},
	)

	InstanceTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "train_instance_transitions_total",
			Help: "Instance status changes observed by the status sync pass",
		},
		[]string{"kind", "state"},
	)

	InstancesReclaimed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "train_instances_reclaimed_total",
			Help: "Build instances removed after a successful clean run",
		},
	)

	ArtifactsRequeued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "train_artifacts_requeued_total",
			Help: "Artifacts put back on the queue by the reschedule pass",
		},
	)

	RescheduleSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "train_reschedule_skipped_total",
			Help: "Reschedule candidates left alone, by reason",
		},
		[]string{"reason"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "train_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "train_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(ArtifactsTotal)
	prometheus.MustRegister(InstancesTotal)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(AccountStock)
	prometheus.MustRegister(DispatchLatency)
	prometheus.MustRegister(RolloutsDispatched)
	prometheus.MustRegister(InstancesStarted)
	prometheus.MustRegister(ReconcileDuration)
	prometheus.MustRegister(InstanceTransitions)
	prometheus.MustRegister(InstancesReclaimed)
	prometheus.MustRegister(ArtifactsRequeued)
	prometheus.MustRegister(RescheduleSkipped)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
