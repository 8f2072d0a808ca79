/*
Package metrics exposes Prometheus metrics and component health for Train.

All metrics are registered on the default registry at init and served by
Handler on /metrics.

# Metric families

Inventory gauges, refreshed by Collector every interval:

	train_artifacts_total
	train_instances_total{kind,state,dirty}
	train_queue_depth
	train_account_stock{account}

Dispatch loop:

	train_dispatch_latency_seconds
	train_rollouts_dispatched_total{kind,status}
	train_instances_started_total{kind}

Reconciler:

	train_reconcile_duration_seconds{pass}
	train_instance_transitions_total{kind,state}
	train_instances_reclaimed_total
	train_artifacts_requeued_total
	train_reschedule_skipped_total{reason}

API:

	train_api_requests_total{method,status}
	train_api_request_duration_seconds{method}

Timer wraps the common "observe elapsed seconds" pattern:

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ReconcileDuration, "sync")

# Health

Components register themselves by name and update their state as they run.
The scheduler and reconciler mark themselves unhealthy when a pass fails and
healthy again on the next good pass; the API readiness probe refreshes the
store and queue entries.

	metrics.RegisterComponent("scheduler", true, "running")
	metrics.UpdateComponent("scheduler", false, err.Error())

HealthHandler reports every component, ReadyHandler requires all of
CriticalComponents to be registered and healthy, and LivenessHandler only
reports that the process is up.
*/
package metrics
