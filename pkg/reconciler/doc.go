/*
Package reconciler folds the status of external pipeline runs back into the
store and puts stalled artifacts back on the queue.

The pipeline engine never pushes completion events, so the reconciler polls.
It runs two independent passes, each on its own ticker (one second by
default). Neither pass ever stops the process; errors are logged and the
next tick starts from scratch.

# Status Sync Pass

	for each artifact (up to Concurrency in parallel)
	  for each instance (serially)
	    reason := runner.Status(run handle)
	    status := runner.ParseStatus(reason)
	    on Succeeded: fetch run results
	    persist the instance if the status changed
	  fold build and clean partitions into rollout status
	  reclaim victims of succeeded clean runs

The fold is the same for both partitions:

  - any failed instance makes the rollout Failed
  - a non-empty partition where every instance succeeded makes it Succeeded
  - anything else leaves the stored status alone

A PendingAccount or PendingArtRef rollout is not folded to Succeeded while
the deployment arithmetic still owes it work (instances to build for the
build rollout, to clean for the clean rollout), so a dispatch that stalled
half way is still picked up by the reschedule pass.

Reclaiming deletes the victim's run and record, the clean run itself and any
earlier clean attempts for the same victim, returns their account stock, and
enqueues the artifact so the scheduler can use the freed capacity.

# Reschedule Pass

Artifacts with a rollout in Failed, PendingArtRef or PendingAccount are
candidates for requeue. Two guards apply:

  - Backoff: nothing is requeued within MinBackoff of the later of the
    rollouts' last dispatch and the last requeue made by this process.
  - Halt: when more than MaxFailureRatio of the instances created since the
    artifact's last specification change have failed, the artifact waits for
    a user to update it.

# Usage

	rec := reconciler.NewReconciler(store, tekton, q, broker, reconciler.DefaultConfig())
	rec.Start()
	defer rec.Stop()
*/
package reconciler
