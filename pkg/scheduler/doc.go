/*
Package scheduler turns queued artifact ids into build and clean rollouts.

The scheduler is the only consumer of the artifact queue. Anything that may
change how many instances an artifact needs (an applied specification, a
borrowed instance, a finished run, a reschedule) enqueues the artifact id;
the scheduler pops ids one at a time, recomputes the deployment from the
stored instances and dispatches the difference.

# Architecture

	┌────────────────────────────────────────────────────────────┐
	│                      Dispatch Loop                         │
	│           (BlockDequeue, poll timeout 5 seconds)           │
	└────────────────┬───────────────────────────────────────────┘
	                 │ art_id
	                 ▼
	┌────────────────────────────────────────────────────────────┐
	│  1. Load artifact (missing: drop the id)                   │
	│  2. Count build instances                                  │
	│  3. to_deploy = min(buffer, need)                          │
	│  4. > 0: build rollout, < 0: clean rollout, 0: nothing     │
	│  5. Persist every started instance                         │
	│  6. Record rollout status and last scheduled time          │
	└────────────────────────────────────────────────────────────┘

# Deployment Arithmetic

Only build instances are counted. With the counts of running, failed,
succeeded-clean and succeeded-dirty instances:

	buffer    = total - done_dirty - done_clean - failed - running
	need      = target - done_clean - running
	to_deploy = min(buffer, need)

A failed instance uses up capacity without counting toward the target, so
failures shrink the headroom until a clean rollout reclaims them.

# Victims

A negative to_deploy is the number of instances to reclaim. Victims are
picked dirty first, then failed, then clean; running instances are never
reclaimed. A build instance that already has a clean run in flight is not
picked again, and each in-flight clean run counts toward the deficit.

# Failure Handling

Dispatch errors never stop the loop. The error is mapped onto the rollout
status (PendingArtRef, PendingAccount or Failed) and the reconciler's
reschedule pass retries later. Runs that started before the error are still
persisted, since they exist in the cluster.

# Usage

	sched := scheduler.NewScheduler(store, q, executor, broker, 0)
	sched.Start()
	defer sched.Stop()

	// One cycle without the loop, as tests do
	decision, err := sched.Process(ctx, "opsman")
*/
package scheduler
