/*
Package types defines the domain model shared by every Train package.

An Artifact is a named workload that Train keeps pre-built. It carries two
rollouts: the build rollout produces instances, the clean rollout tears them
down. Each execution of a rollout is an Instance, backed by one workflow run
in the cluster.

# Core Types

Artifacts and rollouts:
  - Artifact: Total (hard cap on live instances) and Target (wanted clean ones)
  - Rollout: status, last schedule time and the credentials a run needs
  - RolloutStatus: NotScheduled, Running, PendingAccount, PendingArtRef,
    Failed, Succeeded
  - ArtifactSpec: the user document an artifact is created or updated from

Instances:
  - Instance: run handle, dirty flag, status and results of one run
  - InstanceStatus: Unknown, Running, Failed(reason) or Succeeded
  - InstanceNumbers: the per-state counts the scheduler works from

Credentials:
  - Secret: named encrypted data mounted into runs
  - Account: a pool of interchangeable credentials with limited stock

# Instance Lifecycle

	Running ──► Succeeded (clean) ──borrow──► Succeeded (dirty)
	   │
	   └──────► Failed(reason)

A succeeded instance starts clean. Borrowing marks it dirty, and the only way
back is to reclaim it with a clean run and build a replacement.

# Errors

Rollout dispatch reports why it could not start through two sentinels that
StatusForError maps onto rollout statuses:

	types.ErrPendingArtRef   -> RolloutPendingArtRef
	types.ErrPendingAccount  -> RolloutPendingAccount
	any other error          -> RolloutFailed
	nil                      -> RolloutRunning

# Usage

Creating an artifact from a spec:

	spec := &types.ArtifactSpec{
		Name:   "opsman",
		Total:  3,
		Target: 2,
		Build:  types.RolloutSpec{Manifest: buildYAML, Accounts: []string{"gcp"}},
		Clean:  types.RolloutSpec{Manifest: cleanYAML},
	}
	if err := spec.Validate(); err != nil {
		return err
	}
	art, err := spec.Apply(existing) // existing may be nil

Re-applying an unchanged spec leaves Revision and UpdatedAt alone, so the
reschedule pass keeps its failure history. Any change to the spec bumps both.
*/
package types
