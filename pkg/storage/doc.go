/*
Package storage provides persistent state for Train using BoltDB.

BoltStore keeps every record as JSON in a single bbolt file (train.db under
the data directory). Each Store method runs in exactly one bbolt transaction,
which gives per-record atomicity and nothing more: a status sync and a
dispatch can interleave across calls, and callers are written to tolerate it.

# Layout

	artifacts/<art_id>              Artifact JSON (both rollouts inline)
	instances/<art_id>/<inst_id>    Instance JSON, one nested bucket per artifact
	secrets/<secret_id>             Secret JSON, Data sealed by pkg/security
	accounts/<account_id>           Account JSON with its stock counter

# Errors

Lookups wrap ErrNotFound, creates wrap ErrExists, and ClaimInstance and
AcquireAccount wrap ErrExhausted when nothing is available:

	inst, err := store.ClaimInstance("opsman")
	if errors.Is(err, storage.ErrExhausted) {
		// no clean instance ready yet
	}

# Locking

bbolt holds an exclusive file lock, so only the serving process opens the
store. The CLI talks to it through the HTTP API.
*/
package storage
