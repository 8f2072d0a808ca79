/*
Package api implements the Train HTTP API.

The API is how users and other systems reach the engine. It never dispatches
work itself: every call that can change what an artifact needs records the
change in the store and puts the artifact id on the queue, and the scheduler
takes it from there.

# Routes

	POST   /api/v1/sched/{id}        enqueue an artifact id
	POST   /api/v1/art               create or update an artifact from a spec
	GET    /api/v1/art               list artifacts with instance counts
	GET    /api/v1/art/{id}          artifact, instances and pending to_deploy
	DELETE /api/v1/art/{id}          tear down every run and the artifact
	PUT    /api/v1/art/{id}/borrow   hand out a clean instance, marking it dirty
	GET    /api/v1/secret            list secrets (names only)
	POST   /api/v1/secret            store an encrypted secret
	GET    /api/v1/account           list account pools and their stock
	POST   /api/v1/account           store an encrypted account pool

	GET    /health  /ready  /live  /metrics

Artifact specs are accepted as YAML, or as JSON when the request says
application/json:

	name: opsman
	total: 3
	target: 2
	refs: [gcp-env]
	build:
	  manifest: |
	    apiVersion: tekton.dev/v1
	    kind: Pipeline
	    ...
	  accounts: [gcp]
	clean:
	  manifest: |
	    ...

Re-applying an unchanged spec keeps the revision. A changed spec bumps the
revision and the artifact's update time, which also clears the reconciler's
failure-ratio halt.

# Observability

Every request is logged at debug (warn for 5xx) and counted in
train_api_requests_total by route pattern and status. /ready probes the store
and the queue before consulting the component registry.
*/
package api
