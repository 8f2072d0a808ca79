/*
Package log provides structured logging for Train using zerolog.

A single package-level Logger is configured once by Init and shared by every
component. Output is JSON lines whenever the destination is not a terminal (or
JSONOutput is set), and zerolog's console writer otherwise.

# Component Loggers

	logger := log.WithComponent("scheduler")
	logger.Info().Str("art_id", id).Int("to_deploy", n).Msg("Dispatching rollout")

	instLog := log.WithInstanceID(art.ID, inst.ID)
	instLog.Warn().Str("reason", reason).Msg("Instance failed")

Field names are shared across packages: component, art_id, inst_id, kind,
run_handle and status.

# Levels

	debug: every queue pop, status probe and published event
	info:  rollouts dispatched, instances finishing, requeues
	warn:  runs that failed, artifacts halted by the failure ratio
	error: store or runner failures the loops recover from
*/
package log
