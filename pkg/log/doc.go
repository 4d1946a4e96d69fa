/*
Package log provides structured logging for AOF using zerolog.

The log package wraps zerolog behind a small global-logger API so every
component logs through the same configured sink. Output is either
human-readable console format or JSON, selected at Init time, with optional
rotated-file duplication via lumberjack for long-running daemons.

# Usage

Initialize once at process start:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: false,
	})

Then log through the package helpers or a child logger:

	log.Info("scheduler poll complete")

	logger := log.WithTaskID("TASK-2026-01-15-001")
	logger.Warn().Msg("lease expired")

Child-logger constructors (WithComponent, WithTaskID, WithAgent, WithTeam)
attach the standard correlation fields used across the engine's log lines.

Logging must never take down a mutation: callers treat every log call as
fire-and-forget, and the package never returns errors.
*/
package log
