// Package logging provides subsystem-tagged structured logging for choreo.
//
// The package is a thin layer over Go's standard slog package. Every entry
// carries a subsystem name so that engine, runner and transport output can be
// filtered independently.
//
// # Log Levels
//   - **Debug**: arrival-by-arrival tracing, matcher evaluation details
//   - **Info**: scenario progress, feeder startup, configuration loading
//   - **Warn**: build-time diagnostics such as lenient overrides or truncated groups
//   - **Error**: transport and I/O failures
//
// # Usage
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("Runner", "Starting scenario %s", name)
//	logging.Debug("Engine", "Arrival %s at %s consumed slot %d", id, endpoint, slot)
//	logging.Warn("Expectation", "Lenient responder overrides %d declared messages", n)
//	logging.Error("Transport", err, "Failed to deliver reply")
//
// JSON output is available through Init(level, FormatJSON, w).
//
// # Subsystems
//
//   - **Expectation**: expectation building and merging
//   - **Engine**: run-time matching and consumption
//   - **Runner**: specification execution and waits
//   - **ScenarioLoader**: YAML scenario loading
//   - **Transport**: HTTP, MCP and in-memory feeders and senders
//   - **Config**: configuration file loading
//
// # Thread Safety
//
// Logging functions are safe for concurrent use. Init may be called again
// (tests do this) and atomically swaps the underlying logger.
package logging
