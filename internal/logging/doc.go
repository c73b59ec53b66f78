// Package logging provides structured logging with per-module levels that
// can change while the process runs.
//
// # Usage
//
// Initialize once at startup, then ask for a logger per module:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{"capture": "debug"},
//	})
//	logger := logging.GetLogger("capture")
//	logger.Info("Source started", "source", src.Name())
//
// Loggers are cached. Each module has its own slog.LevelVar, so
// [SetLevels] (called by the config watcher when the [logging] table
// changes) takes effect on loggers that were handed out earlier.
//
// # Outputs
//
// Every logger writes to:
//
//	stdout   when a terminal, pipe, socket or file is attached
//	journal  when journald is listening (SYSLOG_IDENTIFIER=framecast)
//	history  always; an in-memory ring served by GET /api/logs
//
// # Viewing Logs
//
//	journalctl -t framecast -f
//	journalctl -t framecast MODULE=capture
//	journalctl -t framecast CHANNEL=cam0 -p warning
//
// # Configuration
//
//	[logging]
//	level = "info"
//	format = "json"
//
//	[logging.modules]
//	capture = "debug"
//	framecast = "warn"
package logging
