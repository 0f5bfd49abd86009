// Package logging provides a structured logging system for sunbeam built on
// Go's standard slog package.
//
// All log entries carry a subsystem identifier so that output from the
// engine, the relation handlers and the workload handlers can be told apart.
// Call Init once at application startup; all packages then log through the
// package-level Debug, Info, Warn and Error functions:
//
//	logging.Init(logging.LevelInfo, os.Stdout)
//	logging.Info("Engine", "Reconciled %s", name)
//	logging.Error("Store", err, "Failed to persist %s", key)
package logging
