// Package logging provides structured logging for instrumentdb.
//
// It wraps the standard library log/slog package with configuration-driven
// handler selection (JSON or text), level filtering, and default attributes
// (service name, version) attached to every record.
//
// Usage:
//
//	log := logging.New(cfg.Logging, version)
//	log.Info("database connected", "path", cfg.Database.Path)
//
//	storeLog := log.With("component", "store")
package logging
