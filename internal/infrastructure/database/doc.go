// Package database manages the lifecycle of the SQLite instrument database.
//
// This package handles:
//   - Opening connections with the right pragmas (foreign keys, WAL, busy timeout)
//   - Creating fresh databases with rotated backups of any existing file
//   - Probing files for validity (IsInstrumentDB)
//   - Versioned schema upgrades driven by the info table (CheckVersion)
//   - The advisory host/process lock used to detect concurrent use
//
// Schema access (CRUD over instruments, channels, positions) lives in the
// store package; this package owns only the lifecycle of the file itself.
//
// Usage:
//
//	db, err := database.Create(database.Config{Path: "data/instruments.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.CheckVersion(ctx); err != nil {
//	    return err
//	}
package database
