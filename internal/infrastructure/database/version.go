package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// CurrentVersion is the schema version stamped into freshly created
// databases and the target of CheckVersion upgrades.
const CurrentVersion = "1.3"

// MigrationsFS should be set by the migrations package to embed the schema
// and upgrade files. This allows CheckVersion to run without the SQL files
// present on the filesystem.
//
// Usage:
//
//	//go:embed *.sql
//	var migrationsFS embed.FS
//
//	func init() {
//	    database.MigrationsFS = migrationsFS
//	}
var MigrationsFS embed.FS

// MigrationsDir is the directory within MigrationsFS containing upgrade
// files. Can be set to "." if files are at the root of the embedded
// filesystem.
var MigrationsDir = "."

// SchemaFile is the name of the full-schema file within MigrationsFS,
// applied when creating a fresh database.
var SchemaFile = "schema.sql"

// Upgrade represents one versioned schema upgrade step.
type Upgrade struct {
	// Version is the schema version this step upgrades the database to
	// (e.g. "1.2"). Versions compare lexically, matching the version
	// strings stored in the info table.
	Version string

	// Name is the human-readable upgrade name from the filename.
	Name string

	// SQL contains the statements applied by this step.
	SQL string
}

// InitSchema applies the full current schema to an empty database and
// stamps the info table with the current version and creation timestamps.
func (db *DB) InitSchema(ctx context.Context) error {
	schema, err := fs.ReadFile(MigrationsFS, filepath.Join(MigrationsDir, SchemaFile))
	if err != nil {
		return fmt.Errorf("reading schema file: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, string(schema)); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	seed := [][2]string{
		{"version", CurrentVersion},
		{"create_date", now},
		{"modify_date", now},
		{"host_name", ""},
		{"process_id", "0"},
	}
	for _, kv := range seed {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO info (key, value) VALUES (?, ?)", kv[0], kv[1],
		); err != nil {
			return fmt.Errorf("seeding info %q: %w", kv[0], err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing schema: %w", err)
	}
	return nil
}

// CheckVersion upgrades the database schema to the current version.
//
// It compares the version string stored in the info table against the
// embedded upgrade steps and applies, in order, every step with a higher
// version. Each step runs in its own transaction and records its version
// in the info table on success, so a failed step leaves earlier steps
// committed and the stored version accurate.
//
// Calling CheckVersion on an up-to-date database is a no-op.
func (db *DB) CheckVersion(ctx context.Context) error {
	stored, err := db.getInfo(ctx, "version")
	if err != nil {
		return err
	}
	if stored == "" {
		return fmt.Errorf("%w: info table has no version entry", ErrNotInstrumentDB)
	}

	upgrades, err := loadUpgrades()
	if err != nil {
		return fmt.Errorf("loading upgrades: %w", err)
	}

	for _, u := range upgrades {
		if stored >= u.Version {
			continue
		}
		if err := db.applyUpgrade(ctx, u); err != nil {
			return fmt.Errorf("upgrading to %s (%s): %w", u.Version, u.Name, err)
		}
		stored = u.Version
	}

	return nil
}

// Version returns the schema version string stored in the info table.
func (db *DB) Version(ctx context.Context) (string, error) {
	return db.getInfo(ctx, "version")
}

// applyUpgrade runs a single upgrade step in its own transaction and
// records the new version on success.
func (db *DB) applyUpgrade(ctx context.Context, u Upgrade) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, u.SQL); err != nil {
		return fmt.Errorf("executing SQL: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE info SET value = ? WHERE key = 'version'", u.Version,
	); err != nil {
		return fmt.Errorf("recording version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing upgrade: %w", err)
	}
	return nil
}

// loadUpgrades loads all upgrade files from the embedded filesystem,
// sorted by version (oldest first).
func loadUpgrades() ([]Upgrade, error) {
	var empty embed.FS
	if MigrationsFS == empty {
		return nil, nil // No embedded upgrades
	}

	entries, err := fs.ReadDir(MigrationsFS, MigrationsDir)
	if err != nil {
		return nil, nil // Directory might not exist if no upgrades
	}

	var upgrades []Upgrade
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == SchemaFile {
			continue
		}
		version, name, ok := parseUpgradeFilename(entry.Name())
		if !ok {
			continue
		}

		sqlText, err := fs.ReadFile(MigrationsFS, filepath.Join(MigrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}

		upgrades = append(upgrades, Upgrade{
			Version: version,
			Name:    name,
			SQL:     string(sqlText),
		})
	}

	sort.Slice(upgrades, func(i, j int) bool {
		return upgrades[i].Version < upgrades[j].Version
	})

	return upgrades, nil
}

// parseUpgradeFilename extracts the target version and name from an
// upgrade filename. Format: <version>_<description>.sql, for example
// "1.2_position_timestamps.sql" -> ("1.2", "position_timestamps").
func parseUpgradeFilename(name string) (version, desc string, ok bool) {
	if !strings.HasSuffix(name, ".sql") {
		return "", "", false
	}
	base := strings.TrimSuffix(name, ".sql")

	parts := strings.SplitN(base, "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
