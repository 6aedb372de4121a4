package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/skordaschristofanis/instrumentdb/internal/channel"
)

// Store defines the schema access operations used by the position engine.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Store interface {
	// GetInstrument retrieves an instrument by name.
	// Returns ErrInstrumentNotFound if it does not exist.
	GetInstrument(ctx context.Context, name string) (*Instrument, error)

	// FindInstrument retrieves an instrument by name, returning (nil, nil)
	// when absent.
	FindInstrument(ctx context.Context, name string) (*Instrument, error)

	// ListInstruments retrieves all instruments in display order.
	ListInstruments(ctx context.Context) ([]Instrument, error)

	// AddInstrument creates an instrument with an ordered channel
	// membership. Channels are created on first reference.
	AddInstrument(ctx context.Context, name string, channels []string, notes string) (*Instrument, error)

	// RemoveInstrument cascade-deletes an instrument: its positions,
	// their values, and its memberships.
	RemoveInstrument(ctx context.Context, name string) error

	// Members returns the instrument's channel membership ordered by
	// display order, ties broken by insertion order.
	Members(ctx context.Context, instrumentID int64) ([]Member, error)

	// FindChannel retrieves a channel by name, repairing unnormalized
	// stored names. Returns (nil, nil) when absent.
	FindChannel(ctx context.Context, name string) (*Channel, error)

	// AddChannel creates a channel with the given kind (may be empty),
	// returning the existing row if the name is already known.
	AddChannel(ctx context.Context, name, kind, notes string) (*Channel, error)

	// SetChannelKind sets the display type classification of a channel.
	SetChannelKind(ctx context.Context, name, kind string) error

	// FindPosition retrieves a position by instrument and name, returning
	// (nil, nil) when absent.
	FindPosition(ctx context.Context, instrumentID int64, name string) (*Position, error)

	// ListPositions retrieves all positions for an instrument.
	ListPositions(ctx context.Context, instrumentID int64) ([]Position, error)

	// WritePosition upserts the position row and replaces its value rows,
	// all in one transaction. notes == nil keeps the existing notes.
	WritePosition(ctx context.Context, instrumentID int64, name string, notes *string, values []ValueWrite) (*Position, error)

	// PositionValues returns all stored values for a position.
	PositionValues(ctx context.Context, positionID int64) ([]PositionValue, error)

	// RenamePosition renames a position under an instrument.
	RenamePosition(ctx context.Context, instrumentID int64, oldName, newName string) error

	// RemovePosition cascade-deletes a position and its values.
	RemovePosition(ctx context.Context, instrumentID int64, name string) error

	// GetInfo reads a key from the info table, returning def when absent.
	GetInfo(ctx context.Context, key, def string) (string, error)

	// SetInfo writes a key into the info table and touches modify_date.
	SetInfo(ctx context.Context, key, value string) error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	// defaultField is the field suffix appended when normalizing channel
	// names that carry none. Must match the registry's default field.
	defaultField string

	// kinds lazily caches the pvtype lookup (name -> id).
	kinds   map[string]int64
	kindsMu sync.Mutex
}

// NewSQLiteStore creates a new SQLite-backed store.
// The db parameter should be an open SQLite connection with foreign keys on.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, defaultField: channel.DefaultField}
}

// SetDefaultField overrides the field suffix used when normalizing
// channel names. Keep it in sync with the registry's default field so
// stored member names and live value keys agree.
func (s *SQLiteStore) SetDefaultField(field string) {
	if field != "" {
		s.defaultField = field
	}
}

// normalizeName is the channel-name normalization used throughout the
// store: names without a field suffix get the default field appended.
func (s *SQLiteStore) normalizeName(name string) string {
	return channel.NormalizeField(name, s.defaultField)
}

// GetInfo reads a key from the info table, returning def when absent.
func (s *SQLiteStore) GetInfo(ctx context.Context, key, def string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM info WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return def, nil
	}
	if err != nil {
		return "", fmt.Errorf("reading info %q: %w", key, err)
	}
	return value, nil
}

// SetInfo writes a key into the info table and touches modify_date, both
// in one transaction so the value and its timestamp cannot diverge.
func (s *SQLiteStore) SetInfo(ctx context.Context, key, value string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO info (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	); err != nil {
		return fmt.Errorf("writing info %q: %w", key, err)
	}
	if key != "modify_date" {
		now := time.Now().UTC().Format(time.RFC3339)
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO info (key, value) VALUES ('modify_date', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
			now,
		); err != nil {
			return fmt.Errorf("touching modify_date: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing info %q: %w", key, err)
	}
	return nil
}

// kindID resolves a pvtype name to its ID, creating the row when create is
// set. The lookup table is cached in memory after first use.
func (s *SQLiteStore) kindID(ctx context.Context, name string, create bool) (int64, error) {
	s.kindsMu.Lock()
	defer s.kindsMu.Unlock()

	if s.kinds == nil {
		if err := s.loadKindsLocked(ctx); err != nil {
			return 0, err
		}
	}

	if id, ok := s.kinds[name]; ok {
		return id, nil
	}
	if !create {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}

	res, err := s.db.ExecContext(ctx, "INSERT INTO pvtype (name) VALUES (?)", name)
	if err != nil {
		return 0, fmt.Errorf("inserting pvtype %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading pvtype id: %w", err)
	}
	s.kinds[name] = id
	return id, nil
}

// loadKindsLocked populates the pvtype cache. Caller holds kindsMu.
func (s *SQLiteStore) loadKindsLocked(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM pvtype")
	if err != nil {
		return fmt.Errorf("querying pvtypes: %w", err)
	}
	defer rows.Close()

	kinds := make(map[string]int64)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return fmt.Errorf("scanning pvtype: %w", err)
		}
		kinds[name] = id
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating pvtypes: %w", err)
	}

	s.kinds = kinds
	return nil
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
