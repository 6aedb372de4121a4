package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// FindPosition retrieves a position by instrument and name, returning
// (nil, nil) when absent.
func (s *SQLiteStore) FindPosition(ctx context.Context, instrumentID int64, name string) (*Position, error) {
	return s.findPositionWhere(ctx,
		"WHERE instrument_id = ? AND name = ?",
		instrumentID, strings.TrimSpace(name),
	)
}

// FindPositionByName retrieves a position by name across all instruments.
// Returns (nil, nil) when absent and ErrMultipleResults when the name is
// used by more than one instrument.
func (s *SQLiteStore) FindPositionByName(ctx context.Context, name string) (*Position, error) {
	return s.findPositionWhere(ctx, "WHERE name = ?", strings.TrimSpace(name))
}

// GetPosition retrieves a position by instrument and name.
// Returns ErrPositionNotFound if it does not exist.
func (s *SQLiteStore) GetPosition(ctx context.Context, instrumentID int64, name string) (*Position, error) {
	pos, err := s.FindPosition(ctx, instrumentID, name)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, fmt.Errorf("%w: %q", ErrPositionNotFound, strings.TrimSpace(name))
	}
	return pos, nil
}

// ListPositions retrieves all positions for an instrument, most recently
// modified first.
func (s *SQLiteStore) ListPositions(ctx context.Context, instrumentID int64) ([]Position, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, instrument_id, notes, modify_time FROM position WHERE instrument_id = ? ORDER BY modify_time DESC, id",
		instrumentID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying positions: %w", err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning position: %w", err)
		}
		positions = append(positions, *pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating positions: %w", err)
	}
	return positions, nil
}

// WritePosition upserts the position row and replaces its value rows, all
// in one transaction.
//
// If the position exists, its modify_time is refreshed and its notes are
// overwritten only when notes is non-nil (upsert semantics - overwrites,
// never merges history). Value rows are written insert-or-replace, one per
// entry of values; existing rows for channels not in values are left
// untouched.
func (s *SQLiteStore) WritePosition(ctx context.Context, instrumentID int64, name string, notes *string, values []ValueWrite) (*Position, error) {
	name = strings.TrimSpace(name)
	now := time.Now().UTC()

	// Look up the existing row before the transaction starts: the pool is
	// capped at one connection, so queries through s.db would block behind
	// an open tx.
	existing, err := s.FindPosition(ctx, instrumentID, name)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	pos := &Position{Name: name, InstrumentID: instrumentID, ModifyTime: now}
	if existing == nil {
		noteText := ""
		if notes != nil {
			noteText = *notes
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO position (name, instrument_id, notes, modify_time) VALUES (?, ?, ?, ?)",
			name, instrumentID, noteText, now.Format(time.RFC3339),
		)
		if err != nil {
			return nil, fmt.Errorf("inserting position: %w", err)
		}
		pos.ID, err = res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("reading position id: %w", err)
		}
		pos.Notes = noteText
	} else {
		pos.ID = existing.ID
		pos.Notes = existing.Notes
		if notes != nil {
			pos.Notes = *notes
			_, err = tx.ExecContext(ctx,
				"UPDATE position SET modify_time = ?, notes = ? WHERE id = ?",
				now.Format(time.RFC3339), *notes, pos.ID,
			)
		} else {
			_, err = tx.ExecContext(ctx,
				"UPDATE position SET modify_time = ? WHERE id = ?",
				now.Format(time.RFC3339), pos.ID,
			)
		}
		if err != nil {
			return nil, fmt.Errorf("updating position: %w", err)
		}
	}

	for _, v := range values {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO position_pv (position_id, pv_id, value, notes)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(position_id, pv_id) DO UPDATE SET value = excluded.value, notes = excluded.notes`,
			pos.ID, v.ChannelID, v.Value, v.Notes,
		); err != nil {
			return nil, fmt.Errorf("writing position value: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing position: %w", err)
	}
	return pos, nil
}

// PositionValues returns all stored values for a position.
func (s *SQLiteStore) PositionValues(ctx context.Context, positionID int64) ([]PositionValue, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, position_id, pv_id, value, notes FROM position_pv WHERE position_id = ?",
		positionID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying position values: %w", err)
	}
	defer rows.Close()

	var values []PositionValue
	for rows.Next() {
		var v PositionValue
		if err := rows.Scan(&v.ID, &v.PositionID, &v.ChannelID, &v.Value, &v.Notes); err != nil {
			return nil, fmt.Errorf("scanning position value: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating position values: %w", err)
	}
	return values, nil
}

// RenamePosition renames a position under an instrument.
// Returns ErrPositionNotFound if the old name does not exist.
func (s *SQLiteStore) RenamePosition(ctx context.Context, instrumentID int64, oldName, newName string) error {
	pos, err := s.GetPosition(ctx, instrumentID, oldName)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		"UPDATE position SET name = ? WHERE id = ?",
		strings.TrimSpace(newName), pos.ID,
	); err != nil {
		return fmt.Errorf("renaming position: %w", err)
	}
	return nil
}

// RemovePosition cascade-deletes a position and its value rows in one
// transaction. Returns ErrPositionNotFound if it does not exist.
func (s *SQLiteStore) RemovePosition(ctx context.Context, instrumentID int64, name string) error {
	pos, err := s.GetPosition(ctx, instrumentID, name)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM position_pv WHERE position_id = ?", pos.ID,
	); err != nil {
		return fmt.Errorf("deleting position values: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM position WHERE id = ?", pos.ID,
	); err != nil {
		return fmt.Errorf("deleting position: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing removal: %w", err)
	}
	return nil
}

// findPositionWhere runs a single-row position query with the given WHERE
// clause, enforcing the at-most-one contract.
func (s *SQLiteStore) findPositionWhere(ctx context.Context, where string, args ...any) (*Position, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, instrument_id, notes, modify_time FROM position "+where,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying position: %w", err)
	}
	defer rows.Close()

	var found *Position
	for rows.Next() {
		if found != nil {
			return nil, fmt.Errorf("%w: position query %q", ErrMultipleResults, where)
		}
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning position: %w", err)
		}
		found = pos
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating positions: %w", err)
	}
	return found, nil
}

// scanPosition scans a row into a Position.
func scanPosition(scanner rowScanner) (*Position, error) {
	var pos Position
	var modifyTime string
	if err := scanner.Scan(&pos.ID, &pos.Name, &pos.InstrumentID, &pos.Notes, &modifyTime); err != nil {
		return nil, err
	}
	// Empty modify_time comes from pre-1.3 rows.
	if modifyTime != "" {
		t, err := time.Parse(time.RFC3339, modifyTime)
		if err == nil {
			pos.ModifyTime = t
		}
	}
	return &pos, nil
}
