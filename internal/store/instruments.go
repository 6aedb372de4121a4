package store

import (
	"context"
	"fmt"
	"strings"
)

const instrumentColumns = "id, name, notes, attributes, show, display_order"

// GetInstrument retrieves an instrument by name.
// Returns ErrInstrumentNotFound if it does not exist.
func (s *SQLiteStore) GetInstrument(ctx context.Context, name string) (*Instrument, error) {
	inst, err := s.FindInstrument(ctx, name)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("%w: %q", ErrInstrumentNotFound, name)
	}
	return inst, nil
}

// FindInstrument retrieves an instrument by name, returning (nil, nil)
// when absent. More than one match reports ErrMultipleResults.
func (s *SQLiteStore) FindInstrument(ctx context.Context, name string) (*Instrument, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+instrumentColumns+" FROM instrument WHERE name = ?",
		strings.TrimSpace(name),
	)
	if err != nil {
		return nil, fmt.Errorf("querying instrument: %w", err)
	}
	defer rows.Close()

	var found *Instrument
	for rows.Next() {
		if found != nil {
			return nil, fmt.Errorf("%w: instrument %q", ErrMultipleResults, name)
		}
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning instrument: %w", err)
		}
		found = inst
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating instruments: %w", err)
	}
	return found, nil
}

// ListInstruments retrieves all instruments in display order.
func (s *SQLiteStore) ListInstruments(ctx context.Context) ([]Instrument, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+instrumentColumns+" FROM instrument ORDER BY display_order, id",
	)
	if err != nil {
		return nil, fmt.Errorf("querying instruments: %w", err)
	}
	defer rows.Close()

	var instruments []Instrument
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning instrument: %w", err)
		}
		instruments = append(instruments, *inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating instruments: %w", err)
	}
	return instruments, nil
}

// AddInstrument creates an instrument with an ordered channel membership.
//
// Channel names are normalized; channels not yet in the database are
// created on first reference. Membership display_order values are dense,
// following the order of the channels argument. The whole operation runs
// in one transaction.
//
// Returns ErrInstrumentExists if the name is already taken.
func (s *SQLiteStore) AddInstrument(ctx context.Context, name string, channels []string, notes string) (*Instrument, error) {
	name = strings.TrimSpace(name)

	// Resolve or create channels outside the transaction; channel rows
	// are never deleted, so a partial failure leaves nothing dangling.
	channelIDs := make([]int64, 0, len(channels))
	for _, chName := range channels {
		ch, err := s.AddChannel(ctx, chName, "", "")
		if err != nil {
			return nil, err
		}
		channelIDs = append(channelIDs, ch.ID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	res, err := tx.ExecContext(ctx,
		"INSERT INTO instrument (name, notes) VALUES (?, ?)", name, notes,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, fmt.Errorf("%w: %q", ErrInstrumentExists, name)
		}
		return nil, fmt.Errorf("inserting instrument: %w", err)
	}
	instID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading instrument id: %w", err)
	}

	for order, chID := range channelIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO instrument_pv (instrument_id, pv_id, display_order) VALUES (?, ?, ?)",
			instID, chID, order,
		); err != nil {
			return nil, fmt.Errorf("inserting membership: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing instrument: %w", err)
	}

	return &Instrument{ID: instID, Name: name, Notes: notes, Attributes: "{}", Show: true}, nil
}

// RemoveInstrument cascade-deletes an instrument: value rows for all its
// positions, the positions themselves, the channel memberships, and
// finally the instrument row, in one transaction.
//
// Channels referenced only by this instrument are left in place; channels
// are never implicitly deleted.
func (s *SQLiteStore) RemoveInstrument(ctx context.Context, name string) error {
	inst, err := s.GetInstrument(ctx, name)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM position_pv WHERE position_id IN (SELECT id FROM position WHERE instrument_id = ?)",
		inst.ID,
	); err != nil {
		return fmt.Errorf("deleting position values: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM position WHERE instrument_id = ?", inst.ID,
	); err != nil {
		return fmt.Errorf("deleting positions: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM instrument_pv WHERE instrument_id = ?", inst.ID,
	); err != nil {
		return fmt.Errorf("deleting memberships: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM instrument WHERE id = ?", inst.ID,
	); err != nil {
		return fmt.Errorf("deleting instrument: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing removal: %w", err)
	}
	return nil
}

// Members returns the instrument's channel membership ordered by
// display_order, ties broken by insertion order.
func (s *SQLiteStore) Members(ctx context.Context, instrumentID int64) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ip.pv_id, pv.name, ip.display_order
		FROM instrument_pv ip
		JOIN pv ON pv.id = ip.pv_id
		WHERE ip.instrument_id = ?
		ORDER BY ip.display_order, ip.id`,
		instrumentID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying memberships: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ChannelID, &m.Name, &m.DisplayOrder); err != nil {
			return nil, fmt.Errorf("scanning membership: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating memberships: %w", err)
	}
	return members, nil
}

// AppendMember adds a channel to the end of an instrument's membership,
// creating the channel on first reference.
func (s *SQLiteStore) AppendMember(ctx context.Context, instrumentID int64, channelName string) error {
	ch, err := s.AddChannel(ctx, channelName, "", "")
	if err != nil {
		return err
	}

	var next int
	err = s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(display_order) + 1, 0) FROM instrument_pv WHERE instrument_id = ?",
		instrumentID,
	).Scan(&next)
	if err != nil {
		return fmt.Errorf("reading next display order: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO instrument_pv (instrument_id, pv_id, display_order) VALUES (?, ?, ?)",
		instrumentID, ch.ID, next,
	); err != nil {
		return fmt.Errorf("inserting membership: %w", err)
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanInstrument scans a row into an Instrument.
func scanInstrument(scanner rowScanner) (*Instrument, error) {
	var inst Instrument
	var show int
	err := scanner.Scan(&inst.ID, &inst.Name, &inst.Notes, &inst.Attributes, &show, &inst.DisplayOrder)
	if err != nil {
		return nil, err
	}
	inst.Show = show != 0
	return &inst, nil
}
