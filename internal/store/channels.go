package store

import (
	"context"
	"fmt"
)

// FindChannel retrieves a channel by name, returning (nil, nil) when absent.
//
// The lookup normalizes the name first. If no row matches the normalized
// name but one matches the raw name, the stored row predates normalization
// and is repaired in place.
func (s *SQLiteStore) FindChannel(ctx context.Context, name string) (*Channel, error) {
	norm := s.normalizeName(name)

	ch, err := s.findChannelExact(ctx, norm)
	if err != nil {
		return nil, err
	}
	if ch != nil || norm == name {
		return ch, nil
	}

	// Legacy row stored under the unnormalized name: fix it.
	ch, err = s.findChannelExact(ctx, name)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, nil
	}
	if _, err := s.db.ExecContext(ctx,
		"UPDATE pv SET name = ? WHERE id = ?", norm, ch.ID,
	); err != nil {
		return nil, fmt.Errorf("normalizing channel name: %w", err)
	}
	ch.Name = norm
	return ch, nil
}

// GetChannel retrieves a channel by name.
// Returns ErrChannelNotFound if it does not exist.
func (s *SQLiteStore) GetChannel(ctx context.Context, name string) (*Channel, error) {
	ch, err := s.FindChannel(ctx, name)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, fmt.Errorf("%w: %q", ErrChannelNotFound, name)
	}
	return ch, nil
}

// ListChannels retrieves all channels ordered by name.
func (s *SQLiteStore) ListChannels(ctx context.Context) ([]Channel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pv.id, pv.name, pv.notes, pv.attributes, COALESCE(pvtype.name, '')
		FROM pv
		LEFT JOIN pvtype ON pvtype.id = pv.pvtype_id
		ORDER BY pv.name`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying channels: %w", err)
	}
	defer rows.Close()

	var channels []Channel
	for rows.Next() {
		var ch Channel
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Notes, &ch.Attributes, &ch.Kind); err != nil {
			return nil, fmt.Errorf("scanning channel: %w", err)
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating channels: %w", err)
	}
	return channels, nil
}

// AddChannel creates a channel with the given kind and notes, returning
// the existing row unchanged if the normalized name is already known.
//
// kind may be empty; the classification can be set later with
// SetChannelKind once the live record type is known.
func (s *SQLiteStore) AddChannel(ctx context.Context, name, kind, notes string) (*Channel, error) {
	norm := s.normalizeName(name)

	existing, err := s.FindChannel(ctx, norm)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	var kindID any
	if kind != "" {
		id, err := s.kindID(ctx, kind, true)
		if err != nil {
			return nil, err
		}
		kindID = id
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO pv (name, notes, pvtype_id) VALUES (?, ?, ?)",
		norm, notes, kindID,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting channel: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading channel id: %w", err)
	}

	return &Channel{ID: id, Name: norm, Notes: notes, Attributes: "{}", Kind: kind}, nil
}

// SetChannelKind sets the display type classification of a channel,
// creating the pvtype row when the kind is new.
// Returns ErrChannelNotFound if the channel does not exist.
func (s *SQLiteStore) SetChannelKind(ctx context.Context, name, kind string) error {
	ch, err := s.GetChannel(ctx, name)
	if err != nil {
		return err
	}

	kindID, err := s.kindID(ctx, kind, true)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		"UPDATE pv SET pvtype_id = ? WHERE id = ?", kindID, ch.ID,
	); err != nil {
		return fmt.Errorf("updating channel kind: %w", err)
	}
	return nil
}

// findChannelExact looks up a channel by its exact stored name.
func (s *SQLiteStore) findChannelExact(ctx context.Context, name string) (*Channel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pv.id, pv.name, pv.notes, pv.attributes, COALESCE(pvtype.name, '')
		FROM pv
		LEFT JOIN pvtype ON pvtype.id = pv.pvtype_id
		WHERE pv.name = ?`,
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("querying channel: %w", err)
	}
	defer rows.Close()

	var found *Channel
	for rows.Next() {
		if found != nil {
			return nil, fmt.Errorf("%w: channel %q", ErrMultipleResults, name)
		}
		var ch Channel
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Notes, &ch.Attributes, &ch.Kind); err != nil {
			return nil, fmt.Errorf("scanning channel: %w", err)
		}
		found = &ch
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating channels: %w", err)
	}
	return found, nil
}
