package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

// seedInstrument creates an instrument with two member channels and
// returns it with its membership.
func seedInstrument(t *testing.T, s *SQLiteStore) (*Instrument, []Member) {
	t.Helper()
	ctx := context.Background()

	inst, err := s.AddInstrument(ctx, "XRD Stage", []string{"XRD:m1", "XRD:m2"}, "")
	if err != nil {
		t.Fatalf("AddInstrument() error = %v", err)
	}
	members, err := s.Members(ctx, inst.ID)
	if err != nil {
		t.Fatalf("Members() error = %v", err)
	}
	return inst, members
}

// TestWritePosition verifies the transactional upsert.
func TestWritePosition(t *testing.T) {
	ctx := context.Background()

	t.Run("creates position with values", func(t *testing.T) {
		s := newTestStore(t)
		inst, members := seedInstrument(t, s)

		values := []ValueWrite{
			{ChannelID: members[0].ChannelID, Value: "1.25", Notes: "'XRD Stage' / 'sample in'"},
			{ChannelID: members[1].ChannelID, Value: "-0.5", Notes: "'XRD Stage' / 'sample in'"},
		}
		pos, err := s.WritePosition(ctx, inst.ID, "sample in", nil, values)
		if err != nil {
			t.Fatalf("WritePosition() error = %v", err)
		}
		if pos.ID == 0 {
			t.Error("position ID not assigned")
		}
		if pos.ModifyTime.IsZero() {
			t.Error("ModifyTime not set")
		}

		stored, err := s.PositionValues(ctx, pos.ID)
		if err != nil {
			t.Fatalf("PositionValues() error = %v", err)
		}
		if len(stored) != 2 {
			t.Fatalf("len(PositionValues()) = %d, want 2", len(stored))
		}
		for _, v := range stored {
			if v.Value == nil {
				t.Error("stored value is nil")
			}
		}
	})

	t.Run("saving again replaces values", func(t *testing.T) {
		s := newTestStore(t)
		inst, members := seedInstrument(t, s)

		first := []ValueWrite{
			{ChannelID: members[0].ChannelID, Value: "1.0"},
			{ChannelID: members[1].ChannelID, Value: "2.0"},
		}
		p1, err := s.WritePosition(ctx, inst.ID, "sample in", nil, first)
		if err != nil {
			t.Fatalf("WritePosition() error = %v", err)
		}

		second := []ValueWrite{
			{ChannelID: members[0].ChannelID, Value: "9.0"},
			{ChannelID: members[1].ChannelID, Value: "8.0"},
		}
		p2, err := s.WritePosition(ctx, inst.ID, "sample in", nil, second)
		if err != nil {
			t.Fatalf("WritePosition() overwrite error = %v", err)
		}
		if p2.ID != p1.ID {
			t.Error("overwrite created a new position row")
		}

		stored, _ := s.PositionValues(ctx, p2.ID)
		if len(stored) != 2 {
			t.Fatalf("len(PositionValues()) = %d after overwrite, want 2", len(stored))
		}
		for _, v := range stored {
			if *v.Value != "9.0" && *v.Value != "8.0" {
				t.Errorf("stale value %q survived overwrite", *v.Value)
			}
		}
	})

	t.Run("nil notes keeps existing notes", func(t *testing.T) {
		s := newTestStore(t)
		inst, members := seedInstrument(t, s)

		notes := "first save"
		values := []ValueWrite{{ChannelID: members[0].ChannelID, Value: "1"}}
		if _, err := s.WritePosition(ctx, inst.ID, "p", &notes, values); err != nil {
			t.Fatalf("WritePosition() error = %v", err)
		}

		pos, err := s.WritePosition(ctx, inst.ID, "p", nil, values)
		if err != nil {
			t.Fatalf("WritePosition() error = %v", err)
		}
		if pos.Notes != "first save" {
			t.Errorf("Notes = %q, want preserved %q", pos.Notes, "first save")
		}

		updated := "second save"
		pos, err = s.WritePosition(ctx, inst.ID, "p", &updated, values)
		if err != nil {
			t.Fatalf("WritePosition() error = %v", err)
		}
		if pos.Notes != "second save" {
			t.Errorf("Notes = %q, want %q", pos.Notes, "second save")
		}
	})

	t.Run("position name is trimmed", func(t *testing.T) {
		s := newTestStore(t)
		inst, members := seedInstrument(t, s)

		values := []ValueWrite{{ChannelID: members[0].ChannelID, Value: "1"}}
		if _, err := s.WritePosition(ctx, inst.ID, "  padded  ", nil, values); err != nil {
			t.Fatalf("WritePosition() error = %v", err)
		}

		pos, err := s.FindPosition(ctx, inst.ID, "padded")
		if err != nil {
			t.Fatalf("FindPosition() error = %v", err)
		}
		if pos == nil {
			t.Error("trimmed name not found")
		}
	})
}

// TestFindPosition verifies lookup contracts.
func TestFindPosition(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	inst, members := seedInstrument(t, s)

	values := []ValueWrite{{ChannelID: members[0].ChannelID, Value: "1"}}
	if _, err := s.WritePosition(ctx, inst.ID, "sample in", nil, values); err != nil {
		t.Fatalf("WritePosition() error = %v", err)
	}

	t.Run("absent returns nil, nil", func(t *testing.T) {
		pos, err := s.FindPosition(ctx, inst.ID, "missing")
		if err != nil {
			t.Fatalf("FindPosition() error = %v", err)
		}
		if pos != nil {
			t.Errorf("FindPosition(absent) = %+v, want nil", pos)
		}
	})

	t.Run("get absent reports not found", func(t *testing.T) {
		_, err := s.GetPosition(ctx, inst.ID, "missing")
		if !errors.Is(err, ErrPositionNotFound) {
			t.Errorf("GetPosition(absent) error = %v, want ErrPositionNotFound", err)
		}
	})

	t.Run("by name across instruments", func(t *testing.T) {
		pos, err := s.FindPositionByName(ctx, "sample in")
		if err != nil {
			t.Fatalf("FindPositionByName() error = %v", err)
		}
		if pos == nil || pos.InstrumentID != inst.ID {
			t.Error("FindPositionByName() did not find the position")
		}
	})

	t.Run("duplicate name across instruments is ambiguous", func(t *testing.T) {
		other, err := s.AddInstrument(ctx, "Other", []string{"XRD:m1"}, "")
		if err != nil {
			t.Fatalf("AddInstrument() error = %v", err)
		}
		om, _ := s.Members(ctx, other.ID)
		ov := []ValueWrite{{ChannelID: om[0].ChannelID, Value: "1"}}
		if _, err := s.WritePosition(ctx, other.ID, "sample in", nil, ov); err != nil {
			t.Fatalf("WritePosition() error = %v", err)
		}

		_, err = s.FindPositionByName(ctx, "sample in")
		if !errors.Is(err, ErrMultipleResults) {
			t.Errorf("FindPositionByName(ambiguous) error = %v, want ErrMultipleResults", err)
		}
	})
}

// TestListPositions verifies recency ordering.
func TestListPositions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	inst, members := seedInstrument(t, s)

	values := []ValueWrite{{ChannelID: members[0].ChannelID, Value: "1"}}
	if _, err := s.WritePosition(ctx, inst.ID, "older", nil, values); err != nil {
		t.Fatalf("WritePosition() error = %v", err)
	}
	// RFC3339 granularity is one second; space the saves out.
	time.Sleep(1100 * time.Millisecond)
	if _, err := s.WritePosition(ctx, inst.ID, "newer", nil, values); err != nil {
		t.Fatalf("WritePosition() error = %v", err)
	}

	list, err := s.ListPositions(ctx, inst.ID)
	if err != nil {
		t.Fatalf("ListPositions() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(ListPositions()) = %d, want 2", len(list))
	}
	if list[0].Name != "newer" {
		t.Errorf("list[0].Name = %q, want %q (most recent first)", list[0].Name, "newer")
	}
}

// TestRenamePosition verifies renaming.
func TestRenamePosition(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	inst, members := seedInstrument(t, s)

	values := []ValueWrite{{ChannelID: members[0].ChannelID, Value: "1"}}
	if _, err := s.WritePosition(ctx, inst.ID, "old name", nil, values); err != nil {
		t.Fatalf("WritePosition() error = %v", err)
	}

	if err := s.RenamePosition(ctx, inst.ID, "old name", "new name"); err != nil {
		t.Fatalf("RenamePosition() error = %v", err)
	}

	if pos, _ := s.FindPosition(ctx, inst.ID, "old name"); pos != nil {
		t.Error("old name still present after rename")
	}
	if pos, _ := s.FindPosition(ctx, inst.ID, "new name"); pos == nil {
		t.Error("new name not found after rename")
	}

	t.Run("absent reports not found", func(t *testing.T) {
		err := s.RenamePosition(ctx, inst.ID, "missing", "anything")
		if !errors.Is(err, ErrPositionNotFound) {
			t.Errorf("RenamePosition(absent) error = %v, want ErrPositionNotFound", err)
		}
	})
}

// TestRemovePosition verifies the cascade delete.
func TestRemovePosition(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	inst, members := seedInstrument(t, s)

	values := []ValueWrite{
		{ChannelID: members[0].ChannelID, Value: "1"},
		{ChannelID: members[1].ChannelID, Value: "2"},
	}
	pos, err := s.WritePosition(ctx, inst.ID, "sample in", nil, values)
	if err != nil {
		t.Fatalf("WritePosition() error = %v", err)
	}

	if err := s.RemovePosition(ctx, inst.ID, "sample in"); err != nil {
		t.Fatalf("RemovePosition() error = %v", err)
	}

	if got, _ := s.FindPosition(ctx, inst.ID, "sample in"); got != nil {
		t.Error("position still present after removal")
	}
	vals, err := s.PositionValues(ctx, pos.ID)
	if err != nil {
		t.Fatalf("PositionValues() error = %v", err)
	}
	if len(vals) != 0 {
		t.Errorf("len(PositionValues()) = %d after removal, want 0", len(vals))
	}

	t.Run("absent reports not found", func(t *testing.T) {
		err := s.RemovePosition(ctx, inst.ID, "sample in")
		if !errors.Is(err, ErrPositionNotFound) {
			t.Errorf("RemovePosition(absent) error = %v, want ErrPositionNotFound", err)
		}
	})
}
