package store

import "time"

// Instrument is a named collection of control-system channels whose values
// can be saved and restored together.
type Instrument struct {
	// ID is the auto-incremented primary key.
	ID int64 `json:"id"`

	// Name uniquely identifies the instrument.
	Name string `json:"name"`

	// Notes is free-text annotation.
	Notes string `json:"notes"`

	// Attributes is an opaque JSON document of caller-defined metadata.
	Attributes string `json:"attributes"`

	// Show controls whether UIs display this instrument.
	Show bool `json:"show"`

	// DisplayOrder orders instruments in listings.
	DisplayOrder int `json:"display_order"`
}

// Channel is a process variable (PV) known to the database.
//
// Channel names are always stored normalized: a name without a field suffix
// gets the default field appended. Channels are created on first reference
// and never implicitly deleted.
type Channel struct {
	// ID is the auto-incremented primary key.
	ID int64 `json:"id"`

	// Name is the normalized channel name.
	Name string `json:"name"`

	// Notes is free-text annotation.
	Notes string `json:"notes"`

	// Attributes is an opaque JSON document of caller-defined metadata.
	Attributes string `json:"attributes"`

	// Kind is the display type classification (numeric, string, enum,
	// motor). Empty when the channel was stored without one.
	Kind string `json:"kind"`
}

// Member is one entry of an instrument's ordered channel membership.
type Member struct {
	// ChannelID is the member channel's primary key.
	ChannelID int64 `json:"channel_id"`

	// Name is the member channel's normalized name.
	Name string `json:"name"`

	// DisplayOrder establishes the save/restore sequence. Values are
	// unique per instrument; ties in legacy data break by insertion order.
	DisplayOrder int `json:"display_order"`
}

// Position is a named snapshot of an instrument's channel values.
// Names are unique per instrument.
type Position struct {
	// ID is the auto-incremented primary key.
	ID int64 `json:"id"`

	// Name identifies the position within its instrument.
	Name string `json:"name"`

	// InstrumentID is the owning instrument.
	InstrumentID int64 `json:"instrument_id"`

	// Notes is free-text annotation.
	Notes string `json:"notes"`

	// ModifyTime is when the position was last saved (UTC).
	ModifyTime time.Time `json:"modify_time"`
}

// PositionValue maps a position/channel pair to the stored value.
type PositionValue struct {
	// ID is the auto-incremented primary key.
	ID int64 `json:"id"`

	// PositionID is the owning position.
	PositionID int64 `json:"position_id"`

	// ChannelID is the channel the value belongs to.
	ChannelID int64 `json:"channel_id"`

	// Value is the stored value as text; nil when the row recorded no
	// value.
	Value *string `json:"value"`

	// Notes is the annotation written at save time, referencing the
	// instrument and position.
	Notes string `json:"notes"`
}

// ValueWrite is one channel value to be written as part of a position save.
type ValueWrite struct {
	ChannelID int64
	Value     string
	Notes     string
}
