package position

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyName indicates a blank position name after trimming.
var ErrEmptyName = errors.New("position: name must not be empty")

// IncompleteError reports a save attempt that did not supply a value for
// every channel of the instrument. Nothing is written when this error is
// returned.
type IncompleteError struct {
	// Position is the position name that was being saved.
	Position string

	// Instrument is the target instrument name.
	Instrument string

	// Missing lists the normalized channel names without a value.
	Missing []string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("position: incomplete save of %q for instrument %q: missing values for %s",
		e.Position, e.Instrument, strings.Join(e.Missing, ", "))
}
