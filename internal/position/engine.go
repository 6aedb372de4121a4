package position

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skordaschristofanis/instrumentdb/internal/channel"
	"github.com/skordaschristofanis/instrumentdb/internal/history"
	"github.com/skordaschristofanis/instrumentdb/internal/store"
)

// Engine timing constants.
const (
	// DefaultRestoreTimeout bounds a waiting restore when the caller
	// does not supply one.
	DefaultRestoreTimeout = 5 * time.Second

	// defaultConnectWait bounds the per-channel connection wait during
	// a restore.
	defaultConnectWait = 1 * time.Second

	// completionPollInterval is the cadence of put-completion checks.
	completionPollInterval = 25 * time.Millisecond
)

// Logger defines the logging interface used by the Engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Entry is one channel of a stored position, in membership display order.
type Entry struct {
	// Channel is the normalized channel name.
	Channel string

	// Value is the stored value, or nil when the position predates this
	// channel's membership and recorded nothing for it.
	Value *string
}

// Status classifies the outcome of one channel write during a restore.
type Status int

const (
	// StatusWritten means the write was issued to the channel.
	StatusWritten Status = iota

	// StatusSkipped means no write was issued; Result.Reason says why.
	StatusSkipped
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusWritten:
		return "written"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Result is the per-channel outcome of a restore batch.
type Result struct {
	// Channel is the normalized channel name.
	Channel string

	// Status says whether a write was issued.
	Status Status

	// Reason explains a skip; empty for written channels.
	Reason string
}

// Outcome is the result of a restore batch.
type Outcome struct {
	// BatchID identifies the batch in the audit trail.
	BatchID string

	// Complete reports whether every issued write was confirmed done
	// before the deadline. Always false when the restore did not wait.
	Complete bool

	// Results holds the per-channel outcomes in write order.
	Results []Result
}

// Written counts the channels that received a write.
func (o *Outcome) Written() int {
	n := 0
	for _, r := range o.Results {
		if r.Status == StatusWritten {
			n++
		}
	}
	return n
}

// Skipped counts the channels that were skipped.
func (o *Outcome) Skipped() int {
	return len(o.Results) - o.Written()
}

// RestoreOptions controls a restore batch.
type RestoreOptions struct {
	// Wait makes Restore poll for write completion until Timeout.
	Wait bool

	// Timeout bounds a waiting restore, measured from the Restore call.
	// Zero means DefaultRestoreTimeout.
	Timeout time.Duration

	// Exclude lists channel names to leave untouched. Names are
	// normalized before matching.
	Exclude []string
}

// Engine saves and restores instrument positions.
//
// It joins the three layers underneath it: the store for persisted
// snapshots, the channel registry for live writes, and the history
// recorder for the audit trail. Mutating operations are serialized by an
// internal mutex so concurrent saves and restores against the same
// single-connection database cannot interleave.
type Engine struct {
	store    store.Store
	registry *channel.Registry
	history  *history.Recorder
	logger   Logger

	connectWait time.Duration

	mu sync.Mutex
}

// NewEngine creates a position engine. history may be nil to disable the
// audit trail.
func NewEngine(st store.Store, reg *channel.Registry, rec *history.Recorder) *Engine {
	return &Engine{
		store:       st,
		registry:    reg,
		history:     rec,
		logger:      noopLogger{},
		connectWait: defaultConnectWait,
	}
}

// SetLogger replaces the engine's logger.
func (e *Engine) SetLogger(logger Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// SetConnectWait overrides the per-channel connection wait used during a
// restore.
func (e *Engine) SetConnectWait(d time.Duration) {
	if d > 0 {
		e.connectWait = d
	}
}

// Save stores a named snapshot of the instrument's channel values.
//
// values maps channel names (normalized on entry) to the value to store.
// Every member channel of the instrument must be covered: a missing
// channel aborts the save with an IncompleteError before anything is
// written. Extra keys that are not members of the instrument are ignored.
// An instrument with no member channels saves an empty snapshot.
//
// Saving an existing name replaces the stored values and refreshes the
// modify time. notes == nil keeps any existing notes.
func (e *Engine) Save(ctx context.Context, positionName, instrumentName string, values map[string]string, notes *string) (*store.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	positionName = strings.TrimSpace(positionName)
	if positionName == "" {
		return nil, ErrEmptyName
	}

	inst, err := e.store.GetInstrument(ctx, instrumentName)
	if err != nil {
		return nil, err
	}

	members, err := e.store.Members(ctx, inst.ID)
	if err != nil {
		return nil, err
	}

	normalized := make(map[string]string, len(values))
	for name, val := range values {
		normalized[e.registry.Normalize(name)] = val
	}

	// Coverage check before any write: a save is all-or-nothing.
	var missing []string
	for _, m := range members {
		if _, ok := normalized[m.Name]; !ok {
			missing = append(missing, m.Name)
		}
	}
	if len(missing) > 0 {
		return nil, &IncompleteError{
			Position:   positionName,
			Instrument: inst.Name,
			Missing:    missing,
		}
	}

	annotation := fmt.Sprintf("'%s' / '%s'", inst.Name, positionName)
	writes := make([]store.ValueWrite, 0, len(members))
	for _, m := range members {
		writes = append(writes, store.ValueWrite{
			ChannelID: m.ChannelID,
			Value:     normalized[m.Name],
			Notes:     annotation,
		})
	}

	pos, err := e.store.WritePosition(ctx, inst.ID, positionName, notes, writes)
	if err != nil {
		return nil, err
	}

	e.logger.Info("position saved",
		"instrument", inst.Name,
		"position", positionName,
		"channels", len(writes))
	e.history.RecordSave(inst.Name, positionName, len(writes))

	return pos, nil
}

// Ordered returns the stored values of a position in the instrument's
// membership order. Channels that joined the instrument after the
// position was saved appear with a nil value. exclude names are
// normalized and filtered out.
func (e *Engine) Ordered(ctx context.Context, positionName, instrumentName string, exclude []string) ([]Entry, error) {
	inst, err := e.store.GetInstrument(ctx, instrumentName)
	if err != nil {
		return nil, err
	}

	pos, err := e.store.FindPosition(ctx, inst.ID, positionName)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, fmt.Errorf("%w: %q for instrument %q", store.ErrPositionNotFound, positionName, inst.Name)
	}

	members, err := e.store.Members(ctx, inst.ID)
	if err != nil {
		return nil, err
	}

	stored, err := e.store.PositionValues(ctx, pos.ID)
	if err != nil {
		return nil, err
	}
	byChannel := make(map[int64]*string, len(stored))
	for _, v := range stored {
		byChannel[v.ChannelID] = v.Value
	}

	excluded := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		excluded[e.registry.Normalize(name)] = true
	}

	entries := make([]Entry, 0, len(members))
	for _, m := range members {
		if excluded[m.Name] {
			continue
		}
		entries = append(entries, Entry{Channel: m.Name, Value: byChannel[m.ChannelID]})
	}
	return entries, nil
}

// Restore writes a stored position back to the live channels.
//
// Writes are issued non-blocking in membership order, each channel given a
// bounded connection wait first. A channel is skipped, never failed, when
// it cannot be written: not connected in time, no stored value, or the
// write itself errored; the reason lands in the per-channel Result.
//
// With opts.Wait set, Restore then polls the written channels until every
// write completes or the deadline (measured from the call, not from the
// last write) expires. Without it the batch is fire-and-forget and
// Outcome.Complete is false.
func (e *Engine) Restore(ctx context.Context, positionName, instrumentName string, opts RestoreOptions) (*Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultRestoreTimeout
	}
	deadline := time.Now().Add(timeout)

	entries, err := e.Ordered(ctx, positionName, instrumentName, opts.Exclude)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{BatchID: uuid.NewString()}
	pending := make([]channel.Conn, 0, len(entries))

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if entry.Value == nil {
			outcome.Results = append(outcome.Results, Result{
				Channel: entry.Channel,
				Status:  StatusSkipped,
				Reason:  "no stored value",
			})
			continue
		}

		conn, err := e.registry.Resolve(entry.Channel)
		if err != nil {
			outcome.Results = append(outcome.Results, Result{
				Channel: entry.Channel,
				Status:  StatusSkipped,
				Reason:  fmt.Sprintf("resolve failed: %v", err),
			})
			continue
		}

		if !conn.Connected() {
			// The batch deadline bounds connection waits only when the
			// caller asked to wait; a fire-and-forget batch gives every
			// channel the full connect wait.
			wait := e.connectWait
			if opts.Wait {
				if remaining := time.Until(deadline); remaining < wait {
					wait = remaining
				}
			}
			if wait <= 0 || !conn.WaitForConnection(wait) {
				outcome.Results = append(outcome.Results, Result{
					Channel: entry.Channel,
					Status:  StatusSkipped,
					Reason:  "not connected",
				})
				continue
			}
		}

		if err := conn.Put(*entry.Value); err != nil {
			outcome.Results = append(outcome.Results, Result{
				Channel: entry.Channel,
				Status:  StatusSkipped,
				Reason:  fmt.Sprintf("put failed: %v", err),
			})
			continue
		}

		outcome.Results = append(outcome.Results, Result{Channel: entry.Channel, Status: StatusWritten})
		pending = append(pending, conn)
		e.history.RecordChannelWrite(outcome.BatchID, instrumentName, positionName, entry.Channel, *entry.Value)
	}

	if opts.Wait {
		outcome.Complete = e.awaitCompletion(ctx, pending, deadline)
	}

	e.logger.Info("position restored",
		"instrument", instrumentName,
		"position", positionName,
		"written", outcome.Written(),
		"skipped", outcome.Skipped(),
		"complete", outcome.Complete)
	e.history.RecordRestore(outcome.BatchID, instrumentName, positionName,
		outcome.Complete, outcome.Written(), outcome.Skipped())

	return outcome, nil
}

// awaitCompletion polls the issued writes until all report complete or the
// deadline passes.
func (e *Engine) awaitCompletion(ctx context.Context, conns []channel.Conn, deadline time.Time) bool {
	for {
		done := true
		for _, c := range conns {
			if !c.PutComplete() {
				done = false
				break
			}
		}
		if done {
			return true
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return false
		}
		time.Sleep(completionPollInterval)
	}
}

// AuditReport summarizes a read-only consistency pass over the stored
// positions.
type AuditReport struct {
	// Instruments is the number of instruments scanned.
	Instruments int

	// Positions is the number of positions scanned.
	Positions int

	// Stale counts positions missing a stored value for at least one
	// current member channel, typically after the membership grew.
	Stale int
}

// Audit walks every instrument and counts stored positions whose value
// set no longer covers the current channel membership. Restoring a stale
// position skips the uncovered channels, so the daemon runs this at
// startup to surface them early.
func (e *Engine) Audit(ctx context.Context) (*AuditReport, error) {
	instruments, err := e.store.ListInstruments(ctx)
	if err != nil {
		return nil, err
	}

	report := &AuditReport{Instruments: len(instruments)}
	for _, inst := range instruments {
		members, err := e.store.Members(ctx, inst.ID)
		if err != nil {
			return nil, err
		}
		positions, err := e.store.ListPositions(ctx, inst.ID)
		if err != nil {
			return nil, err
		}
		report.Positions += len(positions)

		for _, pos := range positions {
			values, err := e.store.PositionValues(ctx, pos.ID)
			if err != nil {
				return nil, err
			}
			covered := make(map[int64]bool, len(values))
			for _, v := range values {
				covered[v.ChannelID] = true
			}
			for _, m := range members {
				if !covered[m.ChannelID] {
					report.Stale++
					e.logger.Warn("position missing stored value",
						"instrument", inst.Name,
						"position", pos.Name,
						"channel", m.Name)
					break
				}
			}
		}
	}
	return report, nil
}

// Remove deletes a stored position and its values.
func (e *Engine) Remove(ctx context.Context, positionName, instrumentName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	inst, err := e.store.GetInstrument(ctx, instrumentName)
	if err != nil {
		return err
	}
	if err := e.store.RemovePosition(ctx, inst.ID, positionName); err != nil {
		return err
	}
	e.logger.Info("position removed", "instrument", inst.Name, "position", positionName)
	return nil
}

// Rename renames a stored position under its instrument.
func (e *Engine) Rename(ctx context.Context, instrumentName, oldName, newName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newName = strings.TrimSpace(newName)
	if newName == "" {
		return ErrEmptyName
	}

	inst, err := e.store.GetInstrument(ctx, instrumentName)
	if err != nil {
		return err
	}
	return e.store.RenamePosition(ctx, inst.ID, oldName, newName)
}

// RemoveInstrument deletes an instrument with all its positions and
// memberships.
func (e *Engine) RemoveInstrument(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.RemoveInstrument(ctx, name); err != nil {
		return err
	}
	e.logger.Info("instrument removed", "instrument", name)
	return nil
}
