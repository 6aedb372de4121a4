package channel

import (
	"sync"
	"time"
)

// Conn is a live handle to one control-system channel.
//
// Implementations connect asynchronously: a Conn returned by a Provider
// may not be connected yet, and callers must check Connected (or bound-wait
// with WaitForConnection) before use.
type Conn interface {
	// Name returns the normalized channel name.
	Name() string

	// Connected reports whether the channel is currently connected.
	Connected() bool

	// WaitForConnection blocks until the channel connects or the timeout
	// elapses, reporting the final connection state.
	WaitForConnection(timeout time.Duration) bool

	// Put issues a non-blocking write of value. Completion is tracked
	// asynchronously and queryable through PutComplete.
	Put(value string) error

	// PutComplete reports whether the most recent Put has completed.
	// True when no Put was ever issued.
	PutComplete() bool

	// Kind returns the record classification learned from the live
	// connection, or KindOther when unknown.
	Kind() RecordKind
}

// Provider dials live channel connections. Implementations start the
// connection attempt asynchronously; Dial errors only on malformed names
// or a dead transport, never on an unreachable channel.
type Provider interface {
	Dial(name string) (Conn, error)
}

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry maintains the live channel handles referenced by the database.
//
// Handles are cached by normalized name: repeated Resolve calls for the
// same name return the same Conn. The registry owns no connection policy
// beyond that; connectivity checks stay with the caller.
//
// All public methods are thread-safe.
type Registry struct {
	provider     Provider
	defaultField string

	conns map[string]Conn
	mu    sync.RWMutex

	logger Logger
}

// NewRegistry creates a channel registry over the given provider.
func NewRegistry(provider Provider) *Registry {
	return &Registry{
		provider:     provider,
		defaultField: DefaultField,
		conns:        make(map[string]Conn),
		logger:       noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetDefaultField overrides the field suffix used by Normalize.
func (r *Registry) SetDefaultField(field string) {
	if field != "" {
		r.defaultField = field
	}
}

// Normalize returns the name with the registry's default field suffix
// appended when the name carries none. Idempotent.
func (r *Registry) Normalize(name string) string {
	return NormalizeField(name, r.defaultField)
}

// Resolve returns the live handle for a channel name, dialing it on first
// use. The connection attempt is asynchronous; failure to connect is not
// an error here - callers check Connected before use.
func (r *Registry) Resolve(name string) (Conn, error) {
	norm := r.Normalize(name)
	if norm == "" {
		return nil, ErrInvalidName
	}

	r.mu.RLock()
	conn, ok := r.conns[norm]
	r.mu.RUnlock()
	if ok {
		return conn, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another caller may have dialed while we upgraded the lock.
	if conn, ok := r.conns[norm]; ok {
		return conn, nil
	}

	conn, err := r.provider.Dial(norm)
	if err != nil {
		return nil, err
	}
	r.conns[norm] = conn

	r.logger.Debug("channel dialed", "name", norm)
	return conn, nil
}

// Lookup returns the cached handle for a name without dialing.
func (r *Registry) Lookup(name string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[r.Normalize(name)]
	return conn, ok
}

// Warm dials every name in the list, priming the cache. Used at startup
// to start connection attempts for all channels known to the database.
func (r *Registry) Warm(names []string) {
	for _, name := range names {
		if _, err := r.Resolve(name); err != nil {
			r.logger.Warn("channel dial failed", "name", name, "error", err)
		}
	}
}

// Count returns the number of cached handles.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// DisplayTypes returns the prioritized display classification for a
// channel: from the live record when the handle knows its kind, otherwise
// from the stored type name.
func (r *Registry) DisplayTypes(name, storedKind string) []DisplayType {
	if conn, ok := r.Lookup(name); ok {
		if kind := conn.Kind(); kind != KindOther {
			return Classify(kind)
		}
	}
	return Classify(KindFromName(storedKind))
}
