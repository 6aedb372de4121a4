package history

import (
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/skordaschristofanis/instrumentdb/internal/infrastructure/config"
)

// ErrNotConfigured indicates history recording was requested without a
// usable configuration.
var ErrNotConfigured = errors.New("history: recorder not configured")

// Logger is the minimal logging interface used by the recorder.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Measurement names written to the audit bucket.
const (
	measurementSave    = "position_save"
	measurementRestore = "position_restore"
	measurementWrite   = "channel_write"
)

// Recorder writes an audit trail of save and restore operations to
// InfluxDB. Points go through the non-blocking batched write API, so a
// slow or unreachable history backend never stalls an instrument
// operation.
//
// A nil Recorder is valid and records nothing, so callers can hold one
// unconditionally and skip the enabled check at every call site.
type Recorder struct {
	client influxdb2.Client
	writer api.WriteAPI
	logger Logger
}

// New connects a recorder to InfluxDB. Returns (nil, nil) when history is
// disabled in the configuration.
func New(cfg config.HistoryConfig, logger Logger) (*Recorder, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.URL == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: url and bucket are required", ErrNotConfigured)
	}
	if logger == nil {
		logger = noopLogger{}
	}

	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(cfg.BatchSize)).
		SetFlushInterval(uint(cfg.FlushInterval) * 1000)

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)
	writer := client.WriteAPI(cfg.Org, cfg.Bucket)

	r := &Recorder{client: client, writer: writer, logger: logger}

	// Async write errors surface here instead of at the call sites.
	go func() {
		for err := range writer.Errors() {
			r.logger.Warn("history write failed", "error", err)
		}
	}()

	return r, nil
}

// RecordSave records a completed position save.
func (r *Recorder) RecordSave(instrument, position string, channels int) {
	if r == nil {
		return
	}
	p := influxdb2.NewPoint(measurementSave,
		map[string]string{
			"instrument": instrument,
			"position":   position,
		},
		map[string]any{
			"channels": channels,
		},
		time.Now().UTC())
	r.writer.WritePoint(p)
}

// RecordRestore records the outcome of a restore batch.
func (r *Recorder) RecordRestore(batchID, instrument, position string, complete bool, written, skipped int) {
	if r == nil {
		return
	}
	p := influxdb2.NewPoint(measurementRestore,
		map[string]string{
			"instrument": instrument,
			"position":   position,
		},
		map[string]any{
			"batch_id": batchID,
			"complete": complete,
			"written":  written,
			"skipped":  skipped,
		},
		time.Now().UTC())
	r.writer.WritePoint(p)
}

// RecordChannelWrite records a single channel write issued during a
// restore batch.
func (r *Recorder) RecordChannelWrite(batchID, instrument, position, channel, value string) {
	if r == nil {
		return
	}
	p := influxdb2.NewPoint(measurementWrite,
		map[string]string{
			"instrument": instrument,
			"position":   position,
			"channel":    channel,
		},
		map[string]any{
			"batch_id": batchID,
			"value":    value,
		},
		time.Now().UTC())
	r.writer.WritePoint(p)
}

// Close flushes buffered points and releases the client. Safe on a nil
// recorder.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.writer.Flush()
	r.client.Close()
}
