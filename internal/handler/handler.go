package handler

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/hejijunhao/tablelog/internal/model"
	"github.com/hejijunhao/tablelog/internal/sink"
)

// DefaultCapacity is the number of buffered records that triggers a flush.
const DefaultCapacity = 200

// fallback reports flush failures. It never routes through slog.Default,
// which may be this handler.
var fallback = slog.New(slog.NewTextHandler(os.Stderr, nil))

type options struct {
	capacity  int
	level     slog.Leveler
	name      string
	formatter Formatter
	errFunc   func(error)
	now       func() time.Time
}

// Option configures a Handler.
type Option func(*options)

// WithCapacity sets the buffered record count that triggers a flush. Default: 200.
func WithCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

// WithLevel sets the minimum level accepted through the slog surface.
// Default: slog.LevelInfo.
func WithLevel(l slog.Leveler) Option {
	return func(o *options) { o.level = l }
}

// WithName sets the logger name recorded in the name column. Default: "root".
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithFormatter sets how the message column is rendered. Default: TextFormatter.
func WithFormatter(f Formatter) Option {
	return func(o *options) { o.formatter = f }
}

// WithOnError sets a callback for errors raised while handling slog records.
// slog.Logger discards handler errors, so this is where they surface.
// Default: a warning on stderr.
func WithOnError(f func(error)) Option {
	return func(o *options) { o.errFunc = f }
}

// WithClock overrides the time source used for missing record timestamps
// and the relativeCreated origin.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Stats is a snapshot of a handler's counters.
type Stats struct {
	Buffered int
	Flushes  uint64 // flush passes that had records to send
	Rows     uint64 // rows accepted by at least one sink
	Lost     uint64 // rows no sink accepted
}

// buffer is the state shared by a handler and every handler derived from it
// with WithAttrs or WithGroup.
type buffer struct {
	client   *sink.Client
	capacity int
	errFunc  func(error)
	now      func() time.Time
	start    time.Time

	mu      sync.Mutex
	records []model.Record
	closed  bool
	stats   Stats
}

// Handler buffers log records and sends them to a table in batches of
// capacity records. It is safe for concurrent use. See the package
// documentation for the failure semantics.
type Handler struct {
	buf       *buffer
	level     slog.Leveler
	name      string
	formatter Formatter
	attrs     []slog.Attr // pre-qualified with their group prefix
	prefix    string      // open groups, "a.b."
}

// New creates a Handler that flushes through client.
func New(client *sink.Client, opts ...Option) (*Handler, error) {
	if client == nil {
		return nil, errors.New("handler: nil client")
	}
	o := options{
		capacity:  DefaultCapacity,
		level:     slog.LevelInfo,
		name:      "root",
		formatter: TextFormatter,
		errFunc:   func(err error) { fallback.Warn("tablelog flush error", "error", err) },
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.capacity <= 0 {
		return nil, ErrInvalidCapacity
	}

	return &Handler{
		buf: &buffer{
			client:   client,
			capacity: o.capacity,
			errFunc:  o.errFunc,
			now:      o.now,
			start:    o.now(),
			records:  make([]model.Record, 0, o.capacity),
		},
		level:     o.level,
		name:      o.name,
		formatter: o.formatter,
	}, nil
}

// Emit appends rec to the buffer. The append that brings the buffer to
// capacity flushes it on the calling goroutine while still holding the lock,
// so concurrent emitters never issue overlapping flushes. A failed flush is
// returned to the caller whose record triggered it.
func (h *Handler) Emit(ctx context.Context, rec model.Record) error {
	b := h.buf
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	b.records = append(b.records, rec)
	if len(b.records) >= b.capacity {
		return b.flushLocked(ctx)
	}
	return nil
}

// Flush sends every buffered record in one insert call. The buffer is empty
// afterwards whether or not the call succeeded.
func (h *Handler) Flush(ctx context.Context) error {
	b := h.buf
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked(ctx)
}

// Close flushes what is left and stops accepting records. Closing an already
// closed handler is a no-op. Derived handlers share the buffer, so closing
// any of them closes all.
func (h *Handler) Close() error {
	b := h.buf
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.flushLocked(context.Background())
}

// Stats returns a snapshot of the handler's counters.
func (h *Handler) Stats() Stats {
	b := h.buf
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.Buffered = len(b.records)
	return s
}

// flushLocked maps and sends the buffer. Caller must hold b.mu.
func (b *buffer) flushLocked(ctx context.Context) (err error) {
	n := len(b.records)
	if n == 0 {
		return nil
	}
	b.stats.Flushes++
	defer func() {
		clear(b.records)
		b.records = b.records[:0]
		if err != nil && !errors.Is(err, sink.ErrPartial) {
			b.stats.Lost += uint64(n)
		}
	}()

	rows := make([]model.Payload, n)
	for i, rec := range b.records {
		e, err := MapRecord(rec)
		if err != nil {
			return err
		}
		rows[i] = e
	}
	// A partial fan-out failure is still returned, but its rows were stored.
	_, err = b.client.InsertRows(ctx, rows)
	if err == nil || errors.Is(err, sink.ErrPartial) {
		b.stats.Rows += uint64(n)
	}
	return err
}
