package tablelog

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/hejijunhao/tablelog/internal/handler"
	"github.com/hejijunhao/tablelog/internal/model"
	"github.com/hejijunhao/tablelog/internal/sink"
	"github.com/hejijunhao/tablelog/internal/sink/multi"

	// Register sink implementations.
	_ "github.com/hejijunhao/tablelog/internal/sink/bigquery"
	_ "github.com/hejijunhao/tablelog/internal/sink/file"
	_ "github.com/hejijunhao/tablelog/internal/sink/stdout"
	_ "github.com/hejijunhao/tablelog/internal/sink/webhook"
)

type (
	// Inserter performs one insert-all call against a table.
	Inserter = sink.Inserter
	// SinkConfig holds the settings a named sink reads.
	SinkConfig = sink.Config
	// InsertRequest is the insert-all envelope sent to an Inserter.
	InsertRequest = model.InsertRequest
	// InsertResponse is the sink's reply, including per-row insert errors.
	InsertResponse = model.InsertResponse
	// Record is one captured log record, as accepted by Emit.
	Record = model.Record
	// Stats is a snapshot of a handler's counters.
	Stats = handler.Stats
)

// Errors returned by Handler methods, for use with errors.Is.
var (
	ErrClosed            = handler.ErrClosed
	ErrInvalidCapacity   = handler.ErrInvalidCapacity
	ErrMapping           = handler.ErrMapping
	ErrSinkCall          = sink.ErrSinkCall
	ErrMissingCoordinate = sink.ErrMissingCoordinate
)

// Handler is an slog.Handler that buffers records and inserts them into a
// table in batches. Safe for concurrent use.
type Handler struct {
	*handler.Handler
	closer    sink.Closer
	closeOnce sync.Once
	closeErr  error
}

// New creates a Handler writing to projectID.datasetID.tableID through ins.
func New(ins Inserter, projectID, datasetID, tableID string, opts ...Option) (*Handler, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return newHandler(ins, projectID, datasetID, tableID, o)
}

// Open creates a Handler backed by a registered sink ("bigquery", "webhook",
// "stdout", "file"), configured with WithSinkConfig. A comma-separated list
// such as "bigquery,file" sends every batch to each named sink in turn.
// Close releases the sinks' resources.
func Open(ctx context.Context, sinkName, projectID, datasetID, tableID string, opts ...Option) (*Handler, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var inserters []sink.Inserter
	for _, name := range strings.Split(sinkName, ",") {
		name = strings.TrimSpace(name)
		ins, err := openSink(ctx, name, o.sink)
		if err != nil {
			multi.New(inserters...).Close()
			return nil, err
		}
		inserters = append(inserters, ins)
	}

	ins := inserters[0]
	if len(inserters) > 1 {
		ins = multi.New(inserters...)
	}
	h, err := newHandler(ins, projectID, datasetID, tableID, o)
	if err != nil {
		multi.New(inserters...).Close()
		return nil, err
	}
	return h, nil
}

func openSink(ctx context.Context, name string, cfg SinkConfig) (sink.Inserter, error) {
	ctor, err := sink.Get(name)
	if err != nil {
		return nil, errors.Wrap(err, "tablelog")
	}
	ins, err := ctor(ctx, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "tablelog: open %s sink", name)
	}
	return ins, nil
}

func newHandler(ins Inserter, projectID, datasetID, tableID string, o options) (*Handler, error) {
	client, err := sink.NewClient(ins, projectID, datasetID, tableID, o.clientOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "tablelog")
	}
	h, err := handler.New(client, o.handlerOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "tablelog")
	}
	out := &Handler{Handler: h}
	out.closer, _ = ins.(sink.Closer)
	return out, nil
}

// Logger returns an slog.Logger backed by h.
func (h *Handler) Logger() *slog.Logger {
	return slog.New(h)
}

// Close flushes the remaining records and stops accepting new ones. If the
// inserter holds resources (files, clients) it is closed afterwards. Later
// calls return the first call's result.
func (h *Handler) Close() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.Handler.Close()
		if h.closer != nil {
			if err := h.closer.Close(); err != nil {
				h.closeErr = errors.CombineErrors(h.closeErr, err)
			}
		}
	})
	return h.closeErr
}

// Sinks returns the names accepted by Open.
func Sinks() []string {
	return sink.Names()
}
