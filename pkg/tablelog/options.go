package tablelog

import (
	"log/slog"

	"github.com/hejijunhao/tablelog/internal/handler"
	"github.com/hejijunhao/tablelog/internal/sink"
)

type options struct {
	handlerOpts []handler.Option
	clientOpts  []sink.ClientOption
	sink        SinkConfig
}

// Option configures a Handler.
type Option func(*options)

// WithCapacity sets how many records are buffered before they are sent.
// Default: 200.
func WithCapacity(n int) Option {
	return func(o *options) {
		o.handlerOpts = append(o.handlerOpts, handler.WithCapacity(n))
	}
}

// WithLevel sets the minimum slog level that is recorded. Default: Info.
func WithLevel(l slog.Leveler) Option {
	return func(o *options) {
		o.handlerOpts = append(o.handlerOpts, handler.WithLevel(l))
	}
}

// WithName sets the logger name stored in each row. Default: "root".
func WithName(name string) Option {
	return func(o *options) {
		o.handlerOpts = append(o.handlerOpts, handler.WithName(name))
	}
}

// WithFormatter sets how the message column is rendered from the slog
// message and attributes.
func WithFormatter(f handler.Formatter) Option {
	return func(o *options) {
		o.handlerOpts = append(o.handlerOpts, handler.WithFormatter(f))
	}
}

// WithOnError registers a callback for flush failures raised during slog
// calls, which slog.Logger would otherwise discard.
func WithOnError(f func(error)) Option {
	return func(o *options) {
		o.handlerOpts = append(o.handlerOpts, handler.WithOnError(f))
	}
}

// WithInsertIDs stamps every row with a random insertId for best-effort
// deduplication on the table side.
func WithInsertIDs() Option {
	return func(o *options) {
		o.clientOpts = append(o.clientOpts, sink.WithInsertIDs())
	}
}

// WithSinkConfig sets the settings passed to the named sink by Open.
// Ignored by New.
func WithSinkConfig(cfg SinkConfig) Option {
	return func(o *options) {
		o.sink = cfg
	}
}
