package sink

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrSinkCall marks every failure of the remote insert call.
	ErrSinkCall = errors.New("sink call failed")
	// ErrMissingCoordinate is returned when a project, dataset, or table id is empty.
	ErrMissingCoordinate = errors.New("missing table coordinate")
	// ErrPartial marks a fan-out insert that some, but not all, sinks accepted.
	ErrPartial = errors.New("partial insert")
)

// SinkCallError wraps the error raised by an Inserter. It is not retried or
// swallowed; it propagates to whoever requested the insert.
type SinkCallError struct {
	Op   string // "projects/p/datasets/d/tables/t"
	Rows int
	Err  error
}

func (e *SinkCallError) Error() string {
	return fmt.Sprintf("insert %d rows into %s: %v", e.Rows, e.Op, e.Err)
}

func (e *SinkCallError) Unwrap() error { return e.Err }

// Is reports whether target is ErrSinkCall so callers can match the class
// without a type assertion.
func (e *SinkCallError) Is(target error) bool { return target == ErrSinkCall }

// PartialError reports a fan-out insert where Failed of Total sinks
// returned an error. The rows were stored by the others.
type PartialError struct {
	Failed, Total int
	Err           error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("%d of %d sinks failed: %v", e.Failed, e.Total, e.Err)
}

func (e *PartialError) Unwrap() error { return e.Err }

func (e *PartialError) Is(target error) bool { return target == ErrPartial }
