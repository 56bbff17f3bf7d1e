package handler

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrClosed is returned by Emit and Handle after Close.
	ErrClosed = errors.New("handler closed")
	// ErrInvalidCapacity is returned for a capacity below one.
	ErrInvalidCapacity = errors.New("capacity must be positive")
	// ErrMapping marks records that cannot be mapped to an entry.
	ErrMapping = errors.New("record mapping failed")
)

// MappingError reports the required field a buffered record was missing.
// It aborts the flush pass that hit it.
type MappingError struct {
	Field string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("map record: missing %s", e.Field)
}

func (e *MappingError) Is(target error) bool { return target == ErrMapping }
