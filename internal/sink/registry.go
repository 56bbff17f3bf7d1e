package sink

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
)

// Constructor creates an Inserter from sink settings.
type Constructor func(ctx context.Context, cfg Config) (Inserter, error)

var registry = map[string]Constructor{}

// Register adds an inserter constructor under the given sink name.
func Register(name string, ctor Constructor) {
	registry[name] = ctor
}

// Get returns the constructor for the given sink name.
func Get(name string) (Constructor, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, errors.Newf("unknown sink: %s", name)
	}
	return ctor, nil
}

// Names returns the registered sink names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
