package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/hejijunhao/tablelog/internal/model"
	"github.com/hejijunhao/tablelog/internal/sink"
)

const defaultBufSize = 64 * 1024 // 64KB

func init() {
	sink.Register("file", func(_ context.Context, cfg sink.Config) (sink.Inserter, error) {
		if cfg.Path == "" {
			return nil, errors.New("file sink: path is required")
		}
		return New(cfg.Path, WithMaxSize(cfg.MaxSize))
	})
}

// Option configures a file Inserter.
type Option func(*Inserter)

// WithMaxSize sets the file size (bytes) at which rotation triggers.
// 0 (default) disables rotation.
func WithMaxSize(bytes int64) Option {
	return func(i *Inserter) { i.maxSize = bytes }
}

// line is one NDJSON line: a table-qualified insert request.
type line struct {
	Table string `json:"table"`
	*model.InsertRequest
}

// Inserter appends each insert request as an NDJSON line to a local file,
// with optional size-based rotation. The file can be replayed into the table
// later with a load job.
type Inserter struct {
	w       *bufio.Writer
	f       *os.File
	mu      sync.Mutex
	path    string
	maxSize int64 // 0 = no rotation
	written int64
}

// New creates a file Inserter that appends to path.
func New(path string, opts ...Option) (*Inserter, error) {
	i := &Inserter{path: path}
	for _, opt := range opts {
		opt(i)
	}
	if err := i.openFile(); err != nil {
		return nil, err
	}
	return i, nil
}

// InsertAll writes the request and flushes it to the OS so a completed call
// is never left sitting in the bufio buffer.
func (i *Inserter) InsertAll(_ context.Context, projectID, datasetID, tableID string, req *model.InsertRequest) (*model.InsertResponse, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	data, err := json.Marshal(line{Table: projectID + "." + datasetID + "." + tableID, InsertRequest: req})
	if err != nil {
		return nil, errors.Wrap(err, "file sink: marshal")
	}
	data = append(data, '\n')

	if i.maxSize > 0 && i.written > 0 && i.written+int64(len(data)) > i.maxSize {
		if err := i.rotate(); err != nil {
			return nil, errors.Wrap(err, "file sink: rotate")
		}
	}

	n, err := i.w.Write(data)
	i.written += int64(n)
	if err != nil {
		return nil, errors.Wrap(err, "file sink: write")
	}
	if err := i.w.Flush(); err != nil {
		return nil, errors.Wrap(err, "file sink: flush")
	}
	return &model.InsertResponse{Kind: "bigquery#tableDataInsertAllResponse"}, nil
}

// Close flushes the buffer and closes the file.
func (i *Inserter) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.w.Flush(); err != nil {
		i.f.Close()
		return errors.Wrap(err, "file sink: flush")
	}
	return i.f.Close()
}

// openFile opens (or creates) the output file and wraps it in a bufio.Writer.
func (i *Inserter) openFile() error {
	f, err := os.OpenFile(i.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return errors.Wrapf(err, "file sink: open %s", i.path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return errors.Wrapf(err, "file sink: stat %s", i.path)
	}
	i.f = f
	i.w = bufio.NewWriterSize(f, defaultBufSize)
	i.written = info.Size()
	return nil
}

// rotate closes the current file, renames it to {path}.1 (shifting existing
// rotated files), and opens a new file.
func (i *Inserter) rotate() error {
	if err := i.w.Flush(); err != nil {
		return err
	}
	if err := i.f.Close(); err != nil {
		return err
	}

	// .2 → .3, .1 → .2, current → .1
	for n := 9; n >= 1; n-- {
		os.Rename(fmt.Sprintf("%s.%d", i.path, n), fmt.Sprintf("%s.%d", i.path, n+1))
	}
	if err := os.Rename(i.path, i.path+".1"); err != nil {
		return err
	}

	i.written = 0
	return i.openFile()
}
