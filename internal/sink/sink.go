package sink

import (
	"context"
	"time"

	"github.com/hejijunhao/tablelog/internal/model"
)

// Inserter is the row-insert capability of a remote table. One call is one
// network round trip; implementations must not retry.
type Inserter interface {
	InsertAll(ctx context.Context, projectID, datasetID, tableID string, req *model.InsertRequest) (*model.InsertResponse, error)
}

// Closer is implemented by inserters that hold resources (files, clients).
type Closer interface {
	Close() error
}

// Config holds the settings a registered inserter may read.
type Config struct {
	Endpoint        string
	Token           string
	CredentialsFile string
	Gzip            bool
	Format          string // "json" or "cbor"
	Path            string
	MaxSize         int64 // file rotation threshold in bytes, 0 = never
	Timeout         time.Duration
	Pretty          bool
	Extra           map[string]string
}
