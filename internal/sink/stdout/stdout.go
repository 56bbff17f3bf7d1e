package stdout

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/hejijunhao/tablelog/internal/model"
	"github.com/hejijunhao/tablelog/internal/sink"
)

func init() {
	sink.Register("stdout", func(_ context.Context, cfg sink.Config) (sink.Inserter, error) {
		return New(os.Stdout, cfg.Pretty), nil
	})
}

// envelope is one insert request annotated with its destination table.
type envelope struct {
	Table string `json:"table"`
	*model.InsertRequest
}

// Inserter writes each insert request as a JSON document to w instead of
// sending it anywhere. Used for dry runs.
type Inserter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// New creates an Inserter writing to w, optionally pretty-printed.
func New(w io.Writer, pretty bool) *Inserter {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return &Inserter{enc: enc}
}

func (i *Inserter) InsertAll(_ context.Context, projectID, datasetID, tableID string, req *model.InsertRequest) (*model.InsertResponse, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	env := envelope{Table: projectID + "." + datasetID + "." + tableID, InsertRequest: req}
	if err := i.enc.Encode(env); err != nil {
		return nil, errors.Wrap(err, "stdout sink")
	}
	return &model.InsertResponse{Kind: "bigquery#tableDataInsertAllResponse"}, nil
}
