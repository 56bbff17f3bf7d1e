package multi

import (
	"context"
	"errors"

	"github.com/hejijunhao/tablelog/internal/model"
	"github.com/hejijunhao/tablelog/internal/sink"
)

// Multi fans out insert requests to several inserters, e.g. the warehouse
// plus a local NDJSON file. Each call goes to every inserter sequentially;
// a failure in one does not stop delivery to the rest.
type Multi struct {
	inserters []sink.Inserter
}

// New creates a Multi over the given inserters.
func New(inserters ...sink.Inserter) *Multi {
	return &Multi{inserters: inserters}
}

// InsertAll sends req to every inserter. The first successful response is
// returned alongside the joined errors of the others. When at least one
// inserter succeeded the error is a *sink.PartialError.
func (m *Multi) InsertAll(ctx context.Context, projectID, datasetID, tableID string, req *model.InsertRequest) (*model.InsertResponse, error) {
	var resp *model.InsertResponse
	var errs []error
	ok := 0
	for _, ins := range m.inserters {
		r, err := ins.InsertAll(ctx, projectID, datasetID, tableID, req)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ok++
		if resp == nil {
			resp = r
		}
	}
	if len(errs) == 0 {
		return resp, nil
	}
	if ok > 0 {
		if resp == nil {
			resp = &model.InsertResponse{}
		}
		return resp, &sink.PartialError{Failed: len(errs), Total: len(m.inserters), Err: errors.Join(errs...)}
	}
	return nil, errors.Join(errs...)
}

// Close closes every wrapped inserter that holds resources.
func (m *Multi) Close() error {
	var errs []error
	for _, ins := range m.inserters {
		if c, ok := ins.(sink.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
