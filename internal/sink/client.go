package sink

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/hejijunhao/tablelog/internal/model"
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithInsertIDs stamps every row with a random insertId so the table can
// drop duplicates on a best-effort basis. Off by default.
func WithInsertIDs() ClientOption {
	return func(c *Client) { c.insertIDs = true }
}

// Client hides the insert envelope and transport behind a batch-insert call
// against one fixed table. It holds no state beyond its coordinates.
type Client struct {
	svc       Inserter
	projectID string
	datasetID string
	tableID   string
	insertIDs bool
}

// NewClient returns a Client for projectID.datasetID.tableID. All three
// coordinates are required.
func NewClient(svc Inserter, projectID, datasetID, tableID string, opts ...ClientOption) (*Client, error) {
	if svc == nil {
		return nil, errors.New("sink: nil inserter")
	}
	for _, c := range []struct{ name, val string }{
		{"project", projectID},
		{"dataset", datasetID},
		{"table", tableID},
	} {
		if c.val == "" {
			return nil, errors.Wrapf(ErrMissingCoordinate, "sink: %s id", c.name)
		}
	}
	cl := &Client{
		svc:       svc,
		projectID: projectID,
		datasetID: datasetID,
		tableID:   tableID,
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl, nil
}

// Table returns the fully qualified table path.
func (c *Client) Table() string {
	return fmt.Sprintf("projects/%s/datasets/%s/tables/%s", c.projectID, c.datasetID, c.tableID)
}

// InsertRows sends rows, in order, as one insert-all request. The sink's
// response is returned as-is; per-row insertErrors are not treated as a
// failure. A failed call is returned as *SinkCallError.
func (c *Client) InsertRows(ctx context.Context, rows []model.Payload) (*model.InsertResponse, error) {
	req := &model.InsertRequest{
		Kind: model.InsertAllKind,
		Rows: make([]model.Row, len(rows)),
	}
	for i, r := range rows {
		req.Rows[i] = model.Row{JSON: r.Fields()}
		if c.insertIDs {
			req.Rows[i].InsertID = uuid.NewString()
		}
	}

	resp, err := c.svc.InsertAll(ctx, c.projectID, c.datasetID, c.tableID, req)
	if err != nil {
		return nil, &SinkCallError{Op: c.Table(), Rows: len(rows), Err: err}
	}
	return resp, nil
}

// InsertMessage inserts a single free-form text row.
func (c *Client) InsertMessage(ctx context.Context, text string) (*model.InsertResponse, error) {
	return c.InsertRows(ctx, []model.Payload{model.Message(text)})
}
