package sink

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hejijunhao/tablelog/internal/model"
)

type call struct {
	project, dataset, table string
	req                     *model.InsertRequest
}

// fakeInserter records calls for test assertions.
type fakeInserter struct {
	calls []call
	resp  *model.InsertResponse
	err   error
}

func (f *fakeInserter) InsertAll(_ context.Context, p, d, t string, req *model.InsertRequest) (*model.InsertResponse, error) {
	f.calls = append(f.calls, call{p, d, t, req})
	return f.resp, f.err
}

func TestNewClient_MissingCoordinate(t *testing.T) {
	svc := &fakeInserter{}
	tests := []struct {
		name                    string
		project, dataset, table string
	}{
		{"no project", "", "d", "t"},
		{"no dataset", "p", "", "t"},
		{"no table", "p", "d", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(svc, tt.project, tt.dataset, tt.table)
			require.ErrorIs(t, err, ErrMissingCoordinate)
		})
	}

	_, err := NewClient(nil, "p", "d", "t")
	require.Error(t, err)
}

func TestInsertRows_Envelope(t *testing.T) {
	svc := &fakeInserter{resp: &model.InsertResponse{Kind: "bigquery#tableDataInsertAllResponse"}}
	c, err := NewClient(svc, "proj", "ds", "tbl")
	require.NoError(t, err)

	rows := []model.Payload{
		model.Entry{Message: "first"},
		model.Entry{Message: "second"},
		model.Entry{Message: "third"},
	}
	resp, err := c.InsertRows(context.Background(), rows)
	require.NoError(t, err)
	require.Same(t, svc.resp, resp)

	require.Len(t, svc.calls, 1)
	got := svc.calls[0]
	require.Equal(t, "proj", got.project)
	require.Equal(t, "ds", got.dataset)
	require.Equal(t, "tbl", got.table)
	require.Equal(t, model.InsertAllKind, got.req.Kind)
	require.Len(t, got.req.Rows, 3)
	for i, want := range []string{"first", "second", "third"} {
		require.Equal(t, want, got.req.Rows[i].JSON["message"])
		require.Empty(t, got.req.Rows[i].InsertID)
	}
}

func TestInsertRows_InsertIDs(t *testing.T) {
	svc := &fakeInserter{}
	c, err := NewClient(svc, "p", "d", "t", WithInsertIDs())
	require.NoError(t, err)

	_, err = c.InsertRows(context.Background(), []model.Payload{model.Entry{}, model.Entry{}})
	require.NoError(t, err)

	rows := svc.calls[0].req.Rows
	require.NotEmpty(t, rows[0].InsertID)
	require.NotEmpty(t, rows[1].InsertID)
	require.NotEqual(t, rows[0].InsertID, rows[1].InsertID)
}

func TestInsertRows_SinkCallError(t *testing.T) {
	cause := errors.New("connection refused")
	svc := &fakeInserter{err: cause}
	c, err := NewClient(svc, "p", "d", "t")
	require.NoError(t, err)

	_, err = c.InsertRows(context.Background(), []model.Payload{model.Entry{}})
	require.ErrorIs(t, err, ErrSinkCall)
	require.ErrorIs(t, err, cause)

	var sce *SinkCallError
	require.ErrorAs(t, err, &sce)
	require.Equal(t, 1, sce.Rows)
	require.Equal(t, "projects/p/datasets/d/tables/t", sce.Op)
	require.Len(t, svc.calls, 1, "no retry")
}

func TestInsertMessage(t *testing.T) {
	svc := &fakeInserter{}
	c, err := NewClient(svc, "p", "d", "t")
	require.NoError(t, err)

	_, err = c.InsertMessage(context.Background(), "deploy finished")
	require.NoError(t, err)

	require.Len(t, svc.calls, 1)
	require.Equal(t, []model.Row{{JSON: map[string]any{"logging": "deploy finished"}}}, svc.calls[0].req.Rows)
}

func TestRegistry(t *testing.T) {
	Register("test-fake", func(context.Context, Config) (Inserter, error) {
		return &fakeInserter{}, nil
	})
	defer delete(registry, "test-fake")

	ctor, err := Get("test-fake")
	require.NoError(t, err)
	ins, err := ctor(context.Background(), Config{})
	require.NoError(t, err)
	require.NotNil(t, ins)
	require.Contains(t, Names(), "test-fake")

	_, err = Get("nope")
	require.Error(t, err)
}
