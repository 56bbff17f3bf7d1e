package handler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hejijunhao/tablelog/internal/model"
	"github.com/hejijunhao/tablelog/internal/sink"
)

// fakeInserter records every insert request. Safe for concurrent use.
type fakeInserter struct {
	mu    sync.Mutex
	calls []*model.InsertRequest
	err   error
}

func (f *fakeInserter) InsertAll(_ context.Context, _, _, _ string, req *model.InsertRequest) (*model.InsertResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return &model.InsertResponse{}, nil
}

func (f *fakeInserter) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeInserter) requests() []*model.InsertRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.InsertRequest(nil), f.calls...)
}

func newTestHandler(t *testing.T, svc *fakeInserter, opts ...Option) *Handler {
	t.Helper()
	c, err := sink.NewClient(svc, "proj", "logs", "app")
	require.NoError(t, err)
	h, err := New(c, opts...)
	require.NoError(t, err)
	return h
}

var epoch = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func testRecord(msg string) model.Record {
	return model.Record{
		Created:         epoch,
		Filename:        "main.go",
		FuncName:        "main",
		LevelName:       "INFO",
		LevelNo:         20,
		Module:          "main",
		Name:            "root",
		Pathname:        "/src/app/main.go",
		Process:         42,
		ProcessName:     "app",
		RelativeCreated: 12.5,
		Thread:          1,
		ThreadName:      "goroutine-1",
		Message:         msg,
	}
}

func messages(req *model.InsertRequest) []string {
	out := make([]string, len(req.Rows))
	for i, r := range req.Rows {
		out[i], _ = r.JSON["message"].(string)
	}
	return out
}

func TestNew_InvalidCapacity(t *testing.T) {
	c, err := sink.NewClient(&fakeInserter{}, "p", "d", "t")
	require.NoError(t, err)

	for _, n := range []int{0, -1} {
		_, err := New(c, WithCapacity(n))
		require.ErrorIs(t, err, ErrInvalidCapacity)
	}
	_, err = New(nil)
	require.Error(t, err)
}

func TestCapacityTriggersFlush(t *testing.T) {
	svc := &fakeInserter{}
	h := newTestHandler(t, svc, WithCapacity(3))
	ctx := context.Background()

	recs := []model.Record{testRecord("R1"), testRecord("R2"), testRecord("R3")}
	require.NoError(t, h.Emit(ctx, recs[0]))
	require.NoError(t, h.Emit(ctx, recs[1]))
	require.Empty(t, svc.requests(), "no flush below capacity")
	require.NoError(t, h.Emit(ctx, recs[2]))

	reqs := svc.requests()
	require.Len(t, reqs, 1)
	require.Equal(t, model.InsertAllKind, reqs[0].Kind)
	require.Len(t, reqs[0].Rows, 3)
	for i, rec := range recs {
		want, err := MapRecord(rec)
		require.NoError(t, err)
		require.Equal(t, want.Fields(), reqs[0].Rows[i].JSON)
	}
	require.Equal(t, 0, h.Stats().Buffered)
}

func TestFlushCount(t *testing.T) {
	tests := []struct {
		capacity, records int
	}{
		{1, 5},
		{3, 9},
		{3, 10},
		{7, 6},
		{200, 1000},
		{200, 1001},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("C=%d/n=%d", tt.capacity, tt.records), func(t *testing.T) {
			svc := &fakeInserter{}
			h := newTestHandler(t, svc, WithCapacity(tt.capacity))
			for i := 0; i < tt.records; i++ {
				require.NoError(t, h.Emit(context.Background(), testRecord(fmt.Sprint(i))))
			}
			require.Len(t, svc.requests(), tt.records/tt.capacity)
			for _, req := range svc.requests() {
				require.Len(t, req.Rows, tt.capacity)
			}

			require.NoError(t, h.Close())
			want := tt.records / tt.capacity
			if tt.records%tt.capacity != 0 {
				want++
			}
			require.Len(t, svc.requests(), want)
			require.Equal(t, uint64(tt.records), h.Stats().Rows)
		})
	}
}

func TestCloseFlushesRemainder(t *testing.T) {
	svc := &fakeInserter{}
	h := newTestHandler(t, svc)

	for i := 0; i < 150; i++ {
		require.NoError(t, h.Emit(context.Background(), testRecord(fmt.Sprint(i))))
	}
	require.Empty(t, svc.requests())

	require.NoError(t, h.Close())
	reqs := svc.requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Rows, 150)
}

func TestFlushExplicit(t *testing.T) {
	svc := &fakeInserter{}
	h := newTestHandler(t, svc, WithCapacity(10))
	ctx := context.Background()

	require.NoError(t, h.Flush(ctx), "empty flush is a no-op")
	require.Empty(t, svc.requests())

	require.NoError(t, h.Emit(ctx, testRecord("a")))
	require.NoError(t, h.Emit(ctx, testRecord("b")))
	require.NoError(t, h.Flush(ctx))

	reqs := svc.requests()
	require.Len(t, reqs, 1)
	require.Equal(t, []string{"a", "b"}, messages(reqs[0]))
	require.Equal(t, Stats{Flushes: 1, Rows: 2}, h.Stats())
}

func TestFailedFlushClearsBufferAndPropagates(t *testing.T) {
	boom := errors.New("quota exceeded")
	svc := &fakeInserter{err: boom}
	h := newTestHandler(t, svc, WithCapacity(2))
	ctx := context.Background()

	require.NoError(t, h.Emit(ctx, testRecord("a")))
	err := h.Emit(ctx, testRecord("b"))
	require.ErrorIs(t, err, sink.ErrSinkCall)
	require.ErrorIs(t, err, boom)

	st := h.Stats()
	require.Equal(t, 0, st.Buffered)
	require.Equal(t, uint64(2), st.Lost)

	// The lock was released and the lost batch is not resent.
	svc.setErr(nil)
	require.NoError(t, h.Emit(ctx, testRecord("c")))
	require.NoError(t, h.Emit(ctx, testRecord("d")))
	reqs := svc.requests()
	require.Len(t, reqs, 2)
	require.Equal(t, []string{"c", "d"}, messages(reqs[1]))
}

func TestPartialFlushIsNotLost(t *testing.T) {
	partial := &sink.PartialError{Failed: 1, Total: 2, Err: errors.New("file: disk full")}
	svc := &fakeInserter{err: partial}
	h := newTestHandler(t, svc, WithCapacity(2))
	ctx := context.Background()

	require.NoError(t, h.Emit(ctx, testRecord("a")))
	err := h.Emit(ctx, testRecord("b"))
	require.ErrorIs(t, err, sink.ErrSinkCall)
	require.ErrorIs(t, err, sink.ErrPartial)

	require.Equal(t, Stats{Flushes: 1, Rows: 2}, h.Stats())
}

func TestFailedCloseStillCloses(t *testing.T) {
	svc := &fakeInserter{err: errors.New("unreachable")}
	h := newTestHandler(t, svc)

	require.NoError(t, h.Emit(context.Background(), testRecord("a")))
	require.ErrorIs(t, h.Close(), sink.ErrSinkCall)
	require.Equal(t, 0, h.Stats().Buffered)
	require.ErrorIs(t, h.Emit(context.Background(), testRecord("b")), ErrClosed)
}

func TestMappingErrorAbortsFlush(t *testing.T) {
	svc := &fakeInserter{}
	h := newTestHandler(t, svc, WithCapacity(3))
	ctx := context.Background()

	bad := testRecord("bad")
	bad.Created = time.Time{}

	require.NoError(t, h.Emit(ctx, testRecord("a")))
	require.NoError(t, h.Emit(ctx, bad))
	err := h.Emit(ctx, testRecord("c"))
	require.ErrorIs(t, err, ErrMapping)

	var me *MappingError
	require.ErrorAs(t, err, &me)
	require.Equal(t, "created", me.Field)
	require.Empty(t, svc.requests())
	require.Equal(t, 0, h.Stats().Buffered)
}

func TestEmitAfterClose(t *testing.T) {
	h := newTestHandler(t, &fakeInserter{})
	require.NoError(t, h.Close())
	require.NoError(t, h.Close(), "second close is a no-op")
	require.ErrorIs(t, h.Emit(context.Background(), testRecord("late")), ErrClosed)
}

func TestConcurrentEmit(t *testing.T) {
	const (
		capacity   = 50
		batches    = 16
		goroutines = 8
		perWorker  = capacity * batches / goroutines
	)
	svc := &fakeInserter{}
	h := newTestHandler(t, svc, WithCapacity(capacity))

	var wg sync.WaitGroup
	errs := make(chan error, goroutines*perWorker)
	for g := 0; g < goroutines; g++ {
		g := g // per-iteration copy (pre-Go 1.22 loop semantics)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if err := h.Emit(context.Background(), testRecord(fmt.Sprintf("%d-%d", g, i))); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("emit: %v", err)
	}

	reqs := svc.requests()
	require.Len(t, reqs, batches)
	seen := make(map[string]bool, capacity*batches)
	lastIndex := make(map[int]int)
	for _, req := range reqs {
		require.Len(t, req.Rows, capacity)
		for _, m := range messages(req) {
			require.False(t, seen[m], "duplicate row %s", m)
			seen[m] = true

			// Rows from one goroutine keep their emit order.
			var g, i int
			_, err := fmt.Sscanf(m, "%d-%d", &g, &i)
			require.NoError(t, err)
			if prev, ok := lastIndex[g]; ok {
				require.Greater(t, i, prev)
			}
			lastIndex[g] = i
		}
	}
	require.Len(t, seen, capacity*batches)
	require.Equal(t, 0, h.Stats().Buffered)
}

func TestMapRecord(t *testing.T) {
	rec := testRecord("hello")
	e, err := MapRecord(rec)
	require.NoError(t, err)

	require.Equal(t, model.Entry{
		Created:         float64(epoch.Unix()),
		Filename:        "main.go",
		FuncName:        "main",
		LevelName:       "INFO",
		LevelNo:         20,
		Module:          "main",
		Name:            "root",
		Pathname:        "/src/app/main.go",
		Process:         42,
		ProcessName:     "app",
		RelativeCreated: 12.5,
		Thread:          1,
		ThreadName:      "goroutine-1",
		Message:         "hello",
	}, e)
	require.NotContains(t, e.Fields(), "exc_info")
}

func TestMapRecord_ExcInfo(t *testing.T) {
	rec := testRecord("failed")
	rec.Exc = &model.ExcInfo{Type: "*errors.errorString", Value: "boom"}

	e, err := MapRecord(rec)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"type": "*errors.errorString", "value": "boom"}, e.Fields()["exc_info"])
}

func TestMapRecord_SubSecondCreated(t *testing.T) {
	rec := testRecord("x")
	rec.Created = epoch.Add(250 * time.Millisecond)
	e, err := MapRecord(rec)
	require.NoError(t, err)
	require.InDelta(t, float64(epoch.Unix())+0.25, e.Created, 1e-6)
}

func TestMapRecord_MissingLevel(t *testing.T) {
	rec := testRecord("x")
	rec.LevelName = ""
	_, err := MapRecord(rec)
	require.ErrorIs(t, err, ErrMapping)
}
