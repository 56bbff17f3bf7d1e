// Package handler buffers log records in memory and writes them to a remote
// table in batches.
//
// A Handler holds up to capacity records. The Emit call whose record fills the
// buffer maps every buffered record to a row and sends them in a single
// insert call, on the caller's goroutine, while holding the buffer lock.
// Nothing runs in the background and nothing flushes on a timer: records below
// the threshold stay buffered until Flush or Close.
//
// After a flush attempt the buffer is always empty. If the insert call fails,
// the batch is dropped and counted in Stats.Lost, and the error is returned
// to whoever triggered the flush. There is no retry. When fanning out to
// several sinks and only some of them fail, the error matches sink.ErrPartial
// and the rows count as stored, not lost.
//
// Handler also implements slog.Handler, so it can back an slog.Logger:
//
//	h, err := handler.New(client, handler.WithName("api"))
//	if err != nil {
//	    return err
//	}
//	defer h.Close()
//	logger := slog.New(h)
//	logger.Info("request served", "status", 200)
//
// Note that any log call can end up performing the flush, so a log call can
// fail when the sink is unreachable. slog.Logger discards handler errors;
// register WithOnError to observe them.
package handler
