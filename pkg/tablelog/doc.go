// Package tablelog buffers log records and streams them to a BigQuery-style
// table in batches, through tabledata.insertAll or a compatible endpoint.
//
// Quick start:
//
//	h, err := tablelog.Open(ctx, "bigquery", "my-project", "logs", "app",
//	    tablelog.WithName("api"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer h.Close()
//
//	logger := slog.New(h)
//	logger.Info("request served", "status", 200)
//
// Rows are sent when the buffer reaches its capacity (200 by default) and on
// Close. The log call that fills the buffer performs the insert, so it can
// fail when the sink is unreachable; use WithOnError to observe those
// failures. A Handler is safe for concurrent use.
package tablelog
