package model

// InsertAllKind tags an insert request body as a table-data insert-all call.
const InsertAllKind = "bigquery#tableDataInsertAllRequest"

// InsertRequest is the wire envelope sent to the sink on each flush.
type InsertRequest struct {
	Kind string `json:"kind" cbor:"kind"`
	Rows []Row  `json:"rows" cbor:"rows"`
}

// Row wraps one row payload. InsertID is only set when the client is
// configured to stamp rows for best-effort deduplication.
type Row struct {
	InsertID string         `json:"insertId,omitempty" cbor:"insertId,omitempty"`
	JSON     map[string]any `json:"json" cbor:"json"`
}

// InsertResponse is the sink's reply to an insert call. A successful call may
// still carry per-row InsertErrors.
type InsertResponse struct {
	Kind         string        `json:"kind,omitempty"`
	InsertErrors []InsertError `json:"insertErrors,omitempty"`
}

// InsertError lists the problems with the row at Index.
type InsertError struct {
	Index  int64         `json:"index"`
	Errors []ErrorDetail `json:"errors"`
}

// ErrorDetail is one reason a row was rejected.
type ErrorDetail struct {
	Reason    string `json:"reason,omitempty"`
	Location  string `json:"location,omitempty"`
	Message   string `json:"message,omitempty"`
	DebugInfo string `json:"debugInfo,omitempty"`
}
