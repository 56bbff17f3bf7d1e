package model

import "time"

// Record is a single log event as captured from the logging front end.
// Records are immutable once created; the handler holds them by value while
// they sit in its buffer.
type Record struct {
	Created         time.Time
	Filename        string // base name of the source file
	FuncName        string // unqualified function name
	LevelName       string // e.g. "INFO", "WARN"
	LevelNo         int    // 10/20/30/40 scale
	Module          string // source file name without extension
	Name            string // logger name, dotted for groups
	Pathname        string // full source path
	Process         int
	ProcessName     string
	RelativeCreated float64 // milliseconds since the handler was created
	Thread          int64   // goroutine id
	ThreadName      string
	Message         string // rendered message
	Exc             *ExcInfo
}

// ExcInfo describes the error attached to a record.
type ExcInfo struct {
	Type  string
	Value string
}
