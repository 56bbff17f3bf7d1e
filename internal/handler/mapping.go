package handler

import (
	"log/slog"
	"time"

	"github.com/hejijunhao/tablelog/internal/model"
)

// MapRecord projects a record onto the fixed entry field set. It reads fields
// straight off the record without defaulting: a record missing its creation
// time or level name yields *MappingError.
func MapRecord(rec model.Record) (model.Entry, error) {
	if rec.Created.IsZero() {
		return model.Entry{}, &MappingError{Field: "created"}
	}
	if rec.LevelName == "" {
		return model.Entry{}, &MappingError{Field: "levelname"}
	}

	e := model.Entry{
		Created:         float64(rec.Created.UnixNano()) / float64(time.Second),
		Filename:        rec.Filename,
		FuncName:        rec.FuncName,
		LevelName:       rec.LevelName,
		LevelNo:         rec.LevelNo,
		Module:          rec.Module,
		Name:            rec.Name,
		Pathname:        rec.Pathname,
		Process:         rec.Process,
		ProcessName:     rec.ProcessName,
		RelativeCreated: rec.RelativeCreated,
		Thread:          rec.Thread,
		ThreadName:      rec.ThreadName,
		Message:         rec.Message,
	}
	if rec.Exc != nil {
		e.ExcInfo = &model.ExcInfo{Type: rec.Exc.Type, Value: rec.Exc.Value}
	}
	return e, nil
}

// LevelNo places a slog level on the 10/20/30/40 scale used by the levelno
// column: DEBUG=10, INFO=20, WARN=30, ERROR=40.
func LevelNo(l slog.Level) int {
	return 20 + int(l)*5/2
}
