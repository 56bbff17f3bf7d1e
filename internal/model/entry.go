package model

// Entry is the flattened, sink-ready form of a Record. The thirteen source
// fields and message are always present; ExcInfo only when the record carried
// an error.
type Entry struct {
	Created         float64
	Filename        string
	FuncName        string
	LevelName       string
	LevelNo         int
	Module          string
	Name            string
	Pathname        string
	Process         int
	ProcessName     string
	RelativeCreated float64
	Thread          int64
	ThreadName      string
	Message         string
	ExcInfo         *ExcInfo
}

// Fields returns the entry as a column→value map, the shape row-insert APIs
// take for a row's JSON payload.
func (e Entry) Fields() map[string]any {
	m := map[string]any{
		"created":         e.Created,
		"filename":        e.Filename,
		"funcName":        e.FuncName,
		"levelname":       e.LevelName,
		"levelno":         e.LevelNo,
		"module":          e.Module,
		"name":            e.Name,
		"pathname":        e.Pathname,
		"process":         e.Process,
		"processName":     e.ProcessName,
		"relativeCreated": e.RelativeCreated,
		"thread":          e.Thread,
		"threadName":      e.ThreadName,
		"message":         e.Message,
	}
	if e.ExcInfo != nil {
		m["exc_info"] = map[string]any{
			"type":  e.ExcInfo.Type,
			"value": e.ExcInfo.Value,
		}
	}
	return m
}

// Payload is anything that can be inserted as a single row.
type Payload interface {
	Fields() map[string]any
}

// Message is a free-form text row stored under the "logging" column.
type Message string

func (m Message) Fields() map[string]any {
	return map[string]any{"logging": string(m)}
}
