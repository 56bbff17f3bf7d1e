package handler

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/hejijunhao/tablelog/internal/model"
)

var _ slog.Handler = (*Handler)(nil)

var (
	pid         = os.Getpid()
	processName = filepath.Base(os.Args[0])
)

const unknownFile = "(unknown file)"

// Formatter renders the message column from a record's message and its
// attributes. Attribute keys are already qualified with their groups.
type Formatter func(msg string, attrs []slog.Attr) string

// TextFormatter renders "msg k=v k2=v2", quoting values that need it.
func TextFormatter(msg string, attrs []slog.Attr) string {
	if len(attrs) == 0 {
		return msg
	}
	var sb strings.Builder
	sb.WriteString(msg)
	for _, a := range attrs {
		sb.WriteByte(' ')
		sb.WriteString(a.Key)
		sb.WriteByte('=')
		v := a.Value.String()
		if needsQuoting(v) {
			v = strconv.Quote(v)
		}
		sb.WriteString(v)
	}
	return sb.String()
}

func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	return strings.ContainsAny(s, " =\"\t\n\r")
}

// Enabled reports whether level meets the handler's minimum level.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle captures r as a Record and emits it. Any error is also passed to
// the error callback, since slog.Logger drops it.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.Emit(ctx, h.capture(r)); err != nil {
		h.buf.errFunc(err)
		return err
	}
	return nil
}

// WithAttrs returns a handler that adds attrs to every record. It shares
// this handler's buffer.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := *h
	h2.attrs = make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(h2.attrs, h.attrs)
	for _, a := range attrs {
		h2.attrs = flatten(h2.attrs, h.prefix, a)
	}
	return &h2
}

// WithGroup returns a handler that qualifies later attributes with name and
// appends it to the logger name ("root.db"). It shares this handler's buffer.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.prefix = h.prefix + name + "."
	h2.name = h.name + "." + name
	return &h2
}

// capture builds a Record from r on the goroutine that logged it.
func (h *Handler) capture(r slog.Record) model.Record {
	created := r.Time
	if created.IsZero() {
		created = h.buf.now()
	}

	attrs := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = flatten(attrs, h.prefix, a)
		return true
	})
	// The first error among the record's own attributes wins over one
	// bound with WithAttrs.
	bound := len(h.attrs)
	exc := firstError(attrs[bound:])
	if exc == nil {
		exc = firstError(attrs[:bound])
	}

	gid := goroutineID()
	rec := model.Record{
		Created:         created,
		LevelName:       r.Level.String(),
		LevelNo:         LevelNo(r.Level),
		Name:            h.name,
		Process:         pid,
		ProcessName:     processName,
		RelativeCreated: float64(created.Sub(h.buf.start)) / float64(time.Millisecond),
		Thread:          gid,
		ThreadName:      "goroutine-" + strconv.FormatInt(gid, 10),
		Message:         h.formatter(r.Message, attrs),
		Exc:             exc,
		Pathname:        unknownFile,
		FuncName:        "(unknown function)",
	}
	if r.PC != 0 {
		f, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		if f.File != "" {
			rec.Pathname = f.File
		}
		if f.Function != "" {
			rec.FuncName = funcName(f.Function)
		}
	}
	rec.Filename = filepath.Base(rec.Pathname)
	rec.Module = strings.TrimSuffix(rec.Filename, filepath.Ext(rec.Filename))
	return rec
}

// flatten appends a to dst with its key qualified by prefix, expanding
// groups. Empty attributes and empty groups are dropped, as slog requires.
func flatten(dst []slog.Attr, prefix string, a slog.Attr) []slog.Attr {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		if len(group) == 0 {
			return dst
		}
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range group {
			dst = flatten(dst, prefix, ga)
		}
		return dst
	}
	if a.Key == "" {
		return dst
	}
	return append(dst, slog.Attr{Key: prefix + a.Key, Value: a.Value})
}

// firstError describes the first error-valued attribute, or returns nil.
func firstError(attrs []slog.Attr) *model.ExcInfo {
	for _, a := range attrs {
		if a.Value.Kind() != slog.KindAny {
			continue
		}
		if err, ok := a.Value.Any().(error); ok && err != nil {
			return &model.ExcInfo{Type: fmt.Sprintf("%T", err), Value: errorText(err)}
		}
	}
	return nil
}

// errorText returns err.Error(), reporting a typed nil pointer as "<nil>"
// and any other panic from Error as "!PANIC: ...", the way slog does.
func errorText(err error) (s string) {
	defer func() {
		if r := recover(); r != nil {
			if v := reflect.ValueOf(err); v.Kind() == reflect.Pointer && v.IsNil() {
				s = "<nil>"
				return
			}
			s = fmt.Sprintf("!PANIC: %v", r)
		}
	}()
	return err.Error()
}

// funcName strips the package path from a runtime function name:
// "github.com/a/b.(*T).M" becomes "(*T).M".
func funcName(full string) string {
	if i := strings.LastIndexByte(full, '/'); i >= 0 {
		full = full[i+1:]
	}
	if i := strings.IndexByte(full, '.'); i >= 0 {
		full = full[i+1:]
	}
	return full
}

var goroutinePrefix = []byte("goroutine ")

// goroutineID parses the current goroutine's id from its stack header,
// "goroutine 18 [running]:". Returns 0 if the header is not recognized.
func goroutineID() int64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, goroutinePrefix)
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
