package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"
)

// ComponentKey is lifted out of the attributes and printed as a [tag] in
// front of the message.
const ComponentKey = "component"

type palette struct {
	reset, bold, gray, cyan string
	debug, info, warn, err  string
}

var (
	colors = palette{
		reset: "\033[0m",
		bold:  "\033[1m",
		gray:  "\033[90m",
		cyan:  "\033[36m",
		debug: "\033[90m",
		info:  "\033[34m",
		warn:  "\033[33m",
		err:   "\033[31m",
	}
	noColors palette
)

// PrettyOptions configures a PrettyHandler.
type PrettyOptions struct {
	Level     slog.Leveler
	AddSource bool
	// NoColor disables ANSI escapes. Pretty sets it for writers that are not
	// a terminal file and when NO_COLOR is set.
	NoColor bool
}

// PrettyHandler is a slog.Handler for humans reading a terminal:
//
//	15:04:05 INFO  [sdk] runner ready model=model1 elapsed=12ms main.go:42
type PrettyHandler struct {
	opts      PrettyOptions
	pal       palette
	w         io.Writer
	mu        *sync.Mutex
	group     string
	component string
	attrs     []slog.Attr
}

func NewPrettyHandler(w io.Writer, opts *PrettyOptions) *PrettyHandler {
	if opts == nil {
		opts = &PrettyOptions{}
	}
	pal := colors
	if opts.NoColor {
		pal = noColors
	}
	return &PrettyHandler{
		opts: *opts,
		pal:  pal,
		w:    w,
		mu:   &sync.Mutex{},
	}
}

func colorable(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	st, err := f.Stat()
	if err != nil {
		return false
	}
	return st.Mode()&os.ModeCharDevice != 0
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, 512)
	p := h.pal

	buf = append(buf, p.gray...)
	buf = r.Time.AppendFormat(buf, time.TimeOnly)
	buf = append(buf, p.reset...)
	buf = append(buf, ' ')

	buf = append(buf, h.levelColor(r.Level)...)
	buf = append(buf, p.bold...)
	buf = append(buf, padLevel(r.Level.String())...)
	buf = append(buf, p.reset...)
	buf = append(buf, ' ')

	component := h.component
	attrs := make([]slog.Attr, 0, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == ComponentKey && h.group == "" {
			component = a.Value.String()
			return true
		}
		attrs = append(attrs, a)
		return true
	})

	if component != "" {
		buf = append(buf, p.bold...)
		buf = append(buf, '[')
		buf = append(buf, component...)
		buf = append(buf, "] "...)
		buf = append(buf, p.reset...)
	}
	buf = append(buf, r.Message...)

	for _, attr := range h.attrs {
		buf = h.appendField(buf, attr, "")
	}
	for _, attr := range attrs {
		buf = h.appendField(buf, attr, h.group)
	}

	if h.opts.AddSource && r.PC != 0 {
		buf = h.appendSource(buf, r.PC)
	}
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	c.attrs = append(c.attrs, h.attrs...)
	for _, a := range attrs {
		if a.Key == ComponentKey && h.group == "" {
			c.component = a.Value.String()
			continue
		}
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		c.attrs = append(c.attrs, a)
	}
	return &c
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	if h.group != "" {
		c.group = h.group + "." + name
	} else {
		c.group = name
	}
	return &c
}

func (h *PrettyHandler) appendSource(buf []byte, pc uintptr) []byte {
	frames := runtime.CallersFrames([]uintptr{pc})
	frame, _ := frames.Next()
	if frame.File == "" {
		return buf
	}
	buf = append(buf, ' ')
	buf = append(buf, h.pal.gray...)
	buf = append(buf, filepath.Base(frame.File)...)
	buf = append(buf, ':')
	buf = strconv.AppendInt(buf, int64(frame.Line), 10)
	buf = append(buf, h.pal.reset...)
	return buf
}

func (h *PrettyHandler) levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return h.pal.err
	case level >= slog.LevelWarn:
		return h.pal.warn
	case level >= slog.LevelInfo:
		return h.pal.info
	default:
		return h.pal.debug
	}
}

func padLevel(level string) string {
	if len(level) == 4 {
		return level + " "
	}
	return level
}

func (h *PrettyHandler) appendField(buf []byte, attr slog.Attr, group string) []byte {
	if attr.Equal(slog.Attr{}) {
		return buf
	}
	buf = append(buf, ' ')
	buf = append(buf, h.pal.cyan...)
	buf = h.appendAttr(buf, attr, group)
	return append(buf, h.pal.reset...)
}

// appendAttr writes key=value. Attributes bound by WithAttrs already carry
// their group prefix, so only record attributes pass a group here.
func (h *PrettyHandler) appendAttr(buf []byte, attr slog.Attr, group string) []byte {
	attr.Value = attr.Value.Resolve()
	key := attr.Key
	if group != "" {
		key = group + "." + key
	}
	buf = append(buf, key...)
	buf = append(buf, '=')

	switch attr.Value.Kind() {
	case slog.KindString:
		buf = appendString(buf, attr.Value.String())
	case slog.KindTime:
		buf = attr.Value.Time().AppendFormat(buf, time.RFC3339)
	case slog.KindDuration:
		buf = append(buf, attr.Value.Duration().String()...)
	case slog.KindGroup:
		buf = append(buf, '{')
		for i, a := range attr.Value.Group() {
			if i > 0 {
				buf = append(buf, ' ')
			}
			buf = h.appendAttr(buf, a, "")
		}
		buf = append(buf, '}')
	default:
		if err, ok := attr.Value.Any().(error); ok {
			buf = append(buf, h.pal.err...)
			buf = strconv.AppendQuote(buf, err.Error())
			buf = append(buf, h.pal.cyan...)
			break
		}
		buf = appendString(buf, fmt.Sprint(attr.Value.Any()))
	}
	return buf
}

func appendString(buf []byte, s string) []byte {
	if needsQuoting(s) {
		return strconv.AppendQuote(buf, s)
	}
	return append(buf, s...)
}

func needsQuoting(s string) bool {
	for _, c := range s {
		if c == ' ' || c == '\t' || c == '\n' || c == '"' || c == '=' {
			return true
		}
	}
	return false
}
