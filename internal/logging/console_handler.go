package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

const consoleTimeLayout = "2006-01-02 15:04:05"

var levelColors = map[slog.Level]string{
	slog.LevelDebug: "\x1b[90m",
	slog.LevelInfo:  "\x1b[36m",
	slog.LevelWarn:  "\x1b[33m",
	slog.LevelError: "\x1b[31m",
}

// consoleSink is shared by a handler and every handler derived from it.
type consoleSink struct {
	mu     sync.Mutex
	w      io.Writer
	level  slog.Level
	source bool
	color  bool
}

// consoleHandler renders one line per record:
//
//	2026-03-07 14:05:00 INFO  [3f2a9c1b · visual · scene 2] retry: attempt accepted attempt=1
//
// run_id, stage, scene and component are lifted out of the attributes into the
// bracketed subject and the component prefix.
type consoleHandler struct {
	sink   *consoleSink
	attrs  []field
	prefix string
}

type field struct {
	key string
	val slog.Value
}

func newConsoleHandler(w io.Writer, level slog.Level, source bool) *consoleHandler {
	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd())
	}
	return &consoleHandler{sink: &consoleSink{w: w, level: level, source: source, color: color}}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.sink.level
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	fields := slices.Clone(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		fields = appendField(fields, h.prefix, a)
		return true
	})

	var subj lineSubject
	rest := fields[:0]
	for _, f := range fields {
		if !subj.take(f) {
			rest = append(rest, f)
		}
	}

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var b strings.Builder
	b.WriteString(ts.Local().Format(consoleTimeLayout))
	b.WriteByte(' ')
	b.WriteString(h.levelTag(r.Level))
	b.WriteByte(' ')
	if s := FormatSubject(subj.run, subj.stage, subj.scene); s != "" {
		b.WriteString("[" + s + "] ")
	}
	if subj.component != "" {
		b.WriteString(subj.component + ": ")
	}
	msg := strings.TrimSpace(r.Message)
	if msg == "" {
		msg = "(no message)"
	}
	b.WriteString(msg)
	if h.sink.source && r.PC != 0 {
		if src := r.Source(); src != nil {
			b.WriteString(" (" + filepath.Base(src.File) + ":" + strconv.Itoa(src.Line) + ")")
		}
	}
	for _, f := range rest {
		b.WriteString(" " + f.key + "=" + renderValue(f.val))
	}
	b.WriteByte('\n')

	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	_, err := io.WriteString(h.sink.w, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = slices.Clone(h.attrs)
	for _, a := range attrs {
		next.attrs = appendField(next.attrs, h.prefix, a)
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func (h *consoleHandler) levelTag(level slog.Level) string {
	var tag string
	switch {
	case level >= slog.LevelError:
		tag, level = "ERROR", slog.LevelError
	case level >= slog.LevelWarn:
		tag, level = "WARN ", slog.LevelWarn
	case level >= slog.LevelInfo:
		tag, level = "INFO ", slog.LevelInfo
	default:
		tag, level = "DEBUG", slog.LevelDebug
	}
	if h.sink.color {
		return levelColors[level] + tag + "\x1b[0m"
	}
	return tag
}

// appendField flattens groups into dotted keys.
func appendField(dst []field, prefix string, a slog.Attr) []field {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return dst
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, child := range a.Value.Group() {
			dst = appendField(dst, prefix, child)
		}
		return dst
	}
	return append(dst, field{key: prefix + a.Key, val: a.Value})
}

type lineSubject struct {
	run, stage, scene, component string
}

func (s *lineSubject) take(f field) bool {
	switch f.key {
	case FieldRunID:
		s.run = f.val.String()
	case FieldStage:
		s.stage = f.val.String()
	case FieldScene:
		s.scene = f.val.String()
	case FieldComponent:
		// The outermost component names the line.
		if s.component == "" {
			s.component = f.val.String()
		}
	default:
		return false
	}
	return true
}

// FormatSubject joins the short run id, stage and scene, for example
// "3f2a9c1b · visual · scene 2". Empty parts are skipped.
func FormatSubject(runID, stage, scene string) string {
	var parts []string
	if runID = strings.TrimSpace(runID); runID != "" {
		parts = append(parts, runID[:min(len(runID), 8)])
	}
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if scene = strings.TrimSpace(scene); scene != "" {
		parts = append(parts, "scene "+scene)
	}
	return strings.Join(parts, " · ")
}

func renderValue(v slog.Value) string {
	var s string
	if v.Kind() == slog.KindTime {
		s = v.Time().UTC().Format(time.RFC3339)
	} else {
		s = v.String()
	}
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}
