// Package logging provides the gateway's slog handlers: a compact text
// handler for operational logs and a line handler for the failure log.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"
)

// TextHandler formats records as
//
//	TIMESTAMP [level] message | key=value key="quoted value"
//
// Group attributes and WithGroup names become dotted key prefixes.
type TextHandler struct {
	w     io.Writer
	level slog.Leveler
	mu    *sync.Mutex

	// attrs from WithAttrs, already rendered with a leading space each
	pre []byte
	// open WithGroup names joined with dots, ending in a dot
	prefix string
}

// NewTextHandler keeps opts.Level itself, so a *slog.LevelVar can be changed
// while the handler is in use.
func NewTextHandler(w io.Writer, opts *slog.HandlerOptions) *TextHandler {
	var level slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		level = opts.Level
	}
	return &TextHandler{w: w, level: level, mu: &sync.Mutex{}}
}

func (h *TextHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *TextHandler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, 128+len(h.pre))
	buf = r.Time.UTC().AppendFormat(buf, time.RFC3339)
	buf = append(buf, " ["...)
	buf = append(buf, levelString(r.Level)...)
	buf = append(buf, "] "...)
	buf = append(buf, r.Message...)

	attrs := h.pre
	if r.NumAttrs() > 0 {
		attrs = append([]byte(nil), h.pre...)
		r.Attrs(func(a slog.Attr) bool {
			attrs = appendAttr(attrs, h.prefix, a)
			return true
		})
	}
	if len(attrs) > 0 {
		buf = append(buf, " |"...)
		buf = append(buf, attrs...)
	}
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

func (h *TextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := *h
	h2.pre = append([]byte(nil), h.pre...)
	for _, a := range attrs {
		h2.pre = appendAttr(h2.pre, h.prefix, a)
	}
	return &h2
}

func (h *TextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.prefix = h.prefix + name + "."
	return &h2
}

// appendAttr renders a as " key=value", or one such pair per member for a
// group. Empty attrs and empty groups render nothing.
func appendAttr(buf []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return buf
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, m := range a.Value.Group() {
			buf = appendAttr(buf, prefix, m)
		}
		return buf
	}
	buf = append(buf, ' ')
	buf = append(buf, prefix...)
	buf = append(buf, a.Key...)
	buf = append(buf, '=')
	return appendValue(buf, a.Value)
}

func appendValue(buf []byte, v slog.Value) []byte {
	switch v.Kind() {
	case slog.KindString:
		return appendMaybeQuoted(buf, v.String())
	case slog.KindTime:
		return v.Time().AppendFormat(buf, time.RFC3339)
	case slog.KindDuration:
		return append(buf, v.Duration().String()...)
	case slog.KindInt64:
		return strconv.AppendInt(buf, v.Int64(), 10)
	case slog.KindBool:
		return strconv.AppendBool(buf, v.Bool())
	default:
		return appendMaybeQuoted(buf, fmt.Sprint(v.Any()))
	}
}

// appendMaybeQuoted quotes s when it would not read back as one value.
func appendMaybeQuoted(buf []byte, s string) []byte {
	if s == "" || strings.ContainsFunc(s, needsQuote) {
		return strconv.AppendQuote(buf, s)
	}
	return append(buf, s...)
}

func needsQuote(r rune) bool {
	return r <= ' ' || r == '=' || r == '"' || !unicode.IsPrint(r)
}

func levelString(level slog.Level) string {
	switch {
	case level < slog.LevelInfo:
		return "debug"
	case level < slog.LevelWarn:
		return "info"
	case level < slog.LevelError:
		return "warn"
	default:
		return "error"
	}
}

// NewLogger returns a TextHandler logger on w.
func NewLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewDiscardLogger returns a logger that drops everything.
func NewDiscardLogger() *slog.Logger {
	return slog.New(NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(100)}))
}

// LevelFromString maps debug, info, warn and error (any case) to a level.
// Anything else is info.
func LevelFromString(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FailureHandler writes one "<RFC3339> | <message>" line per record.
// Attributes are ignored.
type FailureHandler struct {
	w  io.Writer
	mu *sync.Mutex
}

func NewFailureHandler(w io.Writer) *FailureHandler {
	return &FailureHandler{w: w, mu: &sync.Mutex{}}
}

func (h *FailureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *FailureHandler) Handle(_ context.Context, r slog.Record) error {
	line := r.Time.Format(time.RFC3339) + " | " + r.Message + "\n"
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, line)
	return err
}

func (h *FailureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *FailureHandler) WithGroup(string) slog.Handler      { return h }

// OpenFailureLog opens path for appending and returns a logger writing
// failure lines to it. The caller closes the file.
func OpenFailureLog(path string) (*slog.Logger, *os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open failure log: %w", err)
	}
	return slog.New(NewFailureHandler(f)), f, nil
}
