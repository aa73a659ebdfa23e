// Package logging configures the process-wide structured logger. Every
// write passes through here at least twice — once for the leader's own
// quorum decision, once per peer's replication attempt — all tagged with
// the same write_id (SPEC_FULL.md DOMAIN STACK, google/uuid), so the one thing this handler
// must get right beyond generic pretty-printing is making a single
// write's scattered log lines easy to pick out of a busy console. It is
// modeled on `_examples/igrgin-pulsardb/internal/logging/logger.go`'s
// prettyHandler, adapted to surface that correlation id instead of
// treating every attribute alike.
package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
)

// correlationKeys are the attribute names this module's own code attaches
// to thread a single logical operation across log lines: write_id ties
// together a leader's quorum decision with every peer's replication
// attempt (internal/replication), request_id ties an HTTP handler's log
// line back to chi's middleware.RequestID. When present, one is pulled
// out of the attribute list and rendered as a short tag right before the
// message, instead of buried among the other key=value pairs, so
// `grep <id>` on process output reads as a single write's story in
// order.
var correlationKeys = []string{"write_id", "request_id"}

type consoleHandler struct {
	out    io.Writer
	level  slog.Leveler
	source bool
}

// NewConsoleHandler builds a slog.Handler that writes colorized lines:
// timestamp, level, caller (if AddSource), correlation tag (if any),
// message, attrs.
func NewConsoleHandler(out io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if out == nil {
		out = os.Stdout
	}
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &consoleHandler{out: out, level: opts.Level, source: opts.AddSource}
}

// Init installs the default logger for the process at the given level
// name ("debug", "info", "warn", "error"; unrecognized falls back to
// info).
func Init(levelName string) *slog.Logger {
	level := ParseLevel(levelName)
	h := NewConsoleHandler(os.Stdout, &slog.HandlerOptions{Level: level, AddSource: true})
	l := slog.New(h)
	slog.SetDefault(l)
	return l
}

// ParseLevel converts a level name into a slog.Level, defaulting to Info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
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

func (h *consoleHandler) Enabled(_ context.Context, lvl slog.Level) bool {
	if h.level == nil {
		return true
	}
	return lvl >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%s ", r.Time.Format("2006-01-02 15:04:05.000"))
	fmt.Fprintf(&buf, "%s%-5s%s ", colorForLevel(r.Level), levelText(r.Level), "\033[0m")

	if h.source {
		if file, line := resolveCaller(); file != "" {
			fmt.Fprintf(&buf, "%-24s ", fmt.Sprintf("%s:%d", filepath.Base(file), line))
		}
	}

	// Pull the write_id/request_id (whichever is present) up front so a
	// line reads "abcd1234 quorum decision ..." instead of forcing a scan
	// to the end of the attribute list to find which write this is.
	corrKey, corrVal, rest := extractCorrelation(r)
	if corrKey != "" {
		fmt.Fprintf(&buf, "%.8s ", corrVal)
	}

	buf.WriteString(r.Message)

	var errVal error
	for _, a := range rest {
		if a.Key == "error" {
			if e, ok := a.Value.Any().(error); ok {
				errVal = e
			}
		}
		fmt.Fprintf(&buf, " %s=%v", a.Key, a.Value.Any())
	}
	buf.WriteByte('\n')

	// A replication or handler failure carrying an "error" attribute gets
	// the stack of the goroutine that logged it, so a WARN/ERROR line in
	// a multi-goroutine fan-out can still be traced to its call site.
	if errVal != nil {
		fmt.Fprintf(&buf, "  error: %v\n", errVal)
		buf.Write(debug.Stack())
	}

	_, err := h.out.Write(buf.Bytes())
	return err
}

func (h *consoleHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *consoleHandler) WithGroup(_ string) slog.Handler      { return h }

// extractCorrelation returns the first correlationKeys match found among
// r's attributes plus the remaining attributes with it removed, so it is
// not printed twice.
func extractCorrelation(r slog.Record) (key, value string, rest []slog.Attr) {
	rest = make([]slog.Attr, 0, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		if key == "" {
			for _, ck := range correlationKeys {
				if a.Key == ck {
					key = a.Key
					value = a.Value.String()
					return true
				}
			}
		}
		rest = append(rest, a)
		return true
	})
	return key, value, rest
}

func levelText(l slog.Level) string {
	switch {
	case l <= slog.LevelDebug:
		return "DEBUG"
	case l == slog.LevelInfo:
		return "INFO"
	case l == slog.LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

func colorForLevel(l slog.Level) string {
	switch {
	case l <= slog.LevelDebug:
		return "\033[36m"
	case l == slog.LevelInfo:
		return "\033[32m"
	case l == slog.LevelWarn:
		return "\033[33m"
	default:
		return "\033[31m"
	}
}

// resolveCaller walks the stack to find the first frame outside this
// package.
func resolveCaller() (string, int) {
	const maxDepth = 32
	var pcs [maxDepth]uintptr
	n := runtime.Callers(5, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		if !more {
			break
		}
		if strings.Contains(f.File, string(os.PathSeparator)+"logging"+string(os.PathSeparator)) {
			continue
		}
		return f.File, f.Line
	}
	return "", 0
}
