package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Logger writes human readable progress to stderr through slog and, when
// verbose, NDJSON events as well. A log file receives both without colour.
type Logger struct {
	verbose bool
	out     io.Writer
	file    *os.File
	mu      sync.Mutex
	slog    *slog.Logger
}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// stderr is swapped in tests.
var stderr io.Writer = os.Stderr

func NewLogger(verbose bool, logFile string) (*Logger, error) {
	l := &Logger{verbose: verbose, out: stderr}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	noColor := true
	if f, ok := stderr.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
		l.out = colorable.NewColorable(f)
	}
	var handler slog.Handler = tint.NewHandler(l.out, &tint.Options{
		Level:       level,
		TimeFormat:  "15:04:05.000",
		NoColor:     noColor,
		ReplaceAttr: dropEmptyAttrs,
	})
	if strings.TrimSpace(logFile) != "" {
		dir := filepath.Dir(logFile)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		l.file = f
		handler = teeHandler{
			handler,
			slog.NewJSONHandler(&lockedWriter{w: f, mu: &l.mu}, &slog.HandlerOptions{Level: level, ReplaceAttr: stripANSI}),
		}
	}
	l.slog = slog.New(handler)
	slog.SetDefault(l.slog)
	return l, nil
}

func dropEmptyAttrs(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString && a.Value.String() == "" {
		return slog.Attr{}
	}
	return a
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }

// Event writes one NDJSON line. It is a no-op unless verbose.
func (l *Logger) Event(event string, fields map[string]any) {
	if !l.verbose {
		return
	}
	m := map[string]any{"ts": time.Now().Format(time.RFC3339Nano), "event": event}
	for k, v := range fields {
		m[k] = v
	}
	b, _ := json.Marshal(m)
	l.writeLine(string(b))
}

func (l *Logger) writeLine(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.out, line+"\n")
	if l.file != nil {
		_, _ = l.file.WriteString(ansiEscape.ReplaceAllString(line, "") + "\n")
	}
}

// stripANSI keeps colour codes out of the log file.
func stripANSI(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		a.Value = slog.StringValue(ansiEscape.ReplaceAllString(a.Value.String(), ""))
	}
	return a
}

// lockedWriter shares the file mutex with Event.
type lockedWriter struct {
	w  io.Writer
	mu *sync.Mutex
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}

type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
