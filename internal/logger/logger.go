package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	levelVar slog.LevelVar
	current  atomic.Pointer[slog.Logger]

	// sink guards the pieces a handler is rebuilt from.
	sink struct {
		sync.Mutex
		out    io.Writer
		asJSON bool
	}
)

func init() {
	levelVar.Set(slog.LevelInfo)
	sink.out = os.Stdout
	rebuild()
}

// rebuild swaps in a handler for the current output and format. Caller holds sink or is init.
func rebuild() {
	w := sink.out
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: &levelVar}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if sink.asJSON {
		h = slog.NewJSONHandler(w, opts)
	}
	current.Store(slog.New(h))
}

func SetOutput(w io.Writer) {
	sink.Lock()
	defer sink.Unlock()
	sink.out = w
	rebuild()
}

// SetFormat selects "json" records; anything else means text.
func SetFormat(format string) {
	sink.Lock()
	defer sink.Unlock()
	sink.asJSON = strings.EqualFold(strings.TrimSpace(format), "json")
	rebuild()
}

// SetLevel accepts debug, info, warn(ing) and error. Unknown names fall back to info.
func SetLevel(level string) {
	lvl, ok := parseLevel(level)
	levelVar.Set(lvl)
	if !ok && strings.TrimSpace(level) != "" {
		Warnf("logger: unknown level %q, using info", level)
	}
}

func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// Level reports the active level as a lowercase name.
func Level() string {
	return strings.ToLower(levelVar.Level().String())
}

// With returns a structured logger tagged with a component name.
func With(component string) *slog.Logger {
	return current.Load().With("component", component)
}

func Debugf(format string, v ...any) { logf(slog.LevelDebug, format, v...) }

func Infof(format string, v ...any) { logf(slog.LevelInfo, format, v...) }

func Warnf(format string, v ...any) { logf(slog.LevelWarn, format, v...) }

func Errorf(format string, v ...any) { logf(slog.LevelError, format, v...) }

func logf(level slog.Level, format string, v ...any) {
	if level < levelVar.Level() {
		return
	}
	l := current.Load()
	switch level {
	case slog.LevelDebug:
		l.Debug(fmt.Sprintf(format, v...))
	case slog.LevelWarn:
		l.Warn(fmt.Sprintf(format, v...))
	case slog.LevelError:
		l.Error(fmt.Sprintf(format, v...))
	default:
		l.Info(fmt.Sprintf(format, v...))
	}
}
