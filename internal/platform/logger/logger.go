// Package logger provides structured logging for the control room.
// Every operator action and engine transition should be traceable through this.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
)

// Logger provides structured logging with context.
type Logger struct {
	*slog.Logger
	closers []io.Closer
}

// Options selects the log sinks.
type Options struct {
	Level    slog.Level
	Writer   io.Writer // Terminal sink; defaults to stdout
	JSONFile string    // Optional JSON lines file
	Journal  bool      // Force the systemd journal sink
	Fallback io.Writer // Used when no other sink is left; defaults to stderr
}

// underSystemd and openJournal are replaced in tests.
var underSystemd = runningUnderSystemd

var openJournal = func() (slog.Handler, error) {
	return slogjournal.NewHandler(&slogjournal.Options{
		ReplaceGroup: func(key string) string {
			return toJournalKey(key)
		},
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			a.Key = toJournalKey(a.Key)
			return a
		},
	})
}

// NewLogger creates a logger that writes text to stdout at info level.
func NewLogger() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))}
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// New creates a logger fanning out to every sink selected in opts.
// The journal sink is added automatically when running as a systemd service.
func New(opts Options) (*Logger, error) {
	var handlers []slog.Handler
	var closers []io.Closer

	isService := underSystemd()

	var terminal slog.Handler
	if !isService {
		w := opts.Writer
		if w == nil {
			w = os.Stdout
		}
		terminal = slog.NewTextHandler(w, &slog.HandlerOptions{Level: opts.Level})
		handlers = append(handlers, terminal)
	}

	if opts.JSONFile != "" {
		if err := os.MkdirAll(filepath.Dir(opts.JSONFile), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.JSONFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open json log file: %w", err)
		}
		closers = append(closers, f)
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: opts.Level}))
	}

	var journalErr error
	if opts.Journal || isService {
		journal, err := openJournal()
		if err != nil {
			journalErr = err
		} else {
			handlers = append(handlers, journal)
		}
	}

	if len(handlers) == 0 {
		w := opts.Fallback
		if w == nil {
			w = os.Stderr
		}
		terminal = slog.NewTextHandler(w, &slog.HandlerOptions{Level: opts.Level})
		handlers = append(handlers, terminal)
	}
	if journalErr != nil && terminal != nil {
		record := slog.NewRecord(time.Now(), slog.LevelWarn, "systemd journal unavailable", 0)
		record.Add("error", journalErr)
		_ = terminal.Handle(context.Background(), record)
	}

	return &Logger{Logger: slog.New(slogmulti.Fanout(handlers...)), closers: closers}, nil
}

// Close releases the file sinks opened by New. Loggers returned by Named
// share the sinks and must not be used afterwards.
func (l *Logger) Close() error {
	var errs []error
	for _, c := range l.closers {
		errs = append(errs, c.Close())
	}
	l.closers = nil
	return errors.Join(errs...)
}

// ParseLevel maps a config level name to a slog level. Unknown names mean info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Named returns a child logger tagged with a component name.
func (l *Logger) Named(component string) *Logger {
	return &Logger{Logger: l.Logger.With("component", component)}
}

// Event logs a specific simulation event for operator oversight.
func (l *Logger) Event(eventType string, actorID string, details string) {
	l.Logger.Info(details, "event", eventType, "actor", actorID)
}

func toJournalKey(str string) string {
	str = strings.ToUpper(str)
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, str)
}

func runningUnderSystemd() bool {
	content, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return false
	}
	parts := strings.Split(strings.TrimSpace(string(content)), ":")
	if len(parts) < 3 {
		return false
	}
	return strings.HasSuffix(path.Dir(parts[2]), ".service")
}
