package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	slogmulti "github.com/samber/slog-multi"
)

// Options configures New.
type Options struct {
	// Writer receives human-readable text output. Defaults to os.Stderr.
	Writer io.Writer

	// Verbose lowers the level from Warn to Debug.
	Verbose bool

	// JSON switches Writer output to JSON.
	JSON bool

	// File, when set, additionally receives every record as JSON.
	// The file is appended to and created with mode 0600.
	File string
}

// Level returns the level for the verbose setting.
func Level(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}

// New creates a secure logger writing to opts.Writer and, when opts.File is
// set, fanning out to a JSON log file. The returned function closes the file.
func New(opts Options) (*slog.Logger, func() error, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: Level(opts.Verbose)}

	var primary slog.Handler
	if opts.JSON {
		primary = slog.NewJSONHandler(w, hopts)
	} else {
		primary = slog.NewTextHandler(w, hopts)
	}

	if opts.File == "" {
		return slog.New(NewSecureHandler(primary)), func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0750); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) //nolint:gosec // path from configuration
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	fileHandler := slog.NewJSONHandler(f, hopts)
	logger := slog.New(NewSecureHandler(slogmulti.Fanout(primary, fileHandler)))
	return logger, f.Close, nil
}

// NewSecureLogger creates a text logger that sanitizes sensitive
// information. verbose selects Debug instead of Warn.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewTextHandler(w, &slog.HandlerOptions{Level: Level(verbose)})))
}

// NewSecureJSONLogger is NewSecureLogger with JSON output.
func NewSecureJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: Level(verbose)})))
}
