// Package logging provides the launcher's file logger.
// The TUI owns the terminal, so logs go to ~/.launchpad/launchpad.log,
// truncated on each launch.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// LogFileName is the name of the log file.
	LogFileName = "launchpad.log"
	// LogDirName is the name of the directory containing the log file.
	LogDirName = ".launchpad"

	prefix = "launchpad"
)

// File is a logger backed by a log file. Close releases the file.
type File struct {
	*log.Logger

	path string
	mu   sync.Mutex
	file *os.File
}

// Open creates or truncates the log at path and returns a logger writing to
// it at the given level. Extra writers (stderr for headless commands)
// receive the same records.
func Open(path, level string, extra ...io.Writer) (*File, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	dir := filepath.Dir(path)
	//nolint:gosec // G301: User state directory needs standard permissions
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	//nolint:gosec // G304: Log path is computed from user home, not user input
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	var w io.Writer = f
	if len(extra) > 0 {
		w = io.MultiWriter(append([]io.Writer{f}, extra...)...)
	}

	logger := New(w, lvl)
	logger.Info("log started", "at", time.Now().Format(time.RFC3339), "level", lvl)

	return &File{Logger: logger, path: path, file: f}, nil
}

// New returns a logger with the launcher's prefix and timestamps.
func New(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		Prefix:          prefix,
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.000",
	})
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

// Path returns the log file location.
func (f *File) Path() string {
	return f.path
}

// Close closes the log file. Safe to call more than once.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

// DefaultPath returns ~/.launchpad/launchpad.log for the given home directory.
func DefaultPath(homeDir string) string {
	return filepath.Join(homeDir, LogDirName, LogFileName)
}
