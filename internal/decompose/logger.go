package decompose

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DebugLogger writes a timestamped trace of expansion decisions to a file.
// A nil or file-less logger discards everything.
type DebugLogger struct {
	mu   sync.Mutex
	file *os.File
	sink func(at time.Time, line string)
}

// NewDebugLogger creates a logger appending to logPath.
// If the path is empty, returns a no-op logger.
func NewDebugLogger(logPath string) (*DebugLogger, error) {
	if logPath == "" {
		return &DebugLogger{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	logger := &DebugLogger{file: f}
	logger.Log("=== Expansion log started at %s ===", time.Now().Format(time.RFC3339))
	return logger, nil
}

// NopLogger returns a logger that discards everything.
func NopLogger() *DebugLogger {
	return &DebugLogger{}
}

// SetSink forwards every later line to fn as well, e.g. to a progress view.
// A nil fn removes the sink.
func (l *DebugLogger) SetSink(fn func(at time.Time, line string)) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.sink = fn
	l.mu.Unlock()
}

// Log writes one timestamped line.
func (l *DebugLogger) Log(format string, args ...interface{}) {
	if l == nil {
		return
	}

	now := time.Now()
	msg := fmt.Sprintf(format, args...)

	l.mu.Lock()
	if l.file != nil {
		fmt.Fprintf(l.file, "[%s] %s\n", now.Format("15:04:05.000"), msg)
		l.file.Sync()
	}
	sink := l.sink
	l.mu.Unlock()

	if sink != nil {
		sink(now, msg)
	}
}

// Close closes the log file. Safe on a nil logger.
func (l *DebugLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}
