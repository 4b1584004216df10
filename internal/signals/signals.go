// Package signals lets another process stop a running expansion by creating
// a file in the signals directory.
package signals

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// StopFile is the name of the file that requests a stop.
const StopFile = "stop"

// pollInterval is how often the stop file is checked when no watcher is available.
const pollInterval = time.Second

// Manager watches the signals directory for a stop request.
type Manager struct {
	dir string

	mu      sync.Mutex
	stopped bool
	stopCh  chan struct{}

	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
}

// NewManager watches dir (created if missing). A stale stop file left from an
// earlier run is removed first.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	if err := os.Remove(filepath.Join(dir, StopFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	m := &Manager{
		dir:    dir,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		go m.poll(pollInterval)
		return m, nil
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		go m.poll(pollInterval)
		return m, nil
	}
	m.watcher = watcher
	go m.watch()
	return m, nil
}

// poll checks the stop file every interval until a stop is seen or Close is called.
func (m *Manager) poll(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			if m.ShouldStop() {
				return
			}
		}
	}
}

func (m *Manager) watch() {
	for {
		select {
		case <-m.done:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) == StopFile && event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				m.markStopped()
			}
		case _, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (m *Manager) markStopped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.stopped {
		m.stopped = true
		close(m.stopCh)
	}
}

// Stopped is closed once a stop has been requested.
func (m *Manager) Stopped() <-chan struct{} {
	return m.stopCh
}

// ShouldStop reports whether a stop has been requested.
func (m *Manager) ShouldStop() bool {
	if _, err := os.Stat(filepath.Join(m.dir, StopFile)); err == nil {
		m.markStopped()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// SendStop creates the stop file in dir, for use from another process.
func SendStop(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, StopFile), []byte(time.Now().Format(time.RFC3339)), 0644)
}

// Dir returns the watched directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Close stops watching and removes the stop file.
func (m *Manager) Close() {
	m.once.Do(func() {
		close(m.done)
		if m.watcher != nil {
			m.watcher.Close()
		}
		os.Remove(filepath.Join(m.dir, StopFile))
	})
}
