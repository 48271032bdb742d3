// Package hotreload reloads components when the files they were built from
// change on disk.
package hotreload

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Manager ties a Watcher to a Coordinator.
type Manager struct {
	watcher     *Watcher
	coordinator *Coordinator
	logger      *zap.Logger
}

// NewManager creates a new hot reload manager
func NewManager(logger *zap.Logger, debounce time.Duration) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	watcher, err := NewWatcher(logger)
	if err != nil {
		return nil, err
	}

	return &Manager{
		watcher:     watcher,
		coordinator: NewCoordinator(watcher, logger, debounce),
		logger:      logger,
	}, nil
}

// AddWatch adds a file to watch
func (m *Manager) AddWatch(path string) error {
	return m.watcher.Add(path)
}

// RemoveWatch removes a file from watch
func (m *Manager) RemoveWatch(path string) error {
	return m.watcher.Remove(path)
}

// RegisterReloadable registers a reloadable component
func (m *Manager) RegisterReloadable(reloadable Reloadable) error {
	return m.coordinator.Register(reloadable)
}

// Start starts the hot reload system
func (m *Manager) Start(ctx context.Context) error {
	if m.coordinator.IsRunning() {
		return nil
	}
	if err := m.coordinator.Start(ctx); err != nil {
		return err
	}
	m.logger.Info("Hot reload system started", zap.Strings("paths", m.watcher.Paths()))
	return nil
}

// Stop stops the hot reload system and releases the watcher. A stopped
// manager cannot be restarted.
func (m *Manager) Stop() {
	if !m.coordinator.IsRunning() {
		_ = m.watcher.Close()
		return
	}
	m.coordinator.Stop()
	m.logger.Info("Hot reload system stopped")
}

// IsRunning returns whether the hot reload system is running
func (m *Manager) IsRunning() bool {
	return m.coordinator.IsRunning()
}
