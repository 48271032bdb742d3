package hotreload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Reloadable represents an interface that can be reloaded
type Reloadable interface {
	Reload(ctx context.Context) error
	Name() string
}

// Coordinator debounces watcher events and reloads every registered
// component once per burst.
type Coordinator struct {
	watcher      *Watcher
	logger       *zap.Logger
	reloadables  map[string]Reloadable
	debounceTime time.Duration

	mu        sync.RWMutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
}

// NewCoordinator creates a new reload coordinator
func NewCoordinator(watcher *Watcher, logger *zap.Logger, debounce time.Duration) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Coordinator{
		watcher:      watcher,
		logger:       logger,
		reloadables:  make(map[string]Reloadable),
		debounceTime: debounce,
	}
}

// Register adds a reloadable component to the coordinator
func (c *Coordinator) Register(reloadable Reloadable) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := reloadable.Name()
	if _, exists := c.reloadables[name]; exists {
		return fmt.Errorf("reloadable %s already registered", name)
	}

	c.reloadables[name] = reloadable
	c.logger.Info("Registered reloadable component", zap.String("name", name))
	return nil
}

// Unregister removes a reloadable component from the coordinator
func (c *Coordinator) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.reloadables, name)
	c.logger.Info("Unregistered reloadable component", zap.String("name", name))
}

// Start begins the hot reload coordination
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isRunning {
		return errors.New("coordinator already running")
	}
	c.isRunning = true

	ctx, c.cancel = context.WithCancel(ctx)
	c.watcher.Start()

	c.wg.Add(1)
	go c.coordinateReloads(ctx)

	c.logger.Info("Hot reload coordinator started")
	return nil
}

// Stop stops the coordination and closes the watcher.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return
	}
	c.isRunning = false
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	if err := c.watcher.Close(); err != nil {
		c.logger.Error("Failed to close watcher", zap.Error(err))
	}

	c.logger.Info("Hot reload coordinator stopped")
}

// IsRunning returns whether the coordinator is currently running
func (c *Coordinator) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isRunning
}

func (c *Coordinator) coordinateReloads(ctx context.Context) {
	defer c.wg.Done()

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending []Event
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-c.watcher.Events():
			if !ok {
				return
			}
			pending = append(pending, event)
			if timer == nil {
				timer = time.NewTimer(c.debounceTime)
			} else {
				timer.Reset(c.debounceTime)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			if len(pending) > 0 {
				_ = c.ReloadAll(ctx, pending)
				pending = pending[:0]
			}
		}
	}
}

// ReloadAll reloads every registered component concurrently. A component
// whose reload fails keeps its previous state, the errors are joined.
func (c *Coordinator) ReloadAll(ctx context.Context, events []Event) error {
	c.mu.RLock()
	reloadables := make([]Reloadable, 0, len(c.reloadables))
	for _, r := range c.reloadables {
		reloadables = append(reloadables, r)
	}
	c.mu.RUnlock()

	if len(reloadables) == 0 {
		return nil
	}

	c.logger.Info("Triggering hot reload", zap.Int("events", len(events)))
	for _, event := range events {
		c.logger.Debug("Reload triggered by",
			zap.String("path", event.Path),
			zap.String("operation", event.Op.String()),
		)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, reloadable := range reloadables {
		wg.Add(1)
		go func(r Reloadable) {
			defer wg.Done()
			if err := r.Reload(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("failed to reload %s: %w", r.Name(), err))
				mu.Unlock()
				return
			}
			c.logger.Info("Successfully reloaded component", zap.String("name", r.Name()))
		}(reloadable)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		c.logger.Error("Hot reload completed with errors", zap.Error(err))
		return err
	}
	c.logger.Info("Hot reload completed successfully")
	return nil
}
