package engine

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/votryx/votryx/internal/config"
	"github.com/votryx/votryx/internal/domain"
	"github.com/votryx/votryx/internal/driver"
	"github.com/votryx/votryx/internal/state"
)

// ErrAlreadyRunning is returned by Start while a run is in progress
var ErrAlreadyRunning = errors.New("a voting run is already in progress")

// ErrNotRunning is returned by Stop when no run is in progress
var ErrNotRunning = errors.New("no voting run in progress")

// Controller is the inbound surface for presentation layers: Start returns
// immediately and runs the batch loop asynchronously; Stop, Snapshot and
// observer registration never block beyond snapshot-copy time.
type Controller struct {
	drv   driver.Driver
	state *state.Manager

	engine  *Engine
	running bool
	done    chan struct{}
	summary *RunSummary
	mu      sync.Mutex
}

// NewController creates a controller around a driver. The state manager,
// and with it all registered observers, persists across runs.
func NewController(drv driver.Driver) *Controller {
	return &Controller{
		drv:   drv,
		state: state.NewManager(),
	}
}

// Start validates the configuration and launches a run in the background.
// Counters from a previous run are reset.
func (c *Controller) Start(cfg config.RunConfiguration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return ErrAlreadyRunning
	}

	eng, err := New(cfg, c.drv, c.state, Callbacks{})
	if err != nil {
		return err
	}

	c.state.Reset()
	c.engine = eng
	c.running = true
	done := make(chan struct{})
	c.done = done

	go func() {
		summary, err := eng.Run(context.Background())
		if err != nil {
			log.Printf("voting run failed to start: %v", err)
		}

		c.mu.Lock()
		c.running = false
		c.summary = summary
		c.mu.Unlock()
		close(done)
	}()

	return nil
}

// Stop signals the active run to end
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.engine == nil {
		return ErrNotRunning
	}
	c.engine.Stop()
	return nil
}

// Wait blocks until the active run finishes and returns its summary.
// Returns the last summary immediately when no run is active.
func (c *Controller) Wait() *RunSummary {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done != nil {
		<-done
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary
}

// Running reports whether a run is in progress
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// RegisterObserver subscribes to state change notifications
func (c *Controller) RegisterObserver(obs state.Observer) {
	c.state.RegisterObserver(obs)
}

// RegisterLogObserver subscribes to engine log records
func (c *Controller) RegisterLogObserver(obs state.LogObserver) {
	c.state.RegisterLogObserver(obs)
}

// Snapshot returns the current statistics
func (c *Controller) Snapshot() state.Statistics {
	return c.state.Snapshot()
}

// Logs returns retained log entries, optionally filtered to errors
func (c *Controller) Logs(errorsOnly bool) []domain.LogEntry {
	return c.state.Logs(errorsOnly)
}

// LastSummary returns the most recent run's summary, or nil
func (c *Controller) LastSummary() *RunSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary
}
