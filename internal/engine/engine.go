// Package engine schedules batches of parallel vote attempts, owns each
// browser session's lifecycle, aggregates outcomes into shared state and
// applies the stop/backoff policy.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/votryx/votryx/internal/browser"
	"github.com/votryx/votryx/internal/config"
	"github.com/votryx/votryx/internal/domain"
	"github.com/votryx/votryx/internal/driver"
	"github.com/votryx/votryx/internal/state"
)

// Callbacks are invoked synchronously from the batch collector goroutine.
// Each session outcome triggers exactly one of OnSuccess/OnError. State
// change notifications go to observers registered on the state manager.
type Callbacks struct {
	OnSuccess     func(voteCount int)
	OnError       func(kind domain.FailureKind, message string)
	OnLog         func(level domain.LogLevel, message string)
	OnStateChange state.Observer
}

// RunSummary is the terminal result of a run
type RunSummary struct {
	Stats    state.Statistics
	Reason   domain.StopReason
	Batches  int
	Duration time.Duration
}

// Engine orchestrates one voting run
type Engine struct {
	cfg   config.RunConfiguration
	drv   driver.Driver
	state *state.Manager
	cb    Callbacks

	pool *browser.Manager

	stopCh   chan struct{}
	stopOnce sync.Once

	// sleep is replaceable in tests to avoid real backoff delays
	sleep func(ctx context.Context, d time.Duration) bool
}

// New validates the configuration and creates an Engine. A validation
// failure rejects the run before any session starts.
func New(cfg config.RunConfiguration, drv driver.Driver, st *state.Manager, cb Callbacks) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run configuration: %w", err)
	}
	if st == nil {
		st = state.NewManager()
	}
	if cb.OnStateChange != nil {
		st.RegisterObserver(cb.OnStateChange)
	}

	return &Engine{
		cfg:    cfg,
		drv:    drv,
		state:  st,
		cb:     cb,
		stopCh: make(chan struct{}),
		sleep:  cancellableSleep,
	}, nil
}

// Stop signals the run to end. In-flight sessions get the configured grace
// period to finish before their browsers are forcibly torn down; no further
// batches start. Safe to call multiple times.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

// State returns the engine's state manager
func (e *Engine) State() *state.Manager {
	return e.state
}

// Run executes the batch loop until the target is reached, the run is
// cancelled, or sustained failure aborts it. The browser registry is empty
// when Run returns, on every exit path.
func (e *Engine) Run(ctx context.Context) (*RunSummary, error) {
	started := time.Now()

	pool, err := browser.NewManager(e.drv, e.cfg.TargetURL)
	if err != nil {
		return nil, err
	}
	e.pool = pool
	defer pool.Close()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	// Session contexts survive run cancellation for the grace period so
	// in-flight attempts can finish before forced teardown.
	sessCtx, cancelSess := context.WithCancel(context.Background())
	defer cancelSess()

	go func() {
		select {
		case <-e.stopCh:
			cancelRun()
		case <-runCtx.Done():
		}
	}()
	go func() {
		<-runCtx.Done()
		t := time.NewTimer(e.cfg.StopGrace)
		defer t.Stop()
		select {
		case <-t.C:
			cancelSess()
		case <-sessCtx.Done():
		}
	}()

	e.state.SetStatus(domain.StatusRunning)
	e.logf(domain.LevelInfo, "run started: target=%s workers=%d batch_size=%d", e.cfg.TargetURL, e.cfg.ParallelWorkers, e.cfg.BatchSize)

	reason := domain.StopCompleted
	remaining := e.cfg.TargetVotes
	batches := 0

	for batch := 0; ; batch++ {
		if runCtx.Err() != nil {
			reason = domain.StopCancelled
			break
		}
		if !e.cfg.Unbounded && remaining <= 0 {
			reason = domain.StopCompleted
			break
		}

		attempts := e.cfg.BatchSize
		if !e.cfg.Unbounded && attempts > remaining {
			attempts = remaining
		}

		e.logf(domain.LevelInfo, "batch %d: launching %d vote attempts", batch+1, attempts)
		concluded := e.runBatch(runCtx, sessCtx, batch, attempts)
		batches++
		if !e.cfg.Unbounded {
			remaining -= concluded
		}

		if runCtx.Err() != nil {
			reason = domain.StopCancelled
			break
		}

		snap := e.state.Snapshot()
		if snap.ConsecutiveErrors >= e.cfg.MaxErrors {
			// Consecutive errors drive backoff and abort; the lifetime
			// error counter is reporting only.
			if snap.ConsecutiveErrors >= 2*e.cfg.MaxErrors {
				reason = domain.StopSustainedFailure
				e.logf(domain.LevelError, "error streak reached %d, aborting run: %s", snap.ConsecutiveErrors, snap.LastError)
				break
			}

			delay := backoffDelay(e.cfg.BackoffBase, e.cfg.BackoffCap, snap.ConsecutiveErrors)
			e.state.SetStatus(domain.StatusBackingOff)
			e.logf(domain.LevelWarn, "backing off %s after %d consecutive errors", delay, snap.ConsecutiveErrors)
			if !e.sleep(runCtx, delay) {
				reason = domain.StopCancelled
				break
			}
			e.state.SetStatus(domain.StatusRunning)
		}

		if !e.cfg.Unbounded && remaining <= 0 {
			continue
		}
		if e.cfg.PauseBetweenVotes > 0 {
			if !e.sleep(runCtx, e.cfg.PauseBetweenVotes) {
				reason = domain.StopCancelled
				break
			}
		}
	}

	// Unconditional last step of any teardown: no orphaned browsers.
	pool.ShutdownAll()

	final := domain.StatusStopped
	if reason == domain.StopCompleted {
		final = domain.StatusCompleted
	}
	stats := e.state.SetStatus(final)
	e.logf(domain.LevelInfo, "run ended: reason=%s votes=%d errors=%d", reason, stats.VoteCount, stats.ErrorCount)

	return &RunSummary{
		Stats:    stats,
		Reason:   reason,
		Batches:  batches,
		Duration: time.Since(started),
	}, nil
}

// runBatch launches up to min(parallelWorkers, attempts) concurrent sessions
// and waits for every attempt to conclude before returning; batches never
// overlap. State updates are applied here, in completion order, by this
// single collector goroutine. Returns the number of concluded attempts.
func (e *Engine) runBatch(runCtx, sessCtx context.Context, batch, attempts int) int {
	workers := e.cfg.ParallelWorkers
	if workers > attempts {
		workers = attempts
	}

	results := make(chan sessionResult, attempts)
	g := new(errgroup.Group)
	g.SetLimit(workers)

	for i := 0; i < attempts; i++ {
		g.Go(func() error {
			if runCtx.Err() != nil {
				results <- sessionResult{batch: batch, index: i, skipped: true}
				return nil
			}
			s := &session{
				batch: batch,
				index: i,
				cfg:   &e.cfg,
				drv:   e.drv,
				pool:  e.pool,
				logf:  e.logf,
			}
			results <- s.run(sessCtx)
			return nil
		})
	}
	go func() {
		g.Wait() //nolint:errcheck // sessions never return errors
		close(results)
	}()

	concluded := 0
	for res := range results {
		if res.skipped {
			continue
		}
		concluded++
		if res.success {
			snap := e.state.RecordSuccess()
			e.logf(domain.LevelSuccess, "vote %d recorded (batch %d, %.1fs)", snap.VoteCount, batch+1, res.duration.Seconds())
			if e.cb.OnSuccess != nil {
				e.cb.OnSuccess(snap.VoteCount)
			}
		} else {
			e.state.RecordError(res.message)
			e.logf(domain.LevelError, "vote attempt failed (%s): %s", res.kind, res.message)
			if e.cb.OnError != nil {
				e.cb.OnError(res.kind, res.message)
			}
		}
	}
	return concluded
}

func (e *Engine) logf(level domain.LogLevel, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	e.state.RecordLog(level, msg)
	if e.cb.OnLog != nil {
		e.cb.OnLog(level, msg)
	}
}

// backoffDelay computes min(base * 2^consecutive, cap)
func backoffDelay(base, cap time.Duration, consecutive int) time.Duration {
	if consecutive < 0 {
		consecutive = 0
	}
	// Past 20 doublings any realistic base exceeds any realistic cap.
	if consecutive > 20 {
		return cap
	}
	d := base << uint(consecutive)
	if d <= 0 || d > cap {
		return cap
	}
	return d
}

// cancellableSleep waits for d, returning false if ctx is cancelled first
func cancellableSleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
