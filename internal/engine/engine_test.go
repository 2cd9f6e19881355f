package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/votryx/votryx/internal/config"
	"github.com/votryx/votryx/internal/domain"
	"github.com/votryx/votryx/internal/driver"
	"github.com/votryx/votryx/internal/state"
)

// scriptDriver is a scriptable in-memory driver. The default behavior is an
// instantly successful vote attempt.
type scriptDriver struct {
	mu          sync.Mutex
	launches    int
	terminates  int
	inFlight    int
	maxInFlight int

	launchErr error
	navDelay  time.Duration
	navBlocks bool
	clickFn   func(loc driver.Locator) error
}

type scriptHandle struct{ id int }

func (d *scriptDriver) Launch(ctx context.Context, opts driver.LaunchOptions) (driver.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.launchErr != nil {
		return nil, d.launchErr
	}
	d.launches++
	d.inFlight++
	if d.inFlight > d.maxInFlight {
		d.maxInFlight = d.inFlight
	}
	return &scriptHandle{id: d.launches}, nil
}

func (d *scriptDriver) Navigate(ctx context.Context, h driver.Handle, url string) error {
	if d.navBlocks {
		<-ctx.Done()
		return ctx.Err()
	}
	if d.navDelay > 0 {
		select {
		case <-time.After(d.navDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (d *scriptDriver) Click(ctx context.Context, h driver.Handle, loc driver.Locator) error {
	if d.clickFn != nil {
		return d.clickFn(loc)
	}
	return nil
}

func (d *scriptDriver) Screenshot(ctx context.Context, h driver.Handle) ([]byte, error) {
	return []byte("png"), nil
}

func (d *scriptDriver) ClearState(ctx context.Context, h driver.Handle, origin string) error {
	return nil
}

func (d *scriptDriver) Terminate(h driver.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.terminates++
	d.inFlight--
	return nil
}

func (d *scriptDriver) counts() (launches, terminates, maxInFlight int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.launches, d.terminates, d.maxInFlight
}

func testConfig() config.RunConfiguration {
	return config.RunConfiguration{
		TargetURL:       "https://vote.example.com/poll",
		TargetVotes:     5,
		BatchSize:       2,
		ParallelWorkers: 3,
		Timeout:         2 * time.Second,
		MaxErrors:       3,
		BackoffBase:     100 * time.Millisecond,
		BackoffCap:      10 * time.Second,
		StopGrace:       100 * time.Millisecond,
		VoteLocators: []driver.Locator{
			{Strategy: driver.LocatorCSS, Value: ".vote-button"},
		},
	}
}

// noSleep replaces real delays in tests and records what was requested
func noSleep(record *[]time.Duration, mu *sync.Mutex) func(context.Context, time.Duration) bool {
	return func(ctx context.Context, d time.Duration) bool {
		mu.Lock()
		*record = append(*record, d)
		mu.Unlock()
		return ctx.Err() == nil
	}
}

func TestRunReachesTargetExactly(t *testing.T) {
	drv := &scriptDriver{}
	cfg := testConfig()

	eng, err := New(cfg, drv, nil, Callbacks{})
	if err != nil {
		t.Fatal(err)
	}
	eng.sleep = func(context.Context, time.Duration) bool { return true }

	summary, err := eng.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if summary.Reason != domain.StopCompleted {
		t.Errorf("Reason = %s, want %s", summary.Reason, domain.StopCompleted)
	}
	if summary.Stats.VoteCount != 5 {
		t.Errorf("VoteCount = %d, want exactly 5", summary.Stats.VoteCount)
	}
	if summary.Stats.Status != domain.StatusCompleted {
		t.Errorf("Status = %s, want %s", summary.Stats.Status, domain.StatusCompleted)
	}
	// Target 5 with batch size 2: 2 + 2 + 1.
	if summary.Batches != 3 {
		t.Errorf("Batches = %d, want 3", summary.Batches)
	}

	launches, terminates, _ := drv.counts()
	if launches != 5 {
		t.Errorf("launches = %d, want 5 (one browser per attempt)", launches)
	}
	if terminates != launches {
		t.Errorf("terminates = %d, want %d (no orphaned browsers)", terminates, launches)
	}
}

func TestBatchConcurrencyNeverExceedsWorkers(t *testing.T) {
	drv := &scriptDriver{navDelay: 20 * time.Millisecond}
	cfg := testConfig()
	cfg.TargetVotes = 9
	cfg.BatchSize = 9
	cfg.ParallelWorkers = 3

	eng, err := New(cfg, drv, nil, Callbacks{})
	if err != nil {
		t.Fatal(err)
	}

	summary, err := eng.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if summary.Stats.VoteCount != 9 {
		t.Errorf("VoteCount = %d, want 9", summary.Stats.VoteCount)
	}
	_, _, maxInFlight := drv.counts()
	if maxInFlight > 3 {
		t.Errorf("max concurrent sessions = %d, want at most 3", maxInFlight)
	}
}

func TestBackoffGrowsExponentially(t *testing.T) {
	drv := &scriptDriver{clickFn: func(driver.Locator) error {
		return errors.New("click intercepted")
	}}
	cfg := testConfig()
	cfg.Unbounded = true
	cfg.BatchSize = 1
	cfg.ParallelWorkers = 1
	cfg.MaxErrors = 3

	st := state.NewManager()
	eng, err := New(cfg, drv, st, Callbacks{})
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var sleeps []time.Duration
	eng.sleep = noSleep(&sleeps, &mu)

	summary, err := eng.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if summary.Reason != domain.StopSustainedFailure {
		t.Fatalf("Reason = %s, want %s", summary.Reason, domain.StopSustainedFailure)
	}
	// The streak aborts the run at twice the backoff threshold.
	if summary.Stats.ConsecutiveErrors != 2*cfg.MaxErrors {
		t.Errorf("ConsecutiveErrors = %d, want %d", summary.Stats.ConsecutiveErrors, 2*cfg.MaxErrors)
	}

	// Streaks 3, 4 and 5 back off before the abort; each delay doubles.
	want := []time.Duration{
		800 * time.Millisecond,  // 100ms * 2^3
		1600 * time.Millisecond, // 100ms * 2^4
		3200 * time.Millisecond, // 100ms * 2^5
	}
	mu.Lock()
	defer mu.Unlock()
	if len(sleeps) != len(want) {
		t.Fatalf("backoff sleeps = %v, want %v", sleeps, want)
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Errorf("sleep %d = %v, want %v", i, sleeps[i], want[i])
		}
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	tests := []struct {
		base        time.Duration
		cap         time.Duration
		consecutive int
		want        time.Duration
	}{
		{5 * time.Second, 60 * time.Second, 0, 5 * time.Second},
		{5 * time.Second, 60 * time.Second, 1, 10 * time.Second},
		{5 * time.Second, 60 * time.Second, 3, 40 * time.Second},
		{5 * time.Second, 60 * time.Second, 4, 60 * time.Second},
		{5 * time.Second, 60 * time.Second, 30, 60 * time.Second},
		{time.Second, time.Second, 5, time.Second},
	}
	for _, tt := range tests {
		if got := backoffDelay(tt.base, tt.cap, tt.consecutive); got != tt.want {
			t.Errorf("backoffDelay(%v, %v, %d) = %v, want %v", tt.base, tt.cap, tt.consecutive, got, tt.want)
		}
	}
}

func TestStopCancelsRunAndCleansUp(t *testing.T) {
	drv := &scriptDriver{navDelay: 10 * time.Millisecond}
	cfg := testConfig()
	cfg.Unbounded = true
	cfg.PauseBetweenVotes = time.Millisecond

	st := state.NewManager()
	eng, err := New(cfg, drv, st, Callbacks{})
	if err != nil {
		t.Fatal(err)
	}

	type result struct {
		summary *RunSummary
		err     error
	}
	done := make(chan result, 1)
	go func() {
		s, err := eng.Run(context.Background())
		done <- result{s, err}
	}()

	// Wait for the run to make progress, then stop it.
	deadline := time.After(5 * time.Second)
	for {
		if st.Snapshot().VoteCount >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("run made no progress")
		case <-time.After(5 * time.Millisecond):
		}
	}
	eng.Stop()
	eng.Stop() // must be safe to repeat

	var res result
	select {
	case res = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop")
	}
	if res.err != nil {
		t.Fatal(res.err)
	}

	if res.summary.Reason != domain.StopCancelled {
		t.Errorf("Reason = %s, want %s", res.summary.Reason, domain.StopCancelled)
	}
	if res.summary.Stats.Status != domain.StatusStopped {
		t.Errorf("Status = %s, want %s", res.summary.Stats.Status, domain.StatusStopped)
	}

	launches, terminates, _ := drv.counts()
	if terminates != launches {
		t.Errorf("terminates = %d, launches = %d; every browser must be torn down", terminates, launches)
	}
}

func TestSelectorFallbackIsObservable(t *testing.T) {
	primary := driver.Locator{Strategy: driver.LocatorCSS, Value: ".vote-button"}
	fallback := driver.Locator{Strategy: driver.LocatorXPath, Value: "//button[contains(., 'Vote')]"}

	drv := &scriptDriver{clickFn: func(loc driver.Locator) error {
		if loc == primary {
			return driver.ErrNoMatch
		}
		return nil
	}}

	cfg := testConfig()
	cfg.TargetVotes = 1
	cfg.BatchSize = 1
	cfg.VoteLocators = []driver.Locator{primary, fallback}

	st := state.NewManager()
	eng, err := New(cfg, drv, st, Callbacks{})
	if err != nil {
		t.Fatal(err)
	}

	summary, err := eng.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if summary.Stats.VoteCount != 1 {
		t.Fatalf("VoteCount = %d, want 1 (fallback locator should have clicked)", summary.Stats.VoteCount)
	}

	var sawFallback bool
	for _, entry := range st.Logs(false) {
		if strings.Contains(entry.Message, "matched nothing") {
			sawFallback = true
		}
	}
	if !sawFallback {
		t.Error("locator fallback left no trace in the logs")
	}
}

func TestSelectorExhaustionFailsAttempt(t *testing.T) {
	drv := &scriptDriver{clickFn: func(driver.Locator) error {
		return driver.ErrNoMatch
	}}

	cfg := testConfig()
	cfg.TargetVotes = 1
	cfg.BatchSize = 1

	var mu sync.Mutex
	var kinds []domain.FailureKind
	cb := Callbacks{OnError: func(kind domain.FailureKind, msg string) {
		mu.Lock()
		kinds = append(kinds, kind)
		mu.Unlock()
	}}

	eng, err := New(cfg, drv, nil, cb)
	if err != nil {
		t.Fatal(err)
	}

	summary, err := eng.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if summary.Stats.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", summary.Stats.ErrorCount)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(kinds) != 1 || kinds[0] != domain.FailureSelectorNotFound {
		t.Errorf("failure kinds = %v, want [%s]", kinds, domain.FailureSelectorNotFound)
	}
}

func TestLaunchFailureKind(t *testing.T) {
	drv := &scriptDriver{launchErr: errors.New("no chrome binary")}

	cfg := testConfig()
	cfg.TargetVotes = 1
	cfg.BatchSize = 1

	var mu sync.Mutex
	var kinds []domain.FailureKind
	cb := Callbacks{OnError: func(kind domain.FailureKind, msg string) {
		mu.Lock()
		kinds = append(kinds, kind)
		mu.Unlock()
	}}

	eng, err := New(cfg, drv, nil, cb)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(kinds) != 1 || kinds[0] != domain.FailureLaunch {
		t.Errorf("failure kinds = %v, want [%s]", kinds, domain.FailureLaunch)
	}
}

func TestNavigationTimeoutKind(t *testing.T) {
	drv := &scriptDriver{navBlocks: true}

	cfg := testConfig()
	cfg.TargetVotes = 1
	cfg.BatchSize = 1
	cfg.Timeout = 50 * time.Millisecond

	var mu sync.Mutex
	var kinds []domain.FailureKind
	cb := Callbacks{OnError: func(kind domain.FailureKind, msg string) {
		mu.Lock()
		kinds = append(kinds, kind)
		mu.Unlock()
	}}

	eng, err := New(cfg, drv, nil, cb)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(kinds) != 1 || kinds[0] != domain.FailureNavigationTimeout {
		t.Errorf("failure kinds = %v, want [%s]", kinds, domain.FailureNavigationTimeout)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.TargetURL = "not-a-url"

	if _, err := New(cfg, &scriptDriver{}, nil, Callbacks{}); err == nil {
		t.Fatal("New accepted an invalid configuration")
	}
}
