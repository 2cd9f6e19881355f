package browser

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/votryx/votryx/internal/driver"
)

// fakeDriver counts lifecycle calls and can be told to fail launches
type fakeDriver struct {
	mu         sync.Mutex
	launches   int
	terminates int
	cleared    []string
	failLaunch bool
}

type fakeHandle struct{ id int }

func (f *fakeDriver) Launch(ctx context.Context, opts driver.LaunchOptions) (driver.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLaunch {
		return nil, errors.New("chrome not found")
	}
	f.launches++
	return &fakeHandle{id: f.launches}, nil
}

func (f *fakeDriver) Navigate(ctx context.Context, h driver.Handle, url string) error { return nil }

func (f *fakeDriver) Click(ctx context.Context, h driver.Handle, loc driver.Locator) error {
	return nil
}

func (f *fakeDriver) Screenshot(ctx context.Context, h driver.Handle) ([]byte, error) {
	return nil, nil
}

func (f *fakeDriver) ClearState(ctx context.Context, h driver.Handle, origin string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, origin)
	return nil
}

func (f *fakeDriver) Terminate(h driver.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminates++
	return nil
}

func (f *fakeDriver) counts() (launches, terminates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.launches, f.terminates
}

func TestAcquireRelease(t *testing.T) {
	drv := &fakeDriver{}
	m, err := NewManager(drv, "https://vote.example.com/poll/1")
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	h, err := m.Acquire(context.Background(), driver.LaunchOptions{Incognito: true})
	if err != nil {
		t.Fatal(err)
	}
	if h.SessionID == "" {
		t.Error("handle has no session ID")
	}
	if h.ProfileDir == "" {
		t.Error("incognito launch did not get an ephemeral profile dir")
	}
	if m.ActiveCount() != 1 {
		t.Errorf("ActiveCount() = %d, want 1", m.ActiveCount())
	}

	m.Release(h)

	if m.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d after Release, want 0", m.ActiveCount())
	}
	launches, terminates := drv.counts()
	if launches != 1 || terminates != 1 {
		t.Errorf("launches=%d terminates=%d, want 1/1", launches, terminates)
	}
	if len(drv.cleared) != 1 || drv.cleared[0] != "https://vote.example.com" {
		t.Errorf("cleared origins = %v, want [https://vote.example.com]", drv.cleared)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	drv := &fakeDriver{}
	m, err := NewManager(drv, "https://vote.example.com")
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	h, err := m.Acquire(context.Background(), driver.LaunchOptions{})
	if err != nil {
		t.Fatal(err)
	}

	m.Release(h)
	m.Release(h)
	m.Release(nil)

	_, terminates := drv.counts()
	if terminates != 1 {
		t.Errorf("terminates = %d after double release, want 1", terminates)
	}
}

func TestLaunchFailureLeavesNothingRegistered(t *testing.T) {
	drv := &fakeDriver{failLaunch: true}
	m, err := NewManager(drv, "")
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if _, err := m.Acquire(context.Background(), driver.LaunchOptions{Incognito: true}); err == nil {
		t.Fatal("Acquire succeeded with failing driver")
	}
	if m.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d after failed launch, want 0", m.ActiveCount())
	}
}

func TestShutdownAllReleasesEverything(t *testing.T) {
	drv := &fakeDriver{}
	m, err := NewManager(drv, "https://vote.example.com")
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	for i := 0; i < 4; i++ {
		if _, err := m.Acquire(context.Background(), driver.LaunchOptions{}); err != nil {
			t.Fatal(err)
		}
	}
	if m.ActiveCount() != 4 {
		t.Fatalf("ActiveCount() = %d, want 4", m.ActiveCount())
	}

	m.ShutdownAll()

	if m.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d after ShutdownAll, want 0", m.ActiveCount())
	}
	_, terminates := drv.counts()
	if terminates != 4 {
		t.Errorf("terminates = %d, want 4", terminates)
	}
}

func TestConcurrentAcquire(t *testing.T) {
	drv := &fakeDriver{}
	m, err := NewManager(drv, "https://vote.example.com")
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	const n = 16
	handles := make([]*Handle, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := m.Acquire(context.Background(), driver.LaunchOptions{})
			if err != nil {
				t.Error(err)
				return
			}
			handles[i] = h
		}(i)
	}
	wg.Wait()

	if m.ActiveCount() != n {
		t.Fatalf("ActiveCount() = %d, want %d", m.ActiveCount(), n)
	}

	// Session IDs must be unique.
	seen := make(map[string]bool)
	for _, h := range handles {
		if h == nil {
			continue
		}
		if seen[h.SessionID] {
			t.Errorf("duplicate session ID %s", h.SessionID)
		}
		seen[h.SessionID] = true
	}
}

func TestExtractOrigin(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://vote.example.com/poll/1?x=y", "https://vote.example.com"},
		{"http://localhost:8080/page", "http://localhost:8080"},
		{"", ""},
		{"not a url", ""},
		{"ftp-ish", ""},
	}
	for _, tt := range tests {
		if got := ExtractOrigin(tt.in); got != tt.want {
			t.Errorf("ExtractOrigin(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
