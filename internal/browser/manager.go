// Package browser guarantees that every browser instance the engine creates
// is eventually destroyed and that no cookies, cache or site storage leak
// between vote attempts.
package browser

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/votryx/votryx/internal/driver"
)

// releaseTimeout bounds the best-effort state clearing during Release so a
// wedged browser cannot stall run teardown.
const releaseTimeout = 5 * time.Second

// Handle pairs a live browser instance with its session identifier and the
// ephemeral profile directory it owns.
type Handle struct {
	SessionID  string
	ProfileDir string

	drv driver.Handle
}

// Driver returns the underlying automation handle
func (h *Handle) Driver() driver.Handle {
	return h.drv
}

// Manager tracks every live browser instance by session ID
type Manager struct {
	drv          driver.Driver
	targetOrigin string
	tempRoot     string

	handles map[string]*Handle
	mu      sync.Mutex
}

// NewManager creates a lifecycle manager. targetURL is used to derive the
// origin whose storage gets cleared on release; it may be empty.
func NewManager(drv driver.Driver, targetURL string) (*Manager, error) {
	tempRoot, err := os.MkdirTemp("", "votryx-profiles-")
	if err != nil {
		return nil, fmt.Errorf("creating profile root: %w", err)
	}

	return &Manager{
		drv:          drv,
		targetOrigin: ExtractOrigin(targetURL),
		tempRoot:     tempRoot,
		handles:      make(map[string]*Handle),
	}, nil
}

// Acquire launches a new browser instance and registers it under a fresh
// session ID. Safe for concurrent use. A launch failure is returned to the
// caller untranslated; retry policy belongs to the engine.
func (m *Manager) Acquire(ctx context.Context, opts driver.LaunchOptions) (*Handle, error) {
	var profileDir string
	if opts.Incognito {
		dir, err := os.MkdirTemp(m.tempRoot, "profile-")
		if err != nil {
			return nil, fmt.Errorf("creating profile dir: %w", err)
		}
		profileDir = dir
		opts.ProfileDir = dir
	}

	drvHandle, err := m.drv.Launch(ctx, opts)
	if err != nil {
		if profileDir != "" {
			discardDir(profileDir)
		}
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	h := &Handle{
		SessionID:  uuid.NewString(),
		ProfileDir: profileDir,
		drv:        drvHandle,
	}

	m.mu.Lock()
	m.handles[h.SessionID] = h
	m.mu.Unlock()

	return h, nil
}

// Release clears browser-held state for the target origin, terminates the
// instance and deletes its ephemeral profile. Releasing an already-released
// handle is a no-op.
func (m *Manager) Release(h *Handle) {
	if h == nil {
		return
	}

	m.mu.Lock()
	if _, ok := m.handles[h.SessionID]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.handles, h.SessionID)
	m.mu.Unlock()

	// Best effort: a browser that died mid-attempt cannot clear its state.
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	if err := m.drv.ClearState(ctx, h.drv, m.targetOrigin); err != nil {
		log.Printf("clearing browser state for session %s: %v", h.SessionID, err)
	}
	cancel()

	if err := m.drv.Terminate(h.drv); err != nil {
		log.Printf("terminating session %s: %v", h.SessionID, err)
	}

	if h.ProfileDir != "" {
		discardDir(h.ProfileDir)
	}
}

// ShutdownAll force-releases every still-registered handle. Invoked on run
// cancellation and on process exit.
func (m *Manager) ShutdownAll() {
	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	for _, h := range handles {
		m.Release(h)
	}
}

// ActiveCount returns the number of live browser instances
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

// Close releases everything and removes the profile root directory
func (m *Manager) Close() {
	m.ShutdownAll()
	discardDir(m.tempRoot)
}

// ExtractOrigin returns scheme://host for a URL, or "" if it has neither
func ExtractOrigin(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func discardDir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		log.Printf("removing profile dir %s: %v", dir, err)
	}
}
