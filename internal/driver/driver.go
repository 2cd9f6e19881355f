// Package driver abstracts the browser automation capability consumed by the
// voting engine: launch a controllable browser, navigate, click, screenshot,
// tear down. The engine treats every operation as fallible and time-bounded.
package driver

import (
	"context"
	"errors"
)

// ErrNoMatch is returned by Click when the locator matches no element on the
// page within the wait budget. Callers use it to fall through to the next
// locator in the configured list.
var ErrNoMatch = errors.New("locator matched no element")

// LocatorStrategy selects how a locator value is interpreted
type LocatorStrategy string

const (
	LocatorCSS   LocatorStrategy = "css"
	LocatorXPath LocatorStrategy = "xpath"
)

// Locator is a structural rule used to find the vote-triggering element
type Locator struct {
	Strategy LocatorStrategy `toml:"strategy" yaml:"strategy" json:"strategy"`
	Value    string          `toml:"value" yaml:"value" json:"value"`
}

func (l Locator) String() string {
	return string(l.Strategy) + ":" + l.Value
}

// LaunchOptions configures a single browser instance
type LaunchOptions struct {
	Headless    bool
	BlockImages bool
	Incognito   bool
	UserAgent   string // empty means browser default
	ProfileDir  string // ephemeral user data dir, empty for none
	BinPath     string // browser executable, empty for autodetect
}

// Handle is an opaque reference to a live browser instance. Handles are
// created by Launch and must eventually be passed to Terminate exactly once.
type Handle any

// Driver is the browser automation capability
type Driver interface {
	// Launch starts a new browser instance with the given options.
	Launch(ctx context.Context, opts LaunchOptions) (Handle, error)

	// Navigate loads the URL and waits for the document to become ready.
	Navigate(ctx context.Context, h Handle, url string) error

	// Click locates the element described by the locator and clicks it.
	// Returns ErrNoMatch when nothing matches; any other error means the
	// element was found but the interaction failed.
	Click(ctx context.Context, h Handle, loc Locator) error

	// Screenshot captures the current viewport as PNG bytes.
	Screenshot(ctx context.Context, h Handle) ([]byte, error)

	// ClearState removes cookies, cache and site storage for the origin.
	ClearState(ctx context.Context, h Handle, origin string) error

	// Terminate force-closes the browser instance. Idempotent.
	Terminate(h Handle) error
}
