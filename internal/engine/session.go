package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/votryx/votryx/internal/browser"
	"github.com/votryx/votryx/internal/config"
	"github.com/votryx/votryx/internal/domain"
	"github.com/votryx/votryx/internal/driver"
)

// sessionState tracks a vote attempt's progress. Transitions are strictly
// forward; any error forces an immediate transition to sessionFailed.
type sessionState string

const (
	sessionCreated        sessionState = "created"
	sessionDriverAcquired sessionState = "driver_acquired"
	sessionNavigated      sessionState = "navigated"
	sessionButtonLocated  sessionState = "button_located"
	sessionClicked        sessionState = "clicked"
	sessionCompleted      sessionState = "completed"
	sessionFailed         sessionState = "failed"
)

// screenshotTimeout bounds the best-effort failure screenshot
const screenshotTimeout = 3 * time.Second

type sessionResult struct {
	batch    int
	index    int
	skipped  bool
	success  bool
	kind     domain.FailureKind
	message  string
	matched  driver.Locator
	duration time.Duration
}

// session is one vote attempt bound to exactly one browser instance. It is
// created at batch launch and never outlives its single attempt.
type session struct {
	batch int
	index int

	cfg  *config.RunConfiguration
	drv  driver.Driver
	pool *browser.Manager
	logf logFunc

	state sessionState
}

type logFunc func(level domain.LogLevel, format string, args ...any)

// run executes the attempt lifecycle: acquire, navigate, locate, click.
// The browser instance is released back to the lifecycle manager on every
// exit path, exactly once, via the deferred Release.
func (s *session) run(ctx context.Context) sessionResult {
	started := time.Now()
	res := sessionResult{batch: s.batch, index: s.index}
	defer func() { res.duration = time.Since(started) }()

	attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	s.state = sessionCreated

	h, err := s.pool.Acquire(attemptCtx, s.cfg.LaunchOptions())
	if err != nil {
		s.fail(&res, nil, domain.FailureLaunch, err)
		return res
	}
	defer s.pool.Release(h)
	s.state = sessionDriverAcquired

	if err := s.drv.Navigate(attemptCtx, h.Driver(), s.cfg.TargetURL); err != nil {
		kind := domain.FailureUnknown
		if attemptCtx.Err() != nil {
			kind = domain.FailureNavigationTimeout
		}
		s.fail(&res, h, kind, err)
		return res
	}
	s.state = sessionNavigated

	matched, kind, err := s.clickVoteButton(attemptCtx, h)
	if err != nil {
		s.fail(&res, h, kind, err)
		return res
	}
	s.state = sessionCompleted

	res.success = true
	res.matched = matched
	return res
}

// clickVoteButton tries the configured locators in order; the first
// structural match wins. Exhausting the list yields SelectorNotFound.
func (s *session) clickVoteButton(ctx context.Context, h *browser.Handle) (driver.Locator, domain.FailureKind, error) {
	total := len(s.cfg.VoteLocators)

	for i, loc := range s.cfg.VoteLocators {
		err := s.drv.Click(ctx, h.Driver(), loc)
		if err == nil {
			s.state = sessionClicked
			if i > 0 {
				s.logf(domain.LevelInfo, "session %s: vote button matched locator %d/%d (%s)", h.SessionID, i+1, total, loc)
			}
			return loc, "", nil
		}

		if errors.Is(err, driver.ErrNoMatch) && ctx.Err() == nil {
			s.logf(domain.LevelInfo, "session %s: locator %d/%d matched nothing (%s), falling back", h.SessionID, i+1, total, loc)
			continue
		}

		// The element was found but the interaction failed, or the
		// attempt watchdog expired mid-click.
		s.state = sessionButtonLocated
		if ctx.Err() != nil {
			return loc, domain.FailureClick, fmt.Errorf("clicking %s: %w", loc, ctx.Err())
		}
		return loc, domain.FailureClick, fmt.Errorf("clicking %s: %w", loc, err)
	}

	return driver.Locator{}, domain.FailureSelectorNotFound, fmt.Errorf("all %d vote locators exhausted", total)
}

func (s *session) fail(res *sessionResult, h *browser.Handle, kind domain.FailureKind, err error) {
	s.state = sessionFailed
	res.kind = kind
	res.message = err.Error()
	s.captureFailureScreenshot(h)
}

// captureFailureScreenshot is opportunistic: its own failure is logged and
// swallowed, never escalated.
func (s *session) captureFailureScreenshot(h *browser.Handle) {
	if s.cfg.ScreenshotDir == "" || h == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), screenshotTimeout)
	defer cancel()

	img, err := s.drv.Screenshot(ctx, h.Driver())
	if err != nil {
		s.logf(domain.LevelWarn, "session %s: screenshot capture failed: %v", h.SessionID, err)
		return
	}

	if err := os.MkdirAll(s.cfg.ScreenshotDir, 0o755); err != nil {
		s.logf(domain.LevelWarn, "session %s: creating screenshot dir: %v", h.SessionID, err)
		return
	}

	name := fmt.Sprintf("failure-%s-%s.png", time.Now().Format("20060102-150405"), h.SessionID[:8])
	path := filepath.Join(s.cfg.ScreenshotDir, name)
	if err := os.WriteFile(path, img, 0o644); err != nil {
		s.logf(domain.LevelWarn, "session %s: writing screenshot: %v", h.SessionID, err)
		return
	}
	s.logf(domain.LevelInfo, "session %s: failure screenshot saved to %s", h.SessionID, path)
}
