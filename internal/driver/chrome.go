package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

// stealthScript hides the most common automation fingerprints before any
// page script runs. Mirrors what real browsers expose.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
window.chrome = window.chrome || {};
window.chrome.runtime = {};
`

// Chrome drives headless Chrome over the DevTools protocol via chromedp
type Chrome struct {
	// locatorWait bounds how long a single locator is given to match
	// before Click reports ErrNoMatch and the caller moves on.
	locatorWait time.Duration
}

// NewChrome creates a Chrome driver
func NewChrome() *Chrome {
	return &Chrome{locatorWait: 5 * time.Second}
}

type chromeHandle struct {
	tab         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc

	once sync.Once
}

// Launch starts a Chrome instance configured per opts
func (d *Chrome) Launch(ctx context.Context, opts LaunchOptions) (Handle, error) {
	allocOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("disable-application-cache", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled,Translate,BackForwardCache"),
		chromedp.Flag("window-size", "1920,1080"),
		chromedp.Flag("disk-cache-size", "0"),
		chromedp.Flag("media-cache-size", "0"),
	}
	if opts.Headless {
		allocOpts = append(allocOpts, chromedp.Headless)
	}
	if opts.Incognito {
		allocOpts = append(allocOpts, chromedp.Flag("incognito", true))
	}
	if opts.BlockImages {
		allocOpts = append(allocOpts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}
	if opts.ProfileDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(opts.ProfileDir))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.BinPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.BinPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tab, cancelTab := chromedp.NewContext(allocCtx)

	h := &chromeHandle{tab: tab, cancelTab: cancelTab, cancelAlloc: cancelAlloc}

	bctx, cancel := bindContext(ctx, tab)
	defer cancel()

	// First Run starts the browser process; the stealth script must be in
	// place before the first navigation.
	err := chromedp.Run(bctx, chromedp.ActionFunc(func(c context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(c)
		return err
	}))
	if err != nil {
		d.Terminate(h)
		return nil, fmt.Errorf("launching chrome: %w", err)
	}

	return h, nil
}

// Navigate loads the URL and waits for the body to be ready
func (d *Chrome) Navigate(ctx context.Context, h Handle, url string) error {
	ch, err := asChromeHandle(h)
	if err != nil {
		return err
	}

	bctx, cancel := bindContext(ctx, ch.tab)
	defer cancel()

	return chromedp.Run(bctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Click scrolls the locator's element into view and clicks it. A locator
// that matches nothing within the wait budget yields ErrNoMatch.
func (d *Chrome) Click(ctx context.Context, h Handle, loc Locator) error {
	ch, err := asChromeHandle(h)
	if err != nil {
		return err
	}

	bctx, cancel := bindContext(ctx, ch.tab)
	defer cancel()

	wctx, wcancel := context.WithTimeout(bctx, d.locatorWait)
	defer wcancel()

	by := chromedp.ByQuery
	if loc.Strategy == LocatorXPath {
		by = chromedp.BySearch
	}

	err = chromedp.Run(wctx,
		chromedp.ScrollIntoView(loc.Value, by),
		chromedp.Click(loc.Value, chromedp.NodeVisible, by),
	)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// The per-locator wait expiring means nothing matched; any other
		// error means the element was there but the click failed.
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrNoMatch
		}
		return err
	}
	return nil
}

// Screenshot captures the viewport as PNG
func (d *Chrome) Screenshot(ctx context.Context, h Handle) ([]byte, error) {
	ch, err := asChromeHandle(h)
	if err != nil {
		return nil, err
	}

	bctx, cancel := bindContext(ctx, ch.tab)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(bctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// ClearState removes cookies, cache and all site storage for the origin
func (d *Chrome) ClearState(ctx context.Context, h Handle, origin string) error {
	ch, err := asChromeHandle(h)
	if err != nil {
		return err
	}

	bctx, cancel := bindContext(ctx, ch.tab)
	defer cancel()

	actions := []chromedp.Action{
		network.ClearBrowserCookies(),
		network.ClearBrowserCache(),
	}
	if origin != "" {
		actions = append(actions, chromedp.ActionFunc(func(c context.Context) error {
			return storage.ClearDataForOrigin(origin, "all").Do(c)
		}))
	}
	return chromedp.Run(bctx, actions...)
}

// Terminate closes the tab and kills the browser process. Safe to call
// multiple times and on partially launched handles.
func (d *Chrome) Terminate(h Handle) error {
	ch, err := asChromeHandle(h)
	if err != nil {
		return err
	}
	ch.once.Do(func() {
		ch.cancelTab()
		ch.cancelAlloc()
	})
	return nil
}

func asChromeHandle(h Handle) (*chromeHandle, error) {
	ch, ok := h.(*chromeHandle)
	if !ok {
		return nil, fmt.Errorf("handle is not a chrome handle: %T", h)
	}
	return ch, nil
}

// bindContext derives a context from the browser tab that is additionally
// bounded by the caller's context, so per-attempt watchdogs cut chromedp
// operations short without tearing down the tab.
func bindContext(parent, tab context.Context) (context.Context, context.CancelFunc) {
	var ctx context.Context
	var cancel context.CancelFunc
	if dl, ok := parent.Deadline(); ok {
		ctx, cancel = context.WithDeadline(tab, dl)
	} else {
		ctx, cancel = context.WithCancel(tab)
	}
	stop := context.AfterFunc(parent, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
