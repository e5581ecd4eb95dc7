package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const visiblePollInterval = 250 * time.Millisecond

// ChromeConnector attaches to browsers over the DevTools protocol
type ChromeConnector struct {
	// PrepareTimeout bounds the cache/cookie reset done on every new page
	PrepareTimeout time.Duration
}

// NewChromeConnector creates a connector with default timeouts
func NewChromeConnector() *ChromeConnector {
	return &ChromeConnector{PrepareTimeout: 10 * time.Second}
}

// Connect attaches to the websocket endpoint returned by the profile service.
// The browser lives until Close; ctx only bounds the handshake.
func (c *ChromeConnector) Connect(ctx context.Context, endpoint string) (Browser, error) {
	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(context.Background(), endpoint, chromedp.NoModifyURL)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// The first Run binds the websocket and the initial tab to the context it
	// is given, so it must be browserCtx itself. ctx aborts it by teardown.
	stop := context.AfterFunc(ctx, cancelBrowser)
	err := chromedp.Run(browserCtx)
	if !stop() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("connect to %s: %w", endpoint, err)
	}

	return &chromeBrowser{
		ctx:            browserCtx,
		cancelBrowser:  cancelBrowser,
		cancelAlloc:    cancelAlloc,
		prepareTimeout: c.PrepareTimeout,
	}, nil
}

type chromeBrowser struct {
	ctx            context.Context
	cancelBrowser  context.CancelFunc
	cancelAlloc    context.CancelFunc
	prepareTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// NewPage opens a fresh tab with cache disabled and cookies cleared
func (b *chromeBrowser) NewPage(ctx context.Context) (Page, error) {
	if err := b.ctx.Err(); err != nil {
		return nil, fmt.Errorf("browser closed: %w", err)
	}

	tabCtx, cancelTab := chromedp.NewContext(b.ctx)
	p := &chromePage{ctx: tabCtx, cancel: cancelTab}

	prepCtx, cancel := context.WithTimeout(ctx, b.prepareTimeout)
	defer cancel()

	// Attach on tabCtx so the target's event loop lives as long as the tab.
	stop := context.AfterFunc(prepCtx, cancelTab)
	err := chromedp.Run(tabCtx)
	if !stop() && err == nil {
		err = prepCtx.Err()
	}
	if err == nil {
		err = p.run(prepCtx,
			network.Enable(),
			network.SetCacheDisabled(true),
			network.ClearBrowserCookies(),
			network.ClearBrowserCache(),
		)
	}
	if err != nil {
		cancelTab()
		return nil, fmt.Errorf("prepare page: %w", err)
	}
	return p, nil
}

// Close shuts the remote browser down and releases the allocator
func (b *chromeBrowser) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		closeCtx, cancel := context.WithTimeout(b.ctx, 5*time.Second)
		defer cancel()
		stop := context.AfterFunc(ctx, cancel)
		defer stop()

		err := chromedp.Run(closeCtx, cdpbrowser.Close())
		if err != nil && !errors.Is(err, context.Canceled) {
			b.closeErr = fmt.Errorf("close browser: %w", err)
		}
		b.cancelBrowser()
		b.cancelAlloc()
	})
	return b.closeErr
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

// run executes actions on an attached tab, aborting when either ctx or the
// tab ends. Canceling the derived context does not close the tab.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (p *chromePage) Reload(ctx context.Context) error {
	if err := p.run(ctx, chromedp.Reload()); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

func (p *chromePage) Evaluate(ctx context.Context, expr string, res interface{}) error {
	return p.run(ctx, chromedp.Evaluate(expr, res))
}

func (p *chromePage) Exists(ctx context.Context, sel Selector) (bool, error) {
	var found bool
	if err := p.Evaluate(ctx, existsScript(sel), &found); err != nil {
		return false, fmt.Errorf("query %s: %w", sel, err)
	}
	return found, nil
}

func (p *chromePage) WaitVisible(ctx context.Context, sel Selector, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(visiblePollInterval)
	defer ticker.Stop()

	script := visibleScript(sel)
	for {
		var visible bool
		if err := p.Evaluate(waitCtx, script, &visible); err == nil && visible {
			return nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%s not visible after %v: %w", sel, timeout, ErrNotFound)
		case <-ticker.C:
		}
	}
}

func (p *chromePage) Click(ctx context.Context, sel Selector) error {
	by := chromedp.ByQuery
	if sel.Kind == ByXPath {
		by = chromedp.BySearch
	}
	if err := p.run(ctx, chromedp.Click(sel.Expr, by, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", sel, err)
	}
	return nil
}

func (p *chromePage) ClickXY(ctx context.Context, x, y float64) error {
	return p.run(ctx, chromedp.MouseClickXY(x, y))
}

func (p *chromePage) Text(ctx context.Context, sel Selector) (string, error) {
	var res struct {
		Found bool   `json:"found"`
		Text  string `json:"text"`
	}
	if err := p.Evaluate(ctx, textScript(sel), &res); err != nil {
		return "", fmt.Errorf("read %s: %w", sel, err)
	}
	if !res.Found {
		return "", ErrNotFound
	}
	return res.Text, nil
}

func (p *chromePage) ClearStorage(ctx context.Context) error {
	return p.Evaluate(ctx, clearStorageScript, nil)
}

// Close closes the tab; later calls are no-ops
func (p *chromePage) Close(ctx context.Context) error {
	p.closeOnce.Do(p.cancel)
	return nil
}
