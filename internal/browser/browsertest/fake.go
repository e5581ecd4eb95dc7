// Package browsertest provides in-memory browser fakes for tests.
package browsertest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"jordanella.com/tapfarm/internal/browser"
)

// Page is a scripted browser.Page. Selectors are keyed by Selector.String().
type Page struct {
	mu      sync.Mutex
	visible map[string]bool
	texts   map[string]string
	calls   []string

	// EvalFunc answers Evaluate; the returned value is JSON round-tripped into res
	EvalFunc func(expr string) (interface{}, error)
	// OnClick runs after a successful click, outside the page lock
	OnClick func(p *Page, sel browser.Selector)
	// OnReload runs after every reload, outside the page lock
	OnReload func(p *Page)
	// NavigateErr is returned by Navigate when set
	NavigateErr error

	clears int
	closes int
}

// NewPage creates an empty page
func NewPage() *Page {
	return &Page{
		visible: make(map[string]bool),
		texts:   make(map[string]string),
	}
}

// SetVisible shows or hides sel
func (p *Page) SetVisible(sel browser.Selector, visible bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible[sel.String()] = visible
}

// SetText sets the text content of sel and makes it present
func (p *Page) SetText(sel browser.Selector, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.texts[sel.String()] = text
}

// Calls returns the recorded calls in order, e.g. "click:<sel>" or "close"
func (p *Page) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// Clicks returns the selectors clicked, in order
func (p *Page) Clicks() []string {
	var clicks []string
	for _, c := range p.Calls() {
		if len(c) > 6 && c[:6] == "click:" {
			clicks = append(clicks, c[6:])
		}
	}
	return clicks
}

// Count returns how many recorded calls equal call
func (p *Page) Count(call string) int {
	n := 0
	for _, c := range p.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

// Closes returns how many times Close was called
func (p *Page) Closes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

// Clears returns how many times ClearStorage was called
func (p *Page) Clears() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clears
}

func (p *Page) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *Page) isVisible(sel browser.Selector) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible[sel.String()]
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.record("navigate:" + url)
	return p.NavigateErr
}

func (p *Page) Reload(ctx context.Context) error {
	p.record("reload")
	if p.OnReload != nil {
		p.OnReload(p)
	}
	return nil
}

func (p *Page) Evaluate(ctx context.Context, expr string, res interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.EvalFunc == nil {
		return nil
	}
	v, err := p.EvalFunc(expr)
	if err != nil || res == nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, res)
}

func (p *Page) Exists(ctx context.Context, sel browser.Selector) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return p.isVisible(sel), nil
}

// WaitVisible answers immediately; it never actually waits
func (p *Page) WaitVisible(ctx context.Context, sel browser.Selector, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.isVisible(sel) {
		return fmt.Errorf("%s: %w", sel, browser.ErrNotFound)
	}
	return nil
}

func (p *Page) Click(ctx context.Context, sel browser.Selector) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.isVisible(sel) {
		return fmt.Errorf("click %s: %w", sel, browser.ErrNotFound)
	}
	p.record("click:" + sel.String())
	if p.OnClick != nil {
		p.OnClick(p, sel)
	}
	return nil
}

func (p *Page) ClickXY(ctx context.Context, x, y float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.record(fmt.Sprintf("tap:%.0f,%.0f", x, y))
	return nil
}

func (p *Page) Text(ctx context.Context, sel browser.Selector) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	text, ok := p.texts[sel.String()]
	if !ok {
		return "", browser.ErrNotFound
	}
	return text, nil
}

func (p *Page) ClearStorage(ctx context.Context) error {
	p.mu.Lock()
	p.clears++
	p.mu.Unlock()
	p.record("clear")
	return nil
}

func (p *Page) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closes++
	p.mu.Unlock()
	p.record("close")
	return nil
}

// Browser hands out pages built by PageFunc
type Browser struct {
	mu     sync.Mutex
	pages  []*Page
	closes int

	// PageFunc builds each new page; nil yields empty pages
	PageFunc func() *Page
	// NewPageErr fails every NewPage call when set
	NewPageErr error
}

func (b *Browser) NewPage(ctx context.Context) (browser.Page, error) {
	if b.NewPageErr != nil {
		return nil, b.NewPageErr
	}
	page := NewPage()
	if b.PageFunc != nil {
		page = b.PageFunc()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pages = append(b.pages, page)
	return page, nil
}

func (b *Browser) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closes++
	return nil
}

// Pages returns every page opened so far
func (b *Browser) Pages() []*Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Page(nil), b.pages...)
}

// Closes returns how many times Close was called
func (b *Browser) Closes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closes
}

// Connector returns Browser for every endpoint unless Err is set
type Connector struct {
	mu        sync.Mutex
	endpoints []string

	// BrowserFunc builds the browser for each connection; nil yields an empty Browser
	BrowserFunc func(endpoint string) *Browser
	Err         error
}

func (c *Connector) Connect(ctx context.Context, endpoint string) (browser.Browser, error) {
	c.mu.Lock()
	c.endpoints = append(c.endpoints, endpoint)
	c.mu.Unlock()

	if c.Err != nil {
		return nil, c.Err
	}
	if c.BrowserFunc != nil {
		return c.BrowserFunc(endpoint), nil
	}
	return &Browser{}, nil
}

// Endpoints returns every endpoint Connect was called with
func (c *Connector) Endpoints() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.endpoints...)
}
