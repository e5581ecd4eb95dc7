// Package browser is the control channel to a remote browser profile.
// The orchestrator only sees the Connector, Browser and Page interfaces;
// the chromedp implementation lives in chromedp.go.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a selector matches no element
var ErrNotFound = errors.New("element not found")

// SelectorKind tells how a Selector expression is resolved
type SelectorKind int

const (
	ByQuery SelectorKind = iota // CSS selector
	ByXPath                     // XPath expression
)

// Selector identifies one element on a page
type Selector struct {
	Expr string
	Kind SelectorKind
}

// CSS builds a CSS selector
func CSS(expr string) Selector {
	return Selector{Expr: expr, Kind: ByQuery}
}

// XPath builds an XPath selector
func XPath(expr string) Selector {
	return Selector{Expr: expr, Kind: ByXPath}
}

func (s Selector) String() string {
	if s.Kind == ByXPath {
		return "xpath:" + s.Expr
	}
	return s.Expr
}

// NodeJS returns a JavaScript expression that evaluates to the first matching node or null
func (s Selector) NodeJS() string {
	quoted, _ := json.Marshal(s.Expr)
	if s.Kind == ByXPath {
		return fmt.Sprintf("document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue", quoted)
	}
	return fmt.Sprintf("document.querySelector(%s)", quoted)
}

// Connector opens a control channel to an already running browser
type Connector interface {
	Connect(ctx context.Context, endpoint string) (Browser, error)
}

// Browser is one connected remote browser. Close must be safe to call more than once.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close(ctx context.Context) error
}

// Page is a single tab
type Page interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	// Evaluate runs expr and decodes its result into res; res may be nil.
	Evaluate(ctx context.Context, expr string, res interface{}) error
	Exists(ctx context.Context, sel Selector) (bool, error)
	// WaitVisible polls until sel is rendered and visible or timeout elapses.
	WaitVisible(ctx context.Context, sel Selector, timeout time.Duration) error
	Click(ctx context.Context, sel Selector) error
	ClickXY(ctx context.Context, x, y float64) error
	// Text returns the trimmed text content of sel, or ErrNotFound.
	Text(ctx context.Context, sel Selector) (string, error)
	ClearStorage(ctx context.Context) error
	Close(ctx context.Context) error
}
