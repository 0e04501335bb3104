// Package browser provides the headless-browser capability shared by the
// Resource Extractor (C4) and BFS Crawler (C6): navigate a page, wait for
// it to settle, and run in-page JavaScript to enumerate DOM resources.
//
// The interface exists so the crawler and extractor can be tested with a
// fake that never launches Chromium (spec.md §9 calls the Browser
// capability polymorphic for exactly this reason). Page and Browser are
// adapted from the teacher's scraper.Scraper/rod.Page usage in
// scraper/scraper.go and scraper/page.go.
package browser

import (
	"context"
	"time"
)

// WaitCondition selects how Navigate decides the page has settled.
type WaitCondition int

const (
	// WaitDOMContentLoaded returns once the DOM is parsed.
	WaitDOMContentLoaded WaitCondition = iota
	// WaitNetworkIdle waits for DOMContentLoaded plus a quiet network
	// period (spec.md's "networkidle2").
	WaitNetworkIdle
)

// InterceptMode controls which resource types a page is allowed to load,
// used by the BFS Crawler's discovery mode to save bandwidth.
type InterceptMode int

const (
	// InterceptNone allows every resource type through (capture mode).
	InterceptNone InterceptMode = iota
	// InterceptDocumentAndScriptOnly aborts every resource type except
	// document and script (discovery mode, spec.md §4.6).
	InterceptDocumentAndScriptOnly
)

// NavigateOptions configures a single Navigate call.
type NavigateOptions struct {
	UserAgent string
	Wait      WaitCondition
	Timeout   time.Duration
	Intercept InterceptMode
}

// PoolStats mirrors the teacher's models.PoolStats, surfaced for the
// supplemented health endpoint (SPEC_FULL.md §12).
type PoolStats struct {
	MaxPages    int
	ActivePages int
}

// Page is one browser tab/document, scoped to a single navigation.
type Page interface {
	// Navigate loads url and waits per opts.Wait, honoring ctx
	// cancellation/timeout.
	Navigate(ctx context.Context, url string, opts NavigateOptions) error

	// HTML returns the current serialized DOM.
	HTML() (string, error)

	// Title returns document.title, or "" on failure.
	Title() string

	// EvalString runs js (a JS expression returning a value) and decodes the
	// result into a string. Errors are swallowed into "" to match the
	// teacher's evalStringOrEmpty best-effort pattern, used for optional
	// metadata extraction.
	EvalString(js string) string

	// EvalJSON runs js and returns its JSON-encoded result string, for
	// callers that need structured data out of the page (resource lists,
	// counts). Returns an error if the page context is gone.
	EvalJSON(js string) (string, error)

	// Scroll scrolls the page by dy pixels (lazy-load triggering).
	Scroll(dy int) error

	// Close releases the page/tab.
	Close() error
}

// Browser launches pages against a shared headless Chromium instance.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Stats() PoolStats
	Close()
}
