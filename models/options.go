package models

import (
	"math/rand"
	"time"
)

// userAgentPool is a small pool of realistic desktop browser user agents.
// One is picked at random when a capture request doesn't specify one,
// so outbound traffic doesn't look like a single fixed bot signature.
var userAgentPool = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
}

// MultiPageOptions controls a multi-page capture's BFS crawl.
type MultiPageOptions struct {
	Enabled        bool `json:"enabled"`
	Depth          int  `json:"depth,omitempty"`           // clamped [1,3]
	MaxPages       int  `json:"max_pages,omitempty"`       // clamped [1,100]
	SameDomainOnly bool `json:"same_domain_only,omitempty"` // default true
}

// CaptureOptions are the normalized options for a capture request, per
// spec.md §3 "Capture Options".
type CaptureOptions struct {
	InlineStyles      bool              `json:"inline_styles"`
	IncludePDFs       bool              `json:"include_pdfs"`
	TimeoutMs         int               `json:"timeout_ms"` // clamped [5000,120000]
	MultiPage         MultiPageOptions  `json:"multi_page"`
	UserAgent         string            `json:"user_agent,omitempty"`
	Headers           map[string]string `json:"headers,omitempty"`
	IncludeScreenshot bool              `json:"include_screenshot,omitempty"` // accepted, never consumed (spec.md §9)
}

// Timeout returns the configured timeout as a time.Duration.
func (o CaptureOptions) Timeout() time.Duration {
	return time.Duration(o.TimeoutMs) * time.Millisecond
}

// Normalize applies defaults and clamps per spec.md §3, mutating a copy
// and returning it. Call this once, at the boundary where a request
// enters the orchestrator.
func Normalize(o CaptureOptions) CaptureOptions {
	n := o
	// InlineStyles defaults true; since Go's zero value for bool is false,
	// callers that build CaptureOptions from scratch must set it true
	// explicitly, or use DefaultCaptureOptions below.
	if n.TimeoutMs == 0 {
		n.TimeoutMs = 30000
	}
	n.TimeoutMs = clampInt(n.TimeoutMs, 5000, 120000)

	if n.MultiPage.Enabled {
		if n.MultiPage.Depth == 0 {
			n.MultiPage.Depth = 2
		}
		n.MultiPage.Depth = clampInt(n.MultiPage.Depth, 1, 3)
		if n.MultiPage.MaxPages == 0 {
			n.MultiPage.MaxPages = 20
		}
		n.MultiPage.MaxPages = clampInt(n.MultiPage.MaxPages, 1, 100)
	}

	if n.UserAgent == "" {
		n.UserAgent = userAgentPool[rand.Intn(len(userAgentPool))]
	}

	return n
}

// DefaultCaptureOptions returns the spec.md §3 defaults: inline styles on,
// same-domain-only multi-page crawling on, 30s timeout.
func DefaultCaptureOptions() CaptureOptions {
	return CaptureOptions{
		InlineStyles: true,
		TimeoutMs:    30000,
		MultiPage: MultiPageOptions{
			SameDomainOnly: true,
		},
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
