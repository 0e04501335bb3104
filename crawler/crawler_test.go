package crawler

import (
	"context"
	"testing"
	"time"

	"github.com/use-agent/archivist/browser"
)

func TestSameBaseDomain(t *testing.T) {
	cases := []struct {
		host, seed string
		want       bool
	}{
		{"example.com", "example.com", true},
		{"www.example.com", "example.com", true},
		{"blog.example.com", "example.com", true},
		{"other.com", "example.com", false},
	}
	for _, c := range cases {
		if got := sameBaseDomain(c.host, c.seed); got != c.want {
			t.Errorf("sameBaseDomain(%q, %q) = %v, want %v", c.host, c.seed, got, c.want)
		}
	}
}

func TestNormalizeKeyDedup(t *testing.T) {
	a := normalizeKey("https://example.com/x/")
	b := normalizeKey("https://example.com/x#frag")
	if a != b {
		t.Errorf("expected normalized keys to match: %q vs %q", a, b)
	}
}

func TestRunDiscoverySinglePage(t *testing.T) {
	page := &browser.FakePage{
		HTMLContent: "<html><body>hello</body></html>",
		PageTitle:   "Seed Page",
		EvalResults: map[string]string{
			discoveryLinksJS: `[]`,
		},
	}
	b := browser.NewFake(page)

	result, err := RunDiscovery(context.Background(), b, Options{
		SeedURL: "https://example.com/", Depth: 2, MaxPages: 10, SameDomainOnly: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Pages) != 1 {
		t.Fatalf("expected 1 discovered page, got %d", len(result.Pages))
	}
	if result.Pages[0].Title != "Seed Page" {
		t.Errorf("unexpected title: %s", result.Pages[0].Title)
	}
}

func TestRunDiscoveryFollowsLinksWithinDepth(t *testing.T) {
	seed := &browser.FakePage{
		HTMLContent: "<html></html>",
		PageTitle:   "Seed",
		EvalResults: map[string]string{
			discoveryLinksJS: `["https://example.com/child"]`,
		},
	}
	child := &browser.FakePage{
		HTMLContent: "<html></html>",
		PageTitle:   "Child",
		EvalResults: map[string]string{
			discoveryLinksJS: `[]`,
		},
	}
	b := browser.NewFake(seed, child)

	result, err := RunDiscovery(context.Background(), b, Options{
		SeedURL: "https://example.com/", Depth: 2, MaxPages: 10, SameDomainOnly: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Pages) != 2 {
		t.Fatalf("expected seed + child pages, got %d", len(result.Pages))
	}
}

func TestRunCaptureMarksSuccess(t *testing.T) {
	page := &browser.FakePage{
		HTMLContent: `<html><body><main><a href="https://example.com/other">link</a></main></body></html>`,
		PageTitle:   "Page",
	}
	b := browser.NewFake(page)

	pages, err := RunCapture(context.Background(), b, Options{
		SeedURL: "https://example.com/", Depth: 1, MaxPages: 5, SameDomainOnly: true, Timeout: time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) == 0 || !pages[0].Success {
		t.Fatalf("expected a successful capture page, got %+v", pages)
	}
}

func TestRunCaptureHandlesNavigateError(t *testing.T) {
	page := &browser.FakePage{NavErr: context.DeadlineExceeded}
	b := browser.NewFake(page)

	pages, err := RunCapture(context.Background(), b, Options{
		SeedURL: "https://example.com/", Depth: 1, MaxPages: 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 1 || pages[0].Success {
		t.Fatalf("expected a single failed page record, got %+v", pages)
	}
}
