// Package content implements the Content Detector (spec.md §4.3, C3):
// locating the main-content region of a page and extracting outbound
// links from it while filtering navigation chrome.
//
// Adapted from the teacher's cleaner/selector.go and cleaner/filter.go,
// which use cascadia and goquery for CSS-selector matching over a parsed
// DOM; here the same matching approach is repurposed from "filter HTML
// for display" to "find the content container and collect its links".
package content

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// containerSelectors are tried in order; the first one that matches any
// element in the document is the content container.
var containerSelectors = []string{
	"main",
	"article",
	"[role=main]",
	"#content",
	"#main-content",
	"#main",
	".content",
	".main-content",
	".post-content",
	".entry-content",
	".article-body",
	".article-content",
}

// exclusionSelectors mark navigation chrome: links inside a subtree
// matching one of these are dropped even if the subtree nests inside a
// content container.
var exclusionSelectors = []string{
	"nav",
	"header",
	"footer",
	"aside",
	"[role=navigation]",
	"[role=banner]",
	"[role=complementary]",
	"[role=contentinfo]",
	".menu",
	".sidebar",
	".breadcrumb",
	".breadcrumbs",
	".nav",
	".navbar",
	".site-header",
	".site-footer",
}

// Diagnostics reports how link extraction behaved, for callers that want
// to surface why a page yielded few or no links.
type Diagnostics struct {
	ContainerFound    bool
	ContainerSelector string
	RawLinkCount      int
	FilteredCount     int
}

// Result is the outcome of ExtractLinks: the surviving links plus
// diagnostics about the extraction.
type Result struct {
	Links []string
	Diag  Diagnostics
}

// Options configures link post-processing.
type Options struct {
	// BaseDomain, if non-empty, restricts results to links whose host
	// matches it (same-domain filter).
	BaseDomain string
}

// ExtractLinks parses rawHTML, finds the first matching content
// container, and returns the http(s) links inside it that do not fall
// within an excluded chrome subtree, per spec.md §4.3.
func ExtractLinks(rawHTML string, opts Options) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}

	container, selector := findContainer(doc)
	diag := Diagnostics{ContainerFound: container != nil, ContainerSelector: selector}
	if container == nil {
		return &Result{Diag: diag}, nil
	}

	var raw []string
	container.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		if isInExcludedSubtree(s) {
			return
		}
		raw = append(raw, href)
	})
	diag.RawLinkCount = len(raw)

	filtered := filterAndDedup(raw, opts.BaseDomain)
	diag.FilteredCount = len(filtered)

	return &Result{Links: filtered, Diag: diag}, nil
}

func findContainer(doc *goquery.Document) (*goquery.Selection, string) {
	for _, sel := range containerSelectors {
		found := doc.Find(sel)
		if found.Length() > 0 {
			first := found.First()
			return &first, sel
		}
	}
	return nil, ""
}

// isInExcludedSubtree walks up from s's ancestors (including itself) and
// reports whether any of them matches an exclusion selector.
func isInExcludedSubtree(s *goquery.Selection) bool {
	combined := strings.Join(exclusionSelectors, ", ")
	return s.Closest(combined).Length() > 0
}

// filterAndDedup applies the same-domain filter (when baseDomain is set),
// strips URL fragments and one trailing slash, and deduplicates.
func filterAndDedup(raw []string, baseDomain string) []string {
	seen := make(map[string]bool)
	var out []string

	for _, href := range raw {
		u, err := url.Parse(href)
		if err != nil {
			continue
		}
		if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" {
			continue
		}

		if baseDomain != "" && u.IsAbs() && !strings.EqualFold(u.Hostname(), baseDomain) {
			continue
		}

		key := normalizeForDedup(href)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, href)
	}
	return out
}

// normalizeForDedup strips the fragment and one trailing slash so that
// "https://a.com/x#y" and "https://a.com/x/" collapse with "https://a.com/x".
func normalizeForDedup(rawURL string) string {
	s := rawURL
	if idx := strings.IndexByte(s, '#'); idx >= 0 {
		s = s[:idx]
	}
	s = strings.TrimSuffix(s, "/")
	return s
}
