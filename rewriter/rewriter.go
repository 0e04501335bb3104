// Package rewriter implements the HTML/CSS Rewriter (spec.md §4.5, C5):
// the ordered HTML pass that points src/href/srcset at local archive paths
// and the CSS pass that rewrites url(...) references in downloaded
// stylesheets.
//
// DOM manipulation uses goquery, the same library the teacher's
// cleaner/filter.go uses for attribute-level HTML surgery; the
// integrity/crossorigin strip pass matches nodes with a compiled cascadia
// selector against the underlying x/net/html tree, the same selector
// engine backing cleaner/selector.go. The CSS pass uses a regexp in the
// same spirit as the teacher's inline url(...) matching rather than
// pulling in a full CSS parser, since the spec only needs one production
// (url(...)) rewritten.
package rewriter

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/use-agent/archivist/models"
)

// integrityStripSelector is compiled once with cascadia, the same
// selector engine the teacher's cleaner/selector.go uses for raw
// golang.org/x/net/html node matching, rather than goquery's
// string-selector re-parse on every call.
var integrityStripSelector = cascadia.MustCompile("script, link")

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
	".svg": true, ".ico": true, ".avif": true, ".bmp": true, ".tiff": true,
}

var localBucketPrefixes = []string{"images/", "css/", "js/", "fonts/"}

// Input bundles everything the HTML pass needs.
type Input struct {
	HTML    string
	PageURL string // the page's own URL, used as the default base
	URLMap  *models.URLMap
}

// Output is the rewritten HTML.
type Output struct {
	HTML string
}

// RewriteHTML performs the ordered HTML pass described in spec.md §4.5.
func RewriteHTML(in Input) (*Output, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(in.HTML))
	if err != nil {
		return nil, models.NewCaptureError(models.ErrCodeRewrite, "parsing HTML for rewrite", err)
	}

	base := resolveBase(doc, in.PageURL)

	// Step 2: <img>
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			if abs, ok2 := resolveAgainst(base, src); ok2 {
				if mapped, found := in.URLMap.Get(abs); found {
					s.SetAttr("src", mapped)
				}
			}
		}
		if srcset, ok := s.Attr("srcset"); ok {
			s.SetAttr("srcset", rewriteSrcset(base, srcset, in.URLMap))
		}
	})

	// Step 3: <picture><source srcset>
	doc.Find("picture source[srcset]").Each(func(_ int, s *goquery.Selection) {
		if srcset, ok := s.Attr("srcset"); ok {
			s.SetAttr("srcset", rewriteSrcset(base, srcset, in.URLMap))
		}
	})

	// Step 4: <link rel=stylesheet>
	doc.Find(`link[rel~="stylesheet"]`).Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			if abs, ok2 := resolveAgainst(base, href); ok2 {
				if mapped, found := in.URLMap.Get(abs); found {
					s.SetAttr("href", mapped)
				}
			}
		}
	})

	// Step 5: <script src>
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			if abs, ok2 := resolveAgainst(base, src); ok2 {
				if mapped, found := in.URLMap.Get(abs); found {
					s.SetAttr("src", mapped)
				}
			}
		}
	})

	// Step 6: strip integrity/crossorigin, matched via a compiled cascadia
	// selector over the underlying x/net/html node tree.
	if len(doc.Nodes) > 0 {
		for _, node := range cascadia.QueryAll(doc.Nodes[0], integrityStripSelector) {
			stripAttr(node, "integrity")
			stripAttr(node, "crossorigin")
		}
	}

	// Step 7: remove CSP meta tags
	doc.Find(`meta[http-equiv]`).Each(func(_ int, s *goquery.Selection) {
		if v, _ := s.Attr("http-equiv"); strings.EqualFold(v, "Content-Security-Policy") {
			s.Remove()
		}
	})

	// Step 8: <a href>
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		rewriteAnchor(s, base, in.URLMap)
	})

	html, err := doc.Html()
	if err != nil {
		return nil, models.NewCaptureError(models.ErrCodeRewrite, "serializing rewritten HTML", err)
	}
	return &Output{HTML: html}, nil
}

// resolveBase implements step 1: a <base href> overrides pageURL as the
// effective base, and the <base> tag is then stripped.
func resolveBase(doc *goquery.Document, pageURL string) *url.URL {
	base, _ := url.Parse(pageURL)

	baseTag := doc.Find("base[href]").First()
	if baseTag.Length() > 0 {
		if href, ok := baseTag.Attr("href"); ok {
			if resolved, err := url.Parse(href); err == nil {
				if base != nil && !resolved.IsAbs() {
					base = base.ResolveReference(resolved)
				} else {
					base = resolved
				}
			}
		}
	}
	doc.Find("base").Remove()
	return base
}

func resolveAgainst(base *url.URL, ref string) (string, bool) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if u.IsAbs() {
		return u.String(), true
	}
	if base == nil {
		return "", false
	}
	return base.ResolveReference(u).String(), true
}

// rewriteSrcset splits on commas, resolves + remaps each candidate URL,
// and preserves its original descriptor ("2x", "250w").
func rewriteSrcset(base *url.URL, srcset string, m *models.URLMap) string {
	parts := strings.Split(srcset, ",")
	rewritten := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		fields := strings.Fields(trimmed)
		candidateURL := fields[0]
		descriptor := ""
		if len(fields) > 1 {
			descriptor = fields[1]
		}
		out := candidateURL
		if abs, ok := resolveAgainst(base, candidateURL); ok {
			if mapped, found := m.Get(abs); found {
				out = mapped
			}
		}
		if descriptor != "" {
			rewritten = append(rewritten, out+" "+descriptor)
		} else {
			rewritten = append(rewritten, out)
		}
	}
	return strings.Join(rewritten, ", ")
}

var wikiFileAnchorRe = regexp.MustCompile(`(?i)^/wiki/File:(.+)$`)
var pxPrefixRe = regexp.MustCompile(`/(\d+)px-`)

// rewriteAnchor implements step 8's three-way branch.
func rewriteAnchor(s *goquery.Selection, base *url.URL, m *models.URLMap) {
	href, _ := s.Attr("href")
	if href == "" {
		return
	}

	if abs, ok := resolveAgainst(base, href); ok {
		if mapped, found := m.Get(abs); found && hasImageExtension(mapped) {
			s.SetAttr("href", mapped)
			return
		}
	}

	if fm := wikiFileAnchorRe.FindStringSubmatch(href); fm != nil {
		decoded, err := url.QueryUnescape(fm[1])
		if err == nil {
			if mapped, found := bestWikiFileMatch(m, decoded); found {
				s.SetAttr("href", mapped)
				return
			}
		}
	}

	if isAnchorOrSchemeLink(href) || isLocalBucketPath(href) {
		return
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return
	}
	if abs, ok := resolveAgainst(base, href); ok {
		s.SetAttr("href", abs)
	}
}

// bestWikiFileMatch searches the URL map for entries whose absolute URL
// contains decodedName and has an image extension, picking the one with
// the largest "<N>px-" prefix (highest resolution thumbnail).
func bestWikiFileMatch(m *models.URLMap, decodedName string) (string, bool) {
	best := ""
	bestPx := -1
	for absURL, local := range m.Entries() {
		if !strings.Contains(absURL, decodedName) || !hasImageExtension(local) {
			continue
		}
		px := -1
		if pm := pxPrefixRe.FindStringSubmatch(absURL); pm != nil {
			if n, err := parsePositiveInt(pm[1]); err == nil {
				px = n
			}
		}
		if px > bestPx {
			bestPx = px
			best = local
		}
	}
	return best, best != ""
}

func parsePositiveInt(s string) (int, error) {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, models.NewCaptureError(models.ErrCodeInternal, "not a number", nil)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

func hasImageExtension(path string) bool {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 {
		return false
	}
	return imageExtensions[strings.ToLower(path[idx:])]
}

func isAnchorOrSchemeLink(href string) bool {
	if strings.HasPrefix(href, "#") {
		return true
	}
	lower := strings.ToLower(href)
	return strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "tel:")
}

// stripAttr removes attr from node in place, if present.
func stripAttr(node *html.Node, attr string) {
	for i, a := range node.Attr {
		if strings.EqualFold(a.Key, attr) {
			node.Attr = append(node.Attr[:i], node.Attr[i+1:]...)
			return
		}
	}
}

func isLocalBucketPath(href string) bool {
	for _, prefix := range localBucketPrefixes {
		if strings.HasPrefix(href, prefix) {
			return true
		}
	}
	return false
}

var cssURLRe = regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`)

// RewriteCSS rewrites every url('<v>') in cssText whose absolute
// resolution (against stylesheetURL) is present in the map, to
// "../<bucket>/<filename>" per spec.md §4.5. data: URLs are left alone.
func RewriteCSS(cssText, stylesheetURL string, m *models.URLMap) string {
	base, _ := url.Parse(stylesheetURL)

	return cssURLRe.ReplaceAllStringFunc(cssText, func(match string) string {
		sub := cssURLRe.FindStringSubmatch(match)
		ref := sub[1]
		if strings.HasPrefix(ref, "data:") {
			return match
		}
		abs, ok := resolveAgainst(base, ref)
		if !ok {
			return match
		}
		mapped, found := m.Get(abs)
		if !found {
			return match
		}
		// mapped is "<bucket>/<filename>"; stylesheets live under css/, so
		// referenced resources need a "../" hop out of that directory.
		return "url('../" + mapped + "')"
	})
}
