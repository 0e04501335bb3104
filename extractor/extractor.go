// Package extractor implements the Resource Extractor (spec.md §4.4, C4):
// in-page enumeration of images, stylesheets, scripts, and fonts, plus the
// off-page @font-face parse and the Wikipedia thumbnail URL mapping.
//
// The in-page enumeration runs as injected JavaScript via the Browser
// capability's Eval, the same technique the teacher uses for title/URL
// extraction in scraper/page.go's evalStringOrEmpty — generalized here to
// return structured JSON instead of a bare string.
package extractor

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/use-agent/archivist/browser"
	"github.com/use-agent/archivist/models"
)

// enumerateJS collects every resource reference the spec names: img
// src/srcset, picture>source srcset, inline style url(...) (skipping
// data:), external stylesheets, inline <style> blocks, script src, and
// favicon. URLs are resolved to absolute form in-page via the DOM's own
// resolution (anchor/img elements resolve automatically via .src/.href).
const enumerateJS = `() => {
	const abs = (u) => { try { return new URL(u, document.baseURI).href; } catch(e) { return null; } };

	const images = [];
	document.querySelectorAll('img').forEach(img => {
		const src = img.currentSrc || img.src;
		const srcset = [];
		if (img.srcset) {
			img.srcset.split(',').forEach(part => {
				const bits = part.trim().split(/\s+/);
				const u = abs(bits[0]);
				if (u) srcset.push({url: u, descriptor: bits[1] || ''});
			});
		}
		if (src) images.push({src: abs(src), srcset});
	});
	document.querySelectorAll('picture source[srcset]').forEach(src => {
		const srcset = [];
		src.getAttribute('srcset').split(',').forEach(part => {
			const bits = part.trim().split(/\s+/);
			const u = abs(bits[0]);
			if (u) srcset.push({url: u, descriptor: bits[1] || ''});
		});
		if (srcset.length) images.push({src: '', srcset});
	});

	const inlineStyleUrls = [];
	document.querySelectorAll('[style*="url("]').forEach(el => {
		const re = /url\(\s*['"]?([^'")]+)['"]?\s*\)/g;
		let m;
		while ((m = re.exec(el.getAttribute('style'))) !== null) {
			if (m[1].startsWith('data:')) continue;
			const u = abs(m[1]);
			if (u) inlineStyleUrls.push(u);
		}
	});

	const css = [];
	document.querySelectorAll('link[rel~="stylesheet"]').forEach(l => {
		const u = abs(l.getAttribute('href'));
		if (u) css.push({url: u, inline: false, content: '', index: 0});
	});
	document.querySelectorAll('style').forEach((s, i) => {
		css.push({url: '', inline: true, content: s.textContent || '', index: i});
	});

	const js = [];
	document.querySelectorAll('script[src]').forEach(s => {
		const u = abs(s.getAttribute('src'));
		if (u) js.push({url: u});
	});

	let favicon = '';
	const iconEl = document.querySelector('link[rel*="icon"]');
	if (iconEl) {
		const u = abs(iconEl.getAttribute('href'));
		if (u) favicon = u;
	}

	return JSON.stringify({images, inlineStyleUrls, css, js, favicon});
}`

type rawImage struct {
	Src    string `json:"src"`
	Srcset []struct {
		URL        string `json:"url"`
		Descriptor string `json:"descriptor"`
	} `json:"srcset"`
}

type rawCSS struct {
	URL     string `json:"url"`
	Inline  bool   `json:"inline"`
	Content string `json:"content"`
	Index   int    `json:"index"`
}

type rawJS struct {
	URL string `json:"url"`
}

type enumerateResult struct {
	Images         []rawImage `json:"images"`
	InlineStyleURL []string   `json:"inlineStyleUrls"`
	CSS            []rawCSS   `json:"css"`
	JS             []rawJS    `json:"js"`
	Favicon        string     `json:"favicon"`
}

// StylesheetFetcher fetches the text of an external stylesheet for
// @font-face parsing, without persisting it (spec.md §4.4: "text only").
// No code in this module implements or calls it: the orchestrator runs
// ExtractFonts over stylesheet bytes it has already downloaded.
type StylesheetFetcher interface {
	FetchText(ctx context.Context, absURL string) (string, error)
}

// Enumerate runs the in-page enumeration script against page and decodes
// the result into DiscoveredResources: images with their srcset
// candidates, external stylesheets and inline <style> blocks (the block
// text is kept in CSSRef.Content), scripts, and the favicon. The inline
// style="...url(...)" references the script collects are decoded but not
// carried into the result, and Fonts is left empty (see ExtractFonts).
func Enumerate(ctx context.Context, page browser.Page) (*models.DiscoveredResources, error) {
	raw, err := page.EvalJSON(enumerateJS)
	if err != nil {
		return nil, models.NewCaptureError(models.ErrCodeExtraction, "in-page enumeration failed", err)
	}

	var parsed enumerateResult
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, models.NewCaptureError(models.ErrCodeExtraction, "decoding enumeration result", err)
	}

	out := &models.DiscoveredResources{Favicon: parsed.Favicon}

	for _, img := range parsed.Images {
		ref := models.ImageRef{Src: img.Src}
		for _, s := range img.Srcset {
			ref.Srcset = append(ref.Srcset, models.SrcsetEntry{URL: s.URL, Descriptor: s.Descriptor})
		}
		out.Images = append(out.Images, ref)
	}

	for _, c := range parsed.CSS {
		out.CSS = append(out.CSS, models.CSSRef{URL: c.URL, Inline: c.Inline, Content: c.Content, Index: c.Index})
	}

	for _, j := range parsed.JS {
		out.JS = append(out.JS, models.JSRef{URL: j.URL})
	}

	return out, nil
}

var fontFaceBlockRe = regexp.MustCompile(`(?is)@font-face\s*\{([^}]*)\}`)
var fontFaceURLRe = regexp.MustCompile(`(?i)url\(\s*['"]?([^'")]+)['"]?\s*\)`)

// ExtractFonts parses @font-face blocks out of cssText (the text of one
// stylesheet, external or inline) and resolves each src url(...) against
// sourceURL, per spec.md §4.4. data: URLs are skipped.
func ExtractFonts(cssText, sourceURL string) ([]models.FontRef, error) {
	base, err := url.Parse(sourceURL)
	if err != nil {
		base = nil
	}

	var out []models.FontRef
	for _, block := range fontFaceBlockRe.FindAllStringSubmatch(cssText, -1) {
		for _, m := range fontFaceURLRe.FindAllStringSubmatch(block[1], -1) {
			ref := strings.TrimSpace(m[1])
			if strings.HasPrefix(ref, "data:") {
				continue
			}
			resolved := ref
			if base != nil {
				if u, err := url.Parse(ref); err == nil && !u.IsAbs() {
					resolved = base.ResolveReference(u).String()
				}
			}
			out = append(out, models.FontRef{URL: resolved, SourceCSS: sourceURL})
		}
	}
	return out, nil
}

var wikiThumbRe = regexp.MustCompile(`(?i)^(.*)/thumb/([^/]+)/([^/]+)/([^/]+)/(\d+)px-.*$`)

// WikipediaThumbMapping inspects imageURL and, if it matches Wikipedia's
// thumbnail path convention (".../wikipedia.../thumb/<dir>/<dir>/<file>/<N>px-..."),
// returns the URL of the corresponding full-resolution file under the same
// wiki project, per spec.md §4.4. The returned bool is false for any
// non-matching URL.
func WikipediaThumbMapping(imageURL string) (string, bool) {
	if !strings.Contains(strings.ToLower(imageURL), "wikipedia") {
		return "", false
	}
	m := wikiThumbRe.FindStringSubmatch(imageURL)
	if m == nil {
		return "", false
	}
	project, dir1, dir2, file := m[1], m[2], m[3], m[4]
	if _, err := strconv.Atoi(m[5]); err != nil {
		return "", false
	}
	return project + "/" + dir1 + "/" + dir2 + "/" + file, true
}
