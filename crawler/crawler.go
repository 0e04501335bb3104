// Package crawler implements the BFS Crawler (spec.md §4.6, C6): a shared
// traversal skeleton driving a discovery-only node action (for the
// Test-Crawl Manager) and a capture node action (for multi-page
// captures), adapted from the teacher's BFS pattern in
// api/handler/crawl.go (bfsItem, isInScope, sameBaseDomain, isExcluded).
package crawler

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/archivist/browser"
	"github.com/use-agent/archivist/content"
	"github.com/use-agent/archivist/extractor"
	"github.com/use-agent/archivist/models"
	"github.com/use-agent/archivist/simhash"
)

// nearDuplicateThreshold is the maximum SimHash Hamming distance at which
// two discovered pages are considered near-duplicates (e.g. paginated
// listing pages sharing a template); see the simhash entry in DESIGN.md.
const nearDuplicateThreshold = 3

// bfsItem is one queue entry: a URL at a given BFS depth.
type bfsItem struct {
	url   string
	depth int
}

// Page is the result of processing one capture-mode node, per spec.md
// §4.6's "Page record".
type Page struct {
	URL       string
	Depth     int
	Title     string
	HTML      string
	Resources *models.DiscoveredResources
	Links     []string
	Success   bool
	Error     string
}

// Options configures one BFS traversal.
type Options struct {
	SeedURL        string
	Depth          int
	MaxPages       int
	SameDomainOnly bool
	UserAgent      string
	Timeout        time.Duration

	// ExtraSeeds are additional depth-0 URLs to enqueue alongside SeedURL,
	// e.g. URLs pre-discovered via sitemap.xml (SPEC_FULL.md §12). They are
	// still subject to SameDomainOnly and the visited-set dedup like any
	// other discovered link.
	ExtraSeeds []string
}

// DiscoveryResult is the full output of a discovery-mode traversal.
type DiscoveryResult struct {
	Pages []models.DiscoveredPage
}

// discoveryWorkers and captureWorkers are the per-level concurrency caps
// named in spec.md §4.6.
const (
	discoveryWorkers = 1
	captureWorkers   = 3
)

// RunDiscovery performs a discovery-only BFS traversal: metadata only, no
// asset downloads, resource interception restricted to document+script.
func RunDiscovery(ctx context.Context, b browser.Browser, opts Options) (*DiscoveryResult, error) {
	seedHost := hostOf(opts.SeedURL)

	visited := make(map[string]bool)
	queue := []bfsItem{{url: opts.SeedURL, depth: 0}}
	visited[normalizeKey(opts.SeedURL)] = true

	for _, seed := range opts.ExtraSeeds {
		key := normalizeKey(seed)
		if visited[key] {
			continue
		}
		if opts.SameDomainOnly && !sameBaseDomain(hostOf(seed), seedHost) {
			continue
		}
		visited[key] = true
		queue = append(queue, bfsItem{url: seed, depth: 0})
	}

	var pages []models.DiscoveredPage

	for len(queue) > 0 && len(pages) < opts.MaxPages {
		batch := popBatch(&queue, discoveryWorkers)

		results := make([]*models.DiscoveredPage, len(batch))
		var wg sync.WaitGroup
		for i, item := range batch {
			wg.Add(1)
			go func(i int, item bfsItem) {
				defer wg.Done()
				page, err := discoverOne(ctx, b, item)
				if err == nil {
					results[i] = page
				}
			}(i, item)
		}
		wg.Wait()

		for _, p := range results {
			if p == nil || len(pages) >= opts.MaxPages {
				continue
			}
			p.NearDuplicateOf = findNearDuplicate(pages, *p)
			pages = append(pages, *p)

			if p.Depth >= opts.Depth {
				continue
			}
			for _, link := range p.ChildLinks {
				key := normalizeKey(link)
				if visited[key] {
					continue
				}
				if opts.SameDomainOnly && !sameBaseDomain(hostOf(link), seedHost) {
					continue
				}
				visited[key] = true
				queue = append(queue, bfsItem{url: link, depth: p.Depth + 1})
			}
		}
	}

	return &DiscoveryResult{Pages: pages}, nil
}

// findNearDuplicate returns the URL of the first already-discovered page
// whose SimHash fingerprint is within nearDuplicateThreshold of page's, or
// "" if none is found.
func findNearDuplicate(discovered []models.DiscoveredPage, page models.DiscoveredPage) string {
	for _, other := range discovered {
		if simhash.Similar(other.Fingerprint(), page.Fingerprint(), nearDuplicateThreshold) {
			return other.URL
		}
	}
	return ""
}

func discoverOne(ctx context.Context, b browser.Browser, item bfsItem) (*models.DiscoveredPage, error) {
	page, err := b.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	err = page.Navigate(ctx, item.url, browser.NavigateOptions{
		Wait:      browser.WaitNetworkIdle,
		Timeout:   15 * time.Second,
		Intercept: browser.InterceptDocumentAndScriptOnly,
	})
	if err != nil {
		return nil, err
	}

	html, err := page.HTML()
	if err != nil {
		return nil, err
	}

	title := page.Title()
	description := page.EvalString(`() => { const m = document.querySelector('meta[name="description"]'); return m ? m.content : ''; }`)
	if description == "" {
		description = fallbackDescription(item.url, html)
	}

	counts := models.ResourceCounts{
		Images: evalInt(page, `() => document.images.length`),
		CSS:    evalInt(page, `() => document.querySelectorAll('link[rel~="stylesheet"]').length`),
		JS:     evalInt(page, `() => document.querySelectorAll('script[src]').length`),
		Fonts:  0,
	}

	links := extractDiscoveryLinks(page)
	counts.Links = len(links)

	estimated := int64(len(html)) +
		int64(counts.Images)*50000 +
		int64(counts.CSS)*20000 +
		int64(counts.JS)*30000 +
		int64(counts.Fonts)*15000

	discovered := &models.DiscoveredPage{
		URL:            item.url,
		Title:          title,
		Description:    description,
		Depth:          item.depth,
		Resources:      counts,
		EstimatedBytes: estimated,
		ChildLinks:     links,
	}
	discovered.SetFingerprint(simhash.FingerprintDOM(html))
	return discovered, nil
}

const discoveryLinksJS = `() => {
	const out = [];
	document.querySelectorAll('a[href]').forEach(a => {
		const href = a.getAttribute('href') || '';
		const lower = href.toLowerCase();
		if (!href || href.startsWith('#')) return;
		if (lower.startsWith('javascript:') || lower.startsWith('mailto:') || lower.startsWith('tel:')) return;
		try {
			const u = new URL(href, document.baseURI);
			if (u.protocol !== 'http:' && u.protocol !== 'https:') return;
			out.push(u.href);
		} catch (e) {}
	});
	return JSON.stringify(out.slice(0, 100));
}`

func extractDiscoveryLinks(page browser.Page) []string {
	raw, err := page.EvalJSON(discoveryLinksJS)
	if err != nil {
		return nil
	}
	return decodeStringArray(raw)
}

// RunCapture performs a capture-mode BFS traversal, invoking the Resource
// Extractor and Content Detector per node, per spec.md §4.6.
func RunCapture(ctx context.Context, b browser.Browser, opts Options) ([]Page, error) {
	seedHost := hostOf(opts.SeedURL)

	visited := make(map[string]bool)
	queue := []bfsItem{{url: opts.SeedURL, depth: 0}}
	visited[normalizeKey(opts.SeedURL)] = true

	var pages []Page

	for len(queue) > 0 && len(pages) < opts.MaxPages {
		batch := popBatch(&queue, captureWorkers)

		results := make([]Page, len(batch))
		var wg sync.WaitGroup
		for i, item := range batch {
			wg.Add(1)
			go func(i int, item bfsItem) {
				defer wg.Done()
				results[i] = captureOne(ctx, b, item, opts)
			}(i, item)
		}
		wg.Wait()

		for _, p := range results {
			if len(pages) >= opts.MaxPages {
				continue
			}
			pages = append(pages, p)
			if !p.Success || p.Depth >= opts.Depth {
				continue
			}
			for _, link := range p.Links {
				key := normalizeKey(link)
				if visited[key] {
					continue
				}
				if opts.SameDomainOnly && !sameBaseDomain(hostOf(link), seedHost) {
					continue
				}
				visited[key] = true
				queue = append(queue, bfsItem{url: link, depth: p.Depth + 1})
			}
		}
	}

	return pages, nil
}

func captureOne(ctx context.Context, b browser.Browser, item bfsItem, opts Options) Page {
	page, err := b.NewPage(ctx)
	if err != nil {
		return Page{URL: item.url, Depth: item.depth, Success: false, Error: err.Error()}
	}
	defer page.Close()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	err = page.Navigate(ctx, item.url, browser.NavigateOptions{
		UserAgent: opts.UserAgent,
		Wait:      browser.WaitNetworkIdle,
		Timeout:   timeout,
		Intercept: browser.InterceptNone,
	})
	if err != nil {
		return Page{URL: item.url, Depth: item.depth, Success: false, Error: err.Error()}
	}

	triggerLazyLoad(page)

	resources, err := extractor.Enumerate(ctx, page)
	if err != nil {
		return Page{URL: item.url, Depth: item.depth, Success: false, Error: err.Error()}
	}

	html, err := page.HTML()
	if err != nil {
		return Page{URL: item.url, Depth: item.depth, Success: false, Error: err.Error()}
	}
	title := page.Title()

	var baseDomain string
	if opts.SameDomainOnly {
		baseDomain = hostOf(opts.SeedURL)
	}
	linkResult, err := content.ExtractLinks(html, content.Options{BaseDomain: baseDomain})
	var links []string
	if err == nil {
		links = linkResult.Links
	}

	return Page{
		URL:       item.url,
		Depth:     item.depth,
		Title:     title,
		HTML:      html,
		Resources: resources,
		Links:     links,
		Success:   true,
	}
}

const lazyLoadProbeJS = `() => document.querySelectorAll('img[loading="lazy"], img[data-src], img[data-lazy]').length > 0`

// triggerLazyLoad scrolls the page in 500px steps with 200ms pauses (one
// full pass + scroll back to top), per spec.md §4.6, but only if the page
// contains a lazy-loaded image marker.
func triggerLazyLoad(page browser.Page) {
	if page.EvalString(lazyLoadProbeJS) != "true" {
		return
	}
	steps := evalInt(page, `() => Math.ceil(document.documentElement.scrollHeight / 500)`)
	if steps <= 0 {
		steps = 20
	}
	for i := 0; i < steps; i++ {
		if err := page.Scroll(500); err != nil {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}
	_ = page.Scroll(-999999)
}

func evalInt(page browser.Page, js string) int {
	n, err := strconv.Atoi(strings.TrimSpace(page.EvalString(js)))
	if err != nil {
		return 0
	}
	return n
}

func decodeStringArray(raw string) []string {
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func popBatch(queue *[]bfsItem, w int) []bfsItem {
	q := *queue
	if len(q) < w {
		w = len(q)
	}
	batch := q[:w]
	*queue = q[w:]
	return batch
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// sameBaseDomain reports whether host matches seedHost exactly or is a
// subdomain of it (www. stripped from both), adapted from the teacher's
// sameBaseDomain helper in api/handler/crawl.go.
func sameBaseDomain(host, seedHost string) bool {
	h := strings.TrimPrefix(strings.ToLower(host), "www.")
	s := strings.TrimPrefix(strings.ToLower(seedHost), "www.")
	return h == s || strings.HasSuffix(h, "."+s)
}

func normalizeKey(rawURL string) string {
	s := rawURL
	if idx := strings.IndexByte(s, '#'); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSuffix(s, "/")
}
