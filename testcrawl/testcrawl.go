// Package testcrawl implements the Test-Crawl Manager (spec.md §4.9, C9):
// discovery-only crawl sessions with hierarchical page listings and
// cancellation, grounded on the teacher's api/handler/crawl.go BFS
// pattern plus the supplemented sitemap-seeding enrichment (SPEC_FULL.md
// §12), adapted from api/handler/map.go's sitemap/robots.txt parsing.
package testcrawl

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/use-agent/archivist/browser"
	"github.com/use-agent/archivist/crawler"
	"github.com/use-agent/archivist/models"
)

// Manager owns the set of active and completed Test Crawls.
type Manager struct {
	b browser.Browser

	mu     sync.Mutex
	crawls map[string]*models.TestCrawl
}

// New creates a Manager that runs discovery crawls against b.
func New(b browser.Browser) *Manager {
	return &Manager{b: b, crawls: make(map[string]*models.TestCrawl)}
}

// Start allocates a crawlId, records a "crawling" Test Crawl, and runs
// the BFS discovery traversal asynchronously. It returns immediately.
func (m *Manager) Start(seedURL string, opts models.TestCrawlOptions) string {
	opts = models.NormalizeTestCrawlOptions(opts)

	tc := &models.TestCrawl{
		ID:        uuid.NewString(),
		SeedURL:   seedURL,
		Options:   opts,
		Status:    models.TestCrawlCrawling,
		CreatedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.crawls[tc.ID] = tc
	m.mu.Unlock()

	go m.run(tc.ID, seedURL, opts)

	return tc.ID
}

func (m *Manager) run(crawlID, seedURL string, opts models.TestCrawlOptions) {
	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	extraSeeds := seedURLsFromSitemap(ctx, seedURL)

	result, err := crawler.RunDiscovery(ctx, m.b, crawler.Options{
		SeedURL:        seedURL,
		Depth:          opts.Depth,
		MaxPages:       opts.MaxPages,
		SameDomainOnly: opts.SameDomainOnly,
		ExtraSeeds:     extraSeeds,
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	tc, found := m.crawls[crawlID]
	if !found || tc.Status != models.TestCrawlCrawling {
		return // cancelled while running
	}

	now := time.Now().UTC()
	if err != nil {
		tc.Status = models.TestCrawlFailed
		tc.Error = err.Error()
		tc.CompletedAt = &now
		return
	}

	discovered := buildDiscoveredSet(result.Pages)
	tc.Discovered = discovered
	tc.Status = models.TestCrawlCompleted
	tc.Progress = 100
	tc.CompletedAt = &now
}

func buildDiscoveredSet(pages []models.DiscoveredPage) models.DiscoveredSet {
	byDepth := make(map[int]int)
	var total int64
	for _, p := range pages {
		byDepth[p.Depth]++
		total += p.EstimatedBytes
	}
	return models.DiscoveredSet{Pages: pages, ByDepth: byDepth, TotalEstimatedSize: total}
}

// GetStatus returns the manager's own pointer to the Test Crawl (not a
// snapshot), and false if the id is unknown.
func (m *Manager) GetStatus(crawlID string) (*models.TestCrawl, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tc, ok := m.crawls[crawlID]
	return tc, ok
}

// GetHierarchical groups the crawl's discovered pages by depth.
func (m *Manager) GetHierarchical(crawlID string) (*models.HierarchicalView, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tc, ok := m.crawls[crawlID]
	if !ok {
		return nil, false
	}

	byDepth := make(map[int][]models.DiscoveredPage)
	for _, p := range tc.Discovered.Pages {
		byDepth[p.Depth] = append(byDepth[p.Depth], p)
	}

	return &models.HierarchicalView{
		ByDepth:            byDepth,
		DepthCounts:        tc.Discovered.ByDepth,
		TotalEstimatedSize: tc.Discovered.TotalEstimatedSize,
	}, true
}

// Cancel transitions a crawling Test Crawl to failed with reason
// "Cancelled by user", per spec.md §4.9. No-op if the crawl isn't active.
func (m *Manager) Cancel(crawlID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	tc, ok := m.crawls[crawlID]
	if !ok || tc.Status != models.TestCrawlCrawling {
		return false
	}
	now := time.Now().UTC()
	tc.Status = models.TestCrawlFailed
	tc.Error = "Cancelled by user"
	tc.CompletedAt = &now
	return true
}

// Cleanup sweeps non-active (completed/failed) crawls older than maxAge.
func (m *Manager) Cleanup(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().UTC().Add(-maxAge)
	removed := 0
	for id, tc := range m.crawls {
		if tc.Status == models.TestCrawlCrawling {
			continue
		}
		if tc.CompletedAt != nil && tc.CompletedAt.Before(cutoff) {
			delete(m.crawls, id)
			removed++
		}
	}
	return removed
}
