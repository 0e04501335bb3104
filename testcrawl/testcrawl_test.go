package testcrawl

import (
	"testing"
	"time"

	"github.com/use-agent/archivist/browser"
	"github.com/use-agent/archivist/models"
)

func waitForStatus(t *testing.T, m *Manager, id string, want models.TestCrawlStatus) *models.TestCrawl {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		tc, ok := m.GetStatus(id)
		if ok && tc.Status == want {
			return tc
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for status %s", want)
	return nil
}

func TestStartAndComplete(t *testing.T) {
	page := &browser.FakePage{
		HTMLContent: "<html></html>",
		PageTitle:   "Seed",
	}
	b := browser.NewFake(page)
	m := New(b)

	id := m.Start("https://example.com/", models.TestCrawlOptions{Timeout: time.Second})
	tc := waitForStatus(t, m, id, models.TestCrawlCompleted)

	if len(tc.Discovered.Pages) != 1 {
		t.Fatalf("expected 1 discovered page, got %d", len(tc.Discovered.Pages))
	}
}

func TestGetHierarchical(t *testing.T) {
	page := &browser.FakePage{HTMLContent: "<html></html>", PageTitle: "Seed"}
	b := browser.NewFake(page)
	m := New(b)

	id := m.Start("https://example.com/", models.TestCrawlOptions{Timeout: time.Second})
	waitForStatus(t, m, id, models.TestCrawlCompleted)

	view, ok := m.GetHierarchical(id)
	if !ok {
		t.Fatal("expected hierarchical view")
	}
	if view.DepthCounts[0] != 1 {
		t.Errorf("expected 1 page at depth 0, got %d", view.DepthCounts[0])
	}
}

func TestCancel(t *testing.T) {
	m := New(browser.NewFake(&browser.FakePage{}))
	tc := &models.TestCrawl{ID: "manual", Status: models.TestCrawlCrawling}
	m.mu.Lock()
	m.crawls[tc.ID] = tc
	m.mu.Unlock()

	if !m.Cancel("manual") {
		t.Fatal("expected cancel to succeed on a crawling session")
	}
	got, _ := m.GetStatus("manual")
	if got.Status != models.TestCrawlFailed || got.Error != "Cancelled by user" {
		t.Errorf("unexpected state after cancel: %+v", got)
	}
}

func TestCancelNonActiveNoop(t *testing.T) {
	m := New(browser.NewFake(&browser.FakePage{}))
	tc := &models.TestCrawl{ID: "done", Status: models.TestCrawlCompleted}
	m.mu.Lock()
	m.crawls[tc.ID] = tc
	m.mu.Unlock()

	if m.Cancel("done") {
		t.Error("expected cancel to no-op on a completed crawl")
	}
}

func TestCleanupSweepsOldTerminalCrawls(t *testing.T) {
	m := New(browser.NewFake(&browser.FakePage{}))
	old := time.Now().UTC().Add(-48 * time.Hour)
	m.mu.Lock()
	m.crawls["old"] = &models.TestCrawl{ID: "old", Status: models.TestCrawlCompleted, CompletedAt: &old}
	m.crawls["active"] = &models.TestCrawl{ID: "active", Status: models.TestCrawlCrawling}
	m.mu.Unlock()

	removed := m.Cleanup(24 * time.Hour)
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, ok := m.GetStatus("active"); !ok {
		t.Error("expected active crawl to survive cleanup")
	}
}
