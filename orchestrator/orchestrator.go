// Package orchestrator implements the Capture Orchestrator (spec.md
// §4.10, C10): the top-level workflow binding the Browser capability,
// Resource Extractor (C4), Downloader (C2), HTML/CSS Rewriter (C5),
// Capture Store (C7), and Job Tracker (C8) into single-page, multi-page,
// and curated capture operations.
//
// The wiring order (navigate -> extract -> download -> rewrite ->
// persist -> finalize) mirrors the teacher's cmd/purify/main.go startup
// sequencing style and api/handler/batch.go's per-member job lifecycle,
// generalized from "scrape and respond" to "capture and archive".
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/archivist/browser"
	"github.com/use-agent/archivist/downloader"
	"github.com/use-agent/archivist/extractor"
	"github.com/use-agent/archivist/jobtracker"
	"github.com/use-agent/archivist/models"
	"github.com/use-agent/archivist/rewriter"
	"github.com/use-agent/archivist/store"
	"github.com/use-agent/archivist/testcrawl"
)

// Orchestrator binds every other component into the documented
// capture workflows.
type Orchestrator struct {
	Browser     browser.Browser
	Downloader  *downloader.Downloader
	Jobs        *jobtracker.Tracker
	Store       *store.Store
	TestCrawls  *testcrawl.Manager
	ResourceConcurrency int
}

// New constructs an Orchestrator from its dependencies.
func New(b browser.Browser, dl *downloader.Downloader, jobs *jobtracker.Tracker, st *store.Store, tc *testcrawl.Manager, resourceConcurrency int) *Orchestrator {
	if resourceConcurrency <= 0 {
		resourceConcurrency = 5
	}
	return &Orchestrator{Browser: b, Downloader: dl, Jobs: jobs, Store: st, TestCrawls: tc, ResourceConcurrency: resourceConcurrency}
}

// StartCapture creates a pending job for url and runs the single-page
// capture pipeline asynchronously, returning the job id immediately.
func (o *Orchestrator) StartCapture(url string, opts models.CaptureOptions) string {
	opts = models.Normalize(opts)
	job := o.Jobs.CreateJob(url, opts)
	go o.runSingle(job.ID)
	return job.ID
}

func (o *Orchestrator) runSingle(jobID string) {
	job, ok := o.Jobs.GetJob(jobID)
	if !ok {
		return
	}
	// Wait for a free slot: StartJob refuses while maxConcurrent jobs run.
	for !o.Jobs.StartJob(jobID) {
		if cur, ok := o.Jobs.GetJob(jobID); !ok || cur.Status != models.JobPending {
			return
		}
		time.Sleep(200 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), job.Options.Timeout())
	defer cancel()

	captureID, err := o.capturePage(ctx, jobID, job.URL, job.Options)
	if err != nil {
		slog.Warn("capture failed", "job", jobID, "url", job.URL, "error", err)
		o.Jobs.FailJob(jobID, err.Error())
		return
	}
	o.Jobs.CompleteJob(jobID, captureID)
}

// capturePage runs the full single-page pipeline and returns the saved
// capture id.
func (o *Orchestrator) capturePage(ctx context.Context, jobID, pageURL string, opts models.CaptureOptions) (string, error) {
	o.Jobs.UpdateStep(jobID, "navigate", models.StepInProgress)
	page, err := o.Browser.NewPage(ctx)
	if err != nil {
		o.Jobs.UpdateStep(jobID, "navigate", models.StepFailed)
		return "", models.NewCaptureError(models.ErrCodeNavigation, "acquiring page", err)
	}
	defer page.Close()

	err = page.Navigate(ctx, pageURL, browser.NavigateOptions{
		UserAgent: opts.UserAgent,
		Wait:      browser.WaitNetworkIdle,
		Timeout:   opts.Timeout(),
		Intercept: browser.InterceptNone,
	})
	if err != nil {
		o.Jobs.UpdateStep(jobID, "navigate", models.StepFailed)
		return "", err
	}
	o.Jobs.UpdateStep(jobID, "navigate", models.StepCompleted)

	o.Jobs.UpdateStep(jobID, "extract", models.StepInProgress)
	resources, err := extractor.Enumerate(ctx, page)
	if err != nil {
		o.Jobs.UpdateStep(jobID, "extract", models.StepFailed)
		return "", err
	}
	html, err := page.HTML()
	if err != nil {
		o.Jobs.UpdateStep(jobID, "extract", models.StepFailed)
		return "", err
	}
	title := page.Title()
	o.Jobs.UpdateStep(jobID, "extract", models.StepCompleted)

	o.Jobs.UpdateStep(jobID, "download", models.StepInProgress)
	sess, err := o.Downloader.NewSession(pageURL)
	if err != nil {
		o.Jobs.UpdateStep(jobID, "download", models.StepFailed)
		return "", err
	}

	urlMap := models.NewURLMap()
	resourceData := make(map[string][]byte)
	stats := models.NewJobStats()

	downloadBucket := func(urls []string, kind models.ResourceKind) {
		if len(urls) == 0 {
			return
		}
		result := sess.FetchAll(ctx, urls, kind, o.ResourceConcurrency)
		for _, r := range result.Succeeded {
			urlMap.Set(r.Descriptor.URL, r.Descriptor.LocalPath)
			resourceData[r.Descriptor.LocalPath] = r.Data
			stats.ResourcesSucceeded[string(kind)]++
		}
		for _, f := range result.Failed {
			stats.ResourcesFailed[string(kind)] = append(stats.ResourcesFailed[string(kind)], f)
		}
	}

	imageURLs := collectImageURLs(resources)
	downloadBucket(imageURLs, models.KindImage)

	var externalCSSURLs []string
	for _, c := range resources.CSS {
		if !c.Inline {
			externalCSSURLs = append(externalCSSURLs, c.URL)
		}
	}
	downloadBucket(externalCSSURLs, models.KindCSS)

	var jsURLs []string
	for _, j := range resources.JS {
		jsURLs = append(jsURLs, j.URL)
	}
	downloadBucket(jsURLs, models.KindJS)

	if resources.Favicon != "" {
		downloadBucket([]string{resources.Favicon}, models.KindImage)
	}

	// Font discovery runs off the already-downloaded stylesheet bytes
	// (external) plus inline <style> block text, per spec.md §4.4 — no
	// second network round-trip is needed for stylesheets we already have.
	var fontURLs []string
	seenFont := make(map[string]bool)
	for _, c := range resources.CSS {
		var text, sourceURL string
		if c.Inline {
			text, sourceURL = c.Content, pageURL
		} else {
			localPath, ok := urlMap.Get(c.URL)
			if !ok {
				continue
			}
			text, sourceURL = string(resourceData[localPath]), c.URL
		}
		fonts, ferr := extractor.ExtractFonts(text, sourceURL)
		if ferr != nil {
			continue
		}
		for _, f := range fonts {
			if !seenFont[f.URL] {
				seenFont[f.URL] = true
				fontURLs = append(fontURLs, f.URL)
			}
		}
	}
	downloadBucket(fontURLs, models.KindFont)
	o.Jobs.UpdateStep(jobID, "download", models.StepCompleted)
	o.Jobs.UpdateStats(jobID, stats)
	o.Jobs.UpdateProgress(jobID, 60)

	o.Jobs.UpdateStep(jobID, "rewrite", models.StepInProgress)
	htmlOut, err := rewriter.RewriteHTML(rewriter.Input{HTML: html, PageURL: pageURL, URLMap: urlMap})
	if err != nil {
		o.Jobs.UpdateStep(jobID, "rewrite", models.StepFailed)
		return "", err
	}

	for _, c := range resources.CSS {
		if c.Inline {
			continue
		}
		localPath, ok := urlMap.Get(c.URL)
		if !ok {
			continue
		}
		rewritten := rewriter.RewriteCSS(string(resourceData[localPath]), c.URL, urlMap)
		resourceData[localPath] = []byte(rewritten)
	}
	o.Jobs.UpdateStep(jobID, "rewrite", models.StepCompleted)
	o.Jobs.UpdateProgress(jobID, 85)

	o.Jobs.UpdateStep(jobID, "persist", models.StepInProgress)
	descriptors := descriptorsFromMap(urlMap, resources)
	captureID, err := o.Store.SaveCapture(store.SaveInput{
		URL:       pageURL,
		Title:     title,
		HTML:      htmlOut.HTML,
		Resources: descriptors,
		Mode:      models.CaptureModeSingle,
	}, resourceData)
	if err != nil {
		o.Jobs.UpdateStep(jobID, "persist", models.StepFailed)
		return "", err
	}
	o.Jobs.UpdateStep(jobID, "persist", models.StepCompleted)

	return captureID, nil
}

func collectImageURLs(d *models.DiscoveredResources) []string {
	var urls []string
	seen := make(map[string]bool)
	add := func(u string) {
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		urls = append(urls, u)
	}
	for _, img := range d.Images {
		add(img.Src)
		for _, s := range img.Srcset {
			add(s.URL)
		}
	}
	return urls
}

func descriptorsFromMap(m *models.URLMap, d *models.DiscoveredResources) []models.ResourceDescriptor {
	kindOf := make(map[string]models.ResourceKind)
	for _, img := range d.Images {
		kindOf[img.Src] = models.KindImage
		for _, s := range img.Srcset {
			kindOf[s.URL] = models.KindImage
		}
	}
	for _, c := range d.CSS {
		if !c.Inline {
			kindOf[c.URL] = models.KindCSS
		}
	}
	for _, j := range d.JS {
		kindOf[j.URL] = models.KindJS
	}
	if d.Favicon != "" {
		kindOf[d.Favicon] = models.KindImage
	}

	var out []models.ResourceDescriptor
	for absURL, local := range m.Entries() {
		kind, ok := kindOf[absURL]
		if !ok {
			kind = models.KindFont
		}
		out = append(out, models.ResourceDescriptor{URL: absURL, LocalPath: local, Kind: kind})
	}
	return out
}

// CaptureMulti creates a Batch covering urls and runs a single-page
// capture for each, updating the batch as each job reaches a terminal
// state, per spec.md §4.10.
func (o *Orchestrator) CaptureMulti(urls []string, opts models.CaptureOptions) string {
	opts = models.Normalize(opts)

	members := make([]models.BatchMember, 0, len(urls))
	jobIDs := make([]string, 0, len(urls))
	for _, u := range urls {
		job := o.Jobs.CreateJob(u, opts)
		members = append(members, models.BatchMember{JobID: job.ID, URL: u, Status: models.JobPending})
		jobIDs = append(jobIDs, job.ID)
	}

	batch := o.Jobs.CreateBatch(members)

	for _, jobID := range jobIDs {
		go o.runBatchMember(batch.BatchID, jobID)
	}
	return batch.BatchID
}

func (o *Orchestrator) runBatchMember(batchID, jobID string) {
	job, ok := o.Jobs.GetJob(jobID)
	if !ok {
		return
	}
	// Wait for a free slot; the member stays pending in the batch meanwhile.
	for !o.Jobs.StartJob(jobID) {
		if cur, ok := o.Jobs.GetJob(jobID); !ok || cur.Status != models.JobPending {
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	o.Jobs.UpdateBatchMember(batchID, jobID, models.JobProcessing)

	ctx, cancel := context.WithTimeout(context.Background(), job.Options.Timeout())
	defer cancel()

	captureID, err := o.capturePage(ctx, jobID, job.URL, job.Options)
	if err != nil {
		o.Jobs.FailJob(jobID, err.Error())
		o.Jobs.UpdateBatchMember(batchID, jobID, models.JobFailed)
		return
	}
	o.Jobs.CompleteJob(jobID, captureID)
	o.Jobs.UpdateBatchMember(batchID, jobID, models.JobCompleted)
}

// CaptureCurated requires crawlID's Test Crawl to be completed, forms the
// URL set unique(selected ∪ additional) ∖ excluded, then runs CaptureMulti
// over it, per spec.md §4.10.
func (o *Orchestrator) CaptureCurated(crawlID string, selected, additional, excluded []string, opts models.CaptureOptions) (string, error) {
	tc, ok := o.TestCrawls.GetStatus(crawlID)
	if !ok {
		return "", models.NewCaptureError(models.ErrCodeInvalidInput, "unknown test crawl: "+crawlID, nil)
	}
	if tc.Status != models.TestCrawlCompleted {
		return "", models.NewCaptureError(models.ErrCodeInvalidInput,
			fmt.Sprintf("test crawl %s is not completed (status=%s)", crawlID, tc.Status), nil)
	}

	excludeSet := make(map[string]bool, len(excluded))
	for _, u := range excluded {
		excludeSet[u] = true
	}

	seen := make(map[string]bool)
	var urls []string
	for _, u := range append(append([]string{}, selected...), additional...) {
		if excludeSet[u] || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}

	return o.CaptureMulti(urls, opts), nil
}
