package orchestrator

import (
	"testing"
	"time"

	"github.com/use-agent/archivist/browser"
	"github.com/use-agent/archivist/downloader"
	"github.com/use-agent/archivist/jobtracker"
	"github.com/use-agent/archivist/models"
	"github.com/use-agent/archivist/ratelimit"
	"github.com/use-agent/archivist/store"
	"github.com/use-agent/archivist/testcrawl"
)

func newTestOrchestrator(t *testing.T, pages ...*browser.FakePage) (*Orchestrator, *jobtracker.Tracker) {
	t.Helper()
	b := browser.NewFake(pages...)
	limiter := ratelimit.New(0, time.Second, time.Minute)
	dl := downloader.New(limiter, downloader.DefaultConfig())
	jobs := jobtracker.New(5)
	st := store.New(t.TempDir())
	if err := st.Initialize(); err != nil {
		t.Fatalf("initialize store: %v", err)
	}
	tc := testcrawl.New(b)
	return New(b, dl, jobs, st, tc, 4), jobs
}

func waitForJobStatus(t *testing.T, jobs *jobtracker.Tracker, jobID string, want models.JobStatus) *models.CaptureJob {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := jobs.GetJob(jobID)
		if ok && job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for job status %s", want)
	return nil
}

func TestStartCaptureCompletesAndPersists(t *testing.T) {
	page := &browser.FakePage{
		HTMLContent: `<html><body><h1>hello</h1></body></html>`,
		PageTitle:   "Hello Page",
	}
	o, jobs := newTestOrchestrator(t, page)

	jobID := o.StartCapture("https://example.com/", models.DefaultCaptureOptions())
	job := waitForJobStatus(t, jobs, jobID, models.JobCompleted)

	if job.OutputPath == "" {
		t.Fatal("expected output path (capture id) to be set")
	}
	if job.Progress != 100 {
		t.Errorf("expected progress 100, got %d", job.Progress)
	}

	captured, err := o.Store.GetCapture(job.OutputPath)
	if err != nil {
		t.Fatalf("GetCapture: %v", err)
	}
	if captured.Title != "Hello Page" {
		t.Errorf("unexpected title: %s", captured.Title)
	}
}

func TestStartCaptureFailsOnNavigateError(t *testing.T) {
	page := &browser.FakePage{NavErr: errNavigate}
	o, jobs := newTestOrchestrator(t, page)

	jobID := o.StartCapture("https://example.com/", models.DefaultCaptureOptions())
	job := waitForJobStatus(t, jobs, jobID, models.JobFailed)

	if job.Error == "" {
		t.Error("expected a non-empty error message")
	}
}

func TestCaptureMultiCompletesAllMembers(t *testing.T) {
	pageA := &browser.FakePage{HTMLContent: "<html></html>", PageTitle: "A"}
	pageB := &browser.FakePage{HTMLContent: "<html></html>", PageTitle: "B"}
	o, jobs := newTestOrchestrator(t, pageA, pageB)

	batchID := o.CaptureMulti([]string{"https://example.com/a", "https://example.com/b"}, models.DefaultCaptureOptions())

	deadline := time.Now().Add(2 * time.Second)
	var batch *models.BatchJob
	for time.Now().Before(deadline) {
		b, ok := jobs.GetBatch(batchID)
		if ok && (b.Status == models.BatchCompleted || b.Status == models.BatchFailed || b.Status == models.BatchPartial) {
			batch = b
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if batch == nil {
		t.Fatal("timed out waiting for batch to reach a terminal state")
	}
	if batch.Completed != 2 {
		t.Errorf("expected 2 completed members, got %+v", batch)
	}
}

func TestCaptureCuratedRequiresCompletedCrawl(t *testing.T) {
	page := &browser.FakePage{HTMLContent: "<html></html>", PageTitle: "Seed"}
	o, _ := newTestOrchestrator(t, page)

	crawlID := o.TestCrawls.Start("https://example.com/", models.TestCrawlOptions{Timeout: time.Second})

	_, err := o.CaptureCurated(crawlID, []string{"https://example.com/a"}, nil, nil, models.DefaultCaptureOptions())
	if err == nil {
		t.Fatal("expected an error while the test crawl is still running")
	}
}

func TestCaptureCuratedDedupsAndExcludes(t *testing.T) {
	seed := &browser.FakePage{HTMLContent: "<html></html>", PageTitle: "Seed"}
	member := &browser.FakePage{HTMLContent: "<html></html>", PageTitle: "Member"}
	o, jobs := newTestOrchestrator(t, seed, member)

	crawlID := o.TestCrawls.Start("https://example.com/", models.TestCrawlOptions{Timeout: time.Second})
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		tc, ok := o.TestCrawls.GetStatus(crawlID)
		if ok && tc.Status == models.TestCrawlCompleted {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	batchID, err := o.CaptureCurated(crawlID,
		[]string{"https://example.com/a", "https://example.com/a"},
		[]string{"https://example.com/b"},
		[]string{"https://example.com/b"},
		models.DefaultCaptureOptions())
	if err != nil {
		t.Fatalf("CaptureCurated: %v", err)
	}

	deadline = time.Now().Add(2 * time.Second)
	var batch *models.BatchJob
	for time.Now().Before(deadline) {
		b, ok := jobs.GetBatch(batchID)
		if ok {
			batch = b
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if batch == nil {
		t.Fatal("expected a batch to be created")
	}
	if batch.Total != 1 {
		t.Errorf("expected exactly 1 member after dedup+exclude, got %d", batch.Total)
	}
}

type navErr struct{}

func (navErr) Error() string { return "navigation failed" }

var errNavigate = navErr{}
