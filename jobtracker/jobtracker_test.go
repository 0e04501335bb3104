package jobtracker

import (
	"testing"
	"time"

	"github.com/use-agent/archivist/models"
)

func TestCreateAndStartJobRespectsMaxConcurrent(t *testing.T) {
	tr := New(1)

	j1 := tr.CreateJob("https://a.com", models.DefaultCaptureOptions())
	j2 := tr.CreateJob("https://b.com", models.DefaultCaptureOptions())

	if !tr.StartJob(j1.ID) {
		t.Fatal("expected first job to start")
	}
	if tr.StartJob(j2.ID) {
		t.Fatal("expected second job to be refused at maxConcurrent=1")
	}

	got, _ := tr.GetJob(j2.ID)
	if got.Status != models.JobPending {
		t.Errorf("expected second job to remain pending, got %s", got.Status)
	}

	tr.CompleteJob(j1.ID, "/captures/x")
	if !tr.StartJob(j2.ID) {
		t.Fatal("expected second job to start after first completed")
	}
}

func TestCompleteJobSetsInvariants(t *testing.T) {
	tr := New(2)
	job := tr.CreateJob("https://a.com", models.DefaultCaptureOptions())
	tr.StartJob(job.ID)
	tr.CompleteJob(job.ID, "/captures/abc")

	got, _ := tr.GetJob(job.ID)
	if got.Status != models.JobCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.Progress != 100 {
		t.Errorf("expected progress 100, got %d", got.Progress)
	}
	if got.OutputPath == "" {
		t.Error("expected output path set")
	}
	if tr.Running() != 0 {
		t.Errorf("expected running to decrement to 0, got %d", tr.Running())
	}
}

func TestFailJobSetsError(t *testing.T) {
	tr := New(1)
	job := tr.CreateJob("https://a.com", models.DefaultCaptureOptions())
	tr.StartJob(job.ID)
	tr.FailJob(job.ID, "navigation timed out")

	got, _ := tr.GetJob(job.ID)
	if got.Status != models.JobFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.Error == "" {
		t.Error("expected error message set")
	}
	if tr.Running() != 0 {
		t.Errorf("expected running decremented, got %d", tr.Running())
	}
}

func TestUpdateStepTransitions(t *testing.T) {
	tr := New(1)
	job := tr.CreateJob("https://a.com", models.DefaultCaptureOptions())

	tr.UpdateStep(job.ID, "navigate", models.StepInProgress)
	tr.UpdateStep(job.ID, "navigate", models.StepCompleted)

	got, _ := tr.GetJob(job.ID)
	if len(got.Steps) != 1 {
		t.Fatalf("expected single merged step entry, got %d", len(got.Steps))
	}
	if got.Steps[0].State != models.StepCompleted {
		t.Errorf("expected step completed, got %s", got.Steps[0].State)
	}
	if got.Steps[0].EndedAt == nil {
		t.Error("expected EndedAt set on completed step")
	}
}

func TestCleanupOldJobs(t *testing.T) {
	tr := New(1)
	job := tr.CreateJob("https://a.com", models.DefaultCaptureOptions())
	tr.StartJob(job.ID)
	tr.CompleteJob(job.ID, "/x")

	old := time.Now().UTC().Add(-48 * time.Hour)
	tr.jobs[job.ID].CompletedAt = &old

	removed := tr.CleanupOldJobs(24 * time.Hour)
	if removed != 1 {
		t.Fatalf("expected 1 job removed, got %d", removed)
	}
	if _, ok := tr.GetJob(job.ID); ok {
		t.Error("expected job to be gone after cleanup")
	}
}

func TestBatchDerivationPartial(t *testing.T) {
	tr := New(3)
	members := []models.BatchMember{
		{JobID: "j1", URL: "https://a.com", Status: models.JobPending},
		{JobID: "j2", URL: "https://b.com", Status: models.JobPending},
	}
	b := tr.CreateBatch(members)
	if b.Status != models.BatchPending {
		t.Fatalf("expected pending, got %s", b.Status)
	}

	tr.UpdateBatchMember(b.BatchID, "j1", models.JobCompleted)
	tr.UpdateBatchMember(b.BatchID, "j2", models.JobFailed)

	got, _ := tr.GetBatch(b.BatchID)
	if got.Status != models.BatchPartial {
		t.Fatalf("expected partial, got %s", got.Status)
	}
	if got.Progress != 50 {
		t.Errorf("expected 50%% progress, got %v", got.Progress)
	}
}
