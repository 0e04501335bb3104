// Package jobtracker implements the Job Tracker (spec.md §4.8, C8):
// in-memory Capture Job and Batch Job bookkeeping with a bounded
// concurrent-job counter.
//
// Adapted from the teacher's api/handler/batch.go, which keeps batch and
// job state in sync.Map instances with a ticker-driven eviction loop;
// here spec.md §5 calls for a single-writer lock per map instead of
// lock-free maps, so a plain mutex-guarded map is used, with the same
// ticker-eviction shape for cleanupOldJobs.
package jobtracker

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/use-agent/archivist/models"
)

// Tracker owns the in-memory job and batch maps plus the running-job
// counter bounded by maxConcurrent.
type Tracker struct {
	mu            sync.Mutex
	jobs          map[string]*models.CaptureJob
	batches       map[string]*models.BatchJob
	running       int
	maxConcurrent int
}

// New creates a Tracker allowing up to maxConcurrent simultaneously
// running jobs.
func New(maxConcurrent int) *Tracker {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Tracker{
		jobs:          make(map[string]*models.CaptureJob),
		batches:       make(map[string]*models.BatchJob),
		maxConcurrent: maxConcurrent,
	}
}

// CreateJob allocates a pending Capture Job for url/options.
func (t *Tracker) CreateJob(url string, options models.CaptureOptions) *models.CaptureJob {
	t.mu.Lock()
	defer t.mu.Unlock()

	job := &models.CaptureJob{
		ID:        uuid.NewString(),
		URL:       url,
		Options:   options,
		Status:    models.JobPending,
		Stats:     models.NewJobStats(),
		CreatedAt: time.Now().UTC(),
	}
	t.jobs[job.ID] = job
	return job
}

// StartJob transitions a pending job to processing, unless running jobs
// are already at maxConcurrent, in which case the job is left pending and
// ok is false.
func (t *Tracker) StartJob(jobID string) (ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, found := t.jobs[jobID]
	if !found || job.Status != models.JobPending {
		return false
	}
	if t.running >= t.maxConcurrent {
		return false
	}

	now := time.Now().UTC()
	job.Status = models.JobProcessing
	job.StartedAt = &now
	t.running++
	return true
}

// UpdateStep appends or updates the job's current step log entry.
func (t *Tracker) UpdateStep(jobID, name string, state models.StepState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, found := t.jobs[jobID]
	if !found {
		return
	}

	now := time.Now().UTC()
	if len(job.Steps) > 0 {
		last := &job.Steps[len(job.Steps)-1]
		if last.Name == name && last.State == models.StepInProgress {
			last.State = state
			if state != models.StepInProgress {
				last.EndedAt = &now
			}
			job.CurrentStep = name
			return
		}
	}

	step := models.Step{Name: name, State: state, StartedAt: now}
	if state != models.StepInProgress {
		step.EndedAt = &now
	}
	job.Steps = append(job.Steps, step)
	job.CurrentStep = name
}

// UpdateProgress sets the job's 0..100 progress value.
func (t *Tracker) UpdateProgress(jobID string, progress int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if job, ok := t.jobs[jobID]; ok {
		job.Progress = clamp(progress, 0, 100)
	}
}

// UpdateStats replaces the job's stats snapshot.
func (t *Tracker) UpdateStats(jobID string, stats models.JobStats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if job, ok := t.jobs[jobID]; ok {
		job.Stats = stats
	}
}

// CompleteJob marks jobID completed with outputPath, decrementing running.
func (t *Tracker) CompleteJob(jobID, outputPath string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, found := t.jobs[jobID]
	if !found || job.Status != models.JobProcessing {
		return
	}
	now := time.Now().UTC()
	job.Status = models.JobCompleted
	job.Progress = 100
	job.OutputPath = outputPath
	job.CompletedAt = &now
	t.running--
}

// FailJob marks jobID failed with errMsg, decrementing running.
func (t *Tracker) FailJob(jobID, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, found := t.jobs[jobID]
	if !found || job.Status != models.JobProcessing && job.Status != models.JobPending {
		return
	}
	wasRunning := job.Status == models.JobProcessing
	now := time.Now().UTC()
	job.Status = models.JobFailed
	job.Error = errMsg
	job.CompletedAt = &now
	if wasRunning {
		t.running--
	}
}

// GetJob returns the tracker's own pointer to the job (not a copy), and
// false if the id is unknown.
func (t *Tracker) GetJob(jobID string) (*models.CaptureJob, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[jobID]
	return job, ok
}

// CleanupOldJobs drops finished (completed/failed) jobs whose CompletedAt
// is older than maxAge.
func (t *Tracker) CleanupOldJobs(maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().UTC().Add(-maxAge)
	removed := 0
	for id, job := range t.jobs {
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(t.jobs, id)
			removed++
		}
	}
	return removed
}

// --- Batch mirror ---

// CreateBatch allocates a Batch Job covering the given member URLs, each
// already assigned its own Capture Job id.
func (t *Tracker) CreateBatch(members []models.BatchMember) *models.BatchJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := &models.BatchJob{
		BatchID:   uuid.NewString(),
		Members:   members,
		CreatedAt: time.Now().UTC(),
	}
	b.DeriveStatus()
	t.batches[b.BatchID] = b
	return b
}

// UpdateBatchMember updates one member's status and re-derives the
// batch's aggregate status per spec.md §3's derivation rule.
func (t *Tracker) UpdateBatchMember(batchID, jobID string, status models.JobStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, found := t.batches[batchID]
	if !found {
		return
	}
	for i := range b.Members {
		if b.Members[i].JobID == jobID {
			b.Members[i].Status = status
			break
		}
	}
	b.DeriveStatus()
	if b.Status == models.BatchCompleted || b.Status == models.BatchFailed || b.Status == models.BatchPartial {
		now := time.Now().UTC()
		b.CompletedAt = &now
	}
}

// GetBatch returns the batch, or nil if unknown.
func (t *Tracker) GetBatch(batchID string) (*models.BatchJob, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.batches[batchID]
	return b, ok
}

// CleanupOldBatches drops terminal batches older than maxAge.
func (t *Tracker) CleanupOldBatches(maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().UTC().Add(-maxAge)
	removed := 0
	for id, b := range t.batches {
		if b.CompletedAt != nil && b.CompletedAt.Before(cutoff) {
			delete(t.batches, id)
			removed++
		}
	}
	return removed
}

// Running returns the current count of in-flight jobs, for diagnostics.
func (t *Tracker) Running() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
