package models

import "time"

// JobStatus is a Capture Job's lifecycle state, per spec.md §3.
// Monotonic transitions: pending -> processing -> {completed|failed}.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// StepState is one step log entry's lifecycle state.
type StepState string

const (
	StepInProgress StepState = "in_progress"
	StepCompleted  StepState = "completed"
	StepFailed     StepState = "failed"
)

// Step is one entry in a Capture Job's ordered step log.
type Step struct {
	Name      string     `json:"name"`
	State     StepState  `json:"state"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// JobStats tracks pages/resources processed during a capture, per spec.md §3.
type JobStats struct {
	PagesProcessed     int                         `json:"pages_processed"`
	TotalPages         int                         `json:"total_pages"`
	ResourcesSucceeded map[string]int              `json:"resources_succeeded"` // by kind
	ResourcesFailed    map[string][]ResourceFailure `json:"resources_failed"`   // by kind
}

// NewJobStats returns a JobStats with initialized maps.
func NewJobStats() JobStats {
	return JobStats{
		ResourcesSucceeded: make(map[string]int),
		ResourcesFailed:    make(map[string][]ResourceFailure),
	}
}

// CaptureJob tracks one URL's capture, per spec.md §3 "Capture Job".
//
// Invariant: Status == completed implies OutputPath != "" and Progress == 100.
// Status == failed implies Error != "". Mutated only by the owning capture
// goroutine via the Job Tracker.
type CaptureJob struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Options     CaptureOptions `json:"options"`
	Status      JobStatus `json:"status"`
	Progress    int       `json:"progress"` // 0..100
	CurrentStep string    `json:"current_step,omitempty"`
	Steps       []Step    `json:"steps"`
	OutputPath  string    `json:"output_path,omitempty"`
	Error       string    `json:"error,omitempty"`
	Stats       JobStats  `json:"stats"`
	CreatedAt   time.Time `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// BatchMember is one job within a Batch Job.
type BatchMember struct {
	JobID  string    `json:"job_id"`
	URL    string    `json:"url"`
	Status JobStatus `json:"status"`
}

// BatchStatus is a Batch Job's derived status, per spec.md §3's derivation
// rule: all completed -> completed; all failed -> failed; (completed>0 &&
// failed>0 && pending==0) -> partial; untouched -> pending; otherwise
// in_progress.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchInProgress BatchStatus = "in_progress"
	BatchCompleted  BatchStatus = "completed"
	BatchPartial    BatchStatus = "partial"
	BatchFailed     BatchStatus = "failed"
)

// BatchJob aggregates a set of Capture Jobs produced by one multi-page or
// curated capture request, per spec.md §3 "Batch Job".
type BatchJob struct {
	BatchID     string        `json:"batch_id"`
	Members     []BatchMember `json:"members"`
	Total       int           `json:"total"`
	Completed   int           `json:"completed"`
	Failed      int           `json:"failed"`
	PendingCt   int           `json:"pending"`
	Status      BatchStatus   `json:"status"`
	Progress    float64       `json:"progress"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// DeriveStatus recomputes a BatchJob's Status and Progress from its member
// counters, per spec.md §3's derivation rule.
func (b *BatchJob) DeriveStatus() {
	b.Total = len(b.Members)
	completed, failed, pending := 0, 0, 0
	for _, m := range b.Members {
		switch m.Status {
		case JobCompleted:
			completed++
		case JobFailed:
			failed++
		default:
			pending++
		}
	}
	b.Completed = completed
	b.Failed = failed
	b.PendingCt = pending

	switch {
	case b.Total == 0:
		b.Status = BatchPending
	case completed == b.Total:
		b.Status = BatchCompleted
	case failed == b.Total:
		b.Status = BatchFailed
	case completed > 0 && failed > 0 && pending == 0:
		b.Status = BatchPartial
	case completed == 0 && failed == 0:
		b.Status = BatchPending
	default:
		b.Status = BatchInProgress
	}

	if b.Total > 0 {
		b.Progress = float64(completed) / float64(b.Total) * 100
	}
}
