package models

import "time"

// CaptureMode distinguishes a single-page capture from a BFS multi-page one.
type CaptureMode string

const (
	CaptureModeSingle CaptureMode = "single-page"
	CaptureModeMulti  CaptureMode = "multi-page"
)

// CaptureStats summarizes resource and page counts for a completed (or
// in-progress) capture.
type CaptureStats struct {
	TotalPages       int            `json:"total_pages"`
	ResourcesByKind  map[string]int `json:"resources_by_kind"`
	TotalSize        int64          `json:"total_size"`
}

// CaptureMetadata is the full record persisted as metadata.json inside a
// capture directory, per spec.md §3 "Capture Record" and §6's on-disk
// archive format.
type CaptureMetadata struct {
	ID          string       `json:"id"`
	URL         string       `json:"url"`
	Title       string       `json:"title"`
	CapturedAt  time.Time    `json:"captured_at"`
	CaptureMode CaptureMode  `json:"capture_mode"`
	Stats       CaptureStats `json:"stats"`
	Tags        []string     `json:"tags"`
	Notes       string       `json:"notes"`
	Collections []string     `json:"collections"`
	Status      string       `json:"status"` // "completed" or "failed"
	Error       string       `json:"error,omitempty"`
}

// CaptureSummary mirrors the subset of CaptureMetadata kept in
// captures/index.json for fast listing, per spec.md §6.
type CaptureSummary struct {
	ID          string      `json:"id"`
	URL         string      `json:"url"`
	Title       string      `json:"title"`
	CapturedAt  time.Time   `json:"captured_at"`
	CaptureMode CaptureMode `json:"capture_mode"`
	Thumbnail   *string     `json:"thumbnail"` // always null (spec.md §9 open question)
	TotalSize   int64       `json:"total_size"`
	Tags        []string    `json:"tags"`
	Notes       string      `json:"notes"`
	Collections []string    `json:"collections"`
}

// CaptureIndex is the full contents of captures/index.json.
type CaptureIndex struct {
	Version     int              `json:"version"`
	Captures    []CaptureSummary `json:"captures"`
	Collections []string         `json:"collections"`
}

// ListFilter parameterizes Store.ListCaptures.
type ListFilter struct {
	Tag        string
	Collection string
	Search     string
	Sort       string // "date", "title", "size"
	Order      string // "asc", "desc"
	Limit      int
	Offset     int
}

// ListResult is the paginated response of Store.ListCaptures.
type ListResult struct {
	Total    int              `json:"total"`
	Captures []CaptureSummary `json:"captures"`
	HasMore  bool             `json:"has_more"`
}

// MetadataUpdate carries the only fields updateMetadata may mutate.
type MetadataUpdate struct {
	Title       *string
	Tags        []string
	Notes       *string
	Collections []string
}
