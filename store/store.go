// Package store implements the Capture Store (spec.md §4.7, C7): the
// on-disk directory-per-capture layout plus a JSON catalog index, with
// list/filter/sort/paginate/mutate operations.
//
// The process-wide index mutex and write-to-temp-then-rename style
// mirrors the teacher's crawlStore/batchStore patterns in
// api/handler/crawl.go and api/handler/batch.go, generalized from an
// in-memory sync.Map of job state to a durable on-disk catalog.
package store

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/use-agent/archivist/models"
)

// captureMap is an insertion-ordered id->summary index, used as the
// in-memory working form of index.json so repeated id lookups during
// update/delete don't require a linear scan, while still serializing
// back to a plain slice (index.json's on-disk shape) in insertion order.
type captureMap = orderedmap.OrderedMap[string, models.CaptureSummary]

func toCaptureMap(captures []models.CaptureSummary) *captureMap {
	om := orderedmap.New[string, models.CaptureSummary]()
	for _, c := range captures {
		om.Set(c.ID, c)
	}
	return om
}

func fromCaptureMap(om *captureMap) []models.CaptureSummary {
	out := make([]models.CaptureSummary, 0, om.Len())
	for pair := om.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Store persists captures under baseDir/<captureId>/ with a shared
// captures/index.json catalog. All index mutations serialize through mu,
// per spec.md §5's single-writer-lock requirement.
type Store struct {
	baseDir string
	mu      sync.Mutex
}

const indexVersion = 1

// New creates a Store rooted at baseDir. Call Initialize before use.
func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) indexPath() string { return filepath.Join(s.baseDir, "index.json") }

// Initialize creates the captures directory and an empty index.json if
// either is missing.
func (s *Store) Initialize() error {
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return models.NewCaptureError(models.ErrCodePersistence, "creating captures directory", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.indexPath()); os.IsNotExist(err) {
		return s.writeIndexLocked(&models.CaptureIndex{Version: indexVersion})
	}
	return nil
}

// readIndexLocked loads index.json, tolerating an absent or corrupt file
// by recreating an empty shell, per spec.md §4.7's invariant.
func (s *Store) readIndexLocked() (*models.CaptureIndex, error) {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return &models.CaptureIndex{Version: indexVersion}, nil
		}
		return nil, models.NewCaptureError(models.ErrCodePersistence, "reading index", err)
	}
	var idx models.CaptureIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return &models.CaptureIndex{Version: indexVersion}, nil
	}
	return &idx, nil
}

// writeIndexLocked atomically replaces index.json (write to temp file,
// then rename) so a crash mid-write never leaves a half-written catalog.
func (s *Store) writeIndexLocked(idx *models.CaptureIndex) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return models.NewCaptureError(models.ErrCodePersistence, "encoding index", err)
	}
	tmp := s.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return models.NewCaptureError(models.ErrCodePersistence, "writing index temp file", err)
	}
	if err := os.Rename(tmp, s.indexPath()); err != nil {
		return models.NewCaptureError(models.ErrCodePersistence, "renaming index temp file", err)
	}
	return nil
}

// SaveInput bundles everything saveCapture needs.
type SaveInput struct {
	URL       string
	Title     string
	HTML      string
	Resources []models.ResourceDescriptor // bytes are passed separately in SaveCapture's resourceData, keyed by LocalPath
	Mode      models.CaptureMode
}

// SaveCapture allocates a capture id, writes the directory tree and
// metadata, and appends an index summary. resourceData supplies the raw
// bytes for each resource in in.Resources, keyed by LocalPath. On any
// failure the partially-written directory is removed, per spec.md §4.7.
func (s *Store) SaveCapture(in SaveInput, resourceData map[string][]byte) (id string, err error) {
	id = uuid.NewString()
	dir := filepath.Join(s.baseDir, id)

	defer func() {
		if err != nil {
			os.RemoveAll(dir)
		}
	}()

	if err = os.MkdirAll(dir, 0o755); err != nil {
		return "", models.NewCaptureError(models.ErrCodePersistence, "creating capture directory", err)
	}
	for _, bucket := range []string{"images", "css", "js", "fonts"} {
		if err = os.MkdirAll(filepath.Join(dir, bucket), 0o755); err != nil {
			return "", models.NewCaptureError(models.ErrCodePersistence, "creating bucket directory", err)
		}
	}

	if err = os.WriteFile(filepath.Join(dir, "index.html"), []byte(in.HTML), 0o644); err != nil {
		return "", models.NewCaptureError(models.ErrCodePersistence, "writing index.html", err)
	}

	statsByKind := map[string]int{}
	for _, r := range in.Resources {
		if r.Inline {
			continue
		}
		data, ok := resourceData[r.LocalPath]
		if !ok {
			continue
		}
		full := filepath.Join(dir, filepath.FromSlash(r.LocalPath))
		if err = os.WriteFile(full, data, 0o644); err != nil {
			return "", models.NewCaptureError(models.ErrCodePersistence, "writing resource "+r.LocalPath, err)
		}
		statsByKind[string(r.Kind)]++
	}

	size, err := dirSize(dir)
	if err != nil {
		return "", models.NewCaptureError(models.ErrCodePersistence, "computing capture size", err)
	}

	now := time.Now().UTC()
	meta := models.CaptureMetadata{
		ID:          id,
		URL:         in.URL,
		Title:       in.Title,
		CapturedAt:  now,
		CaptureMode: in.Mode,
		Stats: models.CaptureStats{
			TotalPages:      1,
			ResourcesByKind: statsByKind,
			TotalSize:       size,
		},
		Status: "completed",
	}
	if err = s.writeMetadata(dir, &meta); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx, rerr := s.readIndexLocked()
	if rerr != nil {
		err = rerr
		return "", err
	}
	om := toCaptureMap(idx.Captures)
	om.Set(meta.ID, summaryFromMetadata(&meta))
	idx.Captures = fromCaptureMap(om)
	if err = s.writeIndexLocked(idx); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) writeMetadata(dir string, meta *models.CaptureMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return models.NewCaptureError(models.ErrCodePersistence, "encoding metadata", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), data, 0o644); err != nil {
		return models.NewCaptureError(models.ErrCodePersistence, "writing metadata.json", err)
	}
	return nil
}

func summaryFromMetadata(m *models.CaptureMetadata) models.CaptureSummary {
	return models.CaptureSummary{
		ID:          m.ID,
		URL:         m.URL,
		Title:       m.Title,
		CapturedAt:  m.CapturedAt,
		CaptureMode: m.CaptureMode,
		TotalSize:   m.Stats.TotalSize,
		Tags:        m.Tags,
		Collections: m.Collections,
		Notes:       m.Notes,
		Thumbnail:   nil,
	}
}

// containsFold is also reused to test a collection filter.

func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.Walk(root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}

// GetCapture returns the metadata for id, failing if it doesn't exist.
func (s *Store) GetCapture(id string) (*models.CaptureMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, id, "metadata.json"))
	if err != nil {
		return nil, models.NewCaptureError(models.ErrCodeInvalidInput, "capture not found: "+id, err)
	}
	var meta models.CaptureMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, models.NewCaptureError(models.ErrCodePersistence, "corrupt metadata.json for "+id, err)
	}
	return &meta, nil
}

// GetCaptureHTML returns the index.html bytes for id.
func (s *Store) GetCaptureHTML(id string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, id, "index.html"))
	if err != nil {
		return nil, models.NewCaptureError(models.ErrCodeInvalidInput, "capture HTML not found: "+id, err)
	}
	return data, nil
}

// DeleteCapture removes id from the index, then removes its directory.
func (s *Store) DeleteCapture(id string) error {
	s.mu.Lock()
	idx, err := s.readIndexLocked()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	om := toCaptureMap(idx.Captures)
	if _, found := om.Delete(id); !found {
		s.mu.Unlock()
		return models.NewCaptureError(models.ErrCodeInvalidInput, "capture not found: "+id, nil)
	}
	idx.Captures = fromCaptureMap(om)
	if err := s.writeIndexLocked(idx); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	if err := os.RemoveAll(filepath.Join(s.baseDir, id)); err != nil {
		return models.NewCaptureError(models.ErrCodePersistence, "removing capture directory", err)
	}
	return nil
}

// UpdateMetadata mutates only {title, tags, notes, collections} on both
// metadata.json and the index summary, per spec.md §4.7.
func (s *Store) UpdateMetadata(id string, upd models.MetadataUpdate) error {
	dir := filepath.Join(s.baseDir, id)
	meta, err := s.GetCapture(id)
	if err != nil {
		return err
	}

	if upd.Title != nil {
		meta.Title = *upd.Title
	}
	if upd.Tags != nil {
		meta.Tags = upd.Tags
	}
	if upd.Notes != nil {
		meta.Notes = *upd.Notes
	}
	if upd.Collections != nil {
		meta.Collections = upd.Collections
	}

	if err := s.writeMetadata(dir, meta); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.readIndexLocked()
	if err != nil {
		return err
	}
	om := toCaptureMap(idx.Captures)
	om.Set(id, summaryFromMetadata(meta))
	idx.Captures = fromCaptureMap(om)
	return s.writeIndexLocked(idx)
}

// ListCaptures filters/sorts/paginates the index per spec.md §4.7.
func (s *Store) ListCaptures(f models.ListFilter) (*models.ListResult, error) {
	s.mu.Lock()
	idx, err := s.readIndexLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	filtered := make([]models.CaptureSummary, 0, len(idx.Captures))
	for _, c := range idx.Captures {
		if f.Tag != "" && !containsFold(c.Tags, f.Tag) {
			continue
		}
		if f.Collection != "" && !containsFold(c.Collections, f.Collection) {
			continue
		}
		if f.Search != "" && !matchesSearch(c, f.Search) {
			continue
		}
		filtered = append(filtered, c)
	}

	sortCaptures(filtered, f.Sort, f.Order)

	total := len(filtered)
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	limit := f.Limit
	if limit <= 0 {
		limit = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	page := filtered[offset:end]
	return &models.ListResult{
		Total:     total,
		Captures:  page,
		HasMore:   end < total,
	}, nil
}

func containsFold(list []string, want string) bool {
	for _, v := range list {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

func matchesSearch(c models.CaptureSummary, q string) bool {
	q = strings.ToLower(q)
	haystack := strings.ToLower(c.Title + " " + c.URL + " " + c.Notes)
	return strings.Contains(haystack, q)
}

func sortCaptures(list []models.CaptureSummary, sortBy, order string) {
	desc := strings.EqualFold(order, "desc")
	less := func(i, j int) bool {
		switch sortBy {
		case "title":
			return strings.ToLower(list[i].Title) < strings.ToLower(list[j].Title)
		case "size":
			return list[i].TotalSize < list[j].TotalSize
		default: // "date"
			return list[i].CapturedAt.Before(list[j].CapturedAt)
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		if desc {
			return less(j, i)
		}
		return less(i, j)
	})
}

// WriteResourceData is a helper exposed for the orchestrator: it reads all
// bytes from r and returns them for inclusion in a SaveInput's
// resourceData map.
func WriteResourceData(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading resource data: %w", err)
	}
	return data, nil
}
