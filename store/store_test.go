package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/use-agent/archivist/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s := New(dir)
	if err := s.Initialize(); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestInitializeCreatesIndex(t *testing.T) {
	s := newTestStore(t)
	if _, err := os.Stat(s.indexPath()); err != nil {
		t.Fatalf("expected index.json to exist: %v", err)
	}
}

func TestSaveAndGetCapture(t *testing.T) {
	s := newTestStore(t)

	in := SaveInput{
		URL:   "https://example.com/page",
		Title: "Example Page",
		HTML:  "<html><body>hi</body></html>",
		Resources: []models.ResourceDescriptor{
			{URL: "https://example.com/a.png", LocalPath: "images/a.png", Kind: models.KindImage},
		},
		Mode: models.CaptureModeSingle,
	}
	data := map[string][]byte{"images/a.png": []byte("fake-bytes")}

	id, err := s.SaveCapture(in, data)
	if err != nil {
		t.Fatal(err)
	}

	meta, err := s.GetCapture(id)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Title != "Example Page" {
		t.Errorf("unexpected title: %s", meta.Title)
	}
	if meta.Stats.ResourcesByKind["images"] != 1 {
		t.Errorf("expected 1 image resource counted, got %+v", meta.Stats.ResourcesByKind)
	}

	html, err := s.GetCaptureHTML(id)
	if err != nil {
		t.Fatal(err)
	}
	if string(html) != in.HTML {
		t.Errorf("unexpected HTML: %s", html)
	}

	if _, err := os.Stat(filepath.Join(s.baseDir, id, "images", "a.png")); err != nil {
		t.Errorf("expected resource file written: %v", err)
	}
}

func TestListCapturesFilterSortPaginate(t *testing.T) {
	s := newTestStore(t)

	titles := []string{"Banana", "Apple", "Cherry"}
	for _, title := range titles {
		_, err := s.SaveCapture(SaveInput{
			URL: "https://example.com/" + title, Title: title, HTML: "<html></html>",
		}, nil)
		if err != nil {
			t.Fatal(err)
		}
	}

	res, err := s.ListCaptures(models.ListFilter{Sort: "title", Order: "asc"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 3 {
		t.Fatalf("expected 3 captures, got %d", res.Total)
	}
	if res.Captures[0].Title != "Apple" || res.Captures[2].Title != "Cherry" {
		t.Errorf("expected alphabetical order, got %v", res.Captures)
	}

	page, err := s.ListCaptures(models.ListFilter{Sort: "title", Order: "asc", Limit: 1, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Captures) != 1 || page.Captures[0].Title != "Banana" {
		t.Errorf("unexpected page: %+v", page.Captures)
	}
	if !page.HasMore {
		t.Error("expected HasMore true")
	}
}

func TestUpdateMetadataOnlyMutableFields(t *testing.T) {
	s := newTestStore(t)
	id, err := s.SaveCapture(SaveInput{URL: "https://example.com/x", Title: "Orig", HTML: "<html></html>"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	newTitle := "Updated"
	if err := s.UpdateMetadata(id, models.MetadataUpdate{Title: &newTitle, Tags: []string{"news"}}); err != nil {
		t.Fatal(err)
	}

	meta, err := s.GetCapture(id)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Title != "Updated" {
		t.Errorf("expected updated title, got %s", meta.Title)
	}
	if len(meta.Tags) != 1 || meta.Tags[0] != "news" {
		t.Errorf("expected tags updated, got %v", meta.Tags)
	}

	res, err := s.ListCaptures(models.ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Captures[0].Title != "Updated" {
		t.Errorf("expected index summary updated too, got %s", res.Captures[0].Title)
	}
}

func TestDeleteCapture(t *testing.T) {
	s := newTestStore(t)
	id, err := s.SaveCapture(SaveInput{URL: "https://example.com/x", Title: "X", HTML: "<html></html>"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteCapture(id); err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetCapture(id); err == nil {
		t.Error("expected capture to be gone")
	}
	if _, err := os.Stat(filepath.Join(s.baseDir, id)); !os.IsNotExist(err) {
		t.Error("expected capture directory removed")
	}

	res, err := s.ListCaptures(models.ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 0 {
		t.Errorf("expected empty index after delete, got %d", res.Total)
	}
}

func TestDeleteCaptureMissing(t *testing.T) {
	s := newTestStore(t)
	if err := s.DeleteCapture("nonexistent"); err == nil {
		t.Error("expected error deleting nonexistent capture")
	}
}
