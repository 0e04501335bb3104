package downloader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/use-agent/archivist/models"
	"github.com/use-agent/archivist/ratelimit"
)

func TestSessionNormalize(t *testing.T) {
	d := &Downloader{cfg: DefaultConfig()}
	sess, err := d.NewSession("https://example.com/articles/one")
	if err != nil {
		t.Fatal(err)
	}

	cases := map[string]string{
		"//cdn.example.com/a.png":   "https://cdn.example.com/a.png",
		"/static/b.css":             "https://example.com/static/b.css",
		"https://other.com/c.js":    "https://other.com/c.js",
		"images/d.png":              "https://example.com/articles/images/d.png",
	}
	for in, want := range cases {
		got, err := sess.Normalize(in)
		if err != nil {
			t.Errorf("Normalize(%q) error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSessionNormalizeNoBaseFails(t *testing.T) {
	d := &Downloader{cfg: DefaultConfig()}
	sess := &Session{d: d, cache: make(map[string]*Result)}
	if _, err := sess.Normalize("/relative/path.png"); err == nil {
		t.Fatal("expected error resolving relative URL without base")
	}
}

func TestFetchAndDedup(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("fake-png-bytes"))
	}))
	defer srv.Close()

	limiter := ratelimit.New(0, 5*time.Second, time.Hour)
	defer limiter.Close()

	d := New(limiter, Config{Timeout: 5 * time.Second, MaxRedirects: 5, Retries: 1, UserAgent: chromeUA})
	d.client = srv.Client()

	sess, err := d.NewSession(srv.URL + "/page")
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	res1, err := sess.Fetch(ctx, srv.URL+"/logo.png", models.KindImage)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if string(res1.Data) != "fake-png-bytes" {
		t.Errorf("unexpected body: %s", res1.Data)
	}

	res2, err := sess.Fetch(ctx, srv.URL+"/logo.png", models.KindImage)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if res2 != res1 {
		t.Errorf("expected cached result on second fetch")
	}
	if calls != 1 {
		t.Errorf("expected 1 HTTP call due to dedup cache, got %d", calls)
	}
}

func TestFetchAllPartitionsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad.png" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	limiter := ratelimit.New(0, 5*time.Second, time.Hour)
	defer limiter.Close()

	d := New(limiter, Config{Timeout: 5 * time.Second, MaxRedirects: 5, Retries: 1, UserAgent: chromeUA})
	d.client = srv.Client()

	sess, err := d.NewSession(srv.URL + "/page")
	if err != nil {
		t.Fatal(err)
	}

	result := sess.FetchAll(context.Background(), []string{
		srv.URL + "/good.png",
		srv.URL + "/bad.png",
	}, models.KindImage, 2)

	if len(result.Succeeded) != 1 {
		t.Errorf("expected 1 succeeded, got %d", len(result.Succeeded))
	}
	if len(result.Failed) != 1 {
		t.Errorf("expected 1 failed, got %d", len(result.Failed))
	}
}
