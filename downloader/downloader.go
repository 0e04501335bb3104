// Package downloader implements the Resource Downloader (spec.md §4.2, C2):
// URL normalization, content-addressed filename generation, rate-limited
// HTTP GET with retries, and in-session deduplication.
//
// The outbound HTTP client dials TLS with a Chrome ClientHello fingerprint
// via uTLS, adapted from the teacher's scraper/httpfetch.go — server-side
// resource GETs have no browser behind them, so without a convincing TLS
// fingerprint many sites' bot-detection would reject the raw Go transport.
package downloader

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	tls2 "github.com/refraction-networking/utls"

	"github.com/use-agent/archivist/models"
	"github.com/use-agent/archivist/ratelimit"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

const maxResourceBytes = 50 * 1024 * 1024 // 50MB cap per resource

// Config controls Downloader behavior.
type Config struct {
	Timeout      time.Duration // per-request timeout; default 30s
	MaxRedirects int           // default 5
	Retries      int           // default 3, for downloadWithRetry
	UserAgent    string        // default chromeUA
}

// DefaultConfig returns spec.md §4.2's defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:      30 * time.Second,
		MaxRedirects: 5,
		Retries:      3,
		UserAgent:    chromeUA,
	}
}

// Downloader performs rate-limited, retrying HTTP GETs for capture
// resources. One Downloader is shared across captures; per-capture
// dedup state lives in a Session.
type Downloader struct {
	cfg     Config
	limiter *ratelimit.Limiter
	client  *http.Client
}

// New creates a Downloader backed by the given rate limiter.
func New(limiter *ratelimit.Limiter, cfg Config) *Downloader {
	if cfg.Timeout == 0 {
		cfg = DefaultConfig()
	}
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialTLSChrome(ctx, network, addr)
		},
	}
	return &Downloader{
		cfg:     cfg,
		limiter: limiter,
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= cfg.MaxRedirects {
					return fmt.Errorf("stopped after %d redirects", cfg.MaxRedirects)
				}
				return nil
			},
		},
	}
}

// Result is a successfully downloaded resource plus its raw bytes.
type Result struct {
	Descriptor models.ResourceDescriptor
	Data       []byte
}

// Session scopes resource downloads to a single capture: it holds the
// in-memory URL->descriptor dedup cache and the base URL used to resolve
// scheme-relative and root-relative resource URLs.
type Session struct {
	d       *Downloader
	base    *url.URL
	mu      sync.Mutex
	cache   map[string]*Result
}

// NewSession starts a download session scoped to one capture. baseURL is
// the page URL the capture is rooted at, used to resolve "//host/x" and
// "/x" resource references.
func (d *Downloader) NewSession(baseURL string) (*Session, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, models.NewCaptureError(models.ErrCodeInvalidInput, "invalid base URL", err)
	}
	return &Session{
		d:     d,
		base:  u,
		cache: make(map[string]*Result),
	}, nil
}

// Normalize resolves rawURL against the session's base URL, promoting
// scheme-relative ("//a.b/x") to https and root-relative ("/x") against
// the base origin, per spec.md §4.2.
func (s *Session) Normalize(rawURL string) (string, error) {
	if strings.HasPrefix(rawURL, "//") {
		return "https:" + rawURL, nil
	}
	if strings.HasPrefix(rawURL, "/") {
		if s.base == nil {
			return "", fmt.Errorf("downloader: relative URL %q without a base", rawURL)
		}
		return s.base.Scheme + "://" + s.base.Host + rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.IsAbs() {
		return rawURL, nil
	}
	if s.base == nil {
		return "", fmt.Errorf("downloader: relative URL %q without a base", rawURL)
	}
	return s.base.ResolveReference(u).String(), nil
}

// Fetch downloads one resource, returning the cached Result if this exact
// URL was already fetched in this session.
func (s *Session) Fetch(ctx context.Context, rawURL string, kind models.ResourceKind) (*Result, error) {
	absURL, err := s.Normalize(rawURL)
	if err != nil {
		return nil, models.NewCaptureError(models.ErrCodeDownload, "cannot resolve resource URL", err)
	}

	s.mu.Lock()
	if cached, ok := s.cache[absURL]; ok {
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	result, err := s.d.downloadWithRetry(ctx, absURL, kind)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[absURL] = result
	s.mu.Unlock()
	return result, nil
}

// BulkResult partitions a batch fetch into succeeded and failed resources.
type BulkResult struct {
	Succeeded []*Result
	Failed    []models.ResourceFailure
}

// FetchAll downloads urls in parallel batches of up to concurrency (default
// 5), per spec.md §4.2's bulk mode.
func (s *Session) FetchAll(ctx context.Context, urls []string, kind models.ResourceKind, concurrency int) BulkResult {
	if concurrency <= 0 {
		concurrency = 5
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	out := BulkResult{}

	for _, u := range urls {
		wg.Add(1)
		sem <- struct{}{}
		go func(target string) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := s.Fetch(ctx, target, kind)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				out.Failed = append(out.Failed, models.ResourceFailure{URL: target, Error: err.Error()})
				return
			}
			out.Succeeded = append(out.Succeeded, res)
		}(u)
	}
	wg.Wait()
	return out
}

// downloadWithRetry retries the fetch up to cfg.Retries times with
// exponential backoff (1s * attempt) on any error other than a successful
// 429-then-retry sequence, which get() already handles inline.
func (d *Downloader) downloadWithRetry(ctx context.Context, absURL string, kind models.ResourceKind) (*Result, error) {
	var lastErr error
	retries := d.cfg.Retries
	if retries <= 0 {
		retries = 3
	}
	for attempt := 1; attempt <= retries; attempt++ {
		result, err := d.get(ctx, absURL, kind)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt < retries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}
	return nil, models.NewCaptureError(models.ErrCodeDownload, "download failed after retries", lastErr)
}

// get performs a single rate-limited GET, handling one 429 Retry-After
// recovery inline per spec.md §4.2 ("retry the request once").
func (d *Downloader) get(ctx context.Context, absURL string, kind models.ResourceKind) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	if err := d.limiter.WaitForDomain(ctx, absURL); err != nil {
		return nil, err
	}

	resp, err := d.doGet(ctx, absURL)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := resp.Header.Get("Retry-After")
		resp.Body.Close()
		if _, waitErr := d.limiter.HandleRetryAfter(ctx, retryAfter); waitErr != nil {
			return nil, waitErr
		}
		resp, err = d.doGet(ctx, absURL)
		if err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, models.NewCaptureError(models.ErrCodeDownload,
			fmt.Sprintf("HTTP %d for %s", resp.StatusCode, absURL), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResourceBytes))
	if err != nil {
		return nil, models.NewCaptureError(models.ErrCodeDownload, "reading response body", err)
	}

	contentType := resp.Header.Get("Content-Type")
	filename := GenerateFilename(absURL, contentType)

	return &Result{
		Descriptor: models.ResourceDescriptor{
			URL:         absURL,
			LocalPath:   string(kind) + "/" + filename,
			Filename:    filename,
			ContentType: contentType,
			Size:        int64(len(body)),
			Kind:        kind,
		},
		Data: body,
	}, nil
}

func (d *Downloader) doGet(ctx context.Context, absURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, absURL, nil)
	if err != nil {
		return nil, models.NewCaptureError(models.ErrCodeDownload, "build request", err)
	}
	ua := d.cfg.UserAgent
	if ua == "" {
		ua = chromeUA
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, models.NewCaptureError(models.ErrCodeDownload, "request failed", err)
	}
	return resp, nil
}

// dialTLSChrome establishes a TLS connection using a Chrome ClientHello
// fingerprint via uTLS, adapted from scraper/httpfetch.go's dialTLSChrome.
func dialTLSChrome(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{}
	rawConn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	tlsConn := tls2.UClient(rawConn, &tls2.Config{
		ServerName:         host,
		InsecureSkipVerify: false,
	}, tls2.HelloChrome_Auto)

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// ensure tls.Config isn't accidentally needed elsewhere; utls implements
// its own handshake above.
var _ = tls.VersionTLS13
