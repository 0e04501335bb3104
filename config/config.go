package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Crawl     CrawlConfig
	RateLimit RateLimitConfig
	Store     StoreConfig
	Job       JobConfig
	Log       LogConfig
}

// ServerConfig controls the queue-facing HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8090
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the headless browser instance backing the
// Browser capability.
type BrowserConfig struct {
	Headless   bool   // default: true
	MaxPages   int    // page pool capacity; default: 10
	NoSandbox  bool   // default: false (set true inside containers)
	BrowserBin string // override the Chromium binary path
}

// CrawlConfig controls BFS crawler and per-page download concurrency,
// per spec.md §5/§6. cmd/archivist reads ResourceConcurrency,
// ResourceTimeout and DownloadRetries; the crawler runs on its own fixed
// worker counts and navigation timeout, and FontFetchTimeout is not read.
type CrawlConfig struct {
	// CaptureWorkers is the BFS capture-mode per-level parallelism. default: 3
	CaptureWorkers int
	// DiscoveryWorkers is the BFS discovery-mode per-level parallelism. default: 1
	DiscoveryWorkers int
	// ResourceConcurrency is per-page-resource download concurrency. default: 5
	ResourceConcurrency int
	// NavigationTimeout bounds a single page navigation.
	NavigationTimeout time.Duration // default: 15s
	// ResourceTimeout bounds a single resource GET.
	ResourceTimeout time.Duration // default: 30s
	// FontFetchTimeout bounds a stylesheet GET performed for font extraction.
	FontFetchTimeout time.Duration // default: 15s
	// DownloadRetries is the max attempts for downloadWithRetry. default: 3
	DownloadRetries int
}

// RateLimitConfig controls C1's per-domain politeness spacing.
type RateLimitConfig struct {
	// MinDelay is the minimum spacing between requests to the same domain.
	MinDelay time.Duration // default: 1000ms
	// MaxRetryAfter caps how long handleRetryAfter will sleep.
	MaxRetryAfter time.Duration // default: 300s
	// EntryTTL evicts a domain's lastRequestTime entry after this long unused.
	EntryTTL time.Duration // default: 1h
}

// StoreConfig controls the on-disk capture store and temp directory.
type StoreConfig struct {
	BaseDir string // captures base directory; default: "./data/captures"
	TempDir string // in-flight download scratch space; default: "./data/tmp"
}

// JobConfig controls the in-memory job/batch/test-crawl trackers.
type JobConfig struct {
	// MaxConcurrent bounds simultaneous in-flight capture jobs. default: 3
	MaxConcurrent int

	// Retention ages: jobs, batches and test crawls in a terminal state
	// older than these are swept by cmd/archivist's sweepLoop. Defaults
	// per spec.md §6. TempFileRetention is loaded but no sweep reads it.
	JobRetention       time.Duration // default: 7 * 24h
	BatchRetention     time.Duration // default: 7 * 24h
	TestCrawlRetention time.Duration // default: 2 * 24h
	TempFileRetention  time.Duration // default: 1 * 24h

	// SweepInterval is how often the sweep loop's ticker fires.
	SweepInterval time.Duration // default: 5m
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("ARCHIVIST_HOST", "0.0.0.0"),
			Port: envIntOr("ARCHIVIST_PORT", 8090),
			Mode: envOr("ARCHIVIST_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:   envBoolOr("ARCHIVIST_HEADLESS", true),
			MaxPages:   envIntOr("ARCHIVIST_MAX_PAGES", 10),
			NoSandbox:  envBoolOr("ARCHIVIST_NO_SANDBOX", false),
			BrowserBin: os.Getenv("ARCHIVIST_BROWSER_BIN"),
		},
		Crawl: CrawlConfig{
			CaptureWorkers:      envIntOr("ARCHIVIST_CAPTURE_WORKERS", 3),
			DiscoveryWorkers:    envIntOr("ARCHIVIST_DISCOVERY_WORKERS", 1),
			ResourceConcurrency: envIntOr("ARCHIVIST_RESOURCE_CONCURRENCY", 5),
			NavigationTimeout:   envDurationOr("ARCHIVIST_NAV_TIMEOUT", 15*time.Second),
			ResourceTimeout:     envDurationOr("ARCHIVIST_RESOURCE_TIMEOUT", 30*time.Second),
			FontFetchTimeout:    envDurationOr("ARCHIVIST_FONT_TIMEOUT", 15*time.Second),
			DownloadRetries:     envIntOr("ARCHIVIST_DOWNLOAD_RETRIES", 3),
		},
		RateLimit: RateLimitConfig{
			MinDelay:      envDurationOr("ARCHIVIST_MIN_DELAY", 1000*time.Millisecond),
			MaxRetryAfter: envDurationOr("ARCHIVIST_MAX_RETRY_AFTER", 300*time.Second),
			EntryTTL:      envDurationOr("ARCHIVIST_RATE_ENTRY_TTL", 1*time.Hour),
		},
		Store: StoreConfig{
			BaseDir: envOr("ARCHIVIST_STORE_DIR", "./data/captures"),
			TempDir: envOr("ARCHIVIST_TEMP_DIR", "./data/tmp"),
		},
		Job: JobConfig{
			MaxConcurrent:      envIntOr("ARCHIVIST_MAX_CONCURRENT", 3),
			JobRetention:       envDurationOr("ARCHIVIST_JOB_RETENTION", 7*24*time.Hour),
			BatchRetention:     envDurationOr("ARCHIVIST_BATCH_RETENTION", 7*24*time.Hour),
			TestCrawlRetention: envDurationOr("ARCHIVIST_TESTCRAWL_RETENTION", 2*24*time.Hour),
			TempFileRetention:  envDurationOr("ARCHIVIST_TEMPFILE_RETENTION", 1*24*time.Hour),
			SweepInterval:      envDurationOr("ARCHIVIST_SWEEP_INTERVAL", 5*time.Minute),
		},
		Log: LogConfig{
			Level:  envOr("ARCHIVIST_LOG_LEVEL", "info"),
			Format: envOr("ARCHIVIST_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
