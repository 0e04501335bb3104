// Package api is the thin queue-facing HTTP surface described in spec.md
// §1 as an external collaborator with a stated interface only: request
// binding and JSON responses over the Capture Orchestrator (C10), the
// Test-Crawl Manager (C9), the Job Tracker (C8), and the Capture Store
// (C7). It intentionally carries none of the teacher's auth/CORS/
// compression/static-hosting/per-IP-throttling middleware (SPEC_FULL.md
// §13 Non-goals) — those belong to the excluded outer API surface, not
// this module's core.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/archivist/jobtracker"
	"github.com/use-agent/archivist/models"
	"github.com/use-agent/archivist/orchestrator"
	"github.com/use-agent/archivist/store"
	"github.com/use-agent/archivist/testcrawl"
)

// Deps bundles the core components the router binds to.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Jobs         *jobtracker.Tracker
	Store        *store.Store
	TestCrawls   *testcrawl.Manager
	StartTime    time.Time
}

// NewRouter builds the gin engine, grounded on the teacher's
// api/router.go grouping style (a /api/v1 group, health outside any
// gating, everything else flat underneath).
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	v1.GET("/health", health(d))

	v1.POST("/captures", postCapture(d))
	v1.GET("/captures/:jobId", getJob(d))

	v1.POST("/captures/batch", postBatch(d))
	v1.GET("/batches/:batchId", getBatch(d))

	v1.POST("/captures/curated", postCurated(d))

	v1.POST("/test-crawls", postTestCrawl(d))
	v1.GET("/test-crawls/:id", getTestCrawl(d))
	v1.GET("/test-crawls/:id/hierarchical", getTestCrawlHierarchical(d))
	v1.POST("/test-crawls/:id/cancel", cancelTestCrawl(d))

	v1.GET("/archive", listArchive(d))
	v1.GET("/archive/:id", getArchiveEntry(d))
	v1.PATCH("/archive/:id", patchArchiveEntry(d))
	v1.DELETE("/archive/:id", deleteArchiveEntry(d))

	return r
}

type captureRequest struct {
	URL     string                `json:"url" binding:"required"`
	Options models.CaptureOptions `json:"options"`
}

func postCapture(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req captureRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, models.ErrCodeInvalidInput, err.Error())
			return
		}
		jobID := d.Orchestrator.StartCapture(req.URL, req.Options)
		c.JSON(http.StatusAccepted, gin.H{"id": jobID, "status": models.JobPending})
	}
}

func getJob(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := d.Jobs.GetJob(c.Param("jobId"))
		if !ok {
			writeError(c, http.StatusNotFound, models.ErrCodeInvalidInput, "job not found")
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

type batchRequest struct {
	URLs    []string              `json:"urls" binding:"required"`
	Options models.CaptureOptions `json:"options"`
}

func postBatch(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req batchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, models.ErrCodeInvalidInput, err.Error())
			return
		}
		batchID := d.Orchestrator.CaptureMulti(req.URLs, req.Options)
		c.JSON(http.StatusAccepted, gin.H{"batch_id": batchID, "status": models.BatchPending, "total": len(req.URLs)})
	}
}

func getBatch(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		batch, ok := d.Jobs.GetBatch(c.Param("batchId"))
		if !ok {
			writeError(c, http.StatusNotFound, models.ErrCodeInvalidInput, "batch not found")
			return
		}
		c.JSON(http.StatusOK, batch)
	}
}

type curatedRequest struct {
	CrawlID        string                `json:"crawl_id" binding:"required"`
	SelectedURLs   []string              `json:"selected_urls"`
	AdditionalURLs []string              `json:"additional_urls"`
	ExcludedURLs   []string              `json:"excluded_urls"`
	Options        models.CaptureOptions `json:"options"`
}

func postCurated(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req curatedRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, models.ErrCodeInvalidInput, err.Error())
			return
		}
		batchID, err := d.Orchestrator.CaptureCurated(req.CrawlID, req.SelectedURLs, req.AdditionalURLs, req.ExcludedURLs, req.Options)
		if err != nil {
			respondCaptureError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"batch_id": batchID, "status": models.BatchPending})
	}
}

type testCrawlRequest struct {
	URL     string                   `json:"url" binding:"required"`
	Options models.TestCrawlOptions `json:"options"`
}

func postTestCrawl(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req testCrawlRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, models.ErrCodeInvalidInput, err.Error())
			return
		}
		crawlID := d.TestCrawls.Start(req.URL, req.Options)
		c.JSON(http.StatusAccepted, gin.H{"id": crawlID, "status": models.TestCrawlCrawling})
	}
}

func getTestCrawl(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		tc, ok := d.TestCrawls.GetStatus(c.Param("id"))
		if !ok {
			writeError(c, http.StatusNotFound, models.ErrCodeInvalidInput, "test crawl not found")
			return
		}
		c.JSON(http.StatusOK, tc)
	}
}

func getTestCrawlHierarchical(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, ok := d.TestCrawls.GetHierarchical(c.Param("id"))
		if !ok {
			writeError(c, http.StatusNotFound, models.ErrCodeInvalidInput, "test crawl not found")
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

func cancelTestCrawl(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !d.TestCrawls.Cancel(c.Param("id")) {
			writeError(c, http.StatusConflict, models.ErrCodeInvalidInput, "test crawl is not active")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": models.TestCrawlFailed})
	}
}

func listArchive(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := models.ListFilter{
			Tag:        c.Query("tag"),
			Collection: c.Query("collection"),
			Search:     c.Query("search"),
			Sort:       c.DefaultQuery("sort", "date"),
			Order:      c.DefaultQuery("order", "desc"),
			Limit:      queryInt(c, "limit", 50),
			Offset:     queryInt(c, "offset", 0),
		}
		result, err := d.Store.ListCaptures(f)
		if err != nil {
			respondCaptureError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func getArchiveEntry(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		meta, err := d.Store.GetCapture(c.Param("id"))
		if err != nil {
			respondCaptureError(c, err)
			return
		}
		c.JSON(http.StatusOK, meta)
	}
}

type patchArchiveRequest struct {
	Title       *string  `json:"title"`
	Tags        []string `json:"tags"`
	Notes       *string  `json:"notes"`
	Collections []string `json:"collections"`
}

func patchArchiveEntry(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req patchArchiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, models.ErrCodeInvalidInput, err.Error())
			return
		}
		err := d.Store.UpdateMetadata(c.Param("id"), models.MetadataUpdate{
			Title:       req.Title,
			Tags:        req.Tags,
			Notes:       req.Notes,
			Collections: req.Collections,
		})
		if err != nil {
			respondCaptureError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func deleteArchiveEntry(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := d.Store.DeleteCapture(c.Param("id")); err != nil {
			respondCaptureError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// health reports browser page-pool utilization, grounded on the
// teacher's api/handler/health.go, degrading status at >80% active pages.
func health(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := d.Orchestrator.Browser.Stats()
		status := "ok"
		if stats.MaxPages > 0 && float64(stats.ActivePages)/float64(stats.MaxPages) > 0.8 {
			status = "degraded"
		}
		c.JSON(http.StatusOK, gin.H{
			"status":       status,
			"uptime_s":     int(time.Since(d.StartTime).Seconds()),
			"active_pages": stats.ActivePages,
			"max_pages":    stats.MaxPages,
			"jobs_running": d.Jobs.Running(),
		})
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// respondCaptureError maps a *models.CaptureError to the corresponding HTTP
// status code, mirroring the teacher's mapErrorToStatus in
// api/handler/scrape.go.
func respondCaptureError(c *gin.Context, err error) {
	ce, ok := err.(*models.CaptureError)
	if !ok {
		ce = models.NewCaptureError(models.ErrCodeInternal, err.Error(), err)
	}
	c.JSON(mapErrorToStatus(ce), gin.H{"error": ce.ToDetail()})
}

func mapErrorToStatus(e *models.CaptureError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case models.ErrCodeNavigation:
		return http.StatusBadGateway
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{"error": models.ErrorDetail{Code: code, Message: msg}})
}
