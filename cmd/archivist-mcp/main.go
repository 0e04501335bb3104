// Command archivist-mcp exposes the archivist HTTP API as MCP tools,
// grounded on the teacher's cmd/purify-mcp/main.go: a stdio MCP server
// whose handlers are thin HTTP clients against a running archivist
// server. capture_page polls the capture job endpoint until the job
// leaves pending/processing; the test-crawl and listing tools make a
// single request and return its response.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	apiURL := os.Getenv("ARCHIVIST_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8090"
	}

	s := server.NewMCPServer(
		"archivist",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	capturePageTool := mcp.NewTool("capture_page",
		mcp.WithDescription("Capture a single web page with a headless browser, downloading its images, stylesheets, scripts, and fonts, and rewriting the HTML to reference the local copies. Returns once the capture job completes."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the page to capture"),
		),
		mcp.WithNumber("timeout_seconds",
			mcp.Description("Navigation timeout in seconds (default: 30, clamped [5,120])"),
		),
	)
	s.AddTool(capturePageTool, handleCapturePage(apiURL))

	startTestCrawlTool := mcp.NewTool("start_test_crawl",
		mcp.WithDescription("Start a discovery-only crawl of a site starting from a seed URL: enumerates reachable pages and their link structure without downloading any resources. Returns a test crawl id to poll with get_test_crawl."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The seed URL to crawl from"),
		),
		mcp.WithNumber("depth",
			mcp.Description("Maximum BFS depth from the seed URL (default: 3, clamped [1,10])"),
		),
		mcp.WithNumber("max_pages",
			mcp.Description("Maximum number of pages to discover (default: 100)"),
		),
		mcp.WithString("same_domain_only",
			mcp.Description("Restrict discovery to the seed's base domain: 'true' or 'false' (default: true)"),
		),
	)
	s.AddTool(startTestCrawlTool, handleStartTestCrawl(apiURL))

	getTestCrawlTool := mcp.NewTool("get_test_crawl",
		mcp.WithDescription("Fetch the current status and discovered page tree of a test crawl started with start_test_crawl."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("The test crawl id returned by start_test_crawl"),
		),
	)
	s.AddTool(getTestCrawlTool, handleGetTestCrawl(apiURL))

	listCapturesTool := mcp.NewTool("list_captures",
		mcp.WithDescription("List archived captures, optionally filtered by tag, collection, or a text search over titles, URLs, and notes."),
		mcp.WithString("tag",
			mcp.Description("Filter to captures carrying this tag"),
		),
		mcp.WithString("collection",
			mcp.Description("Filter to captures in this collection"),
		),
		mcp.WithString("search",
			mcp.Description("Free-text search over capture titles, URLs, and notes"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default: 50)"),
		),
	)
	s.AddTool(listCapturesTool, handleListCaptures(apiURL))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiPost sends a POST request to the archivist API and returns the body.
func apiPost(ctx context.Context, client *http.Client, apiURL, path string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func apiGet(ctx context.Context, client *http.Client, apiURL, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// pollJobCompletion polls a job or batch endpoint until its status
// leaves "pending"/"processing", or the context is cancelled.
func pollJobCompletion(ctx context.Context, client *http.Client, apiURL, endpoint string) ([]byte, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			body, err := apiGet(ctx, client, apiURL, endpoint)
			if err != nil {
				return nil, err
			}

			var status struct {
				Status string `json:"status"`
			}
			if err := json.Unmarshal(body, &status); err != nil {
				return nil, fmt.Errorf("parse poll status: %w", err)
			}

			if status.Status != "pending" && status.Status != "processing" {
				return body, nil
			}
		}
	}
}

func handleCapturePage(apiURL string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 120 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		options := map[string]interface{}{}
		args := request.GetArguments()
		if timeoutSeconds, ok := args["timeout_seconds"].(float64); ok {
			options["timeout_ms"] = int(timeoutSeconds * 1000)
		}

		payload := map[string]interface{}{"url": url, "options": options}

		respBody, err := apiPost(ctx, client, apiURL, "/api/v1/captures", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("capture request failed: %v", err)), nil
		}

		var created struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(respBody, &created); err != nil || created.ID == "" {
			return mcp.NewToolResultError("capture job creation failed"), nil
		}

		resultBody, err := pollJobCompletion(ctx, client, apiURL, "/api/v1/captures/"+created.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling capture job failed: %v", err)), nil
		}

		var job struct {
			Status     string `json:"status"`
			OutputPath string `json:"output_path"`
			Error      string `json:"error"`
		}
		if err := json.Unmarshal(resultBody, &job); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse job result: %v", err)), nil
		}

		if job.Status != "completed" {
			errMsg := job.Error
			if errMsg == "" {
				errMsg = "capture did not complete"
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("captured %s -> %s", url, job.OutputPath)), nil
	}
}

func handleStartTestCrawl(apiURL string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		options := map[string]interface{}{}
		args := request.GetArguments()
		if depth, ok := args["depth"]; ok {
			options["depth"] = depth
		}
		if maxPages, ok := args["max_pages"]; ok {
			options["max_pages"] = maxPages
		}
		options["same_domain_only"] = request.GetString("same_domain_only", "true") == "true"

		payload := map[string]interface{}{"url": url, "options": options}

		respBody, err := apiPost(ctx, client, apiURL, "/api/v1/test-crawls", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("test crawl request failed: %v", err)), nil
		}

		var created struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(respBody, &created); err != nil || created.ID == "" {
			return mcp.NewToolResultError("test crawl creation failed"), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf(`{"id":"%s","status":"crawling"}`, created.ID)), nil
	}
}

func handleGetTestCrawl(apiURL string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}

		body, err := apiGet(ctx, client, apiURL, "/api/v1/test-crawls/"+id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("fetching test crawl failed: %v", err)), nil
		}

		return mcp.NewToolResultText(string(body)), nil
	}
}

func handleListCaptures(apiURL string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q := "/api/v1/archive?"
		if tag := request.GetString("tag", ""); tag != "" {
			q += "tag=" + tag + "&"
		}
		if collection := request.GetString("collection", ""); collection != "" {
			q += "collection=" + collection + "&"
		}
		if search := request.GetString("search", ""); search != "" {
			q += "search=" + search + "&"
		}
		args := request.GetArguments()
		if limit, ok := args["limit"]; ok {
			q += fmt.Sprintf("limit=%v&", limit)
		}

		body, err := apiGet(ctx, client, apiURL, q)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("listing captures failed: %v", err)), nil
		}

		return mcp.NewToolResultText(string(body)), nil
	}
}
