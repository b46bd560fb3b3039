package coretools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/adrianhoehne/nanobot/pkg/dispatcher"
)

func webFetchTool(opts Options) dispatcher.ToolDefinition {
	return dispatcher.ToolDefinition{
		Name:        "web_fetch",
		Description: "Fetch a URL over HTTP and return the response body.",
		Parameters: []dispatcher.ToolParameter{
			{Name: "url", Type: "string", Description: "URL to fetch (http or https)", Required: true},
			{Name: "max_bytes", Type: "number", Description: "Maximum body bytes to return", Required: false},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			rawURL, _ := args["url"].(string)

			parsed, err := url.Parse(rawURL)
			if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
				return "", dispatcher.Errorf(dispatcher.KindValidation, "url", "invalid URL %q", rawURL)
			}

			limit := opts.MaxFetchBytes
			if raw, ok := args["max_bytes"].(float64); ok && raw > 0 {
				limit = int64(raw)
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
			if err != nil {
				return "", fmt.Errorf("failed to build request: %w", err)
			}

			resp, err := opts.HTTPClient.Do(req)
			if err != nil {
				return "", fmt.Errorf("fetch failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return "", fmt.Errorf("fetch failed: %s returned %s", rawURL, resp.Status)
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
			if err != nil {
				return "", fmt.Errorf("failed to read response body: %w", err)
			}
			return string(body), nil
		},
	}
}

// searchResult is the shape the search endpoint returns per hit.
type searchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

func webSearchTool(opts Options) dispatcher.ToolDefinition {
	return dispatcher.ToolDefinition{
		Name:        "web_search",
		Description: "Search the web via the configured search endpoint.",
		Parameters: []dispatcher.ToolParameter{
			{Name: "query", Type: "string", Description: "Search query", Required: true},
			{Name: "max_results", Type: "number", Description: "Maximum results to return (default 5)", Required: false},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			if opts.WebSearchEndpoint == "" {
				return "", dispatcher.Errorf(dispatcher.KindInternal, "",
					"no web search endpoint configured")
			}

			query, _ := args["query"].(string)
			if strings.TrimSpace(query) == "" {
				return "", dispatcher.Errorf(dispatcher.KindValidation, "query", "query is required")
			}

			maxResults := 5
			if raw, ok := args["max_results"].(float64); ok && raw > 0 {
				maxResults = int(raw)
			}

			endpoint, err := url.Parse(opts.WebSearchEndpoint)
			if err != nil {
				return "", fmt.Errorf("invalid search endpoint: %w", err)
			}
			q := endpoint.Query()
			q.Set("q", query)
			endpoint.RawQuery = q.Encode()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
			if err != nil {
				return "", fmt.Errorf("failed to build request: %w", err)
			}

			resp, err := opts.HTTPClient.Do(req)
			if err != nil {
				return "", fmt.Errorf("search failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return "", fmt.Errorf("search endpoint returned %s", resp.Status)
			}

			var results []searchResult
			if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
				return "", fmt.Errorf("failed to parse search results: %w", err)
			}
			if len(results) > maxResults {
				results = results[:maxResults]
			}
			if len(results) == 0 {
				return "no results", nil
			}

			var b strings.Builder
			for i, r := range results {
				fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, r.Title, r.URL)
				if r.Snippet != "" {
					fmt.Fprintf(&b, "   %s\n", r.Snippet)
				}
			}
			return strings.TrimRight(b.String(), "\n"), nil
		},
	}
}
