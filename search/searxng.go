package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/richinex/cinematic/internal/httpkit"
)

// SearXNG searches with a self-hosted SearXNG instance.
type SearXNG struct {
	baseURL string
	client  *http.Client
}

// NewSearXNG creates a backend for the instance at baseURL.
func NewSearXNG(baseURL string) *SearXNG {
	return &SearXNG{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpkit.NewClient(httpkit.WithTimeout(15 * time.Second)),
	}
}

// Name returns "searxng".
func (s *SearXNG) Name() string { return "searxng" }

type searxngResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search runs query against the instance's JSON API.
func (s *SearXNG) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	params := url.Values{"q": {query}, "format": {"json"}}
	if opts.Language != "" {
		params.Set("language", opts.Language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("searxng: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searxng: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("searxng: HTTP %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 512))
	}

	var sr searxngResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("searxng: decode response: %w", err)
	}

	results := make([]Result, 0, len(sr.Results))
	for _, r := range sr.Results {
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return limit(results, opts.Count), nil
}
