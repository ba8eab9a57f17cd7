package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/richinex/cinematic/internal/httpkit"
)

// BraveEndpoint is the Brave web search API.
const BraveEndpoint = "https://api.search.brave.com/res/v1/web/search"

// Brave searches with the Brave Search API.
type Brave struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewBrave creates a Brave backend.
func NewBrave(apiKey string) *Brave {
	return &Brave{
		apiKey:   apiKey,
		endpoint: BraveEndpoint,
		client:   httpkit.NewClient(httpkit.WithTimeout(15 * time.Second)),
	}
}

// WithEndpoint points the backend at another URL.
func (b *Brave) WithEndpoint(endpoint string) *Brave {
	b.endpoint = strings.TrimRight(endpoint, "/")
	return b
}

// Name returns "brave".
func (b *Brave) Name() string { return "brave" }

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Search runs query against Brave.
func (b *Brave) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	params := url.Values{"q": {query}}
	if opts.Count > 0 {
		params.Set("count", strconv.Itoa(opts.Count))
	}
	if opts.Language != "" {
		params.Set("search_lang", opts.Language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("brave: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave: HTTP %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 512))
	}

	var br braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return nil, fmt.Errorf("brave: decode response: %w", err)
	}

	results := make([]Result, 0, len(br.Web.Results))
	for _, r := range br.Web.Results {
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: r.Description})
	}
	return limit(results, opts.Count), nil
}

func limit(results []Result, n int) []Result {
	if n > 0 && len(results) > n {
		return results[:n]
	}
	return results
}
