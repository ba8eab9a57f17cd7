package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/richinex/cinematic/internal/httpkit"
)

// Page download limits.
const (
	DefaultFetchTimeout       = 20 * time.Second
	DefaultMaxBytes     int64 = 2 * 1024 * 1024
)

// Page is the readable content of one downloaded URL.
type Page struct {
	URL   string
	Title string
	Text  string
}

// Fetcher downloads pages and extracts their readable text.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewFetcher creates a Fetcher with default limits.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client:   httpkit.NewClient(httpkit.WithTimeout(DefaultFetchTimeout)),
		maxBytes: DefaultMaxBytes,
	}
}

// WithMaxBytes caps how much of a response body is read.
func (f *Fetcher) WithMaxBytes(n int64) *Fetcher {
	if n > 0 {
		f.maxBytes = n
	}
	return f
}

// Fetch downloads rawURL. HTML is reduced to visible text; plain text is
// returned as-is; binary bodies are rejected.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, fmt.Errorf("fetch: invalid url: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Page{}, fmt.Errorf("fetch: %s: HTTP %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return Page{}, fmt.Errorf("fetch: read %s: %w", rawURL, err)
	}

	page := Page{URL: rawURL}
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	switch {
	case strings.Contains(contentType, "html"):
		page.Title, page.Text = extractHTML(string(body))
	case utf8.Valid(body):
		page.Text = strings.TrimSpace(string(body))
	default:
		return Page{}, fmt.Errorf("fetch: %s: binary content (%s)", rawURL, contentType)
	}
	return page, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
