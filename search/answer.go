package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/richinex/cinematic/llm"
)

// Answering defaults.
const (
	DefaultMaxResults = 8
	DefaultPageChars  = 4096
	NoAnswer          = "Could not find an answer to your question"
)

// Answerer turns a question into an answer by reading search results one
// page at a time until the helper model finds one.
type Answerer struct {
	searcher   Provider
	fetcher    *Fetcher
	helper     llm.Provider
	maxResults int
	pageChars  int
	logger     *slog.Logger
}

// NewAnswerer creates an Answerer. helper may be nil, in which case the
// result snippets are returned instead of an answer.
func NewAnswerer(searcher Provider, fetcher *Fetcher, helper llm.Provider) *Answerer {
	if fetcher == nil {
		fetcher = NewFetcher()
	}
	return &Answerer{
		searcher:   searcher,
		fetcher:    fetcher,
		helper:     helper,
		maxResults: DefaultMaxResults,
		pageChars:  DefaultPageChars,
		logger:     slog.Default(),
	}
}

// WithMaxResults sets how many results are considered.
func (a *Answerer) WithMaxResults(n int) *Answerer {
	if n > 0 {
		a.maxResults = n
	}
	return a
}

// WithLogger sets the logger.
func (a *Answerer) WithLogger(logger *slog.Logger) *Answerer {
	a.logger = logger
	return a
}

// Answer searches for query and returns the first answer a page yields.
func (a *Answerer) Answer(ctx context.Context, query string) (string, error) {
	results, err := a.searcher.Search(ctx, query, Options{Count: a.maxResults})
	if err != nil {
		return "", err
	}
	results = limit(results, a.maxResults)
	if len(results) == 0 {
		return NoAnswer, nil
	}

	if a.helper == nil {
		return snippets(results), nil
	}

	client := llm.NewClient(a.helper)
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page, err := a.fetcher.Fetch(ctx, r.URL)
		if err != nil {
			a.logger.Debug("skipping search result", "url", r.URL, "error", err)
			continue
		}
		text := truncate(page.Text, a.pageChars)
		if strings.TrimSpace(text) == "" {
			continue
		}

		prompt := fmt.Sprintf("%s\nAbove is the summary of the website %s, give an answer to '%s', "+
			"if the context is insufficient, reply 'no answer'", text, r.URL, query)
		reply, err := client.Chat(ctx, []llm.ChatMessage{llm.UserMessage(prompt)})
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", r.URL, err)
		}
		if isAnswer(reply) {
			return reply, nil
		}
	}
	return NoAnswer, nil
}

func isAnswer(reply string) bool {
	switch strings.ToLower(strings.TrimSpace(reply)) {
	case "", "no answer", "no answer.", "no answer!":
		return false
	}
	return true
}

func snippets(results []Result) string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("%s (%s): %s", r.Title, r.URL, r.Snippet))
	}
	return strings.Join(lines, "\n")
}
