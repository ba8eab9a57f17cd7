// Package search answers free-text questions from the web.
//
// Information Hiding:
// - Search backend APIs (Brave, SearXNG) and backend selection
// - Page download limits and HTML-to-text extraction
// - The per-page question prompt and the "no answer" convention
package search

import (
	"context"
	"fmt"
	"sort"
)

// Result is one web search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Options tune a single search.
type Options struct {
	// Count is the maximum number of results. Zero means the backend default.
	Count    int
	Language string
}

// Provider is a web search backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

// Manager routes searches to the primary backend.
type Manager struct {
	providers map[string]Provider
	primary   string
}

// NewManager creates a manager that searches with the backend named primary.
func NewManager(primary string) *Manager {
	return &Manager{providers: make(map[string]Provider), primary: primary}
}

// Register adds a backend. The first one registered becomes primary when
// none was named.
func (m *Manager) Register(p Provider) {
	m.providers[p.Name()] = p
	if m.primary == "" {
		m.primary = p.Name()
	}
}

// Name returns the primary backend name.
func (m *Manager) Name() string {
	return m.primary
}

// Search queries the primary backend.
func (m *Manager) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	p, ok := m.providers[m.primary]
	if !ok {
		return nil, fmt.Errorf("search provider %q not configured", m.primary)
	}
	return p.Search(ctx, query, opts)
}

// Providers returns the registered backend names, sorted.
func (m *Manager) Providers() []string {
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Configured reports whether the primary backend is registered.
func (m *Manager) Configured() bool {
	_, ok := m.providers[m.primary]
	return ok
}

var _ Provider = (*Manager)(nil)
