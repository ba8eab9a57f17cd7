// Agent builder for fluent configuration.

package agent

import "time"

// Builder provides fluent configuration for the loop.
// Usage: agent.NewBuilder().MaxDepth(3).Streaming(true).Build().
type Builder struct {
	config Config
}

// NewBuilder starts from DefaultConfig.
func NewBuilder() *Builder {
	return &Builder{config: DefaultConfig()}
}

// MaxDepth sets the recursion bound.
func (b *Builder) MaxDepth(depth int) *Builder {
	b.config.MaxDepth = depth
	return b
}

// ContextTokens sets the context window used for trimming.
func (b *Builder) ContextTokens(tokens int) *Builder {
	b.config.ContextTokens = tokens
	return b
}

// Streaming enables incremental model output.
func (b *Builder) Streaming(enabled bool) *Builder {
	b.config.Stream = enabled
	return b
}

// FlushInterval sets the minimum gap between streamed updates.
func (b *Builder) FlushInterval(d time.Duration) *Builder {
	b.config.FlushInterval = d
	return b
}

// Build returns the configuration.
func (b *Builder) Build() Config {
	return b.config
}
