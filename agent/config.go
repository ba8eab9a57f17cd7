// Agent configuration types.
//
// Information Hiding:
// - Default values
// - Zero-value handling

package agent

import (
	"time"

	"github.com/richinex/cinematic/budget"
)

// DefaultMaxDepth is the number of follow-up turns allowed after the first.
const DefaultMaxDepth = 3

// DefaultFlushInterval rate-limits streamed prose updates.
const DefaultFlushInterval = time.Second

// Config holds loop configuration. Zero durations and token counts take
// the defaults below; start from DefaultConfig for the default depth.
type Config struct {
	// MaxDepth bounds recursion: at most MaxDepth+1 model invocations per run.
	// Zero allows no follow-up turn. A negative value selects DefaultMaxDepth.
	MaxDepth int
	// ContextTokens is the model's context window as estimated by budget.
	ContextTokens int
	// Stream selects incremental model output and Sink.Stream updates.
	Stream bool
	// FlushInterval is the minimum gap between Sink.Stream calls.
	FlushInterval time.Duration
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		MaxDepth:      DefaultMaxDepth,
		ContextTokens: budget.DefaultContextTokens,
		Stream:        false,
		FlushInterval: DefaultFlushInterval,
	}
}

func (c Config) maxDepth() int {
	if c.MaxDepth < 0 {
		return DefaultMaxDepth
	}
	return c.MaxDepth
}

func (c Config) contextTokens() int {
	if c.ContextTokens <= 0 {
		return budget.DefaultContextTokens
	}
	return c.ContextTokens
}

func (c Config) flushInterval() time.Duration {
	if c.FlushInterval <= 0 {
		return DefaultFlushInterval
	}
	return c.FlushInterval
}
