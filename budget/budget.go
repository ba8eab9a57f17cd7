// Package budget estimates token cost and fits conversation history into a
// fixed context window.
//
// Estimates use four characters per token, scaled by a one percent margin
// and rounded up per message. They must not undercount the provider.
package budget

import (
	"math"

	"github.com/richinex/cinematic/llm"
)

const (
	// CharsPerToken is the character-count proxy for one token.
	CharsPerToken = 4

	// SafetyMargin scales every estimate upwards.
	SafetyMargin = 1.01

	// DefaultContextTokens is the window the trimmer fills when no limit is configured.
	DefaultContextTokens = 4000
)

// EstimateText returns the estimated token cost of s. Empty text costs zero.
func EstimateText(s string) int {
	if s == "" {
		return 0
	}
	return int(math.Ceil(float64(len(s)) / CharsPerToken * SafetyMargin))
}

// Estimate returns the estimated token cost of messages.
func Estimate(messages []llm.ChatMessage) int {
	total := 0
	for _, msg := range messages {
		total += EstimateText(msg.Content)
	}
	return total
}

// Trim selects the longest suffix of tail that fits in maxTotal tokens
// alongside prefix. Messages are considered newest first and the walk stops
// at the first one that would overflow, so the result is always a contiguous
// suffix in chronological order.
//
// When not even the newest message fits, Trim returns an empty slice.
// The returned slice never aliases tail.
func Trim(prefix, tail []llm.ChatMessage, maxTotal int) []llm.ChatMessage {
	remaining := maxTotal - Estimate(prefix)
	if remaining <= 0 {
		return []llm.ChatMessage{}
	}

	start := len(tail)
	used := 0
	for i := len(tail) - 1; i >= 0; i-- {
		cost := EstimateText(tail[i].Content)
		if used+cost > remaining {
			break
		}
		used += cost
		start = i
	}

	selected := make([]llm.ChatMessage, len(tail)-start)
	copy(selected, tail[start:])
	return selected
}

// Remaining returns how many tokens are left in a maxTotal window once
// messages are sent. It is negative when messages already overflow.
func Remaining(messages []llm.ChatMessage, maxTotal int) int {
	return maxTotal - Estimate(messages)
}
