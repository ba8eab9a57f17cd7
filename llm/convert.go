package llm

import (
	"context"
	"fmt"
	"strings"
)

// turn is a run of same-role messages, for vendors that want strictly
// alternating user and assistant turns plus a separate system field.
type turn struct {
	role  string
	parts []string
}

// splitSystem joins the leading system messages into one system prompt.
// Later system messages carry command results and are sent as user
// turns. Adjacent messages with the same role share a turn.
func splitSystem(messages []ChatMessage) (string, []turn) {
	var system []string
	var turns []turn

	i := 0
	for ; i < len(messages) && messages[i].Role == RoleSystem; i++ {
		system = append(system, messages[i].Content)
	}
	for _, msg := range messages[i:] {
		role := msg.Role
		if role != RoleAssistant {
			role = RoleUser
		}
		if n := len(turns); n > 0 && turns[n-1].role == role {
			turns[n-1].parts = append(turns[n-1].parts, msg.Content)
			continue
		}
		turns = append(turns, turn{role: role, parts: []string{msg.Content}})
	}

	return strings.Join(system, "\n\n"), turns
}

// usageOf converts vendor counters. It returns nil when the vendor
// reported nothing and derives a missing total.
func usageOf(prompt, completion, total int64) *TokenUsage {
	if prompt == 0 && completion == 0 && total == 0 {
		return nil
	}
	if total == 0 {
		total = prompt + completion
	}
	return &TokenUsage{
		PromptTokens:     uint32(prompt),
		CompletionTokens: uint32(completion),
		TotalTokens:      uint32(total),
	}
}

// deliver forwards a non-empty delta, giving up when ctx ends.
func deliver(ctx context.Context, chunks chan<- string, delta string) error {
	if delta == "" {
		return nil
	}
	select {
	case chunks <- delta:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// vendorError tags a transport failure with the provider and the call.
func vendorError(provider, call string, err error) error {
	return fmt.Errorf("%s: %s failed: %w", provider, call, err)
}
