// Package agent drives the command-protocol loop: it invokes the model,
// separates prose from commands, dispatches them and feeds results back
// until the model answers in prose or the depth bound is reached.
//
// Contains the conversation snapshot and the response types.
package agent

import (
	"github.com/richinex/cinematic/dispatch"
	"github.com/richinex/cinematic/llm"
	"github.com/richinex/cinematic/protocol"
)

// Conversation is an immutable message list. Append returns a new
// Conversation and never modifies the receiver's backing array.
type Conversation struct {
	messages []llm.ChatMessage
}

// NewConversation snapshots messages.
func NewConversation(messages ...llm.ChatMessage) Conversation {
	return Conversation{messages: append([]llm.ChatMessage(nil), messages...)}
}

// Append returns a copy of c with messages added at the end.
func (c Conversation) Append(messages ...llm.ChatMessage) Conversation {
	out := make([]llm.ChatMessage, 0, len(c.messages)+len(messages))
	out = append(out, c.messages...)
	out = append(out, messages...)
	return Conversation{messages: out}
}

// Messages returns a copy of the messages.
func (c Conversation) Messages() []llm.ChatMessage {
	return append([]llm.ChatMessage(nil), c.messages...)
}

// Len returns the number of messages.
func (c Conversation) Len() int {
	return len(c.messages)
}

// Turn records one model invocation.
type Turn struct {
	Depth int
	// Output is the raw model output, commands included.
	Output   string
	Prose    string
	Commands []protocol.Command
	// Results holds return-expected results, or immediate results on a
	// terminal turn.
	Results []dispatch.Result
	// Dropped is the number of history messages trimmed to fit the budget.
	Dropped int
	Usage   *llm.TokenUsage
}

// ResponseType indicates how the loop ended.
type ResponseType int

const (
	// ResponseFinal means the last turn carried no return-expected commands.
	ResponseFinal ResponseType = iota
	// ResponseDepthExhausted means the depth bound cut off further turns.
	ResponseDepthExhausted
)

// String returns a short name for t.
func (t ResponseType) String() string {
	switch t {
	case ResponseFinal:
		return "final"
	case ResponseDepthExhausted:
		return "depth_exhausted"
	default:
		return "unknown"
	}
}

// Metadata contains metadata about a run.
type Metadata struct {
	ExecutionTimeMs uint64
	LLMCalls        int
	TokenUsage      llm.TokenUsage
}

// Response is the outcome of one user-visible interaction.
type Response struct {
	Type ResponseType
	// Prose is the prose of the last turn. It may be empty.
	Prose string
	// Conversation is the input conversation plus every assistant output
	// and result message appended during the run.
	Conversation Conversation
	Turns        []Turn
	Metadata     Metadata
}

// Depth returns the depth of the last turn, or -1 when no turn ran.
func (r Response) Depth() int {
	if len(r.Turns) == 0 {
		return -1
	}
	return r.Turns[len(r.Turns)-1].Depth
}
