// Command-protocol loop implementation.
//
// Information Hiding:
// - Outbound request assembly and trimming
// - Batch and streaming model invocation
// - Branching on command classes and depth-bounded recursion

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/richinex/cinematic/budget"
	"github.com/richinex/cinematic/dispatch"
	"github.com/richinex/cinematic/llm"
	"github.com/richinex/cinematic/observe"
	"github.com/richinex/cinematic/protocol"
)

// Agent runs the loop for one user turn at a time. It holds no per-run
// state, so one Agent may serve concurrent runs.
type Agent struct {
	config     Config
	llmClient  *llm.Client
	dispatcher *dispatch.Dispatcher
	metrics    *observe.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// New creates an agent. A nil dispatcher gets an empty registry, so every
// command is ignored as unknown.
func New(config Config, provider llm.Provider, dispatcher *dispatch.Dispatcher) *Agent {
	if dispatcher == nil {
		dispatcher = dispatch.New(dispatch.NewRegistry())
	}
	return &Agent{
		config:     config,
		llmClient:  llm.NewClient(provider),
		dispatcher: dispatcher,
		metrics:    observe.DefaultMetrics(),
		logger:     slog.Default(),
		now:        time.Now,
	}
}

// WithLogger sets the logger.
func (a *Agent) WithLogger(logger *slog.Logger) *Agent {
	a.logger = logger
	return a
}

// WithMetrics records depth on m instead of the default instruments.
func (a *Agent) WithMetrics(m *observe.Metrics) *Agent {
	a.metrics = m
	return a
}

// WithClock replaces the clock used to rate-limit streamed prose.
func (a *Agent) WithClock(now func() time.Time) *Agent {
	a.now = now
	return a
}

// Config returns the agent configuration.
func (a *Agent) Config() Config {
	return a.config
}

// Dispatcher returns the dispatcher commands are sent to.
func (a *Agent) Dispatcher() *dispatch.Dispatcher {
	return a.dispatcher
}

// Request is one user-visible interaction.
type Request struct {
	Caller dispatch.Caller
	// Prefix holds instructions and examples. It is sent first on every
	// invocation and is never trimmed.
	Prefix []llm.ChatMessage
	// Conversation is the history ending with the user's message.
	Conversation Conversation
}

// run carries what every turn of one interaction needs.
type run struct {
	id     string
	req    Request
	sink   Sink
	start  time.Time
	turns  []Turn
	usage  llm.TokenUsage
	logger *slog.Logger
}

// Run drives the loop until the model answers without return-expected
// commands or the depth bound is reached. Only a model invocation failure
// is returned as an error; the Response then holds the turns completed so far.
func (a *Agent) Run(ctx context.Context, req Request, sink Sink) (Response, error) {
	if sink == nil {
		sink = Discard{}
	}
	id := uuid.NewString()
	r := &run{
		id:     id,
		req:    req,
		sink:   sink,
		start:  time.Now(),
		logger: a.logger.With("run", id, "user", req.Caller.User),
	}

	resp, err := a.turn(ctx, r, req.Conversation, 0)
	resp.Turns = r.turns
	resp.Metadata = Metadata{
		ExecutionTimeMs: uint64(time.Since(r.start).Milliseconds()),
		LLMCalls:        len(r.turns),
		TokenUsage:      r.usage,
	}
	if len(r.turns) > 0 {
		a.metrics.RecordDepth(ctx, resp.Depth())
	}
	return resp, err
}

// turn performs one invocation at depth and recurses on return-expected
// commands. conv is never modified; each step passes a new snapshot on.
func (a *Agent) turn(ctx context.Context, r *run, conv Conversation, depth int) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{Conversation: conv}, fmt.Errorf("run cancelled at depth %d: %w", depth, err)
	}

	tail := budget.Trim(r.req.Prefix, conv.messages, a.config.contextTokens())
	outbound := make([]llm.ChatMessage, 0, len(r.req.Prefix)+len(tail))
	outbound = append(outbound, r.req.Prefix...)
	outbound = append(outbound, tail...)

	output, scanned, usage, err := a.invoke(ctx, r, outbound, depth)
	if err != nil {
		return Response{Conversation: conv}, fmt.Errorf("model invocation failed at depth %d: %w", depth, err)
	}
	r.usage.Add(usage)

	t := Turn{
		Depth:    depth,
		Output:   output,
		Prose:    scanned.Prose,
		Commands: scanned.Commands,
		Dropped:  conv.Len() - len(tail),
		Usage:    usage,
	}
	r.sink.Emit(ctx, depth, scanned.Prose)

	conv = conv.Append(llm.AssistantMessage(output))

	switch {
	case scanned.Flags.HasReturn:
		results := a.dispatcher.DispatchReturn(ctx, r.req.Caller, scanned.Returns())
		t.Results = results
		r.turns = append(r.turns, t)

		conv = conv.Append(llm.SystemMessage(a.dispatcher.Aggregate(results)))
		r.logger.Debug("return-expected commands dispatched",
			"depth", depth,
			"commands", len(results),
			"failed", dispatch.Failed(results))

		if scanned.Flags.HasImmediate {
			r.logger.Debug("immediate commands skipped on a return-expected turn",
				"depth", depth,
				"skipped", len(scanned.Immediates()))
		}

		if depth < a.config.maxDepth() {
			return a.turn(ctx, r, conv, depth+1)
		}
		r.logger.Info("depth bound reached", "depth", depth)
		return Response{Type: ResponseDepthExhausted, Prose: scanned.Prose, Conversation: conv}, nil

	case scanned.Flags.HasImmediate:
		t.Results = a.dispatcher.DispatchImmediate(ctx, r.req.Caller, scanned.Immediates())
		r.turns = append(r.turns, t)

	default:
		r.turns = append(r.turns, t)
	}

	return Response{Type: ResponseFinal, Prose: scanned.Prose, Conversation: conv}, nil
}

// invoke calls the model and scans its output.
func (a *Agent) invoke(ctx context.Context, r *run, messages []llm.ChatMessage, depth int) (string, protocol.Result, *llm.TokenUsage, error) {
	grammar := a.dispatcher.Grammar()

	if !a.config.Stream {
		output, usage, err := a.llmClient.ChatWithUsage(ctx, messages)
		if err != nil {
			return "", protocol.Result{}, nil, err
		}
		return output, grammar.Scan(output), usage, nil
	}

	return a.invokeStreaming(ctx, r, messages, depth, grammar)
}

// streamResult holds the result of a streaming call.
type streamResult struct {
	usage *llm.TokenUsage
	err   error
}

// invokeStreaming feeds chunks through the scanner as they arrive and
// flushes prose to the sink at most once per interval.
func (a *Agent) invokeStreaming(ctx context.Context, r *run, messages []llm.ChatMessage, depth int, grammar protocol.Grammar) (string, protocol.Result, *llm.TokenUsage, error) {
	chunks := make(chan string, 100)

	resultCh := make(chan streamResult, 1)
	go func() {
		defer close(chunks)
		usage, err := a.llmClient.StreamChat(ctx, messages, chunks)
		resultCh <- streamResult{usage: usage, err: err}
	}()

	scanner := grammar.NewScanner()
	gate := newThrottle(a.config.flushInterval(), a.now)
	var output strings.Builder

	for chunk := range chunks {
		output.WriteString(chunk)
		scanner.Write(chunk)
		if scanner.State() != protocol.StateProse {
			continue
		}
		if !gate.due() {
			continue
		}
		if prose := scanner.Prose(); gate.changed(prose) {
			r.sink.Stream(ctx, depth, prose)
		}
	}

	result := <-resultCh
	if result.err != nil {
		return "", protocol.Result{}, nil, result.err
	}
	return output.String(), scanner.Close(), result.usage, nil
}
