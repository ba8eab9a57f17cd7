package agent

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/richinex/cinematic/dispatch"
	"github.com/richinex/cinematic/llm"
	"github.com/richinex/cinematic/llm/mock"
	"github.com/richinex/cinematic/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// recorder collects every call an operation receives.
type recorder struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recorder) op(name string, class protocol.Class, arity int, reply string) dispatch.Operation {
	params := make([]dispatch.Param, arity)
	for i := range params {
		params[i] = dispatch.Param{Name: "arg"}
	}
	return dispatch.Operation{
		Name:   name,
		Class:  class,
		Params: params,
		Call: func(ctx context.Context, req dispatch.Request) (string, error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.calls = append(r.calls, req.Args)
			return reply, nil
		},
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newDispatcher(t *testing.T, ops ...dispatch.Operation) *dispatch.Dispatcher {
	t.Helper()
	reg := dispatch.NewRegistry()
	if err := reg.RegisterAll(ops...); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	return dispatch.New(reg, dispatch.WithExecConfig(dispatch.ExecConfig{CallTimeout: time.Second}))
}

func request(text string) Request {
	return Request{
		Caller:       dispatch.Caller{User: "alice"},
		Prefix:       []llm.ChatMessage{llm.SystemMessage("You manage a movie server.")},
		Conversation: NewConversation(llm.UserMessage(text)),
	}
}

func TestRunStopsAtMaxDepth(t *testing.T) {
	lookups := &recorder{}
	d := newDispatcher(t, lookups.op("movie_lookup", protocol.ClassReturn, 2, "Heat (1995)"))
	provider := &mock.Provider{Fallback: &mock.Reply{Content: "Checking. [CMDRET~movie_lookup~Heat~year]"}}

	a := New(DefaultConfig(), provider, d)
	resp, err := a.Run(context.Background(), request("when was Heat released?"), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got, want := provider.CallCount(), DefaultMaxDepth+1; got != want {
		t.Errorf("model invoked %d times, want %d", got, want)
	}
	if resp.Type != ResponseDepthExhausted {
		t.Errorf("Type = %v, want depth_exhausted", resp.Type)
	}
	if resp.Prose != "Checking." {
		t.Errorf("Prose = %q", resp.Prose)
	}
	if resp.Depth() != DefaultMaxDepth || len(resp.Turns) != DefaultMaxDepth+1 {
		t.Errorf("depth %d with %d turns", resp.Depth(), len(resp.Turns))
	}
	// user + (assistant, system) per turn
	if got := resp.Conversation.Len(); got != 1+2*(DefaultMaxDepth+1) {
		t.Errorf("conversation has %d messages", got)
	}
	if lookups.count() != DefaultMaxDepth+1 {
		t.Errorf("lookup called %d times", lookups.count())
	}
}

func TestRunCustomDepth(t *testing.T) {
	d := newDispatcher(t, (&recorder{}).op("web_search", protocol.ClassReturn, 1, "42"))
	provider := &mock.Provider{Fallback: &mock.Reply{Content: "[CMDRET~web_search~meaning]"}}

	a := New(NewBuilder().MaxDepth(1).Build(), provider, d)
	resp, err := a.Run(context.Background(), request("?"), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if provider.CallCount() != 2 {
		t.Errorf("model invoked %d times, want 2", provider.CallCount())
	}
	if resp.Prose != "" || resp.Type != ResponseDepthExhausted {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestRunZeroDepthInvokesOnce(t *testing.T) {
	searches := &recorder{}
	d := newDispatcher(t, searches.op("web_search", protocol.ClassReturn, 1, "42"))
	provider := &mock.Provider{Fallback: &mock.Reply{Content: "Looking. [CMDRET~web_search~meaning]"}}

	a := New(NewBuilder().MaxDepth(0).Build(), provider, d)
	resp, err := a.Run(context.Background(), request("?"), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if provider.CallCount() != 1 {
		t.Errorf("model invoked %d times, want 1", provider.CallCount())
	}
	if resp.Type != ResponseDepthExhausted || resp.Prose != "Looking." {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestRunNegativeDepthUsesDefault(t *testing.T) {
	d := newDispatcher(t, (&recorder{}).op("web_search", protocol.ClassReturn, 1, "42"))
	provider := &mock.Provider{Fallback: &mock.Reply{Content: "[CMDRET~web_search~meaning]"}}

	a := New(NewBuilder().MaxDepth(-1).Build(), provider, d)
	if _, err := a.Run(context.Background(), request("?"), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := provider.CallCount(), DefaultMaxDepth+1; got != want {
		t.Errorf("model invoked %d times, want %d", got, want)
	}
}

func TestRunAddMovieEndToEnd(t *testing.T) {
	lookups := &recorder{}
	posts := &recorder{}
	d := newDispatcher(t,
		lookups.op("movie_lookup", protocol.ClassReturn, 2, "Stargate (1994); unavailable on the server; tmdb id 2164"),
		posts.op("movie_post", protocol.ClassImmediate, 2, ""),
	)
	provider := mock.Texts(
		"Let me look that up. [CMDRET~movie_lookup~Stargate~availability,id]",
		"Adding Stargate now. [CMD~movie_post~2164~4]",
	)

	var emitted []string
	sink := SinkFuncs{OnEmit: func(_ context.Context, _ int, prose string) { emitted = append(emitted, prose) }}

	a := New(DefaultConfig(), provider, d)
	resp, err := a.Run(context.Background(), request("add Stargate in 1080p"), sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if provider.CallCount() != 2 {
		t.Fatalf("model invoked %d times, want 2", provider.CallCount())
	}
	second := provider.Calls()[1]
	last := second[len(second)-1]
	if last.Role != llm.RoleSystem || last.Content != "[RES~Stargate (1994); unavailable on the server; tmdb id 2164]" {
		t.Errorf("second invocation ends with %+v", last)
	}
	if prev := second[len(second)-2]; prev.Role != llm.RoleAssistant || !strings.Contains(prev.Content, "[CMDRET~movie_lookup") {
		t.Errorf("raw assistant output not recorded: %+v", prev)
	}

	if posts.count() != 1 {
		t.Fatalf("movie_post called %d times, want 1", posts.count())
	}
	if !reflect.DeepEqual(posts.calls[0], []string{"2164", "4"}) {
		t.Errorf("movie_post args = %q", posts.calls[0])
	}
	if lookups.count() != 1 || lookups.calls[0][0] != "Stargate" {
		t.Errorf("movie_lookup calls = %q", lookups.calls)
	}

	if resp.Type != ResponseFinal || resp.Prose != "Adding Stargate now." {
		t.Errorf("unexpected response type %v prose %q", resp.Type, resp.Prose)
	}
	if !reflect.DeepEqual(emitted, []string{"Let me look that up.", "Adding Stargate now."}) {
		t.Errorf("emitted = %q", emitted)
	}
}

func TestRunSkipsImmediatesOnReturnTurn(t *testing.T) {
	updates := &recorder{}
	d := newDispatcher(t,
		updates.op("memory_update", protocol.ClassImmediate, 1, ""),
		(&recorder{}).op("movie_lookup", protocol.ClassReturn, 2, "Alien (1979)"),
	)
	provider := mock.Texts("[CMD~memory_update~likes Alien][CMDRET~movie_lookup~Alien~year]", "It came out in 1979.")

	resp, err := New(DefaultConfig(), provider, d).Run(context.Background(), request("Alien?"), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if updates.count() != 0 {
		t.Errorf("memory_update ran %d times on a return-expected turn", updates.count())
	}
	if resp.Prose != "It came out in 1979." || resp.Type != ResponseFinal {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestRunUnknownReturnCommandYieldsNoResults(t *testing.T) {
	provider := mock.Texts("[CMDRET~teleport~Mars]", "I can't do that.")

	resp, err := New(DefaultConfig(), provider, nil).Run(context.Background(), request("go"), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	second := provider.Calls()[1]
	if got := second[len(second)-1].Content; got != "[RES~No results]" {
		t.Errorf("result message = %q", got)
	}
	if resp.Prose != "I can't do that." {
		t.Errorf("Prose = %q", resp.Prose)
	}
}

func TestRunProviderErrorIsReturned(t *testing.T) {
	errAuth := errors.New("401 unauthorized")

	t.Run("first turn", func(t *testing.T) {
		provider := mock.New(mock.Reply{Err: errAuth})
		_, err := New(DefaultConfig(), provider, nil).Run(context.Background(), request("hi"), nil)
		if !errors.Is(err, errAuth) {
			t.Errorf("err = %v, want %v", err, errAuth)
		}
	})

	t.Run("after a return turn", func(t *testing.T) {
		d := newDispatcher(t, (&recorder{}).op("web_search", protocol.ClassReturn, 1, "x"))
		provider := mock.New(mock.Reply{Content: "[CMDRET~web_search~q]"}, mock.Reply{Err: errAuth})
		resp, err := New(DefaultConfig(), provider, d).Run(context.Background(), request("hi"), nil)
		if !errors.Is(err, errAuth) {
			t.Fatalf("err = %v, want %v", err, errAuth)
		}
		if len(resp.Turns) != 1 {
			t.Errorf("expected the completed turn to be kept, got %d", len(resp.Turns))
		}
	})
}

func TestRunTrimsHistory(t *testing.T) {
	provider := mock.Texts("ok")
	var history []llm.ChatMessage
	for i := 0; i < 50; i++ {
		history = append(history, llm.UserMessage(strings.Repeat("old ", 50)))
	}
	history = append(history, llm.UserMessage("latest"))

	req := Request{
		Prefix:       []llm.ChatMessage{llm.SystemMessage("rules")},
		Conversation: NewConversation(history...),
	}
	resp, err := New(NewBuilder().ContextTokens(300).Build(), provider, nil).Run(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	sent := provider.Calls()[0]
	if sent[0].Content != "rules" {
		t.Errorf("prefix not sent first: %+v", sent[0])
	}
	if sent[len(sent)-1].Content != "latest" {
		t.Errorf("latest message dropped")
	}
	if len(sent) >= len(history)+1 {
		t.Errorf("history was not trimmed: %d messages sent", len(sent))
	}
	if resp.Turns[0].Dropped != len(history)-(len(sent)-1) {
		t.Errorf("Dropped = %d", resp.Turns[0].Dropped)
	}
	if resp.Conversation.Len() != len(history)+1 {
		t.Errorf("full conversation should be kept, got %d", resp.Conversation.Len())
	}
}

func TestConversationAppendDoesNotAlias(t *testing.T) {
	base := NewConversation(llm.UserMessage("a"))
	left := base.Append(llm.AssistantMessage("b"))
	right := base.Append(llm.AssistantMessage("c"))

	if base.Len() != 1 {
		t.Errorf("base modified: %d", base.Len())
	}
	if left.Messages()[1].Content != "b" || right.Messages()[1].Content != "c" {
		t.Error("appends share a backing array")
	}
}

// fakeClock advances by step on every reading.
type fakeClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

type streamSink struct {
	mu       sync.Mutex
	streamed []string
	emitted  []string
}

func (s *streamSink) Stream(_ context.Context, _ int, prose string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamed = append(s.streamed, prose)
}

func (s *streamSink) Emit(_ context.Context, _ int, prose string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitted = append(s.emitted, prose)
}

func TestRunStreamingThrottlesUpdates(t *testing.T) {
	provider := mock.New(mock.Reply{Chunks: []string{"Hello", " there", " friend", "!"}})
	clock := &fakeClock{t: time.Unix(0, 0), step: 500 * time.Millisecond}
	sink := &streamSink{}

	cfg := NewBuilder().Streaming(true).FlushInterval(time.Second).Build()
	resp, err := New(cfg, provider, nil).WithClock(clock.now).Run(context.Background(), request("hi"), sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if want := []string{"Hello there", "Hello there friend!"}; !reflect.DeepEqual(sink.streamed, want) {
		t.Errorf("streamed = %q, want %q", sink.streamed, want)
	}
	if !reflect.DeepEqual(sink.emitted, []string{"Hello there friend!"}) {
		t.Errorf("emitted = %q", sink.emitted)
	}
	if resp.Turns[0].Output != "Hello there friend!" {
		t.Errorf("Output = %q", resp.Turns[0].Output)
	}
}

func TestRunStreamingHidesCommands(t *testing.T) {
	updates := &recorder{}
	d := newDispatcher(t, updates.op("memory_update", protocol.ClassImmediate, 1, ""))
	provider := mock.New(mock.Reply{Chunks: []string{"Sure [CMD~memo", "ry_update~likes Heat] done"}})
	clock := &fakeClock{t: time.Unix(0, 0), step: time.Second}
	sink := &streamSink{}

	cfg := NewBuilder().Streaming(true).Build()
	resp, err := New(cfg, provider, d).WithClock(clock.now).Run(context.Background(), request("remember Heat"), sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, s := range sink.streamed {
		if strings.ContainsAny(s, "[]~") {
			t.Errorf("command text leaked into stream: %q", s)
		}
	}
	if resp.Prose != "Sure done" {
		t.Errorf("Prose = %q", resp.Prose)
	}
	if updates.count() != 1 || updates.calls[0][0] != "likes Heat" {
		t.Errorf("memory_update calls = %q", updates.calls)
	}
}

func TestRunStreamingProviderError(t *testing.T) {
	errDown := errors.New("connection refused")
	provider := mock.New(mock.Reply{Err: errDown})

	cfg := NewBuilder().Streaming(true).Build()
	_, err := New(cfg, provider, nil).Run(context.Background(), request("hi"), nil)
	if !errors.Is(err, errDown) {
		t.Errorf("err = %v, want %v", err, errDown)
	}
}
