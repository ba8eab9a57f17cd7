// Package chat handles one user message end to end: recent history,
// prefix assembly, the agent run and history bookkeeping.
//
// Information Hiding:
// - History window and the "Chat History" message format
// - Per-caller instructions (admin-only commands)
// - Pruning of expired history
package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/richinex/cinematic/agent"
	"github.com/richinex/cinematic/dispatch"
	"github.com/richinex/cinematic/llm"
	"github.com/richinex/cinematic/prompt"
	"github.com/richinex/cinematic/storage"
)

// DefaultHistoryWindow is how far back earlier messages are replayed.
const DefaultHistoryWindow = 20 * time.Minute

// HistoryAck is the assistant's reply to the replayed history.
const HistoryAck = "I have noted your message history thank you"

// Input is one incoming user message.
type Input struct {
	Caller dispatch.Caller
	Text   string
	// Quoted is an earlier answer the user replied to. It is added to the
	// replayed history.
	Quoted string
}

// Service runs user messages through the agent.
type Service struct {
	agent    *agent.Agent
	history  storage.HistoryStorage
	selector *prompt.Selector
	window   time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewService creates a service. selector may be nil to send no examples.
func NewService(a *agent.Agent, history storage.HistoryStorage, selector *prompt.Selector) *Service {
	return &Service{
		agent:    a,
		history:  history,
		selector: selector,
		window:   DefaultHistoryWindow,
		now:      time.Now,
		logger:   slog.Default(),
	}
}

// WithWindow sets the history window.
func (s *Service) WithWindow(d time.Duration) *Service {
	if d > 0 {
		s.window = d
	}
	return s
}

// WithClock replaces the clock used for history timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithLogger sets the logger.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	s.logger = logger
	return s
}

// Handle answers in. Prose reaches sink as the agent produces it. The
// error is non-nil only when the model provider failed.
func (s *Service) Handle(ctx context.Context, in Input, sink agent.Sink) (agent.Response, error) {
	now := s.now()
	user := in.Caller.User
	logger := s.logger.With("user", user)

	var past []string
	entries, err := s.history.RecentHistory(ctx, user, now.Add(-s.window))
	if err != nil {
		logger.Warn("failed to load history", "error", err)
	}
	for _, e := range entries {
		past = append(past, e.Content)
	}
	if q := strings.TrimSpace(in.Quoted); q != "" {
		past = append(past, q)
	}

	d := s.agent.Dispatcher()
	var examples []llm.ChatMessage
	if s.selector != nil {
		examples = s.selector.Select(ctx, in.Text)
	}
	prefix := prompt.Prefix(prompt.Instructions(d.Registry(), d.Grammar(), in.Caller.Admin), examples)

	resp, runErr := s.agent.Run(ctx, agent.Request{
		Caller:       in.Caller,
		Prefix:       prefix,
		Conversation: Conversation(past, in.Text),
	}, sink)

	entry := storage.NewHistoryEntry(user, llm.RoleUser, in.Text)
	entry.CreatedAt = now
	if err := s.history.AppendHistory(ctx, entry); err != nil {
		logger.Warn("failed to record history", "error", err)
	}
	if removed, err := s.history.PruneHistory(ctx, now.Add(-s.window)); err != nil {
		logger.Warn("failed to prune history", "error", err)
	} else if removed > 0 {
		logger.Debug("pruned history", "removed", removed)
	}

	logger.Info("message handled",
		"turns", len(resp.Turns),
		"type", resp.Type.String(),
		"elapsed_ms", resp.Metadata.ExecutionTimeMs)
	return resp, runErr
}

// Conversation builds the conversation for text: the replayed history
// and its acknowledgement when past is non-empty, then text.
func Conversation(past []string, text string) agent.Conversation {
	if len(past) == 0 {
		return agent.NewConversation(llm.UserMessage(text))
	}
	return agent.NewConversation(
		llm.UserMessage("Chat History: "+strings.Join(past, "|")),
		llm.AssistantMessage(HistoryAck),
		llm.UserMessage(text),
	)
}
