// Package memory keeps a short free-text note per user about what they
// like and have asked for, read and rewritten by a helper model.
//
// Information Hiding:
// - Few-shot prompts for reading and rewriting a memory
// - Read-modify-write against the store (last write wins)
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/richinex/cinematic/dispatch"
	"github.com/richinex/cinematic/llm"
	"github.com/richinex/cinematic/protocol"
	"github.com/richinex/cinematic/storage"
)

// NoMemories is returned for a user with nothing stored.
const NoMemories = "no memories"

// Service reads and updates user memories.
type Service struct {
	store  storage.MemoryStorage
	helper llm.Provider
	logger *slog.Logger
}

// NewService creates a service over store. Without a helper model Get
// returns the raw memory and Update appends the fact.
func NewService(store storage.MemoryStorage, helper llm.Provider) *Service {
	return &Service{store: store, helper: helper, logger: slog.Default()}
}

// WithLogger sets the logger.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	s.logger = logger
	return s
}

func readPrompt(memory, query string) []llm.ChatMessage {
	msgs := []llm.ChatMessage{
		llm.UserMessage("You are a memory access assistant, you view a memory file and query it for information"),
		llm.UserMessage("memories:requested all 7 abc movies, enjoyed eastworld"),
		llm.UserMessage("user requested abc movie 2?"),
		llm.AssistantMessage("yes user requested abc 2"),
		llm.UserMessage("user requested eastworld?"),
		llm.AssistantMessage("no user has not requested eastworld, but they mentioned they enjoyed it"),
	}
	msgs = append(msgs, llm.ExampleAck()...)
	return append(msgs,
		llm.UserMessage("memories:"+memory),
		llm.UserMessage(query),
	)
}

func writePrompt(memory, fact string) []llm.ChatMessage {
	msgs := []llm.ChatMessage{
		llm.UserMessage("You are a memory writer assistant, you view a memory file and update it with information, you write extremely brief summaries"),
		llm.UserMessage("memories:enjoyed movie puppet 1, wants series eastworld"),
		llm.UserMessage("Add 'loved movie stingate 1995'"),
		llm.AssistantMessage("enjoyed movie puppet 1 and loved movie stingate 1995, wants series eastworld"),
		llm.UserMessage("Add 'doesnt want series eastworld'"),
		llm.AssistantMessage("enjoyed movie puppet 1 and loved movie stingate 1995"),
	}
	msgs = append(msgs, llm.ExampleAck()...)
	return append(msgs,
		llm.UserMessage("memories:"+memory),
		llm.UserMessage(fmt.Sprintf("Add '%s'", fact)),
	)
}

// Get answers query from the user's memory.
func (s *Service) Get(ctx context.Context, user, query string) (string, error) {
	mem, ok, err := s.store.LoadMemory(ctx, user)
	if err != nil {
		return "", fmt.Errorf("failed to load memory: %w", err)
	}
	if !ok || strings.TrimSpace(mem.Content) == "" {
		return NoMemories, nil
	}
	if s.helper == nil {
		return mem.Content, nil
	}

	answer, err := llm.NewClient(s.helper).Chat(ctx, readPrompt(mem.Content, query))
	if err != nil {
		return "", fmt.Errorf("failed to query memory: %w", err)
	}
	return answer, nil
}

// Update rewrites the user's memory to include fact.
func (s *Service) Update(ctx context.Context, user, fact string) error {
	fact = strings.TrimSpace(fact)
	if fact == "" {
		return nil
	}

	mem, _, err := s.store.LoadMemory(ctx, user)
	if err != nil {
		return fmt.Errorf("failed to load memory: %w", err)
	}

	var updated string
	switch {
	case s.helper != nil:
		updated, err = llm.NewClient(s.helper).Chat(ctx, writePrompt(mem.Content, fact))
		if err != nil {
			return fmt.Errorf("failed to rewrite memory: %w", err)
		}
	case mem.Content == "":
		updated = fact
	default:
		updated = mem.Content + ", " + fact
	}

	if err := s.store.SaveMemory(ctx, user, updated); err != nil {
		return fmt.Errorf("failed to save memory: %w", err)
	}
	s.logger.Debug("memory updated", "user", user, "length", len(updated))
	return nil
}

// Operations returns the memory_get and memory_update dispatch entries.
// Both act on the calling user.
func (s *Service) Operations() []dispatch.Operation {
	return []dispatch.Operation{
		{
			Name:        "memory_get",
			Description: "Answers a question from what you remember about the user, e.g. what they like or have requested before.",
			Class:       protocol.ClassReturn,
			Params:      []dispatch.Param{{Name: "query"}},
			Call: func(ctx context.Context, req dispatch.Request) (string, error) {
				return s.Get(ctx, req.Caller.User, req.Arg(0))
			},
		},
		{
			Name:        "memory_update",
			Description: "Remembers a short fact about the user for future conversations.",
			Class:       protocol.ClassImmediate,
			Params:      []dispatch.Param{{Name: "fact"}},
			Call: func(ctx context.Context, req dispatch.Request) (string, error) {
				if err := s.Update(ctx, req.Caller.User, req.Arg(0)); err != nil {
					return "", err
				}
				return "memory updated", nil
			},
		},
	}
}
