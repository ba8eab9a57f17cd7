package media

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/richinex/cinematic/dispatch"
	"github.com/richinex/cinematic/llm"
)

// Service answers free-text questions about titles on one server and
// performs the mutations the model asks for.
type Service struct {
	client *Client
	helper llm.Provider
	logger *slog.Logger
}

// NewService creates a service. helper condenses lookup results for the
// query and may be nil, in which case descriptions are returned as-is.
func NewService(client *Client, helper llm.Provider) *Service {
	return &Service{client: client, helper: helper, logger: slog.Default()}
}

// WithLogger sets the logger.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	s.logger = logger
	return s
}

// Client returns the underlying server client.
func (s *Service) Client() *Client {
	return s.client
}

func (s *Service) parserPrompt() string {
	return "You are a data parser assistant, provide a lot of information, if there are multiple " +
		"matches to the query list them all, you also include data for media not available on the " +
		"server. Provide a concise summary, format like this with key value " +
		"{" + s.client.kind.Label() + "_Name;unavailable;release 1995;" + s.client.kind.IDKey() + " 862}"
}

// Lookup searches for term and answers query from the matches.
func (s *Service) Lookup(ctx context.Context, term, query string) (string, error) {
	records, err := s.client.Lookup(ctx, term)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return dispatch.NoResults, nil
	}

	described := Describe(s.client.kind, records)
	s.logger.Debug("media lookup", "kind", s.client.kind, "term", term, "results", len(records))

	if s.helper == nil {
		return described, nil
	}

	messages := []llm.ChatMessage{
		llm.UserMessage(s.parserPrompt()),
		llm.UserMessage(described),
		llm.UserMessage(fmt.Sprintf("From the above information for term %s. %s", term, query)),
	}
	answer, err := llm.NewClient(s.helper).Chat(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("failed to summarise %s lookup: %w", s.client.kind, err)
	}
	if strings.TrimSpace(answer) == "" {
		return described, nil
	}
	return answer, nil
}
