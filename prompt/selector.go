package prompt

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/richinex/cinematic/llm"
)

const pickerPrompt = "You get provided with a users message, and a list of queries that the message could match, " +
	"you need to choose which examples are relevant, if its only potentially relevant still include it, " +
	"return a list of the relevant examples separated by ; Examples: what resolution is silly man? " +
	"wants resolution queried;asking about a collection of media;queries resolution"

// Acknowledgement closing the selected examples.
const (
	ExamplesAckQuestion = "The above are examples, you make replies more themed with personality, do you understand?"
	ExamplesAckAnswer   = "I understand, the above are not real conversations only for me to learn how to format " +
		"responses, I will always look up new information, I will be helpful and informative in my real " +
		"responses, I'll usually end my responses with a followup question such as 'what did you think of it?'"
)

// Words that carry no topic in labels like "wants movie added".
var stopWords = map[string]bool{
	"wants": true, "asking": true, "about": true, "what": true, "they": true,
	"have": true, "from": true, "might": true, "want": true, "information": true,
	"user": true, "with": true, "that": true, "this": true, "media": true,
}

// Selector picks the examples relevant to a user message.
type Selector struct {
	library *Library
	helper  llm.Provider
	logger  *slog.Logger
}

// NewSelector creates a selector. helper may be nil to always use word
// overlap.
func NewSelector(library *Library, helper llm.Provider) *Selector {
	if library == nil {
		library = DefaultLibrary()
	}
	return &Selector{library: library, helper: helper, logger: slog.Default()}
}

// WithLogger sets the logger.
func (s *Selector) WithLogger(logger *slog.Logger) *Selector {
	s.logger = logger
	return s
}

// Select returns the example messages for message followed by the
// acknowledgement pair, or nil when no example applies.
func (s *Selector) Select(ctx context.Context, message string) []llm.ChatMessage {
	labels := s.pick(ctx, message)
	examples := s.library.Matching(labels)
	if len(examples) == 0 {
		return nil
	}

	var msgs []llm.ChatMessage
	for _, ex := range examples {
		msgs = append(msgs, ex.Messages()...)
	}
	return append(msgs,
		llm.UserMessage(ExamplesAckQuestion),
		llm.AssistantMessage(ExamplesAckAnswer),
	)
}

func (s *Selector) pick(ctx context.Context, message string) []string {
	if s.helper == nil {
		return s.overlap(message)
	}

	reply, err := llm.NewClient(s.helper).Chat(ctx, []llm.ChatMessage{
		llm.SystemMessage(pickerPrompt),
		llm.UserMessage("queries:" + strings.Join(s.library.Labels(), ", ")),
		llm.UserMessage(message),
	})
	if err != nil {
		s.logger.Warn("example selection failed, using word overlap", "error", err)
		return s.overlap(message)
	}

	var labels []string
	for _, part := range strings.Split(reply, ";") {
		if part = strings.TrimSpace(part); part != "" {
			labels = append(labels, part)
		}
	}
	return labels
}

// overlap selects labels sharing a topic word with message.
func (s *Selector) overlap(message string) []string {
	words := make(map[string]bool)
	for _, w := range tokenize(message) {
		words[w] = true
	}

	var labels []string
	for _, label := range s.library.Labels() {
		for _, w := range tokenize(label) {
			if len(w) >= 4 && !stopWords[w] && words[w] {
				labels = append(labels, label)
				break
			}
		}
	}
	return labels
}

// tokenize lowercases s and splits it into words, folding a trailing
// plural "s" so "movies" matches "movie".
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, f := range fields {
		if len(f) > 4 && strings.HasSuffix(f, "s") && !strings.HasSuffix(f, "ss") {
			fields[i] = strings.TrimSuffix(f, "s")
		}
	}
	return fields
}
