// Package prompt assembles the fixed prefix sent ahead of every
// conversation: the persona with the command list, and few-shot
// examples picked for the user's message.
//
// Information Hiding:
// - Persona and rule wording
// - Example storage format and label matching
package prompt

import (
	_ "embed"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/richinex/cinematic/llm"
)

//go:embed examples.yaml
var defaultExamples string

// Example is one few-shot exchange and the labels that select it.
type Example struct {
	Labels []string `yaml:"labels"`
	Prompt string   `yaml:"prompt"`
}

// Messages expands the U:/A:/S: prompt lines into chat messages. Lines
// without a prefix continue the previous message.
func (e Example) Messages() []llm.ChatMessage {
	var msgs []llm.ChatMessage
	for _, line := range strings.Split(strings.TrimRight(e.Prompt, "\n"), "\n") {
		role := ""
		switch {
		case strings.HasPrefix(line, "U:"):
			role = llm.RoleUser
		case strings.HasPrefix(line, "A:"):
			role = llm.RoleAssistant
		case strings.HasPrefix(line, "S:"):
			role = llm.RoleSystem
		}

		if role == "" {
			if len(msgs) > 0 && strings.TrimSpace(line) != "" {
				msgs[len(msgs)-1].Content += "\n" + line
			}
			continue
		}
		msgs = append(msgs, llm.ChatMessage{Role: role, Content: strings.TrimSpace(line[2:])})
	}
	return msgs
}

// Library is an ordered set of examples.
type Library struct {
	Examples []Example `yaml:"examples"`
}

// LoadLibrary decodes a YAML example library.
func LoadLibrary(r io.Reader) (*Library, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var lib Library
	if err := dec.Decode(&lib); err != nil {
		return nil, fmt.Errorf("failed to decode examples: %w", err)
	}
	for i, ex := range lib.Examples {
		if len(ex.Labels) == 0 {
			return nil, fmt.Errorf("example %d has no labels", i)
		}
		if len(ex.Messages()) == 0 {
			return nil, fmt.Errorf("example %d has no prompt lines", i)
		}
	}
	return &lib, nil
}

// DefaultLibrary returns the built-in examples.
func DefaultLibrary() *Library {
	lib, err := LoadLibrary(strings.NewReader(defaultExamples))
	if err != nil {
		panic(fmt.Sprintf("prompt: built-in examples are invalid: %v", err))
	}
	return lib
}

// Labels returns every distinct label in first-seen order.
func (l *Library) Labels() []string {
	seen := make(map[string]bool)
	var labels []string
	for _, ex := range l.Examples {
		for _, label := range ex.Labels {
			key := normalizeLabel(label)
			if !seen[key] {
				seen[key] = true
				labels = append(labels, label)
			}
		}
	}
	return labels
}

// Matching returns the examples carrying any of labels, in library order.
func (l *Library) Matching(labels []string) []Example {
	want := make(map[string]bool, len(labels))
	for _, label := range labels {
		want[normalizeLabel(label)] = true
	}

	var out []Example
	for _, ex := range l.Examples {
		for _, label := range ex.Labels {
			if want[normalizeLabel(label)] {
				out = append(out, ex)
				break
			}
		}
	}
	return out
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
