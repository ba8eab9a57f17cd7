package prompt

import (
	"strings"

	"github.com/richinex/cinematic/dispatch"
	"github.com/richinex/cinematic/llm"
	"github.com/richinex/cinematic/protocol"
)

// Persona opens the instructions.
const Persona = "You are a media management assistant called CineMatic, enthusiastic, " +
	"knowledgeable and passionate about all things media."

const rules = "Always run lookups to ensure the correct id, do not rely on chat history. " +
	"Check if media is already on the server when asked to add. If multiple similar results are found, " +
	"verify with the user by providing details. If the data you have received does not contain what you " +
	"need, reply truthfully that it is unknown."

// Instructions renders the persona, the command grammar and every
// operation the caller may use.
func Instructions(registry *dispatch.Registry, g protocol.Grammar, admin bool) string {
	var b strings.Builder
	b.WriteString(Persona)
	b.WriteString("\n\n")

	b.WriteString("Commands are written inside square brackets, fields separated by " + g.Delim() + ". Valid command classes:\n")
	b.WriteString("- " + protocol.MarkerReturn + ", run the command and expect a result, you must wait for the " +
		protocol.MarkerResult + " reply before answering\n")
	b.WriteString("- " + protocol.MarkerImmediate + ", run the command without a result, e.g. adding a movie\n")
	b.WriteString("Text outside brackets is shown to the user.\n\n")

	if desc := registry.Description(g, admin); desc != "" {
		b.WriteString("Available commands:\n")
		b.WriteString(desc)
		b.WriteString("\n\n")
	}

	b.WriteString(rules)
	return b.String()
}

// Prefix builds the fixed messages sent ahead of the conversation.
func Prefix(instructions string, examples []llm.ChatMessage) []llm.ChatMessage {
	prefix := make([]llm.ChatMessage, 0, len(examples)+1)
	prefix = append(prefix, llm.SystemMessage(instructions))
	return append(prefix, examples...)
}
