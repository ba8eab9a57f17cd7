// Package protocol implements the bracketed command grammar the model uses
// to ask for side effects and lookups, and the scanner that separates those
// commands from user-facing prose.
//
// Wire format, with the default delimiter:
//
//	[CMD~operation~arg1~arg2]     immediate, result discarded
//	[CMDRET~operation~arg1~arg2]  return-expected, result fed back
//	[RES~text]                    result envelope sent back to the model
//
// Information Hiding:
// - Field splitting and class-marker recognition
// - Two-state incremental scanner
// - Prose normalisation after command removal
package protocol

import (
	"strings"
)

// Class markers as they appear on the wire.
const (
	MarkerImmediate = "CMD"
	MarkerReturn    = "CMDRET"
	MarkerResult    = "RES"
)

// Class distinguishes fire-and-forget commands from return-expected ones.
type Class int

const (
	// ClassUnknown marks a bracketed span whose class marker was not recognised.
	ClassUnknown Class = iota
	// ClassImmediate commands run after the turn settles; their result is discarded.
	ClassImmediate
	// ClassReturn commands run concurrently; their results feed the next turn.
	ClassReturn
)

// String returns the wire marker for c.
func (c Class) String() string {
	switch c {
	case ClassImmediate:
		return MarkerImmediate
	case ClassReturn:
		return MarkerReturn
	default:
		return "unknown"
	}
}

// Command is one parsed bracketed instruction.
type Command struct {
	Class Class
	Op    string
	Args  []string
	// Raw is the text between the brackets, exactly as the model wrote it.
	Raw string
}

// String renders the command back in wire form.
func (c Command) String() string {
	return "[" + c.Raw + "]"
}

// Grammar holds the reserved characters of the protocol.
// The zero value behaves like Default.
type Grammar struct {
	// Delimiter separates the fields of a command.
	Delimiter string
	// TermSeparator joins several search terms inside one argument.
	TermSeparator string
}

// Default is the grammar the model is instructed to use.
var Default = Grammar{Delimiter: "~", TermSeparator: "¬"}

// Delim returns the field delimiter in effect.
func (g Grammar) Delim() string {
	if g.Delimiter == "" {
		return Default.Delimiter
	}
	return g.Delimiter
}

// TermSep returns the term separator in effect.
func (g Grammar) TermSep() string {
	if g.TermSeparator == "" {
		return Default.TermSeparator
	}
	return g.TermSeparator
}

// Parse interprets body, the text between one pair of brackets. It reports
// false for spans that are not commands: an unknown class marker or a
// missing operation name.
func (g Grammar) Parse(body string) (Command, bool) {
	fields := strings.Split(body, g.Delim())
	if len(fields) < 2 {
		return Command{}, false
	}

	var class Class
	switch strings.TrimSpace(fields[0]) {
	case MarkerImmediate:
		class = ClassImmediate
	case MarkerReturn:
		class = ClassReturn
	default:
		return Command{}, false
	}

	op := strings.TrimSpace(fields[1])
	if op == "" {
		return Command{}, false
	}

	args := make([]string, 0, len(fields)-2)
	for _, f := range fields[2:] {
		args = append(args, strings.TrimSpace(f))
	}

	return Command{Class: class, Op: op, Args: args, Raw: body}, true
}

// Terms splits a multi-term argument ("Alien¬Aliens") into its terms,
// dropping empty ones. A single term comes back as a one-element slice.
func (g Grammar) Terms(arg string) []string {
	parts := strings.Split(arg, g.TermSep())
	terms := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			terms = append(terms, p)
		}
	}
	return terms
}

// Format renders op and args as a command of the given class.
func (g Grammar) Format(class Class, op string, args ...string) string {
	fields := append([]string{class.String(), op}, args...)
	return "[" + strings.Join(fields, g.Delim()) + "]"
}

// Envelope wraps one result text for the model.
func (g Grammar) Envelope(text string) string {
	return "[" + MarkerResult + g.Delim() + text + "]"
}

// Aggregate concatenates the envelopes of texts in the given order.
func (g Grammar) Aggregate(texts []string) string {
	var b strings.Builder
	for _, t := range texts {
		b.WriteString(g.Envelope(t))
	}
	return b.String()
}
