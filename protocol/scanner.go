package protocol

import (
	"strings"
)

// State is the scanner's position relative to brackets.
type State int

const (
	// StateProse means text is user-facing.
	StateProse State = iota
	// StateCommand means text is being collected between brackets.
	StateCommand
)

// Flags summarises which command classes a turn produced.
type Flags struct {
	HasReturn    bool
	HasImmediate bool
}

// Result is the outcome of scanning one complete model output.
type Result struct {
	// Prose is the user-facing text. When bracketed spans were removed,
	// double spaces are collapsed and the ends trimmed; otherwise it is the
	// text as written.
	Prose    string
	Commands []Command
	Flags    Flags
}

// Returns yields the return-expected commands in order of appearance.
func (r Result) Returns() []Command {
	return r.filter(ClassReturn)
}

// Immediates yields the immediate commands in order of appearance.
func (r Result) Immediates() []Command {
	return r.filter(ClassImmediate)
}

func (r Result) filter(class Class) []Command {
	var out []Command
	for _, c := range r.Commands {
		if c.Class == class {
			out = append(out, c)
		}
	}
	return out
}

// Scan splits a complete text with the Default grammar.
func Scan(text string) Result {
	return Default.Scan(text)
}

// Scan splits a complete text into prose and commands. It runs the same
// state machine as the streaming Scanner over the whole input.
func (g Grammar) Scan(text string) Result {
	s := g.NewScanner()
	s.Write(text)
	return s.Close()
}

// Scanner applies the grammar incrementally as text arrives.
//
// A '[' while collecting a command abandons the partial command: its text,
// opening bracket included, becomes prose and collection restarts. A command
// still open at Close is likewise returned to the prose. Bracketed spans that
// do not parse as commands are removed from the prose and dropped.
type Scanner struct {
	grammar  Grammar
	state    State
	prose    strings.Builder
	pending  strings.Builder
	commands []Command
	flags    Flags
	// removed is set once any bracketed span has been cut from the prose.
	removed bool

	onProse   func(fragment string)
	onCommand func(Command)
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// OnProse registers fn to receive prose fragments as soon as they are known
// to lie outside brackets.
func OnProse(fn func(fragment string)) ScannerOption {
	return func(s *Scanner) { s.onProse = fn }
}

// OnCommand registers fn to receive each command when its closing bracket
// arrives.
func OnCommand(fn func(Command)) ScannerOption {
	return func(s *Scanner) { s.onCommand = fn }
}

// NewScanner creates a streaming scanner for g.
func (g Grammar) NewScanner(opts ...ScannerOption) *Scanner {
	s := &Scanner{grammar: g}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state.
func (s *Scanner) State() State {
	return s.state
}

// Write feeds the next chunk of model output.
func (s *Scanner) Write(chunk string) {
	segStart := 0
	for i := 0; i < len(chunk); i++ {
		c := chunk[i]
		switch s.state {
		case StateProse:
			if c == '[' {
				s.emitProse(chunk[segStart:i])
				s.state = StateCommand
				s.pending.Reset()
			}
		case StateCommand:
			switch c {
			case ']':
				s.finishCommand()
				s.state = StateProse
				segStart = i + 1
			case '[':
				s.emitProse("[" + s.pending.String())
				s.pending.Reset()
			default:
				s.pending.WriteByte(c)
			}
		}
	}
	if s.state == StateProse {
		s.emitProse(chunk[segStart:])
	}
}

// Close ends the input and returns the result. An unterminated command is
// treated as prose.
func (s *Scanner) Close() Result {
	if s.state == StateCommand {
		s.emitProse("[" + s.pending.String())
		s.pending.Reset()
		s.state = StateProse
	}

	commands := make([]Command, len(s.commands))
	copy(commands, s.commands)

	return Result{
		Prose:    s.Prose(),
		Commands: commands,
		Flags:    s.flags,
	}
}

// Prose returns the prose seen so far, excluding any command still being
// collected. It is normalised only after a span has been removed.
func (s *Scanner) Prose() string {
	if !s.removed {
		return s.prose.String()
	}
	return NormalizeProse(s.prose.String())
}

func (s *Scanner) emitProse(fragment string) {
	if fragment == "" {
		return
	}
	s.prose.WriteString(fragment)
	if s.onProse != nil {
		s.onProse(fragment)
	}
}

func (s *Scanner) finishCommand() {
	cmd, ok := s.grammar.Parse(s.pending.String())
	s.pending.Reset()
	s.removed = true
	if !ok {
		return
	}

	switch cmd.Class {
	case ClassReturn:
		s.flags.HasReturn = true
	case ClassImmediate:
		s.flags.HasImmediate = true
	}
	s.commands = append(s.commands, cmd)
	if s.onCommand != nil {
		s.onCommand(cmd)
	}
}

// NormalizeProse collapses runs of spaces left behind by removed commands
// and trims the result.
func NormalizeProse(s string) string {
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return strings.TrimSpace(s)
}
