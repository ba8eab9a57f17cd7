// Terminal front-ends for the assistant.
//
// Information Hiding:
// - Incremental printing of streamed prose
// - REPL loop and exit words
// - Command listing format

package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/richinex/cinematic/agent"
	"github.com/richinex/cinematic/chat"
	"github.com/richinex/cinematic/dispatch"
)

// consoleSink prints prose as it grows, writing only the new suffix.
type consoleSink struct {
	out     io.Writer
	printed string
}

// Stream implements agent.Sink.
func (s *consoleSink) Stream(_ context.Context, _ int, prose string) {
	s.write(prose)
}

// Emit implements agent.Sink.
func (s *consoleSink) Emit(_ context.Context, _ int, prose string) {
	s.write(prose)
	if s.printed != "" {
		fmt.Fprintln(s.out)
	}
	s.printed = ""
}

func (s *consoleSink) write(prose string) {
	if strings.HasPrefix(prose, s.printed) {
		fmt.Fprint(s.out, prose[len(s.printed):])
	} else {
		// The model rewrote earlier prose; start a fresh line.
		fmt.Fprint(s.out, "\n"+prose)
	}
	s.printed = prose
}

var _ agent.Sink = (*consoleSink)(nil)

// Ask answers a single question and prints the prose.
func Ask(ctx context.Context, app *App, caller dispatch.Caller, question string, out io.Writer) error {
	_, err := app.Chat.Handle(ctx, chat.Input{Caller: caller, Text: question}, &consoleSink{out: out})
	return err
}

// Chat runs an interactive session until in is exhausted or the user types
// exit. A failed model call is reported and the session continues.
func Chat(ctx context.Context, app *App, caller dispatch.Caller, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "Chatting as %s. Type 'exit' to quit.\n\n", caller.User)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		resp, err := app.Chat.Handle(ctx, chat.Input{Caller: caller, Text: input}, &consoleSink{out: out})
		if err != nil {
			fmt.Fprintf(out, "\nError: %v\n\n", err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		fmt.Fprintf(out, "(%d turns, %dms)\n\n", len(resp.Turns), resp.Metadata.ExecutionTimeMs)
	}
	return scanner.Err()
}

// ListCommands prints the commands visible to an admin or regular caller.
func ListCommands(out io.Writer, d *dispatch.Dispatcher, admin bool) {
	fmt.Fprintln(out, "Available commands:")
	fmt.Fprintln(out)
	desc := d.Registry().Description(d.Grammar(), admin)
	if desc == "" {
		fmt.Fprintln(out, "  (none)")
		return
	}
	for _, line := range strings.Split(desc, "\n") {
		fmt.Fprintf(out, "  %s\n", line)
	}
}
