package discord

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"
)

// maxContent is Discord's message length limit.
const maxContent = 2000

// replySink edits the placeholder reply as prose arrives. The agent
// already limits Stream calls to one per flush interval.
type replySink struct {
	api       Session
	channelID string
	messageID string
	history   string
	logger    *slog.Logger

	mu     sync.Mutex
	latest string
	shown  string
}

// Stream implements agent.Sink.
func (s *replySink) Stream(_ context.Context, _ int, prose string) {
	s.update(Pending, prose)
}

// Emit implements agent.Sink. Empty prose keeps the previous turn's text
// on screen.
func (s *replySink) Emit(_ context.Context, _ int, prose string) {
	s.update(Pending, prose)
}

// finish writes the final marker. fallback replaces the prose when no
// turn produced any.
func (s *replySink) finish(marker, fallback string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text := s.latest
	if marker == Failed || text == "" {
		text = strings.TrimSpace(text + " " + fallback)
	}
	s.edit(marker, text)
}

func (s *replySink) update(marker, prose string) {
	prose = strings.TrimSpace(prose)
	if prose == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = prose
	s.edit(marker, prose)
}

// edit must be called with mu held.
func (s *replySink) edit(marker, prose string) {
	content := s.history + marker + " " + prose
	if len(content) > maxContent {
		content = truncate(content, maxContent)
	}
	if content == s.shown {
		return
	}
	if _, err := s.api.ChannelMessageEdit(s.channelID, s.messageID, content); err != nil {
		s.logger.Warn("failed to edit reply", "error", err)
		return
	}
	s.shown = content
}

// truncate cuts s to at most n bytes on a rune boundary, ending in "…".
func truncate(s string, n int) string {
	const ellipsis = "…"
	limit := n - len(ellipsis)
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + ellipsis
}
