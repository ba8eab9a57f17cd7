// Package storage provides persistence for chat history and per-user memory.
//
// Information Hiding:
// - Storage backend implementation details hidden behind interfaces
// - Allows swapping between memory and SQLite without API changes
// - Each backend encapsulates its own data structures and schema

package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/richinex/cinematic/llm"
)

// HistoryEntry is one message a user exchanged with the bot.
type HistoryEntry struct {
	ID        string    `json:"id"`
	User      string    `json:"user"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewHistoryEntry creates an entry stamped with a fresh ID and the current time.
func NewHistoryEntry(user, role, content string) HistoryEntry {
	return HistoryEntry{
		ID:        uuid.NewString(),
		User:      user,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// Message converts the entry to a chat message.
func (e HistoryEntry) Message() llm.ChatMessage {
	return llm.ChatMessage{Role: e.Role, Content: e.Content}
}

// HistoryStorage keeps a rolling per-user chat history.
type HistoryStorage interface {
	// AppendHistory stores one entry.
	AppendHistory(ctx context.Context, entry HistoryEntry) error

	// RecentHistory returns the user's entries created at or after since,
	// oldest first. Returns an empty slice (not nil) when there are none.
	RecentHistory(ctx context.Context, user string, since time.Time) ([]HistoryEntry, error)

	// PruneHistory removes entries created before cutoff for every user and
	// reports how many were removed.
	PruneHistory(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteHistory removes all entries for a user.
	DeleteHistory(ctx context.Context, user string) error
}
