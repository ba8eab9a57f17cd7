package storage

import (
	"context"
	"time"
)

// Memory is the free-text long-term memory kept for one user.
type Memory struct {
	User      string    `json:"user"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MemoryStorage stores one opaque memory text per user. Writes replace the
// previous text; concurrent writers for the same user race and the last
// write wins.
type MemoryStorage interface {
	// LoadMemory returns the user's memory. The bool is false if none exists.
	LoadMemory(ctx context.Context, user string) (Memory, bool, error)

	// SaveMemory replaces the user's memory text.
	SaveMemory(ctx context.Context, user, content string) error

	// DeleteMemory removes the user's memory.
	DeleteMemory(ctx context.Context, user string) error

	// ListMemoryUsers lists users that have a memory, sorted.
	ListMemoryUsers(ctx context.Context) ([]string, error)
}

// Storage combines both stores behind one handle.
type Storage interface {
	HistoryStorage
	MemoryStorage
	Close() error
}

// InMemoryPath selects the in-memory backend in Open.
const InMemoryPath = ":memory:"

// Open returns the in-memory backend for InMemoryPath and a SQLite database
// at path otherwise.
func Open(path string) (Storage, error) {
	if path == "" || path == InMemoryPath {
		return NewInMemoryStorage(), nil
	}
	return OpenSqlite(path)
}
