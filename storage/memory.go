// In-memory storage.
//
// Information Hiding:
// - Map storage structure hidden from users
// - Thread-safe access via RWMutex hidden behind interface
// - Suitable for testing and ephemeral sessions

package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStorage implements Storage with maps.
// Data is lost when the process terminates.
type InMemoryStorage struct {
	mu       sync.RWMutex
	history  map[string][]HistoryEntry
	memories map[string]Memory
}

// NewInMemoryStorage creates a new in-memory storage.
func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		history:  make(map[string][]HistoryEntry),
		memories: make(map[string]Memory),
	}
}

// Close is a no-op.
func (s *InMemoryStorage) Close() error {
	return nil
}

// AppendHistory stores one entry.
func (s *InMemoryStorage) AppendHistory(ctx context.Context, entry HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[entry.User] = append(s.history[entry.User], entry)
	return nil
}

// RecentHistory returns the user's entries since the given time, oldest first.
func (s *InMemoryStorage) RecentHistory(ctx context.Context, user string, since time.Time) ([]HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := []HistoryEntry{}
	for _, e := range s.history[user] {
		if !e.CreatedAt.Before(since) {
			entries = append(entries, e)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

// PruneHistory removes entries created before cutoff.
func (s *InMemoryStorage) PruneHistory(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for user, entries := range s.history {
		kept := entries[:0:0]
		for _, e := range entries {
			if e.CreatedAt.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(s.history, user)
		} else {
			s.history[user] = kept
		}
	}
	return removed, nil
}

// DeleteHistory removes all entries for a user.
func (s *InMemoryStorage) DeleteHistory(ctx context.Context, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.history, user)
	return nil
}

// LoadMemory returns the user's memory.
func (s *InMemoryStorage) LoadMemory(ctx context.Context, user string) (Memory, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.memories[user]
	return m, ok, nil
}

// SaveMemory replaces the user's memory text.
func (s *InMemoryStorage) SaveMemory(ctx context.Context, user, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.memories[user] = Memory{User: user, Content: content, UpdatedAt: time.Now()}
	return nil
}

// DeleteMemory removes the user's memory.
func (s *InMemoryStorage) DeleteMemory(ctx context.Context, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.memories, user)
	return nil
}

// ListMemoryUsers lists users that have a memory.
func (s *InMemoryStorage) ListMemoryUsers(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]string, 0, len(s.memories))
	for user := range s.memories {
		users = append(users, user)
	}
	sort.Strings(users)
	return users, nil
}

// Verify InMemoryStorage implements Storage
var _ Storage = (*InMemoryStorage)(nil)
