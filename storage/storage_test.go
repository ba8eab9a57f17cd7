package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// backends runs fn against every Storage implementation.
func backends(t *testing.T, fn func(t *testing.T, s Storage)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		fn(t, NewInMemoryStorage())
	})

	t.Run("sqlite", func(t *testing.T) {
		s, err := NewSqliteInMemory()
		if err != nil {
			t.Fatalf("Failed to create storage: %v", err)
		}
		defer s.Close()
		fn(t, s)
	})
}

func entryAt(user, role, content string, at time.Time) HistoryEntry {
	e := NewHistoryEntry(user, role, content)
	e.CreatedAt = at
	return e
}

func TestHistoryAppendAndRecent(t *testing.T) {
	backends(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		base := time.Now().Add(-time.Hour)

		for i, content := range []string{"old", "first", "second"} {
			at := base.Add(time.Duration(i) * 20 * time.Minute)
			if err := s.AppendHistory(ctx, entryAt("alice", "user", content, at)); err != nil {
				t.Fatalf("AppendHistory failed: %v", err)
			}
		}
		if err := s.AppendHistory(ctx, entryAt("bob", "user", "other", base.Add(50*time.Minute))); err != nil {
			t.Fatalf("AppendHistory failed: %v", err)
		}

		entries, err := s.RecentHistory(ctx, "alice", base.Add(10*time.Minute))
		if err != nil {
			t.Fatalf("RecentHistory failed: %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(entries))
		}
		if entries[0].Content != "first" || entries[1].Content != "second" {
			t.Errorf("expected oldest first, got %q, %q", entries[0].Content, entries[1].Content)
		}
		if entries[0].Message().Role != "user" {
			t.Errorf("unexpected role %q", entries[0].Role)
		}
	})
}

func TestHistoryRecentEmpty(t *testing.T) {
	backends(t, func(t *testing.T, s Storage) {
		entries, err := s.RecentHistory(context.Background(), "nobody", time.Time{})
		if err != nil {
			t.Fatalf("RecentHistory failed: %v", err)
		}
		if entries == nil || len(entries) != 0 {
			t.Errorf("expected empty non-nil slice, got %#v", entries)
		}
	})
}

func TestHistoryPrune(t *testing.T) {
	backends(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		now := time.Now()

		_ = s.AppendHistory(ctx, entryAt("alice", "user", "stale", now.Add(-30*time.Minute)))
		_ = s.AppendHistory(ctx, entryAt("bob", "user", "stale", now.Add(-25*time.Minute)))
		_ = s.AppendHistory(ctx, entryAt("alice", "user", "fresh", now.Add(-time.Minute)))

		removed, err := s.PruneHistory(ctx, now.Add(-20*time.Minute))
		if err != nil {
			t.Fatalf("PruneHistory failed: %v", err)
		}
		if removed != 2 {
			t.Errorf("expected 2 removed, got %d", removed)
		}

		entries, _ := s.RecentHistory(ctx, "alice", time.Time{})
		if len(entries) != 1 || entries[0].Content != "fresh" {
			t.Errorf("unexpected remaining entries %+v", entries)
		}
	})
}

func TestHistoryDelete(t *testing.T) {
	backends(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		_ = s.AppendHistory(ctx, NewHistoryEntry("alice", "user", "hi"))

		if err := s.DeleteHistory(ctx, "alice"); err != nil {
			t.Fatalf("DeleteHistory failed: %v", err)
		}
		entries, _ := s.RecentHistory(ctx, "alice", time.Time{})
		if len(entries) != 0 {
			t.Errorf("expected no entries after delete, got %d", len(entries))
		}
	})
}

func TestMemorySaveAndLoad(t *testing.T) {
	backends(t, func(t *testing.T, s Storage) {
		ctx := context.Background()

		if _, ok, err := s.LoadMemory(ctx, "alice"); err != nil || ok {
			t.Fatalf("expected no memory, got ok=%v err=%v", ok, err)
		}

		if err := s.SaveMemory(ctx, "alice", "Likes heist films."); err != nil {
			t.Fatalf("SaveMemory failed: %v", err)
		}
		if err := s.SaveMemory(ctx, "alice", "Likes heist films. Name is Alice."); err != nil {
			t.Fatalf("SaveMemory overwrite failed: %v", err)
		}

		m, ok, err := s.LoadMemory(ctx, "alice")
		if err != nil || !ok {
			t.Fatalf("LoadMemory: ok=%v err=%v", ok, err)
		}
		if m.Content != "Likes heist films. Name is Alice." || m.User != "alice" {
			t.Errorf("unexpected memory %+v", m)
		}
		if m.UpdatedAt.IsZero() {
			t.Error("expected UpdatedAt to be set")
		}
	})
}

func TestMemoryDeleteAndList(t *testing.T) {
	backends(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		_ = s.SaveMemory(ctx, "carol", "c")
		_ = s.SaveMemory(ctx, "alice", "a")

		users, err := s.ListMemoryUsers(ctx)
		if err != nil {
			t.Fatalf("ListMemoryUsers failed: %v", err)
		}
		if len(users) != 2 || users[0] != "alice" || users[1] != "carol" {
			t.Errorf("unexpected users %q", users)
		}

		if err := s.DeleteMemory(ctx, "alice"); err != nil {
			t.Fatalf("DeleteMemory failed: %v", err)
		}
		if _, ok, _ := s.LoadMemory(ctx, "alice"); ok {
			t.Error("memory still present after delete")
		}
	})
}

func TestMemoryConcurrentWriters(t *testing.T) {
	backends(t, func(t *testing.T, s Storage) {
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := s.SaveMemory(ctx, "alice", "fact"); err != nil {
					t.Errorf("SaveMemory failed: %v", err)
				}
			}()
		}
		wg.Wait()

		if m, ok, _ := s.LoadMemory(ctx, "alice"); !ok || m.Content != "fact" {
			t.Errorf("unexpected memory after concurrent writes: %+v", m)
		}
	})
}

func TestOpenSelectsBackend(t *testing.T) {
	s, err := Open(InMemoryPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, ok := s.(*InMemoryStorage); !ok {
		t.Errorf("expected in-memory backend, got %T", s)
	}

	path := filepath.Join(t.TempDir(), "nested", "cinematic.db")
	s, err = Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SqliteStorage); !ok {
		t.Errorf("expected sqlite backend, got %T", s)
	}
	if err := s.SaveMemory(context.Background(), "alice", "x"); err != nil {
		t.Errorf("SaveMemory on file database failed: %v", err)
	}
}
