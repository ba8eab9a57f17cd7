// SQLite storage.
//
// Information Hiding:
// - SQLite connection management hidden behind interface
// - Schema details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SqliteStorage implements HistoryStorage and MemoryStorage using SQLite.
// Timestamps are stored as Unix nanoseconds.
type SqliteStorage struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStorage, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return newSqlite(db)
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStorage, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return newSqlite(db)
}

func newSqlite(db *sql.DB) (*SqliteStorage, error) {
	storage := &SqliteStorage{db: db}
	if err := storage.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return storage, nil
}

// Close closes the database connection.
func (s *SqliteStorage) Close() error {
	return s.db.Close()
}

func (s *SqliteStorage) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS history (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_history_user
		ON history(user_id, created_at);

		CREATE TABLE IF NOT EXISTS memories (
			user_id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// AppendHistory stores one entry.
func (s *SqliteStorage) AppendHistory(ctx context.Context, entry HistoryEntry) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO history (id, user_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)",
		entry.ID, entry.User, entry.Role, entry.Content, entry.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// RecentHistory returns the user's entries since the given time, oldest first.
func (s *SqliteStorage) RecentHistory(ctx context.Context, user string, since time.Time) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, role, content, created_at
		FROM history
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at ASC, rowid ASC`,
		user, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	entries := []HistoryEntry{} // Start with empty slice, not nil
	for rows.Next() {
		var e HistoryEntry
		var created int64
		if err := rows.Scan(&e.ID, &e.User, &e.Role, &e.Content, &created); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		e.CreatedAt = time.Unix(0, created)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}

	return entries, nil
}

// PruneHistory removes entries created before cutoff.
func (s *SqliteStorage) PruneHistory(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM history WHERE created_at < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned history: %w", err)
	}
	return n, nil
}

// DeleteHistory removes all entries for a user.
func (s *SqliteStorage) DeleteHistory(ctx context.Context, user string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM history WHERE user_id = ?", user)
	if err != nil {
		return fmt.Errorf("failed to delete history: %w", err)
	}
	return nil
}

// LoadMemory returns the user's memory.
func (s *SqliteStorage) LoadMemory(ctx context.Context, user string) (Memory, bool, error) {
	m := Memory{User: user}
	var updated int64

	err := s.db.QueryRowContext(ctx,
		"SELECT content, updated_at FROM memories WHERE user_id = ?",
		user).Scan(&m.Content, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Memory{}, false, nil
	}
	if err != nil {
		return Memory{}, false, fmt.Errorf("failed to load memory: %w", err)
	}

	m.UpdatedAt = time.Unix(0, updated)
	return m, true, nil
}

// SaveMemory replaces the user's memory text.
func (s *SqliteStorage) SaveMemory(ctx context.Context, user, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (user_id, content, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		user, content, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save memory: %w", err)
	}
	return nil
}

// DeleteMemory removes the user's memory.
func (s *SqliteStorage) DeleteMemory(ctx context.Context, user string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE user_id = ?", user)
	if err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}
	return nil
}

// ListMemoryUsers lists users that have a memory.
func (s *SqliteStorage) ListMemoryUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT user_id FROM memories ORDER BY user_id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	users := []string{}
	for rows.Next() {
		var user string
		if err := rows.Scan(&user); err != nil {
			return nil, fmt.Errorf("failed to scan memory user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memory users: %w", err)
	}

	return users, nil
}

// Verify SqliteStorage implements Storage
var _ Storage = (*SqliteStorage)(nil)
