package pallium

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// SQLite driver using pure Go implementation
	_ "modernc.org/sqlite"
)

// SQLiteStoreConfig configures the SQLite snapshot store.
type SQLiteStoreConfig struct {
	// Path to the SQLite database file.
	Path string

	// JournalMode sets the SQLite journal mode (WAL, DELETE, TRUNCATE, ...).
	JournalMode string

	// BusyTimeout is the lock acquisition timeout in milliseconds.
	BusyTimeout int
}

// DefaultSQLiteStoreConfig returns default configuration.
func DefaultSQLiteStoreConfig(path string) SQLiteStoreConfig {
	return SQLiteStoreConfig{
		Path:        path,
		JournalMode: "WAL",
		BusyTimeout: 5000,
	}
}

// SQLiteStore implements SnapshotStore backed by a SQLite database, which
// keeps every snapshot in one file that standard SQLite tooling can read.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) a SQLite-backed snapshot store.
func NewSQLiteStore(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite snapshot store: path is required")
	}
	if cfg.JournalMode == "" {
		cfg.JournalMode = "WAL"
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5000
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(%s)&_pragma=busy_timeout(%d)",
		cfg.Path, cfg.JournalMode, cfg.BusyTimeout)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite snapshot store: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	name       TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	data       BLOB NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create snapshot schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, name string, data []byte) error {
	if name == "" {
		return newSnapshotError("sqlite", "save", name, errors.New("snapshot name must not be empty"))
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (name, created_at, data) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET created_at = excluded.created_at, data = excluded.data`,
		name, time.Now().UnixNano(), data)
	if err != nil {
		return newSnapshotError("sqlite", "save", name, err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM snapshots WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newSnapshotError("sqlite", "load", name, ErrSnapshotNotFound)
	}
	if err != nil {
		return nil, newSnapshotError("sqlite", "load", name, err)
	}
	return data, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM snapshots ORDER BY name`)
	if err != nil {
		return nil, newSnapshotError("sqlite", "list", "", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, newSnapshotError("sqlite", "list", "", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, newSnapshotError("sqlite", "list", "", err)
	}
	return names, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE name = ?`, name); err != nil {
		return newSnapshotError("sqlite", "delete", name, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
