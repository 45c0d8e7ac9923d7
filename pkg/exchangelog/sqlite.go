package exchangelog

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

// SQLiteSink stores exchanges in an `exchanges` table.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteSink, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteSink{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteSink) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exchanges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT NOT NULL,
		task_name TEXT NOT NULL,
		source TEXT,
		priority INTEGER,
		session_kind TEXT,
		prompt TEXT NOT NULL,
		response TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_exchanges_task_name ON exchanges(task_name);
	CREATE INDEX IF NOT EXISTS idx_exchanges_finished_at ON exchanges(finished_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteSink) Record(ctx context.Context, ex Exchange) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exchanges (task_id, task_name, source, priority, session_kind, prompt, response, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ex.TaskID, ex.TaskName, ex.Source, ex.Priority, ex.SessionKind,
		ex.Prompt, ex.Response, ex.StartedAt.UnixMilli(), ex.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert exchange: %w", err)
	}
	return nil
}

// Recent returns up to limit exchanges, newest first. An empty name matches all tasks.
func (s *SQLiteSink) Recent(ctx context.Context, name string, limit int) ([]Exchange, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, task_name, source, priority, session_kind, prompt, response, started_at, finished_at
		FROM exchanges
		WHERE (? = '' OR task_name = ?)
		ORDER BY finished_at DESC, id DESC
		LIMIT ?`, name, name, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query exchanges: %w", err)
	}
	defer rows.Close()

	var out []Exchange
	for rows.Next() {
		var (
			ex                  Exchange
			started, finished   int64
			source, sessionKind sql.NullString
			priority            sql.NullInt64
		)
		if err := rows.Scan(&ex.TaskID, &ex.TaskName, &source, &priority, &sessionKind,
			&ex.Prompt, &ex.Response, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan exchange: %w", err)
		}
		ex.Source = source.String
		ex.Priority = int(priority.Int64)
		ex.SessionKind = sessionKind.String
		ex.StartedAt = time.UnixMilli(started)
		ex.FinishedAt = time.UnixMilli(finished)
		out = append(out, ex)
	}
	return out, rows.Err()
}

// Count returns the number of stored exchanges.
func (s *SQLiteSink) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM exchanges").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count exchanges: %w", err)
	}
	return n, nil
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
