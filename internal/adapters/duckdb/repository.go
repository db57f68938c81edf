// Package duckdb implements the persistence port on an embedded DuckDB
// database: conversation messages, thread summaries, traces, and settings.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/manthysbr/lineOS/internal/core/domain"
)

// Repository is the DuckDB-backed store. One instance serves the whole
// process; database/sql handles connection pooling.
type Repository struct {
	db *sql.DB
}

// NewRepository opens (or creates) the database at path and bootstraps
// the schema.
func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	r := &Repository{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Close releases the underlying database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate() error {
	stmts := []string{
		`CREATE SEQUENCE IF NOT EXISTS message_seq`,
		`CREATE TABLE IF NOT EXISTS messages (
			seq        BIGINT PRIMARY KEY DEFAULT nextval('message_seq'),
			thread_id  VARCHAR NOT NULL,
			role       VARCHAR NOT NULL,
			content    VARCHAR NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT current_timestamp
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id)`,
		`CREATE TABLE IF NOT EXISTS summaries (
			thread_id  VARCHAR PRIMARY KEY,
			summary    VARCHAR NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT current_timestamp
		)`,
		`CREATE TABLE IF NOT EXISTS traces (
			id           VARCHAR PRIMARY KEY,
			name         VARCHAR NOT NULL,
			status       VARCHAR NOT NULL,
			thread_id    VARCHAR,
			root_span_id VARCHAR,
			start_time   TIMESTAMP,
			end_time     TIMESTAMP,
			duration_ms  BIGINT,
			span_count   INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS spans (
			id          VARCHAR PRIMARY KEY,
			trace_id    VARCHAR NOT NULL,
			parent_id   VARCHAR,
			name        VARCHAR NOT NULL,
			kind        VARCHAR NOT NULL,
			status      VARCHAR NOT NULL,
			input       VARCHAR,
			output      VARCHAR,
			error       VARCHAR,
			start_time  TIMESTAMP,
			end_time    TIMESTAMP,
			duration_ms BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_spans_trace ON spans(trace_id)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key   VARCHAR PRIMARY KEY,
			value VARCHAR NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// --- Messages ---

// AddMessage appends one conversation message.
func (r *Repository) AddMessage(ctx context.Context, msg domain.MemoryMessage) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (thread_id, role, content)
		VALUES (?, ?, ?)`,
		msg.ThreadID, string(msg.Role), msg.Content)
	if err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	return nil
}

// ListRecent returns the newest messages of a thread in chronological
// (oldest-first) order.
func (r *Repository) ListRecent(ctx context.Context, threadID string, limit int) ([]domain.MemoryMessage, error) {
	if limit <= 0 {
		limit = 8
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT thread_id, role, content, created_at
		FROM messages
		WHERE thread_id = ?
		ORDER BY seq DESC
		LIMIT ?`, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []domain.MemoryMessage
	for rows.Next() {
		var m domain.MemoryMessage
		var role string
		if err := rows.Scan(&m.ThreadID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = domain.MessageRole(role)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query returned newest-first; callers want chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if out == nil {
		out = []domain.MemoryMessage{}
	}
	return out, nil
}

// CountMessages returns how many messages a thread holds.
func (r *Repository) CountMessages(ctx context.Context, threadID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE thread_id = ?`, threadID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// --- Summaries ---

// GetSummary returns the rolling summary of a thread, empty when none exists.
func (r *Repository) GetSummary(ctx context.Context, threadID string) (string, error) {
	var summary string
	err := r.db.QueryRowContext(ctx,
		`SELECT summary FROM summaries WHERE thread_id = ?`, threadID).Scan(&summary)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get summary: %w", err)
	}
	return summary, nil
}

// UpsertSummary replaces the rolling summary of a thread.
func (r *Repository) UpsertSummary(ctx context.Context, threadID, summary string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO summaries (thread_id, summary, updated_at)
		VALUES (?, ?, current_timestamp)
		ON CONFLICT (thread_id) DO UPDATE SET
			summary    = excluded.summary,
			updated_at = excluded.updated_at`,
		threadID, summary)
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}
	return nil
}

// --- Settings ---

// GetSetting returns a settings value, empty when the key is absent.
func (r *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SaveSetting upserts a settings value.
func (r *Repository) SaveSetting(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value)
		VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("save setting: %w", err)
	}
	return nil
}
