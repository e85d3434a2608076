package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/planfold/planfold/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		requirement TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);

	CREATE TABLE IF NOT EXISTS plans (
		session_id TEXT PRIMARY KEY,
		plan_json TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS archived_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		kind TEXT NOT NULL,
		content TEXT NOT NULL,
		message_ts INTEGER NOT NULL,
		archived_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_archived_session ON archived_messages(session_id, id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveSession creates or updates a session snapshot.
func (s *SQLiteStore) SaveSession(ctx context.Context, snap *SessionSnapshot) error {
	query := `
	INSERT INTO sessions (session_id, state, requirement, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		state = excluded.state,
		requirement = excluded.requirement,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		snap.SessionID, string(snap.State), snap.Requirement,
		snap.CreatedAt.Unix(), snap.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session snapshot.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*SessionSnapshot, error) {
	query := `
		SELECT session_id, state, requirement, created_at, updated_at
		FROM sessions WHERE session_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID)

	var snap SessionSnapshot
	var state string
	var createdAt, updatedAt int64

	err := row.Scan(&snap.SessionID, &state, &snap.Requirement, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	snap.State = domain.State(state)
	snap.CreatedAt = time.Unix(createdAt, 0)
	snap.UpdatedAt = time.Unix(updatedAt, 0)

	return &snap, nil
}

// DeleteSession removes a session snapshot and its stored plan.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM plans WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session plan: %w", err)
	}
	return nil
}

// SavePlan stores the latest normalized plan for a session.
func (s *SQLiteStore) SavePlan(ctx context.Context, sessionID string, plan *domain.ImplementationPlan) error {
	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}

	query := `
	INSERT INTO plans (session_id, plan_json, created_at)
	VALUES (?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		plan_json = excluded.plan_json,
		created_at = excluded.created_at`

	if _, err := s.db.ExecContext(ctx, query, sessionID, string(data), time.Now().Unix()); err != nil {
		return fmt.Errorf("upsert plan: %w", err)
	}
	return nil
}

// GetPlan retrieves the latest stored plan for a session.
func (s *SQLiteStore) GetPlan(ctx context.Context, sessionID string) (*domain.ImplementationPlan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT plan_json FROM plans WHERE session_id = ?`, sessionID)

	var data string
	err := row.Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan plan row: %w", err)
	}

	var plan domain.ImplementationPlan
	if err := json.Unmarshal([]byte(data), &plan); err != nil {
		return nil, fmt.Errorf("unmarshal plan: %w", err)
	}
	return &plan, nil
}

// ArchiveMessages appends evicted conversation messages.
func (s *SQLiteStore) ArchiveMessages(ctx context.Context, sessionID string, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			slog.Warn("failed to rollback archive transaction", "error", rbErr)
		}
	}()

	query := `
	INSERT INTO archived_messages (session_id, role, kind, content, message_ts, archived_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	now := time.Now().Unix()
	for _, msg := range msgs {
		if _, err := tx.ExecContext(ctx, query,
			sessionID, string(msg.Role), string(msg.Kind), msg.Content,
			msg.Timestamp.Unix(), now,
		); err != nil {
			return fmt.Errorf("insert archived message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive transaction: %w", err)
	}
	return nil
}

// ArchivedMessages retrieves archived messages for a session in archival order.
func (s *SQLiteStore) ArchivedMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	query := `
		SELECT role, kind, content, message_ts
		FROM archived_messages WHERE session_id = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query archived messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close archived messages rows", "error", closeErr)
		}
	}()

	var msgs []domain.Message
	for rows.Next() {
		var msg domain.Message
		var role, kind string
		var ts int64
		if err := rows.Scan(&role, &kind, &msg.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan archived message row: %w", err)
		}
		msg.Role = domain.Role(role)
		msg.Kind = domain.MessageKind(kind)
		msg.Timestamp = time.Unix(ts, 0)
		msgs = append(msgs, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archived messages: %w", err)
	}

	return msgs, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
