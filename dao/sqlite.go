package dao

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"procure-agent/model"
)

// SQLiteStore is the single-node alternative to RedisStore.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at dbPath. ":memory:" is
// accepted and pinned to a single connection.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	memory := dbPath == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if memory {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		conversation_id TEXT NOT NULL,
		content TEXT NOT NULL,
		is_user INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);

	CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) owner(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, conversationID string) (string, bool, error) {
	var owner string
	err := q.QueryRowContext(ctx, `SELECT owner FROM conversations WHERE id = ?`, conversationID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return owner, true, nil
}

func (s *SQLiteStore) GetMessages(ctx context.Context, conversationID, userScope string) ([]model.Message, error) {
	if err := validateIDs(conversationID); err != nil {
		return nil, err
	}
	owner, found, err := s.owner(ctx, s.db, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if !found {
		return []model.Message{}, nil
	}
	if err := checkOwner(conversationID, owner, userScope); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT id, content, is_user, created_at
	FROM messages
	WHERE conversation_id = ?
	ORDER BY seq ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	msgs := []model.Message{}
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.Content, &m.IsUser, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID, userScope, content string, isUser bool) (model.Message, error) {
	if err := validateIDs(conversationID); err != nil {
		return model.Message{}, err
	}
	msg := newMessage(content, isUser)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Message{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	owner, found, err := s.owner(ctx, tx, conversationID)
	if err != nil {
		return model.Message{}, fmt.Errorf("load conversation: %w", err)
	}
	if err := checkOwner(conversationID, owner, userScope); err != nil {
		return model.Message{}, err
	}
	if !found || owner == "" {
		owner = userScope
	}

	if _, err := tx.ExecContext(ctx, `
	INSERT INTO conversations (id, owner, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET owner = excluded.owner, updated_at = excluded.updated_at`,
		conversationID, owner, msg.CreatedAt); err != nil {
		return model.Message{}, fmt.Errorf("upsert conversation: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
	INSERT INTO messages (id, conversation_id, content, is_user, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, conversationID, msg.Content, msg.IsUser, msg.CreatedAt); err != nil {
		return model.Message{}, fmt.Errorf("insert message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Message{}, fmt.Errorf("commit: %w", err)
	}
	return msg, nil
}

func (s *SQLiteStore) UpdateFileStatus(ctx context.Context, fileID string, status model.FileStatus, errMsg string) error {
	if err := validateFileStatus(fileID, status); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO files (id, status, error, updated_at) VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET status = excluded.status, error = excluded.error, updated_at = excluded.updated_at`,
		fileID, string(status), errMsg, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("update file status: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
