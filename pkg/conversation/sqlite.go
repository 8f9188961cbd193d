package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loomlabs/loom/pkg/logging"
	"github.com/loomlabs/loom/pkg/types"
)

// SQLiteStorage is the durable storage backend, a single-file SQLite
// database opened in WAL mode. Schema creation is automatic and idempotent.
type SQLiteStorage struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewSQLiteStorage opens or creates the database at path, creating parent
// directories as needed.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStorage{db: db}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Infof("opened conversation database at %s", path)
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id               TEXT PRIMARY KEY,
			caller_id        TEXT NOT NULL,
			created_at       DATETIME NOT NULL,
			updated_at       DATETIME NOT NULL,
			last_message_at  DATETIME NOT NULL,
			message_count    INTEGER NOT NULL DEFAULT 0,
			tool_calls_count INTEGER NOT NULL DEFAULT 0,
			total_tokens     INTEGER NOT NULL DEFAULT 0,
			status           TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_caller
			ON conversations(caller_id, last_message_at);

		CREATE TABLE IF NOT EXISTS messages (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role            TEXT NOT NULL,
			content         TEXT NOT NULL,
			tool_call_id    TEXT,
			tool_calls      TEXT,
			metadata        TEXT,
			created_at      DATETIME NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
			ON messages(conversation_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStorage) SaveConversation(ctx context.Context, conv *types.Conversation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations
			(id, caller_id, created_at, updated_at, last_message_at,
			 message_count, tool_calls_count, total_tokens, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			updated_at       = excluded.updated_at,
			last_message_at  = excluded.last_message_at,
			message_count    = excluded.message_count,
			tool_calls_count = excluded.tool_calls_count,
			total_tokens     = excluded.total_tokens,
			status           = excluded.status`,
		conv.ID, conv.CallerID, conv.CreatedAt, conv.UpdatedAt, conv.LastMessageAt,
		conv.MessageCount, conv.ToolCallsCount, conv.TotalTokens, string(conv.Status))
	if err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", conv.ID, err)
	}
	return nil
}

func (s *SQLiteStorage) FindConversationByID(ctx context.Context, id string) (*types.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, caller_id, created_at, updated_at, last_message_at,
		       message_count, tool_calls_count, total_tokens, status
		FROM conversations WHERE id = ?`, id)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return conv, err
}

func (s *SQLiteStorage) FindConversationsByCallerID(ctx context.Context, callerID string, limit int) ([]*types.Conversation, error) {
	query := `
		SELECT id, caller_id, created_at, updated_at, last_message_at,
		       message_count, tool_calls_count, total_tokens, status
		FROM conversations
		WHERE caller_id = ?
		ORDER BY last_message_at DESC`
	args := []interface{}{callerID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations for caller %s: %w", callerID, err)
	}
	defer rows.Close()

	var out []*types.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) SaveMessage(ctx context.Context, msg *StoredMessage) error {
	toolCalls, err := marshalNullable(msg.Message.ToolCalls)
	if err != nil {
		return fmt.Errorf("failed to encode tool calls: %w", err)
	}
	metadata, err := marshalNullable(msg.Message.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages
			(id, conversation_id, role, content, tool_call_id, tool_calls, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, string(msg.Message.Role), msg.Message.Content,
		msg.Message.ToolCallID, toolCalls, metadata, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save message %s: %w", msg.ID, err)
	}
	return nil
}

func (s *SQLiteStorage) FindMessagesByConversationID(ctx context.Context, conversationID string) ([]*StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, tool_call_id, tool_calls, metadata, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, rowid ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages for conversation %s: %w", conversationID, err)
	}
	defer rows.Close()

	var out []*StoredMessage
	for rows.Next() {
		var (
			stored     StoredMessage
			role       string
			content    string
			toolCallID sql.NullString
			toolCalls  sql.NullString
			metadata   sql.NullString
			createdAt  time.Time
		)
		if err := rows.Scan(&stored.ID, &stored.ConversationID, &role, &content,
			&toolCallID, &toolCalls, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		msg := &types.Message{
			Role:       types.Role(role),
			Content:    content,
			ToolCallID: toolCallID.String,
		}
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("failed to decode tool calls for message %s: %w", stored.ID, err)
			}
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &msg.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata for message %s: %w", stored.ID, err)
			}
		}
		stored.Message = msg
		stored.CreatedAt = createdAt
		out = append(out, &stored)
	}
	return out, rows.Err()
}

// scanTarget covers both sql.Row and sql.Rows.
type scanTarget interface {
	Scan(dest ...interface{}) error
}

func scanConversation(row scanTarget) (*types.Conversation, error) {
	var (
		conv   types.Conversation
		status string
	)
	err := row.Scan(&conv.ID, &conv.CallerID, &conv.CreatedAt, &conv.UpdatedAt,
		&conv.LastMessageAt, &conv.MessageCount, &conv.ToolCallsCount,
		&conv.TotalTokens, &status)
	if err != nil {
		return nil, err
	}
	conv.Status = types.ConversationStatus(status)
	return &conv, nil
}

// marshalNullable encodes v as JSON, mapping empty values to NULL.
func marshalNullable(v interface{}) (sql.NullString, error) {
	switch val := v.(type) {
	case []types.ToolCall:
		if len(val) == 0 {
			return sql.NullString{}, nil
		}
	case map[string]interface{}:
		if len(val) == 0 {
			return sql.NullString{}, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}
