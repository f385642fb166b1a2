package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/schilling3003/Perplexica/internal/focus"
	"github.com/schilling3003/Perplexica/internal/models"
)

// PostgresStore uses the chats and messages tables created by
// database.Migrate.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateChat(ctx context.Context, c Chat) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Files == nil {
		c.Files = []string{}
	}

	files, err := json.Marshal(c.Files)
	if err != nil {
		return fmt.Errorf("failed to marshal chat files: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO chats (id, title, focus_mode, files, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		c.ID, c.Title, string(c.FocusMode), files, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create chat %s: %w", c.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetChat(ctx context.Context, id string) (*Chat, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, title, focus_mode, files, created_at FROM chats WHERE id = $1`, id)
	c, err := scanChat(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read chat %s: %w", id, err)
	}
	return c, nil
}

func (s *PostgresStore) ListChats(ctx context.Context) ([]Chat, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, title, focus_mode, files, created_at FROM chats ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	chats := []Chat{}
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		chats = append(chats, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return chats, nil
}

// DeleteChat relies on ON DELETE CASCADE for messages.
func (s *PostgresStore) DeleteChat(ctx context.Context, id string) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM chats WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete chat %s: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AddMessage(ctx context.Context, msg Message) error {
	if msg.Metadata.CreatedAt.IsZero() {
		msg.Metadata.CreatedAt = time.Now().UTC()
	}

	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal message metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO messages (message_id, chat_id, role, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.MessageID, msg.ChatID, string(msg.Role), msg.Content, metadata, msg.Metadata.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add message to chat %s: %w", msg.ChatID, err)
	}
	return nil
}

func (s *PostgresStore) MessageExists(ctx context.Context, chatID, messageID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM messages WHERE chat_id = $1 AND message_id = $2)`,
		chatID, messageID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check message %s: %w", messageID, err)
	}
	return exists, nil
}

func (s *PostgresStore) GetMessages(ctx context.Context, chatID string) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT message_id, chat_id, role, content, metadata FROM messages WHERE chat_id = $1 ORDER BY id ASC`,
		chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages for chat %s: %w", chatID, err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var (
			m        Message
			role     string
			metadata []byte
		)
		if err := rows.Scan(&m.MessageID, &m.ChatID, &role, &m.Content, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = models.Role(role)
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode message metadata: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return messages, nil
}

func scanChat(row pgx.Row) (*Chat, error) {
	var (
		c         Chat
		focusMode string
		files     []byte
	)
	if err := row.Scan(&c.ID, &c.Title, &focusMode, &files, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.FocusMode = focus.Mode(focusMode)
	if err := json.Unmarshal(files, &c.Files); err != nil {
		return nil, fmt.Errorf("failed to decode chat files: %w", err)
	}
	return &c, nil
}
