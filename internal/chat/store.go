package chat

//go:generate mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks

import (
	"context"
	"errors"
	"time"

	"github.com/schilling3003/Perplexica/internal/focus"
	"github.com/schilling3003/Perplexica/internal/models"
)

var ErrNotFound = errors.New("chat not found")

type Chat struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"createdAt"`
	FocusMode focus.Mode `json:"focusMode"`
	Files     []string   `json:"files"`
}

type Message struct {
	MessageID string                 `json:"messageId"`
	ChatID    string                 `json:"chatId"`
	Role      models.Role            `json:"role"`
	Content   string                 `json:"content"`
	Metadata  models.MessageMetadata `json:"metadata"`
}

// Store persists chats and their messages. Transports write to it; the search
// pipeline never does.
type Store interface {
	// CreateChat is a no-op when a chat with the same id exists.
	CreateChat(ctx context.Context, chat Chat) error
	GetChat(ctx context.Context, id string) (*Chat, error)
	// ListChats returns chats newest first.
	ListChats(ctx context.Context) ([]Chat, error)
	DeleteChat(ctx context.Context, id string) error
	AddMessage(ctx context.Context, msg Message) error
	MessageExists(ctx context.Context, chatID, messageID string) (bool, error)
	// GetMessages returns messages in insertion order.
	GetMessages(ctx context.Context, chatID string) ([]Message, error)
}

// History converts stored messages into chat turns.
func History(messages []Message) []models.ChatTurn {
	turns := make([]models.ChatTurn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, models.ChatTurn{Role: m.Role, Content: m.Content})
	}
	return turns
}
