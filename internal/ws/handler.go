package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/schilling3003/Perplexica/internal/chat"
	"github.com/schilling3003/Perplexica/internal/events"
	"github.com/schilling3003/Perplexica/internal/focus"
	"github.com/schilling3003/Perplexica/internal/history"
	"github.com/schilling3003/Perplexica/internal/models"
	"github.com/schilling3003/Perplexica/internal/search"
)

const (
	KeyInvalidFormat    = "INVALID_FORMAT"
	KeyInvalidFocusMode = "INVALID_FOCUS_MODE"
	KeyProcessingError  = "PROCESSING_ERROR"
	KeyChainError       = "CHAIN_ERROR"

	writeWait = 10 * time.Second
)

// Searcher starts a search stream.
type Searcher interface {
	Stream(ctx context.Context, req search.Request) (focus.Mode, events.Stream, error)
}

// Handler serves the chat websocket. Each inbound message runs its own
// search; frames of concurrent searches are told apart by messageId.
type Handler struct {
	upgrader websocket.Upgrader
	search   Searcher
	chats    chat.Store
	logger   *zerolog.Logger
}

// NewHandler builds the websocket handler. chats may be nil, in which case
// nothing is persisted.
func NewHandler(searcher Searcher, chats chat.Store, logger *zerolog.Logger) *Handler {
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		search: searcher,
		chats:  chats,
		logger: logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Websocket upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &connection{conn: conn, logger: h.logger}

	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
		conn.Close()
	}()

	h.logger.Info().Str("remote", r.RemoteAddr).Msg("Websocket connected")

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Msg("Websocket closed unexpectedly")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			h.handleMessage(ctx, c, data)
		}()
	}
}

func (h *Handler) handleMessage(ctx context.Context, c *connection, data []byte) {
	var in InboundMessage
	if err := json.Unmarshal(data, &in); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to decode websocket message")
		c.send(errorFrame("Invalid message format", KeyInvalidFormat, ""))
		return
	}

	if in.Type != "message" {
		h.logger.Debug().Str("type", in.Type).Msg("Ignoring websocket message")
		return
	}
	if strings.TrimSpace(in.Message.Content) == "" {
		c.send(errorFrame("Invalid message format", KeyInvalidFormat, ""))
		return
	}

	turns, err := history.FromPairs(in.History)
	if err != nil {
		c.send(errorFrame("Invalid message format", KeyInvalidFormat, ""))
		return
	}

	mode, stream, err := h.search.Stream(ctx, search.Request{
		FocusMode:        in.FocusMode,
		Query:            in.Message.Content,
		History:          turns,
		OptimizationMode: in.OptimizationMode,
		Files:            in.Files,
		ChatModel:        in.ChatModel,
	})
	if err != nil {
		c.send(startErrorFrame(err))
		h.logger.Warn().Err(err).Str("focus_mode", in.FocusMode).Msg("Failed to start search")
		return
	}

	store := context.WithoutCancel(ctx)
	h.saveUserMessage(store, in, mode)

	aiMessageID := uuid.NewString()
	var (
		answer  strings.Builder
		sources []models.Document
	)

	for ev := range stream {
		switch ev.Type {
		case events.TypeStatus, events.TypeResponse:
			c.send(Frame{Type: string(ev.Type), Data: ev.Text, MessageID: aiMessageID})
			if ev.Type == events.TypeResponse {
				answer.WriteString(ev.Text)
			}
		case events.TypeSources:
			sources = ev.Sources
			c.send(Frame{Type: string(ev.Type), Data: ev.Sources, MessageID: aiMessageID})
		case events.TypeMessageEnd:
			h.saveAssistantMessage(store, in.Message.ChatID, aiMessageID, answer.String(), sources)
			c.send(Frame{Type: string(events.TypeMessageEnd), MessageID: aiMessageID})
		case events.TypeError:
			c.send(Frame{Type: string(events.TypeError), Data: ev.Text, Key: KeyChainError, Kind: ev.Code})
		}
	}
}

func (h *Handler) saveUserMessage(ctx context.Context, in InboundMessage, mode focus.Mode) {
	if h.chats == nil || in.Message.ChatID == "" {
		return
	}

	files := in.Files
	if files == nil {
		files = []string{}
	}
	err := h.chats.CreateChat(ctx, chat.Chat{
		ID:        in.Message.ChatID,
		Title:     in.Message.Content,
		CreatedAt: time.Now().UTC(),
		FocusMode: mode,
		Files:     files,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("chat_id", in.Message.ChatID).Msg("Failed to create chat")
		return
	}

	messageID := in.Message.MessageID
	if messageID == "" {
		messageID = uuid.NewString()
	}

	exists, err := h.chats.MessageExists(ctx, in.Message.ChatID, messageID)
	if err != nil {
		h.logger.Error().Err(err).Str("chat_id", in.Message.ChatID).Msg("Failed to look up message")
		return
	}
	if exists {
		return
	}

	err = h.chats.AddMessage(ctx, chat.Message{
		MessageID: messageID,
		ChatID:    in.Message.ChatID,
		Role:      models.RoleHuman,
		Content:   in.Message.Content,
		Metadata:  models.MessageMetadata{CreatedAt: time.Now().UTC()},
	})
	if err != nil {
		h.logger.Error().Err(err).Str("chat_id", in.Message.ChatID).Msg("Failed to save user message")
	}
}

func (h *Handler) saveAssistantMessage(ctx context.Context, chatID, messageID, content string, sources []models.Document) {
	if h.chats == nil || chatID == "" {
		return
	}

	err := h.chats.AddMessage(ctx, chat.Message{
		MessageID: messageID,
		ChatID:    chatID,
		Role:      models.RoleAssistant,
		Content:   content,
		Metadata:  models.MessageMetadata{CreatedAt: time.Now().UTC(), Sources: sources},
	})
	if err != nil {
		h.logger.Error().Err(err).Str("chat_id", chatID).Msg("Failed to save assistant message")
	}
}

func startErrorFrame(err error) Frame {
	switch {
	case errors.Is(err, search.ErrInvalidFocusMode), errors.Is(err, search.ErrMissingInput):
		return errorFrame("Invalid focus mode", KeyInvalidFocusMode, "")
	case search.IsValidationError(err):
		return errorFrame(err.Error(), KeyInvalidFormat, "")
	default:
		return errorFrame("Failed to process request", KeyProcessingError, models.KindOf(err))
	}
}

func errorFrame(text, key string, kind models.ErrorKind) Frame {
	return Frame{Type: string(events.TypeError), Data: text, Key: key, Kind: kind}
}

// connection serializes writes; gorilla connections allow one writer at a time.
type connection struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	logger *zerolog.Logger
}

func (c *connection) send(f Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(f); err != nil {
		c.logger.Warn().Err(err).Str("type", f.Type).Msg("Failed to write websocket frame")
	}
}
