package ws

import (
	"github.com/schilling3003/Perplexica/internal/llm"
	"github.com/schilling3003/Perplexica/internal/models"
)

type Message struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
	Content   string `json:"content"`
}

// InboundMessage is a client frame. History uses the [[role, content]] form.
type InboundMessage struct {
	Type             string        `json:"type"`
	Message          Message       `json:"message"`
	FocusMode        string        `json:"focusMode"`
	OptimizationMode string        `json:"optimizationMode"`
	History          [][]string    `json:"history"`
	Files            []string      `json:"files"`
	ChatModel        llm.ModelSpec `json:"chatModel"`
}

// Frame is a server frame.
type Frame struct {
	Type      string           `json:"type"`
	Data      any              `json:"data,omitempty"`
	MessageID string           `json:"messageId,omitempty"`
	Key       string           `json:"key,omitempty"`
	Kind      models.ErrorKind `json:"kind,omitempty"`
}
