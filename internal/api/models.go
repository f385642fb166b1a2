package api

import (
	"github.com/schilling3003/Perplexica/internal/chat"
	"github.com/schilling3003/Perplexica/internal/events"
	"github.com/schilling3003/Perplexica/internal/llm"
	"github.com/schilling3003/Perplexica/internal/models"
	"github.com/schilling3003/Perplexica/internal/restaurant"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// SearchRequest is the body of the search endpoints. History uses the
// [[role, content]] pair form.
type SearchRequest struct {
	FocusMode        string        `json:"focusMode"`
	Query            string        `json:"query"`
	History          [][]string    `json:"history"`
	OptimizationMode string        `json:"optimizationMode"`
	Files            []string      `json:"files"`
	ChatModel        llm.ModelSpec `json:"chatModel"`
}

type SearchResponse struct {
	Message string            `json:"message"`
	Sources []models.Document `json:"sources"`
}

type RestaurantRequest struct {
	RestaurantName   string        `json:"restaurantName"`
	Address          string        `json:"address"`
	OptimizationMode string        `json:"optimizationMode"`
	History          [][]string    `json:"history"`
	ChatModel        llm.ModelSpec `json:"chatModel"`
}

type RestaurantResponse struct {
	Status     string              `json:"status"`
	Events     []events.Event      `json:"events"`
	Evaluation string              `json:"evaluation,omitempty"`
	Verdict    *restaurant.Verdict `json:"verdict,omitempty"`
	Sources    []models.Document   `json:"sources,omitempty"`
	Message    string              `json:"message,omitempty"`
}

type ChatResponse struct {
	Chat     *chat.Chat     `json:"chat"`
	Messages []chat.Message `json:"messages"`
}

type ChatsResponse struct {
	Chats []chat.Chat `json:"chats"`
}

type CacheClearResponse struct {
	Cleared int `json:"cleared"`
}
