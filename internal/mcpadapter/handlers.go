package mcpadapter

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/schilling3003/Perplexica/internal/events"
	"github.com/schilling3003/Perplexica/internal/focus"
	"github.com/schilling3003/Perplexica/internal/history"
	"github.com/schilling3003/Perplexica/internal/llm"
	"github.com/schilling3003/Perplexica/internal/models"
	"github.com/schilling3003/Perplexica/internal/restaurant"
	"github.com/schilling3003/Perplexica/internal/search"
)

// Searcher is the part of search.Service the tools use.
type Searcher interface {
	Stream(ctx context.Context, req search.Request) (focus.Mode, events.Stream, error)
	EvaluateRestaurant(ctx context.Context, rec restaurant.Record, history []models.ChatTurn, optimizationMode string, spec llm.ModelSpec) (events.Stream, error)
}

// SearchInput is the MCP tool input schema (matches HTTP API fields, snake cased).
type SearchInput struct {
	Query            string     `json:"query" jsonschema:"the question to answer"`
	FocusMode        string     `json:"focus_mode,omitempty" jsonschema:"webSearch, academicSearch, redditSearch, youtubeSearch, wolframAlphaSearch, writingAssistant or restaurantSearch (default: webSearch)"`
	OptimizationMode string     `json:"optimization_mode,omitempty" jsonschema:"speed, balanced or quality (default: balanced)"`
	History          [][]string `json:"history,omitempty" jsonschema:"prior turns as [role, content] pairs"`
}

type SearchOutput struct {
	Message string            `json:"message"`
	Sources []models.Document `json:"sources"`
}

type RestaurantInput struct {
	RestaurantName   string `json:"restaurant_name" jsonschema:"name of the restaurant"`
	Address          string `json:"address" jsonschema:"street address of the restaurant"`
	OptimizationMode string `json:"optimization_mode,omitempty" jsonschema:"speed, balanced or quality (default: balanced)"`
}

type RestaurantOutput struct {
	Evaluation string              `json:"evaluation"`
	Verdict    *restaurant.Verdict `json:"verdict,omitempty"`
	Sources    []models.Document   `json:"sources"`
}

// NewSearchHandler returns a tool handler backed by searcher.
// Pass the returned function to mcp.AddTool.
func NewSearchHandler(searcher Searcher) func(context.Context, *mcp.CallToolRequest, SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
		return Search(ctx, searcher, req, input)
	}
}

// Search runs a search to completion.
func Search(ctx context.Context, searcher Searcher, req *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	turns, err := history.FromPairs(input.History)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	mode := input.FocusMode
	if mode == "" {
		mode = string(focus.WebSearch)
	}

	_, stream, err := searcher.Stream(ctx, search.Request{
		FocusMode:        mode,
		Query:            input.Query,
		History:          turns,
		OptimizationMode: input.OptimizationMode,
	})
	if err != nil {
		return nil, SearchOutput{}, err
	}

	res := events.Collect(stream)
	if res.Err != nil {
		return nil, SearchOutput{}, res.Err
	}
	return nil, SearchOutput{Message: res.Answer, Sources: res.Sources}, nil
}

// NewEvaluateRestaurantHandler returns a tool handler backed by searcher.
// Pass the returned function to mcp.AddTool.
func NewEvaluateRestaurantHandler(searcher Searcher) func(context.Context, *mcp.CallToolRequest, RestaurantInput) (*mcp.CallToolResult, RestaurantOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input RestaurantInput) (*mcp.CallToolResult, RestaurantOutput, error) {
		return EvaluateRestaurant(ctx, searcher, req, input)
	}
}

// EvaluateRestaurant runs the restaurant evaluation to completion. A missing
// score is not an error; Verdict is left nil.
func EvaluateRestaurant(ctx context.Context, searcher Searcher, req *mcp.CallToolRequest, input RestaurantInput) (*mcp.CallToolResult, RestaurantOutput, error) {
	rec := restaurant.Record{RestaurantName: input.RestaurantName, Address: input.Address}

	stream, err := searcher.EvaluateRestaurant(ctx, rec, nil, input.OptimizationMode, llm.ModelSpec{})
	if err != nil {
		return nil, RestaurantOutput{}, err
	}

	res := events.Collect(stream)
	if res.Err != nil {
		return nil, RestaurantOutput{}, fmt.Errorf("restaurant evaluation failed: %w", res.Err)
	}

	out := RestaurantOutput{Evaluation: res.Answer, Sources: res.Sources}
	if verdict, err := restaurant.ParseVerdict(res.Answer); err == nil {
		out.Verdict = &verdict
	}
	return nil, out, nil
}

// NewServer registers every tool on a fresh MCP server.
func NewServer(searcher Searcher, version string) *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "perplexica",
			Version: version,
		}, nil,
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search",
		Description: "Search the web (or a focus mode such as academic, reddit or youtube) and answer the query with cited sources",
	}, NewSearchHandler(searcher))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "evaluate_restaurant",
		Description: "Research a restaurant by name and address and score how well it fits on a 1-10 scale",
	}, NewEvaluateRestaurantHandler(searcher))
	return server
}
