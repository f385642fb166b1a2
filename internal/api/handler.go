package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/emicklei/go-restful/v3"
	"github.com/rs/zerolog"
	"github.com/schilling3003/Perplexica/internal/api/middleware"
	"github.com/schilling3003/Perplexica/internal/cache"
	"github.com/schilling3003/Perplexica/internal/chat"
	"github.com/schilling3003/Perplexica/internal/events"
	"github.com/schilling3003/Perplexica/internal/focus"
	"github.com/schilling3003/Perplexica/internal/history"
	"github.com/schilling3003/Perplexica/internal/ingestion"
	"github.com/schilling3003/Perplexica/internal/llm"
	"github.com/schilling3003/Perplexica/internal/models"
	"github.com/schilling3003/Perplexica/internal/registry"
	"github.com/schilling3003/Perplexica/internal/restaurant"
	"github.com/schilling3003/Perplexica/internal/search"
)

const maxUploadSize = 10 << 20

// Searcher is the part of search.Service the handlers use.
type Searcher interface {
	Stream(ctx context.Context, req search.Request) (focus.Mode, events.Stream, error)
	EvaluateRestaurant(ctx context.Context, rec restaurant.Record, history []models.ChatTurn, optimizationMode string, spec llm.ModelSpec) (events.Stream, error)
}

type ModeLister interface {
	Modes() []registry.ModeInfo
}

type Uploader interface {
	IngestBytes(ctx context.Context, filename string, data []byte) (*ingestion.Result, error)
}

// Options wires the handler. Chats, Uploads and Cache are optional; their
// routes answer 503 when unset.
type Options struct {
	Search  Searcher
	Modes   ModeLister
	Chats   chat.Store
	Uploads Uploader
	Cache   cache.SearchCache
	Version string
	Logger  *zerolog.Logger
}

type Handler struct {
	search  Searcher
	modes   ModeLister
	chats   chat.Store
	uploads Uploader
	cache   cache.SearchCache
	version string
	logger  *zerolog.Logger
}

func NewHandler(opts Options) *Handler {
	return &Handler{
		search:  opts.Search,
		modes:   opts.Modes,
		chats:   opts.Chats,
		uploads: opts.Uploads,
		cache:   opts.Cache,
		version: opts.Version,
		logger:  opts.Logger,
	}
}

// GET /api/v1/health
func (h *Handler) Health(req *restful.Request, resp *restful.Response) {
	resp.WriteHeaderAndEntity(http.StatusOK, HealthResponse{Status: "ok", Version: h.version})
}

// POST /api/v1/search
// Body: SearchRequest
// Returns: SearchResponse
func (h *Handler) Search(req *restful.Request, resp *restful.Response) {
	searchReq, ok := h.readSearchRequest(req, resp)
	if !ok {
		return
	}

	_, stream, err := h.search.Stream(req.Request.Context(), searchReq)
	if err != nil {
		middleware.HandleError(resp, err, StatusFor(err))
		return
	}

	res := events.Collect(stream)
	if res.Err != nil {
		h.logger.Error().Err(res.Err).Str("focus_mode", searchReq.FocusMode).Msg("Search failed")
		middleware.HandleError(resp, res.Err, StatusFor(res.Err))
		return
	}

	resp.WriteHeaderAndEntity(http.StatusOK, SearchResponse{Message: res.Answer, Sources: res.Sources})
}

// POST /api/v1/search/stream
// Body: SearchRequest
// Returns: text/event-stream of search events
func (h *Handler) SearchStream(req *restful.Request, resp *restful.Response) {
	searchReq, ok := h.readSearchRequest(req, resp)
	if !ok {
		return
	}

	flusher, ok := resp.ResponseWriter.(http.Flusher)
	if !ok {
		middleware.HandleError(resp, errors.New("streaming unsupported"), http.StatusInternalServerError)
		return
	}

	ctx := req.Request.Context()
	mode, stream, err := h.search.Stream(ctx, searchReq)
	if err != nil {
		middleware.HandleError(resp, err, StatusFor(err))
		return
	}

	writer := resp.ResponseWriter
	writer.Header().Set("Content-Type", "text/event-stream")
	writer.Header().Set("Cache-Control", "no-cache")
	writer.Header().Set("Connection", "keep-alive")
	writer.Header().Set("X-Accel-Buffering", "no")
	writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	count := 0
	for ev := range stream {
		formatted, err := events.FormatSSE(ev)
		if err != nil {
			h.logger.Error().Err(err).Msg("Failed to format event")
			continue
		}
		if _, err := fmt.Fprint(writer, formatted); err != nil {
			h.logger.Warn().Err(err).Msg("Client went away")
			return
		}
		flusher.Flush()
		count++
	}

	h.logger.Info().Str("focus_mode", string(mode)).Int("events", count).Msg("Stream complete")
}

// POST /api/v1/search/restaurant
// Body: RestaurantRequest
// Returns: RestaurantResponse
func (h *Handler) EvaluateRestaurant(req *restful.Request, resp *restful.Response) {
	var body RestaurantRequest
	if err := req.ReadEntity(&body); err != nil {
		h.logger.Error().Err(err).Msg("Failed to parse request body")
		middleware.HandleError(resp, err, http.StatusBadRequest)
		return
	}

	turns, err := history.FromPairs(body.History)
	if err != nil {
		middleware.HandleError(resp, err, http.StatusBadRequest)
		return
	}

	rec := restaurant.Record{RestaurantName: body.RestaurantName, Address: body.Address}
	stream, err := h.search.EvaluateRestaurant(req.Request.Context(), rec, turns, body.OptimizationMode, body.ChatModel)
	if err != nil {
		middleware.HandleError(resp, err, StatusFor(err))
		return
	}

	res := events.Collect(stream)
	if res.Err != nil {
		h.logger.Error().Err(res.Err).Str("restaurant", rec.RestaurantName).Msg("Restaurant evaluation failed")
		resp.WriteHeaderAndEntity(StatusFor(res.Err), RestaurantResponse{
			Status:  "error",
			Events:  res.Events,
			Message: models.Summary(res.Err),
		})
		return
	}

	out := RestaurantResponse{
		Status:     "success",
		Events:     res.Events,
		Evaluation: res.Answer,
		Sources:    res.Sources,
	}
	if verdict, err := restaurant.ParseVerdict(res.Answer); err == nil {
		out.Verdict = &verdict
	} else {
		h.logger.Warn().Err(err).Str("restaurant", rec.RestaurantName).Msg("Evaluation has no score")
	}

	resp.WriteHeaderAndEntity(http.StatusOK, out)
}

// GET /api/v1/focus-modes
func (h *Handler) FocusModes(req *restful.Request, resp *restful.Response) {
	resp.WriteHeaderAndEntity(http.StatusOK, h.modes.Modes())
}

// GET /api/v1/chats
func (h *Handler) ListChats(req *restful.Request, resp *restful.Response) {
	if !h.requireChats(resp) {
		return
	}

	chats, err := h.chats.ListChats(req.Request.Context())
	if err != nil {
		middleware.HandleError(resp, err, http.StatusInternalServerError)
		return
	}
	if chats == nil {
		chats = []chat.Chat{}
	}
	resp.WriteHeaderAndEntity(http.StatusOK, ChatsResponse{Chats: chats})
}

// GET /api/v1/chats/{chat_id}
func (h *Handler) GetChat(req *restful.Request, resp *restful.Response) {
	if !h.requireChats(resp) {
		return
	}

	ctx := req.Request.Context()
	id := req.PathParameter("chat_id")

	c, err := h.chats.GetChat(ctx, id)
	if err != nil {
		middleware.HandleError(resp, err, chatStatus(err))
		return
	}

	messages, err := h.chats.GetMessages(ctx, id)
	if err != nil {
		middleware.HandleError(resp, err, http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	resp.WriteHeaderAndEntity(http.StatusOK, ChatResponse{Chat: c, Messages: messages})
}

// DELETE /api/v1/chats/{chat_id}
func (h *Handler) DeleteChat(req *restful.Request, resp *restful.Response) {
	if !h.requireChats(resp) {
		return
	}

	id := req.PathParameter("chat_id")
	if err := h.chats.DeleteChat(req.Request.Context(), id); err != nil {
		middleware.HandleError(resp, err, chatStatus(err))
		return
	}

	h.logger.Info().Str("chat_id", id).Msg("Chat deleted")
	resp.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/uploads
// Body: multipart form with a "file" field
// Returns: ingestion.Result
func (h *Handler) Upload(req *restful.Request, resp *restful.Response) {
	if h.uploads == nil {
		middleware.HandleError(resp, errors.New("file uploads are not configured"), http.StatusServiceUnavailable)
		return
	}

	if err := req.Request.ParseMultipartForm(maxUploadSize); err != nil {
		middleware.HandleError(resp, fmt.Errorf("invalid multipart form: %w", err), http.StatusBadRequest)
		return
	}

	file, header, err := req.Request.FormFile("file")
	if err != nil {
		middleware.HandleError(resp, fmt.Errorf("missing file: %w", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !ingestion.Supported(header.Filename) {
		middleware.HandleError(resp, fmt.Errorf("unsupported file type: %s", header.Filename), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		middleware.HandleError(resp, err, http.StatusBadRequest)
		return
	}

	result, err := h.uploads.IngestBytes(req.Request.Context(), header.Filename, data)
	if err != nil {
		h.logger.Error().Err(err).Str("filename", header.Filename).Msg("Upload ingestion failed")
		middleware.HandleError(resp, err, StatusFor(err))
		return
	}

	resp.WriteHeaderAndEntity(http.StatusOK, result)
}

// POST /api/v1/admin/cache/clear
func (h *Handler) ClearCache(req *restful.Request, resp *restful.Response) {
	if h.cache == nil {
		resp.WriteHeaderAndEntity(http.StatusOK, CacheClearResponse{})
		return
	}

	n, err := h.cache.Clear(req.Request.Context())
	if err != nil {
		middleware.HandleError(resp, err, http.StatusInternalServerError)
		return
	}

	h.logger.Info().Int("cleared", n).Msg("Search cache cleared")
	resp.WriteHeaderAndEntity(http.StatusOK, CacheClearResponse{Cleared: n})
}

func (h *Handler) readSearchRequest(req *restful.Request, resp *restful.Response) (search.Request, bool) {
	var body SearchRequest
	if err := req.ReadEntity(&body); err != nil {
		h.logger.Error().Err(err).Msg("Failed to parse request body")
		middleware.HandleError(resp, err, http.StatusBadRequest)
		return search.Request{}, false
	}

	turns, err := history.FromPairs(body.History)
	if err != nil {
		middleware.HandleError(resp, err, http.StatusBadRequest)
		return search.Request{}, false
	}

	return search.Request{
		FocusMode:        body.FocusMode,
		Query:            body.Query,
		History:          turns,
		OptimizationMode: body.OptimizationMode,
		Files:            body.Files,
		ChatModel:        body.ChatModel,
	}, true
}

func (h *Handler) requireChats(resp *restful.Response) bool {
	if h.chats == nil {
		middleware.HandleError(resp, errors.New("chat history is not configured"), http.StatusServiceUnavailable)
		return false
	}
	return true
}

// StatusFor maps a search error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case search.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNoInformationFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func chatStatus(err error) int {
	if errors.Is(err, chat.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
