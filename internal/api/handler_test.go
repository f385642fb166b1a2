package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/emicklei/go-restful/v3"
	"github.com/rs/zerolog"
	"github.com/schilling3003/Perplexica/internal/api/middleware"
	"github.com/schilling3003/Perplexica/internal/chat"
	"github.com/schilling3003/Perplexica/internal/chat/mocks"
	"github.com/schilling3003/Perplexica/internal/events"
	"github.com/schilling3003/Perplexica/internal/focus"
	"github.com/schilling3003/Perplexica/internal/ingestion"
	"github.com/schilling3003/Perplexica/internal/llm"
	"github.com/schilling3003/Perplexica/internal/models"
	"github.com/schilling3003/Perplexica/internal/registry"
	"github.com/schilling3003/Perplexica/internal/restaurant"
	"github.com/schilling3003/Perplexica/internal/search"
	"go.uber.org/mock/gomock"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

func replay(evs ...events.Event) events.Stream {
	ch := make(chan events.Event, len(evs))
	for _, ev := range evs {
		ch <- ev
	}
	close(ch)
	return ch
}

type fakeSearcher struct {
	err     error
	events  []events.Event
	lastReq search.Request
	lastRec restaurant.Record
}

func (f *fakeSearcher) Stream(ctx context.Context, req search.Request) (focus.Mode, events.Stream, error) {
	f.lastReq = req
	if f.err != nil {
		return "", nil, f.err
	}
	return focus.Mode(req.FocusMode), replay(f.events...), nil
}

func (f *fakeSearcher) EvaluateRestaurant(ctx context.Context, rec restaurant.Record, history []models.ChatTurn, optimizationMode string, spec llm.ModelSpec) (events.Stream, error) {
	f.lastRec = rec
	if f.err != nil {
		return nil, f.err
	}
	return replay(f.events...), nil
}

type fakeModes []registry.ModeInfo

func (f fakeModes) Modes() []registry.ModeInfo { return f }

type fakeUploader struct {
	filename string
	data     []byte
}

func (f *fakeUploader) IngestBytes(ctx context.Context, filename string, data []byte) (*ingestion.Result, error) {
	f.filename = filename
	f.data = data
	return &ingestion.Result{FileID: "file-1", Title: "menu", Chunks: 2}, nil
}

type fakeCache struct{ cleared int }

func (f *fakeCache) Get(ctx context.Context, engine, query string) ([]models.Document, bool, error) {
	return nil, false, nil
}

func (f *fakeCache) Set(ctx context.Context, engine, query string, docs []models.Document) error {
	return nil
}

func (f *fakeCache) Clear(ctx context.Context) (int, error) { return f.cleared, nil }

func newTestContainer(opts Options) *restful.Container {
	opts.Version = "test"
	opts.Logger = newTestLogger()
	if opts.Modes == nil {
		opts.Modes = fakeModes{}
	}
	return NewContainer(NewHandler(opts), "test", nil)
}

func doJSON(t *testing.T, container http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	container.ServeHTTP(rec, req)
	return rec
}

func answerEvents() []events.Event {
	docs := []models.Document{{Content: "Go 1.22 release notes", Metadata: models.Metadata{Engine: "google", URL: "https://go.dev/doc/go1.22", Title: "Go 1.22"}}}
	return []events.Event{
		{Type: events.TypeStatus, Text: "Searching..."},
		{Type: events.TypeSources, Sources: docs},
		{Type: events.TypeResponse, Text: "Go 1.22 "},
		{Type: events.TypeResponse, Text: "changed loop variables [1]."},
		{Type: events.TypeMessageEnd},
	}
}

func failure(kind models.ErrorKind, text string) []events.Event {
	return []events.Event{
		{Type: events.TypeStatus, Text: "Searching..."},
		{Type: events.TypeError, Text: text, Code: kind},
	}
}

func TestHealth(t *testing.T) {
	container := newTestContainer(Options{Search: &fakeSearcher{}})
	rec := doJSON(t, container, http.MethodGet, "/api/v1/health", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Status != "ok" || body.Version != "test" {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestSearch_Success(t *testing.T) {
	searcher := &fakeSearcher{events: answerEvents()}
	container := newTestContainer(Options{Search: searcher})

	rec := doJSON(t, container, http.MethodPost, "/api/v1/search", SearchRequest{
		FocusMode: "webSearch",
		Query:     "what changed in go 1.22",
		History:   [][]string{{"human", "hi"}, {"assistant", "hello"}},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Message != "Go 1.22 changed loop variables [1]." {
		t.Errorf("unexpected message %q", body.Message)
	}
	if len(body.Sources) != 1 || body.Sources[0].Metadata.Engine != "google" {
		t.Errorf("unexpected sources %+v", body.Sources)
	}

	if len(searcher.lastReq.History) != 2 || searcher.lastReq.History[1].Role != models.RoleAssistant {
		t.Errorf("history not decoded: %+v", searcher.lastReq.History)
	}
}

func TestSearch_Errors(t *testing.T) {
	tests := []struct {
		name       string
		searcher   *fakeSearcher
		body       any
		wantStatus int
		wantError  string
	}{
		{
			name:       "missing input",
			searcher:   &fakeSearcher{err: search.ErrMissingInput},
			body:       SearchRequest{FocusMode: "webSearch"},
			wantStatus: http.StatusBadRequest,
			wantError:  "Missing focus mode or query",
		},
		{
			name:       "invalid focus mode",
			searcher:   &fakeSearcher{err: search.ErrInvalidFocusMode},
			body:       SearchRequest{FocusMode: "nope", Query: "q"},
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid focus mode",
		},
		{
			name:       "custom openai without key",
			searcher:   &fakeSearcher{err: llm.ErrMissingCustomEndpoint},
			body:       SearchRequest{FocusMode: "webSearch", Query: "q"},
			wantStatus: http.StatusBadRequest,
			wantError:  "Missing custom OpenAI base URL or key",
		},
		{
			name:       "malformed history",
			searcher:   &fakeSearcher{},
			body:       map[string]any{"focusMode": "webSearch", "query": "q", "history": [][]string{{"human"}}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "no information",
			searcher:   &fakeSearcher{events: failure(models.KindNoInformationFound, "No information found for the restaurant")},
			body:       SearchRequest{FocusMode: "restaurantSearch", Query: "q"},
			wantStatus: http.StatusNotFound,
			wantError:  "No information found for the restaurant",
		},
		{
			name:       "model error",
			searcher:   &fakeSearcher{events: failure(models.KindModelError, "language model failure")},
			body:       SearchRequest{FocusMode: "webSearch", Query: "q"},
			wantStatus: http.StatusInternalServerError,
			wantError:  "language model failure",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			container := newTestContainer(Options{Search: tt.searcher})
			rec := doJSON(t, container, http.MethodPost, "/api/v1/search", tt.body)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}

			var body middleware.ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if tt.wantError != "" && body.Error != tt.wantError {
				t.Errorf("expected error %q, got %q", tt.wantError, body.Error)
			}
		})
	}
}

func TestSearchStream(t *testing.T) {
	container := newTestContainer(Options{Search: &fakeSearcher{events: answerEvents()}})
	rec := doJSON(t, container, http.MethodPost, "/api/v1/search/stream", SearchRequest{FocusMode: "webSearch", Query: "q"})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected event stream content type, got %q", ct)
	}

	body := rec.Body.String()
	frames := strings.Split(strings.TrimSpace(body), "\n\n")
	if len(frames) != 5 {
		t.Fatalf("expected 5 frames, got %d:\n%s", len(frames), body)
	}
	if frames[0] != `event: status`+"\n"+`data: {"type":"status","data":"Searching..."}` {
		t.Errorf("unexpected first frame %q", frames[0])
	}
	if frames[4] != `event: messageEnd`+"\n"+`data: {"type":"messageEnd"}` {
		t.Errorf("unexpected last frame %q", frames[4])
	}
}

func TestSearchStream_ValidationError(t *testing.T) {
	container := newTestContainer(Options{Search: &fakeSearcher{err: search.ErrMissingInput}})
	rec := doJSON(t, container, http.MethodPost, "/api/v1/search/stream", SearchRequest{})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestEvaluateRestaurant(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		searcher := &fakeSearcher{events: []events.Event{
			{Type: events.TypeStatus, Text: restaurant.StatusSearching},
			{Type: events.TypeResponse, Text: "Score: 8 out of 10 because it has a quiet patio."},
			{Type: events.TypeMessageEnd},
		}}
		container := newTestContainer(Options{Search: searcher})

		rec := doJSON(t, container, http.MethodPost, "/api/v1/search/restaurant", RestaurantRequest{
			RestaurantName: "Chez Panisse",
			Address:        "1517 Shattuck Ave, Berkeley",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var body RestaurantResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if body.Status != "success" || len(body.Events) != 3 {
			t.Errorf("unexpected body %+v", body)
		}
		if body.Verdict == nil || body.Verdict.Score != 8 {
			t.Errorf("expected score 8, got %+v", body.Verdict)
		}
		if searcher.lastRec.RestaurantName != "Chez Panisse" {
			t.Errorf("record not passed through: %+v", searcher.lastRec)
		}
	})

	t.Run("invalid record", func(t *testing.T) {
		err := models.NewError(models.KindInvalidQueryFormat, "Invalid restaurant query format", nil)
		container := newTestContainer(Options{Search: &fakeSearcher{err: err}})

		rec := doJSON(t, container, http.MethodPost, "/api/v1/search/restaurant", RestaurantRequest{RestaurantName: "Chez Panisse"})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("pipeline error", func(t *testing.T) {
		searcher := &fakeSearcher{events: failure(models.KindNoInformationFound, "No information found for the restaurant")}
		container := newTestContainer(Options{Search: searcher})

		rec := doJSON(t, container, http.MethodPost, "/api/v1/search/restaurant", RestaurantRequest{RestaurantName: "Nowhere", Address: "Nowhere St"})
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}

		var body RestaurantResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if body.Status != "error" || body.Message != "No information found for the restaurant" || len(body.Events) != 2 {
			t.Errorf("unexpected body %+v", body)
		}
	})
}

func TestFocusModes(t *testing.T) {
	modes := fakeModes{
		{Mode: focus.WebSearch, Config: focus.SearchConfig{ActiveEngines: []string{"google"}, ResponsePrompt: "secret"}},
	}
	container := newTestContainer(Options{Search: &fakeSearcher{}, Modes: modes})

	rec := doJSON(t, container, http.MethodGet, "/api/v1/focus-modes", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret") {
		t.Errorf("prompts must not be exposed: %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"mode":"webSearch"`) {
		t.Errorf("missing mode in %s", rec.Body.String())
	}
}

func TestChats(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	container := newTestContainer(Options{Search: &fakeSearcher{}, Chats: store})

	t.Run("get", func(t *testing.T) {
		store.EXPECT().GetChat(gomock.Any(), "c1").Return(&chat.Chat{ID: "c1", Title: "hello"}, nil)
		store.EXPECT().GetMessages(gomock.Any(), "c1").Return([]chat.Message{
			{MessageID: "m1", ChatID: "c1", Role: models.RoleHuman, Content: "hello"},
		}, nil)

		rec := doJSON(t, container, http.MethodGet, "/api/v1/chats/c1", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var body ChatResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if body.Chat.ID != "c1" || len(body.Messages) != 1 {
			t.Errorf("unexpected body %+v", body)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		store.EXPECT().GetChat(gomock.Any(), "missing").Return(nil, chat.ErrNotFound)

		rec := doJSON(t, container, http.MethodGet, "/api/v1/chats/missing", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("list", func(t *testing.T) {
		store.EXPECT().ListChats(gomock.Any()).Return(nil, nil)

		rec := doJSON(t, container, http.MethodGet, "/api/v1/chats", nil)
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"chats":[]`) {
			t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("delete", func(t *testing.T) {
		store.EXPECT().DeleteChat(gomock.Any(), "c1").Return(nil)

		rec := doJSON(t, container, http.MethodDelete, "/api/v1/chats/c1", nil)
		if rec.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", rec.Code)
		}
	})

	t.Run("delete failure", func(t *testing.T) {
		store.EXPECT().DeleteChat(gomock.Any(), "c2").Return(errors.New("connection refused"))

		rec := doJSON(t, container, http.MethodDelete, "/api/v1/chats/c2", nil)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
	})
}

func TestChats_NotConfigured(t *testing.T) {
	container := newTestContainer(Options{Search: &fakeSearcher{}})

	rec := doJSON(t, container, http.MethodGet, "/api/v1/chats", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func multipartRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	part.Write([]byte(content))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	uploader := &fakeUploader{}
	container := newTestContainer(Options{Search: &fakeSearcher{}, Uploads: uploader})

	t.Run("accepted", func(t *testing.T) {
		rec := httptest.NewRecorder()
		container.ServeHTTP(rec, multipartRequest(t, "menu.md", "# Menu\nCheese plate"))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if uploader.filename != "menu.md" || string(uploader.data) != "# Menu\nCheese plate" {
			t.Errorf("upload not forwarded: %q %q", uploader.filename, uploader.data)
		}

		var body ingestion.Result
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if body.FileID != "file-1" || body.Chunks != 2 {
			t.Errorf("unexpected body %+v", body)
		}
	})

	t.Run("unsupported extension", func(t *testing.T) {
		rec := httptest.NewRecorder()
		container.ServeHTTP(rec, multipartRequest(t, "menu.pdf", "%PDF"))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestClearCache(t *testing.T) {
	container := newTestContainer(Options{Search: &fakeSearcher{}, Cache: &fakeCache{cleared: 3}})

	rec := doJSON(t, container, http.MethodPost, "/api/v1/admin/cache/clear", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body CacheClearResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Cleared != 3 {
		t.Errorf("expected 3 cleared entries, got %d", body.Cleared)
	}
}

func TestOpenAPIDocument(t *testing.T) {
	container := newTestContainer(Options{Search: &fakeSearcher{}})

	rec := doJSON(t, container, http.MethodGet, "/api/v1/openapi.json", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "/api/v1/search/restaurant") {
		t.Errorf("openapi document is missing routes")
	}
}
