package ws

import (
	"context"
	"encoding/json"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/schilling3003/Perplexica/internal/chat"
	"github.com/schilling3003/Perplexica/internal/chat/mocks"
	"github.com/schilling3003/Perplexica/internal/events"
	"github.com/schilling3003/Perplexica/internal/focus"
	"github.com/schilling3003/Perplexica/internal/models"
	"github.com/schilling3003/Perplexica/internal/search"
	"go.uber.org/mock/gomock"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

type fakeSearcher struct {
	err    error
	events []events.Event
}

func (f *fakeSearcher) Stream(ctx context.Context, req search.Request) (focus.Mode, events.Stream, error) {
	if f.err != nil {
		return "", nil, f.err
	}
	ch := make(chan events.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return focus.Mode(req.FocusMode), ch, nil
}

type received struct {
	Type      string           `json:"type"`
	Data      json.RawMessage  `json:"data"`
	MessageID string           `json:"messageId"`
	Key       string           `json:"key"`
	Kind      models.ErrorKind `json:"kind"`
}

func dial(t *testing.T, h *Handler) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until one of the given type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, frameType string) []received {
	t.Helper()

	var frames []received
	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var f received
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("failed to read frame: %v (got %d frames)", err, len(frames))
		}
		frames = append(frames, f)
		if f.Type == frameType {
			return frames
		}
	}
}

func inbound(content string) InboundMessage {
	return InboundMessage{
		Type:             "message",
		Message:          Message{MessageID: "u1", ChatID: "c1", Content: content},
		FocusMode:        "webSearch",
		OptimizationMode: "speed",
		History:          [][]string{},
		Files:            []string{},
	}
}

func answerEvents() []events.Event {
	return []events.Event{
		{Type: events.TypeStatus, Text: "Searching..."},
		{Type: events.TypeSources, Sources: []models.Document{{Content: "doc", Metadata: models.Metadata{Engine: "google", URL: "https://example.com"}}}},
		{Type: events.TypeResponse, Text: "Hello "},
		{Type: events.TypeResponse, Text: "world"},
		{Type: events.TypeMessageEnd},
	}
}

func TestHandleMessage_PersistsConversation(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)

	gomock.InOrder(
		store.EXPECT().CreateChat(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, c chat.Chat) error {
			if c.ID != "c1" || c.Title != "what is go" || c.FocusMode != focus.WebSearch {
				t.Errorf("unexpected chat %+v", c)
			}
			return nil
		}),
		store.EXPECT().MessageExists(gomock.Any(), "c1", "u1").Return(false, nil),
		store.EXPECT().AddMessage(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, m chat.Message) error {
			if m.Role != models.RoleHuman || m.MessageID != "u1" || m.Content != "what is go" {
				t.Errorf("unexpected user message %+v", m)
			}
			return nil
		}),
		store.EXPECT().AddMessage(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, m chat.Message) error {
			if m.Role != models.RoleAssistant || m.Content != "Hello world" || len(m.Metadata.Sources) != 1 {
				t.Errorf("unexpected assistant message %+v", m)
			}
			if m.MessageID == "" || m.MessageID == "u1" {
				t.Errorf("assistant message needs a fresh id, got %q", m.MessageID)
			}
			return nil
		}),
	)

	conn := dial(t, NewHandler(&fakeSearcher{events: answerEvents()}, store, newTestLogger()))
	if err := conn.WriteJSON(inbound("what is go")); err != nil {
		t.Fatalf("failed to write: %v", err)
	}

	frames := readUntil(t, conn, "messageEnd")

	wantTypes := []string{"status", "sources", "response", "response", "messageEnd"}
	if len(frames) != len(wantTypes) {
		t.Fatalf("expected %d frames, got %d", len(wantTypes), len(frames))
	}
	for i, f := range frames {
		if f.Type != wantTypes[i] {
			t.Errorf("frame %d: expected %s, got %s", i, wantTypes[i], f.Type)
		}
		if f.MessageID == "" || f.MessageID != frames[0].MessageID {
			t.Errorf("frame %d: inconsistent message id %q", i, f.MessageID)
		}
	}
	if string(frames[2].Data) != `"Hello "` {
		t.Errorf("unexpected response data %s", frames[2].Data)
	}
}

func TestHandleMessage_ExistingUserMessage(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)

	store.EXPECT().CreateChat(gomock.Any(), gomock.Any()).Return(nil)
	store.EXPECT().MessageExists(gomock.Any(), "c1", "u1").Return(true, nil)
	store.EXPECT().AddMessage(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, m chat.Message) error {
		if m.Role != models.RoleAssistant {
			t.Errorf("only the assistant message should be saved, got %+v", m)
		}
		return nil
	})

	conn := dial(t, NewHandler(&fakeSearcher{events: answerEvents()}, store, newTestLogger()))
	conn.WriteJSON(inbound("what is go"))
	readUntil(t, conn, "messageEnd")
}

func TestHandleMessage_Errors(t *testing.T) {
	tests := []struct {
		name     string
		searcher *fakeSearcher
		payload  string
		wantKey  string
		wantData string
	}{
		{
			name:     "bad json",
			searcher: &fakeSearcher{},
			payload:  `{"type":`,
			wantKey:  KeyInvalidFormat,
			wantData: `"Invalid message format"`,
		},
		{
			name:     "empty content",
			searcher: &fakeSearcher{},
			payload:  `{"type":"message","message":{"messageId":"u1","chatId":"c1","content":""},"focusMode":"webSearch"}`,
			wantKey:  KeyInvalidFormat,
			wantData: `"Invalid message format"`,
		},
		{
			name:     "unknown focus mode",
			searcher: &fakeSearcher{err: search.ErrInvalidFocusMode},
			payload:  `{"type":"message","message":{"messageId":"u1","chatId":"c1","content":"hi"},"focusMode":"nope"}`,
			wantKey:  KeyInvalidFocusMode,
			wantData: `"Invalid focus mode"`,
		},
		{
			name:     "model resolution failure",
			searcher: &fakeSearcher{err: models.NewError(models.KindModelError, "failed to load chat model", nil)},
			payload:  `{"type":"message","message":{"messageId":"u1","chatId":"c1","content":"hi"},"focusMode":"webSearch"}`,
			wantKey:  KeyProcessingError,
			wantData: `"Failed to process request"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dial(t, NewHandler(tt.searcher, nil, newTestLogger()))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.payload)); err != nil {
				t.Fatalf("failed to write: %v", err)
			}

			frames := readUntil(t, conn, "error")
			last := frames[len(frames)-1]
			if last.Key != tt.wantKey {
				t.Errorf("expected key %s, got %s", tt.wantKey, last.Key)
			}
			if string(last.Data) != tt.wantData {
				t.Errorf("expected data %s, got %s", tt.wantData, last.Data)
			}
		})
	}
}

func TestHandleMessage_IgnoresOtherTypes(t *testing.T) {
	conn := dial(t, NewHandler(&fakeSearcher{events: answerEvents()}, nil, newTestLogger()))

	// No content, but not a chat message either: nothing is sent back.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping","message":{"content":""}}`)); err != nil {
		t.Fatalf("failed to write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var f received
	err := conn.ReadJSON(&f)
	if err == nil {
		t.Fatalf("expected no reply, got %+v", f)
	}
	if netErr, ok := err.(net.Error); !ok || !netErr.Timeout() {
		t.Errorf("expected a read timeout, got %v", err)
	}
}

func TestHandleMessage_ChainError(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)

	// The user message is kept; no assistant message follows a failed chain.
	store.EXPECT().CreateChat(gomock.Any(), gomock.Any()).Return(nil)
	store.EXPECT().MessageExists(gomock.Any(), "c1", "u1").Return(false, nil)
	store.EXPECT().AddMessage(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	searcher := &fakeSearcher{events: []events.Event{
		{Type: events.TypeStatus, Text: "Searching..."},
		{Type: events.TypeError, Text: "language model failure", Code: models.KindModelError},
	}}

	conn := dial(t, NewHandler(searcher, store, newTestLogger()))
	conn.WriteJSON(inbound("what is go"))

	frames := readUntil(t, conn, "error")
	last := frames[len(frames)-1]
	if last.Key != KeyChainError || last.Kind != models.KindModelError {
		t.Errorf("unexpected error frame %+v", last)
	}
}
