package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	embedmocks "github.com/schilling3003/Perplexica/internal/embedding/mocks"
	"github.com/schilling3003/Perplexica/internal/events"
	"github.com/schilling3003/Perplexica/internal/fetch"
	"github.com/schilling3003/Perplexica/internal/focus"
	"github.com/schilling3003/Perplexica/internal/llm"
	llmmocks "github.com/schilling3003/Perplexica/internal/llm/mocks"
	"github.com/schilling3003/Perplexica/internal/models"
	"github.com/schilling3003/Perplexica/internal/provider"
	"go.uber.org/mock/gomock"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

type stubProvider struct {
	name  string
	docs  []models.Document
	err   error
	query string
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Fetch(ctx context.Context, query string) ([]models.Document, error) {
	s.query = query
	return s.docs, s.err
}

type stubResolver struct {
	providers map[string]provider.Provider
	requested []string
}

func (r *stubResolver) Resolve(engines []string) []provider.Provider {
	r.requested = engines
	var out []provider.Provider
	for _, e := range engines {
		if p, ok := r.providers[e]; ok {
			out = append(out, p)
		}
	}
	return out
}

func doc(title, content string) models.Document {
	return models.Document{Content: content, Metadata: models.Metadata{Title: title, URL: "https://example.com/" + title}}
}

const (
	queryPrompt    = "History: {{.ChatHistory}}\nRewrite: {{.Query}}"
	responsePrompt = "Date: {{.Date}}\nContext:\n{{.Context}}\nHistory: {{.ChatHistory}}\nQuery: {{.Query}}"
)

func webConfig(engines ...string) focus.SearchConfig {
	return focus.SearchConfig{
		ActiveEngines:        engines,
		QueryGeneratorPrompt: queryPrompt,
		ResponsePrompt:       responsePrompt,
		Rerank:               true,
		RerankThreshold:      0.3,
		SearchWeb:            true,
	}
}

func newAgent(t *testing.T, cfg focus.SearchConfig, resolver EngineResolver) *Agent {
	t.Helper()
	a, err := New(Options{
		Mode:    focus.WebSearch,
		Config:  cfg,
		Engines: resolver,
		Runner:  provider.NewRunner(newTestLogger()),
		Logger:  newTestLogger(),
		Now:     func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return a
}

func streamAnswer(chunks ...string) func(ctx context.Context, req llm.LLMRequest, cb llm.StreamCallback) (*llm.LLMResponse, error) {
	return func(ctx context.Context, req llm.LLMRequest, cb llm.StreamCallback) (*llm.LLMResponse, error) {
		for _, c := range chunks {
			if err := cb(c); err != nil {
				return nil, err
			}
		}
		return &llm.LLMResponse{Content: strings.Join(chunks, ""), StopReason: "end_turn"}, nil
	}
}

func types(evs []events.Event) string {
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, string(ev.Type))
	}
	return strings.Join(out, ",")
}

func countTerminal(evs []events.Event) int {
	n := 0
	for _, ev := range evs {
		if ev.IsTerminal() {
			n++
		}
	}
	return n
}

func TestSearchAndAnswer_WebSearch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	google := &stubProvider{name: "google", docs: []models.Document{doc("low", "barely related"), doc("high", "Go generics explained"), doc("empty", "  ")}}
	bing := &stubProvider{name: "bing", err: errors.New("connection refused")}
	resolver := &stubResolver{providers: map[string]provider.Provider{"google": google, "bing": bing}}

	model := llmmocks.NewMockLLMClient(ctrl)
	embedder := embedmocks.NewMockEmbedder(ctrl)

	model.EXPECT().InvokeModel(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req llm.LLMRequest) (*llm.LLMResponse, error) {
			if !strings.Contains(req.Prompt, "human: what about generics?") {
				t.Errorf("expected chat history in query prompt, got %q", req.Prompt)
			}
			return &llm.LLMResponse{Content: "Go generics tutorial"}, nil
		})
	embedder.EXPECT().EmbedTexts(gomock.Any(), []string{"barely related", "Go generics explained"}).
		Return([][]float32{{0.2, 0.98}, {0.9, 0.43}}, nil)
	embedder.EXPECT().EmbedText(gomock.Any(), "Go generics tutorial").Return([]float32{1, 0}, nil)

	var answerPrompt string
	model.EXPECT().InvokeModelStream(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req llm.LLMRequest, cb llm.StreamCallback) (*llm.LLMResponse, error) {
			answerPrompt = req.Prompt
			return streamAnswer("Generics ", "use type ", "parameters [1].")(ctx, req, cb)
		})

	a := newAgent(t, webConfig("google", "bing"), resolver)
	res := events.Collect(a.SearchAndAnswer(context.Background(), Request{
		Query:            "what about generics?",
		History:          []models.ChatTurn{{Role: models.RoleHuman, Content: "what about generics?"}},
		OptimizationMode: focus.Balanced,
	}, model, embedder))

	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}

	want := "status,status,status,sources,response,response,response,messageEnd"
	if got := types(res.Events); got != want {
		t.Errorf("event order = %s, want %s", got, want)
	}
	if res.Answer != "Generics use type parameters [1]." {
		t.Errorf("unexpected answer %q", res.Answer)
	}
	if len(res.Sources) != 1 || res.Sources[0].Metadata.Title != "high" {
		t.Fatalf("expected only the relevant source, got %+v", res.Sources)
	}
	if res.Sources[0].Metadata.Engine != "google" {
		t.Errorf("expected source tagged with engine google, got %q", res.Sources[0].Metadata.Engine)
	}
	if google.query != "Go generics tutorial" {
		t.Errorf("expected providers to receive the rewritten query, got %q", google.query)
	}
	if !strings.Contains(answerPrompt, "1. high Go generics explained") {
		t.Errorf("expected numbered context in answer prompt, got %q", answerPrompt)
	}
	if !strings.Contains(answerPrompt, "Wed, 01 May 2024") {
		t.Errorf("expected date in answer prompt, got %q", answerPrompt)
	}
}

func TestSearchAndAnswer_NotNeeded(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	google := &stubProvider{name: "google", docs: []models.Document{doc("a", "b")}}
	resolver := &stubResolver{providers: map[string]provider.Provider{"google": google}}

	model := llmmocks.NewMockLLMClient(ctrl)
	embedder := embedmocks.NewMockEmbedder(ctrl)

	model.EXPECT().InvokeModel(gomock.Any(), gomock.Any()).Return(&llm.LLMResponse{Content: " not_needed \n"}, nil)
	model.EXPECT().InvokeModelStream(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(streamAnswer("Sure!"))

	res := events.Collect(newAgent(t, webConfig("google"), resolver).SearchAndAnswer(context.Background(),
		Request{Query: "write me a haiku about the sea"}, model, embedder))

	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if google.query != "" {
		t.Error("expected no provider call when search is not needed")
	}
	if len(res.Sources) != 0 {
		t.Errorf("expected empty sources, got %d", len(res.Sources))
	}
	if got := types(res.Events); got != "status,sources,response,messageEnd" {
		t.Errorf("unexpected event order %s", got)
	}
}

func TestSearchAndAnswer_GreetingSkipsModelCall(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	model := llmmocks.NewMockLLMClient(ctrl)
	model.EXPECT().InvokeModelStream(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(streamAnswer("Hello!"))

	res := events.Collect(newAgent(t, webConfig("google"), &stubResolver{}).SearchAndAnswer(context.Background(),
		Request{Query: "Hi!"}, model, embedmocks.NewMockEmbedder(ctrl)))

	if res.Err != nil || res.Answer != "Hello!" {
		t.Errorf("unexpected result: answer=%q err=%v", res.Answer, res.Err)
	}
}

func TestSearchAndAnswer_WritingAssistant(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	model := llmmocks.NewMockLLMClient(ctrl)
	model.EXPECT().InvokeModelStream(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(streamAnswer("Dear ", "team,"))

	cfg := focus.SearchConfig{ResponsePrompt: responsePrompt, Rerank: true}
	a, err := New(Options{Mode: focus.WritingAssistant, Config: cfg, Logger: newTestLogger()})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	res := events.Collect(a.SearchAndAnswer(context.Background(),
		Request{Query: "draft an email", Files: []string{"ignored"}}, model, nil))

	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if got := types(res.Events); got != "response,response,messageEnd" {
		t.Errorf("expected no status or sources events, got %s", got)
	}
}

func TestSearchAndAnswer_RerankDisabled(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	wolfram := &stubProvider{name: "wolframalpha", docs: []models.Document{doc("result", "x = 4"), doc("blank", "")}}
	resolver := &stubResolver{providers: map[string]provider.Provider{"wolframalpha": wolfram}}

	model := llmmocks.NewMockLLMClient(ctrl)
	model.EXPECT().InvokeModel(gomock.Any(), gomock.Any()).Return(&llm.LLMResponse{Content: "solve x^2 = 16"}, nil)
	model.EXPECT().InvokeModelStream(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(streamAnswer("x = 4"))

	cfg := webConfig("wolframalpha")
	cfg.Rerank = false

	res := events.Collect(newAgent(t, cfg, resolver).SearchAndAnswer(context.Background(),
		Request{Query: "solve x^2 = 16"}, model, embedmocks.NewMockEmbedder(ctrl)))

	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if len(res.Sources) != 2 {
		t.Errorf("expected documents to pass through unchanged, got %d", len(res.Sources))
	}
	if strings.Contains(types(res.Events), "status,status,status") {
		t.Error("expected no ranking status when rerank is disabled")
	}
}

func TestSearchAndAnswer_TruncatesToProfile(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var docs []models.Document
	var vectors [][]float32
	for i := 0; i < 12; i++ {
		docs = append(docs, doc(fmt.Sprintf("d%d", i), fmt.Sprintf("content %d", i)))
		vectors = append(vectors, []float32{1, float32(i) / 100})
	}
	resolver := &stubResolver{providers: map[string]provider.Provider{"google": &stubProvider{name: "google", docs: docs}}}

	model := llmmocks.NewMockLLMClient(ctrl)
	embedder := embedmocks.NewMockEmbedder(ctrl)
	model.EXPECT().InvokeModel(gomock.Any(), gomock.Any()).Return(&llm.LLMResponse{Content: "query"}, nil)
	embedder.EXPECT().EmbedTexts(gomock.Any(), gomock.Any()).Return(vectors, nil)
	embedder.EXPECT().EmbedText(gomock.Any(), gomock.Any()).Return([]float32{1, 0}, nil)
	model.EXPECT().InvokeModelStream(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req llm.LLMRequest, cb llm.StreamCallback) (*llm.LLMResponse, error) {
			if req.MaxTokens != focus.DefaultProfiles[focus.Speed].MaxTokens {
				t.Errorf("expected speed profile max tokens, got %d", req.MaxTokens)
			}
			return streamAnswer("ok")(ctx, req, cb)
		})

	res := events.Collect(newAgent(t, webConfig("google"), resolver).SearchAndAnswer(context.Background(),
		Request{Query: "anything", OptimizationMode: focus.Speed}, model, embedder))

	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if len(res.Sources) != focus.DefaultProfiles[focus.Speed].MaxDocuments {
		t.Errorf("expected %d sources, got %d", focus.DefaultProfiles[focus.Speed].MaxDocuments, len(res.Sources))
	}
}

func TestSearchAndAnswer_Failures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(model *llmmocks.MockLLMClient, embedder *embedmocks.MockEmbedder)
		wantKind models.ErrorKind
	}{
		{
			name: "query generation fails",
			setup: func(model *llmmocks.MockLLMClient, embedder *embedmocks.MockEmbedder) {
				model.EXPECT().InvokeModel(gomock.Any(), gomock.Any()).Return(nil, errors.New("ThrottlingException"))
			},
			wantKind: models.KindModelError,
		},
		{
			name: "embedding fails",
			setup: func(model *llmmocks.MockLLMClient, embedder *embedmocks.MockEmbedder) {
				model.EXPECT().InvokeModel(gomock.Any(), gomock.Any()).Return(&llm.LLMResponse{Content: "q"}, nil)
				embedder.EXPECT().EmbedTexts(gomock.Any(), gomock.Any()).Return(nil, errors.New("embedding service down"))
			},
			wantKind: models.KindEmbeddingError,
		},
		{
			name: "answer stream fails",
			setup: func(model *llmmocks.MockLLMClient, embedder *embedmocks.MockEmbedder) {
				model.EXPECT().InvokeModel(gomock.Any(), gomock.Any()).Return(&llm.LLMResponse{Content: "q"}, nil)
				embedder.EXPECT().EmbedTexts(gomock.Any(), gomock.Any()).Return([][]float32{{1, 0}}, nil)
				embedder.EXPECT().EmbedText(gomock.Any(), gomock.Any()).Return([]float32{1, 0}, nil)
				model.EXPECT().InvokeModelStream(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("stream error: EOF"))
			},
			wantKind: models.KindModelError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			model := llmmocks.NewMockLLMClient(ctrl)
			embedder := embedmocks.NewMockEmbedder(ctrl)
			tt.setup(model, embedder)

			resolver := &stubResolver{providers: map[string]provider.Provider{"google": &stubProvider{name: "google", docs: []models.Document{doc("a", "b")}}}}
			res := events.Collect(newAgent(t, webConfig("google"), resolver).SearchAndAnswer(context.Background(),
				Request{Query: "explain goroutines"}, model, embedder))

			if models.KindOf(res.Err) != tt.wantKind {
				t.Errorf("expected %s, got %v", tt.wantKind, res.Err)
			}
			if countTerminal(res.Events) != 1 {
				t.Errorf("expected exactly one terminal event, got %d", countTerminal(res.Events))
			}
			for _, ev := range res.Events {
				if ev.Type == events.TypeResponse {
					t.Error("expected no response events after a failure")
				}
			}
		})
	}
}

func TestSearchAndAnswer_AllProvidersFailDegrades(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	resolver := &stubResolver{providers: map[string]provider.Provider{
		"google": &stubProvider{name: "google", err: errors.New("down")},
		"bing":   &stubProvider{name: "bing", err: errors.New("down")},
	}}

	model := llmmocks.NewMockLLMClient(ctrl)
	model.EXPECT().InvokeModel(gomock.Any(), gomock.Any()).Return(&llm.LLMResponse{Content: "q"}, nil)
	model.EXPECT().InvokeModelStream(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(streamAnswer("I could not find anything."))

	res := events.Collect(newAgent(t, webConfig("google", "bing"), resolver).SearchAndAnswer(context.Background(),
		Request{Query: "obscure topic"}, model, embedmocks.NewMockEmbedder(ctrl)))

	if res.Err != nil {
		t.Fatalf("expected degraded success, got %v", res.Err)
	}
	if len(res.Sources) != 0 {
		t.Errorf("expected no sources, got %d", len(res.Sources))
	}
}

func TestSearchAndAnswer_NoProviders(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	model := llmmocks.NewMockLLMClient(ctrl)
	model.EXPECT().InvokeModel(gomock.Any(), gomock.Any()).Return(&llm.LLMResponse{Content: "q"}, nil)

	res := events.Collect(newAgent(t, webConfig("missing"), &stubResolver{}).SearchAndAnswer(context.Background(),
		Request{Query: "anything at all"}, model, embedmocks.NewMockEmbedder(ctrl)))

	if !errors.Is(res.Err, models.ErrProviderFailure) {
		t.Errorf("expected ProviderFailure, got %v", res.Err)
	}
}

type fakeFetcher struct{}

func (fakeFetcher) Fetch(ctx context.Context, url string) (*fetch.Page, error) {
	if strings.Contains(url, "broken") {
		return nil, errors.New("404")
	}
	return &fetch.Page{URL: url, Title: "Page", Content: "long page text"}, nil
}

func TestSearchAndAnswer_SummarizesLinks(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	model := llmmocks.NewMockLLMClient(ctrl)
	gomock.InOrder(
		model.EXPECT().InvokeModel(gomock.Any(), gomock.Any()).Return(&llm.LLMResponse{
			Content: "<question>\nWhat is this page about?\n</question>\n<links>\nhttps://example.com/a\nhttps://example.com/broken\n</links>",
		}, nil),
		model.EXPECT().InvokeModel(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, req llm.LLMRequest) (*llm.LLMResponse, error) {
				if !strings.Contains(req.Prompt, "What is this page about?") || !strings.Contains(req.Prompt, "long page text") {
					t.Errorf("unexpected summary prompt %q", req.Prompt)
				}
				return &llm.LLMResponse{Content: "A summary"}, nil
			}),
	)
	model.EXPECT().InvokeModelStream(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(streamAnswer("It is about A."))

	cfg := webConfig()
	cfg.Summarizer = true
	a, err := New(Options{
		Mode:       focus.WebSearch,
		Config:     cfg,
		Engines:    &stubResolver{},
		Runner:     provider.NewRunner(newTestLogger()),
		Logger:     newTestLogger(),
		Summarizer: SummarizerOptions{Fetcher: fakeFetcher{}, Prompt: "Q: {{.Question}}\n{{.Content}}", MaxLinks: 5},
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	res := events.Collect(a.SearchAndAnswer(context.Background(),
		Request{Query: "summarize https://example.com/a and https://example.com/broken"}, model, embedmocks.NewMockEmbedder(ctrl)))

	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if len(res.Sources) != 1 || res.Sources[0].Metadata.Engine != LinkEngine || res.Sources[0].Content != "A summary" {
		t.Errorf("unexpected sources: %+v", res.Sources)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Options{Config: webConfig(), Logger: newTestLogger()}); err == nil {
		t.Error("expected error when web search has no resolver")
	}
	if _, err := New(Options{Config: focus.SearchConfig{ResponsePrompt: "{{.Query"}, Logger: newTestLogger()}); err == nil {
		t.Error("expected error for invalid template")
	}
	if _, err := New(Options{Config: focus.SearchConfig{}, Logger: newTestLogger()}); err == nil {
		t.Error("expected error for missing response prompt")
	}
}

func TestParseFormulation(t *testing.T) {
	tests := []struct {
		name      string
		output    string
		wantSkip  bool
		wantQuery string
		wantLinks int
	}{
		{"plain", "golang generics tutorial", false, "golang generics tutorial", 0},
		{"quoted", `"golang generics"`, false, "golang generics", 0},
		{"not needed", "NOT_NEEDED", true, "", 0},
		{"question tags", "<question>\nbest pizza nyc\n</question>", false, "best pizza nyc", 0},
		{"question not needed", "<question>not_needed</question>", true, "", 0},
		{"links default question", "<links>\nhttps://go.dev\n</links>", false, "summarize", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseFormulation(tt.output)
			if got.Skip != tt.wantSkip || got.Query != tt.wantQuery || len(got.Links) != tt.wantLinks {
				t.Errorf("parseFormulation(%q) = %+v", tt.output, got)
			}
		})
	}
}

func TestFormatContext(t *testing.T) {
	got := FormatContext([]models.Document{doc("A", "alpha"), {Content: "beta", Metadata: models.Metadata{URL: "https://b"}}})
	want := "1. A alpha\n2. https://b beta"
	if got != want {
		t.Errorf("FormatContext() = %q, want %q", got, want)
	}
	if FormatContext(nil) != "" {
		t.Error("expected empty context for no documents")
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"no limit", "fromage", 0, "fromage"},
		{"shorter", "brie", 10, "brie"},
		{"ascii cut", "camembert", 4, "came"},
		{"multibyte kept whole", "crème brûlée", 3, "crè"},
		{"bytes over limit but runes under", "été", 3, "été"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateRunes(tt.in, tt.n)
			if got != tt.want {
				t.Errorf("truncateRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncateRunes(%q, %d) produced invalid UTF-8", tt.in, tt.n)
			}
		})
	}
}
