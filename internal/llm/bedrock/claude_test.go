package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/schilling3003/Perplexica/internal/llm"
)

type fakeRuntime struct {
	responses []string
	errs      []error
	calls     int
	lastBody  []byte
}

func (f *fakeRuntime) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	i := f.calls
	f.calls++
	f.lastBody = params.Body
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.responses[i])}, nil
}

func (f *fakeRuntime) InvokeModelWithResponseStream(ctx context.Context, params *bedrockruntime.InvokeModelWithResponseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error) {
	return nil, errors.New("not implemented")
}

func TestInvokeModel(t *testing.T) {
	runtime := &fakeRuntime{responses: []string{`{"content":[{"type":"text","text":"Hello"},{"type":"text","text":" there"}],"stop_reason":"end_turn"}`}}
	client, err := NewClient(runtime, "anthropic.claude-3-haiku")
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}

	resp, err := client.InvokeModel(context.Background(), llm.LLMRequest{Prompt: "hi", MaxTokens: 100, Temperature: 0.2})
	if err != nil {
		t.Fatalf("InvokeModel() failed: %v", err)
	}
	if resp.Content != "Hello there" || resp.StopReason != "end_turn" {
		t.Errorf("unexpected response: %+v", resp)
	}

	var sent claudeMessageRequest
	if err := json.Unmarshal(runtime.lastBody, &sent); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	if sent.AnthropicVersion != anthropicVersion || sent.MaxTokens != 100 || sent.Messages[0].Content != "hi" {
		t.Errorf("unexpected request payload: %+v", sent)
	}
}

func TestInvokeModelWithRetry(t *testing.T) {
	runtime := &fakeRuntime{
		errs:      []error{errors.New("ThrottlingException: rate exceeded"), nil},
		responses: []string{"", `{"content":[{"type":"text","text":"ok"}]}`},
	}
	client, _ := NewClient(runtime, "model")
	client.Retry = llm.RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

	resp, err := client.InvokeModelWithRetry(context.Background(), llm.LLMRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("InvokeModelWithRetry() failed: %v", err)
	}
	if resp.Content != "ok" || runtime.calls != 2 {
		t.Errorf("expected success on second call, got %q after %d calls", resp.Content, runtime.calls)
	}
}

func TestParseStreamChunk(t *testing.T) {
	tests := []struct {
		name       string
		data       string
		wantText   string
		wantReason string
		wantOK     bool
	}{
		{"delta", `{"type":"content_block_delta","delta":{"type":"text_delta","text":"Hel"}}`, "Hel", "", true},
		{"block start", `{"type":"content_block_start","content_block":{"type":"text","text":"lo"}}`, "lo", "", true},
		{"message delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`, "", "end_turn", true},
		{"garbage", `not-json`, "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, reason, ok := parseStreamChunk([]byte(tt.data))
			if text != tt.wantText || reason != tt.wantReason || ok != tt.wantOK {
				t.Errorf("got (%q, %q, %v), want (%q, %q, %v)", text, reason, ok, tt.wantText, tt.wantReason, tt.wantOK)
			}
		})
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(nil, "model"); err == nil {
		t.Error("expected error for nil runtime")
	}
	if _, err := NewClient(&fakeRuntime{}, ""); err == nil {
		t.Error("expected error for empty model ID")
	}
}
