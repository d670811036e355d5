package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ravi-parthasarathy/bridgezip/pkg/llm"
)

// ─── TestBuildMessages ────────────────────────────────────────────────────────

func TestBuildMessages_UserText(t *testing.T) {
	out := buildMessages([]llm.Message{llm.UserMessage("hello")}, "")
	if len(out) != 1 {
		t.Fatalf("want 1 message, got %d", len(out))
	}
	if out[0].Role != openai.ChatMessageRoleUser {
		t.Errorf("role: want %q, got %q", openai.ChatMessageRoleUser, out[0].Role)
	}
	if out[0].Content != "hello" {
		t.Errorf("content: want %q, got %q", "hello", out[0].Content)
	}
}

func TestBuildMessages_SystemPrepend(t *testing.T) {
	out := buildMessages([]llm.Message{llm.UserMessage("hi")}, "you compress workflows")
	if len(out) != 2 {
		t.Fatalf("want 2 messages, got %d", len(out))
	}
	if out[0].Role != openai.ChatMessageRoleSystem {
		t.Errorf("first role: want system, got %q", out[0].Role)
	}
	if out[0].Content != "you compress workflows" {
		t.Errorf("system content: got %q", out[0].Content)
	}
	if out[1].Role != openai.ChatMessageRoleUser {
		t.Errorf("second role: want user, got %q", out[1].Role)
	}
}

func TestBuildMessages_Conversation(t *testing.T) {
	msgs := []llm.Message{
		llm.UserMessage("plan"),
		llm.AssistantMessage("{}"),
		{Role: llm.RoleSystem, Text: "reminder"},
		llm.UserMessage("again"),
	}
	out := buildMessages(msgs, "")
	want := []string{
		openai.ChatMessageRoleUser,
		openai.ChatMessageRoleAssistant,
		openai.ChatMessageRoleSystem,
		openai.ChatMessageRoleUser,
	}
	if len(out) != len(want) {
		t.Fatalf("want %d messages, got %d", len(want), len(out))
	}
	for i, role := range want {
		if out[i].Role != role {
			t.Errorf("msg[%d] role = %q, want %q", i, out[i].Role, role)
		}
		if out[i].Content != msgs[i].Text {
			t.Errorf("msg[%d] content = %q", i, out[i].Content)
		}
	}
}

// ─── TestConvertOpenAIResponse ────────────────────────────────────────────────

func makeTextResponse(text string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{
				Message:      openai.ChatCompletionMessage{Content: text},
				FinishReason: openai.FinishReasonStop,
			},
		},
		Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 5},
	}
}

func TestConvertOpenAIResponse_TextOnly(t *testing.T) {
	got := convertOpenAIResponse(makeTextResponse("hello world"))
	if got.Text != "hello world" {
		t.Errorf("text: want %q, got %q", "hello world", got.Text)
	}
	if got.StopReason != llm.StopReasonEndTurn {
		t.Errorf("stop reason: want end_turn, got %q", got.StopReason)
	}
	if got.Usage.InputTokens != 10 {
		t.Errorf("InputTokens: want 10, got %d", got.Usage.InputTokens)
	}
	if got.Usage.OutputTokens != 5 {
		t.Errorf("OutputTokens: want 5, got %d", got.Usage.OutputTokens)
	}
}

func TestConvertOpenAIResponse_NoChoices(t *testing.T) {
	got := convertOpenAIResponse(openai.ChatCompletionResponse{})
	if got.Text != "" || got.StopReason != llm.StopReasonEndTurn {
		t.Errorf("got %+v", got)
	}
}

func TestConvertOpenAIResponse_FinishReasonLength(t *testing.T) {
	resp := openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{
				Message:      openai.ChatCompletionMessage{Content: "truncated"},
				FinishReason: openai.FinishReasonLength,
			},
		},
	}
	got := convertOpenAIResponse(resp)
	if got.StopReason != llm.StopReasonMaxTokens {
		t.Errorf("stop reason: want max_tokens, got %q", got.StopReason)
	}
}

// ─── TestMapOpenAIError ───────────────────────────────────────────────────────

func makeAPIError(code int) error {
	return &openai.APIError{
		HTTPStatusCode: code,
		Message:        "test error",
	}
}

func TestMapOpenAIError_RateLimit(t *testing.T) {
	err := mapOpenAIError(makeAPIError(429))
	var rl *llm.RateLimitError
	if !errors.As(err, &rl) {
		t.Errorf("want *llm.RateLimitError, got %T", err)
	}
	if !llm.Retryable(err) {
		t.Error("RateLimitError should be retryable")
	}
}

func TestMapOpenAIError_Auth(t *testing.T) {
	for _, code := range []int{401, 403} {
		err := mapOpenAIError(makeAPIError(code))
		var ae *llm.AuthError
		if !errors.As(err, &ae) {
			t.Errorf("code %d: want *llm.AuthError, got %T", code, err)
		}
		if llm.Retryable(err) {
			t.Errorf("code %d: AuthError should not be retryable", code)
		}
	}
}

func TestMapOpenAIError_Server(t *testing.T) {
	for _, code := range []int{500, 502, 503} {
		err := mapOpenAIError(makeAPIError(code))
		var se *llm.ServerError
		if !errors.As(err, &se) {
			t.Errorf("code %d: want *llm.ServerError, got %T", code, err)
		}
		if !llm.Retryable(err) {
			t.Errorf("code %d: ServerError should be retryable", code)
		}
	}
}

func TestMapOpenAIError_Other(t *testing.T) {
	err := mapOpenAIError(errors.New("dial tcp: refused"))
	if !strings.HasPrefix(err.Error(), "openai: ") {
		t.Errorf("err = %v", err)
	}
}

func TestMapOpenAIError_Nil(t *testing.T) {
	if err := mapOpenAIError(nil); err != nil {
		t.Errorf("want nil, got %v", err)
	}
}

// ─── Against a fake server ───────────────────────────────────────────────────

func fakeOpenAI(t *testing.T, handler http.HandlerFunc) *openaiClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return newOpenAIClient(cfg, "gpt-test")
}

func TestOpenAIClient_Complete(t *testing.T) {
	c := fakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"W:none"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2}}`)
	})
	resp, err := c.Complete(context.Background(), llm.GenerateRequest{Messages: []llm.Message{llm.UserMessage("go")}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "W:none" {
		t.Errorf("text = %q", resp.Text)
	}
	if resp.Usage.InputTokens != 3 || resp.Usage.OutputTokens != 2 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestOpenAIClient_Stream(t *testing.T) {
	c := fakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{
			`{"choices":[{"index":0,"delta":{"content":"{\"delete"}}]}`,
			`{"choices":[{"index":0,"delta":{"content":"_node_ids\":[]}"},"finish_reason":"stop"}]}`,
			`{"choices":[],"usage":{"prompt_tokens":7,"completion_tokens":4}}`,
		} {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	ch, err := c.Stream(context.Background(), llm.GenerateRequest{Messages: []llm.Message{llm.UserMessage("go")}})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	resp, err := llm.CollectStream(ch)
	if err != nil {
		t.Fatalf("CollectStream: %v", err)
	}
	if resp.Text != `{"delete_node_ids":[]}` {
		t.Errorf("text = %q", resp.Text)
	}
	if resp.Usage.InputTokens != 7 || resp.Usage.OutputTokens != 4 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestOpenAIClient_AuthErrorNotRetried(t *testing.T) {
	calls := 0
	c := fakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	})
	_, err := c.Complete(context.Background(), llm.GenerateRequest{Messages: []llm.Message{llm.UserMessage("go")}})
	var ae *llm.AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v (%T), want AuthError", err, err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
