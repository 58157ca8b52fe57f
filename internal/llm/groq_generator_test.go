package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/loqalabs/pesu/internal/config"
	"github.com/loqalabs/pesu/internal/groq"
)

type capturedChat struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Stream      bool    `json:"stream"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func chatServer(t *testing.T, status int, body string, captured *capturedChat, auth *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth != nil {
			*auth = r.Header.Get("Authorization")
		}
		if captured != nil {
			if err := json.NewDecoder(r.Body).Decode(captured); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func defaultRequest(prompt string) Request {
	return RequestFromConfig(config.Default().LLM, prompt)
}

func TestGroqGeneratorSendsFixedRequest(t *testing.T) {
	var captured capturedChat
	var auth string
	srv := chatServer(t, http.StatusOK,
		`{"choices":[{"index":0,"message":{"role":"assistant","content":"வணக்கம்! எவ்வளவு உதவி வேண்டும்?"}}],"usage":{"prompt_tokens":42,"completion_tokens":9}}`,
		&captured, &auth)

	gen := NewGroqGenerator(groq.NewClient(config.APIConfig{BaseURL: srv.URL, APIKey: "gsk_test"}))
	resp, err := gen.Generate(context.Background(), defaultRequest("வணக்கம்"))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if resp.Content != GreetingReply {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Placeholder {
		t.Error("did not expect placeholder")
	}
	if resp.PromptTokens != 42 || resp.CompletionTokens != 9 {
		t.Errorf("usage = %d/%d", resp.PromptTokens, resp.CompletionTokens)
	}
	if auth != "Bearer gsk_test" {
		t.Errorf("authorization = %q", auth)
	}
	if captured.Model != "gemma2-9b-it" {
		t.Errorf("model = %q", captured.Model)
	}
	if captured.Temperature < 0.69 || captured.Temperature > 0.71 {
		t.Errorf("temperature = %f", captured.Temperature)
	}
	if captured.MaxTokens != 200 {
		t.Errorf("max_tokens = %d", captured.MaxTokens)
	}
	if captured.Stream {
		t.Error("expected non-streaming request")
	}
	if len(captured.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(captured.Messages))
	}
	if captured.Messages[0].Role != "system" || captured.Messages[0].Content != SystemPromptTamil {
		t.Errorf("unexpected system message %+v", captured.Messages[0])
	}
	if captured.Messages[1].Role != "user" || captured.Messages[1].Content != "வணக்கம்" {
		t.Errorf("unexpected user message %+v", captured.Messages[1])
	}
}

func TestGroqGeneratorPlaceholderOnMissingContent(t *testing.T) {
	t.Run("empty content", func(t *testing.T) {
		srv := chatServer(t, http.StatusOK, `{"choices":[{"index":0,"message":{"role":"assistant","content":""}}]}`, nil, nil)
		gen := NewGroqGenerator(groq.NewClient(config.APIConfig{BaseURL: srv.URL, APIKey: "k"}))
		resp, err := gen.Generate(context.Background(), defaultRequest("ஏதாவது"))
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if resp.Content != NoContentPlaceholder || !resp.Placeholder {
			t.Fatalf("expected placeholder, got %+v", resp)
		}
	})

	t.Run("no choices", func(t *testing.T) {
		srv := chatServer(t, http.StatusOK, `{"choices":[]}`, nil, nil)
		gen := NewGroqGenerator(groq.NewClient(config.APIConfig{BaseURL: srv.URL, APIKey: "k"}))
		resp, err := gen.Generate(context.Background(), defaultRequest("ஏதாவது"))
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if resp.Content != NoContentPlaceholder {
			t.Fatalf("expected placeholder, got %q", resp.Content)
		}
	})
}

func TestGroqGeneratorErrorStatus(t *testing.T) {
	srv := chatServer(t, http.StatusTooManyRequests, `{"error":{"message":"rate limited","type":"rate_limit"}}`, nil, nil)
	gen := NewGroqGenerator(groq.NewClient(config.APIConfig{BaseURL: srv.URL, APIKey: "k"}))

	_, err := gen.Generate(context.Background(), defaultRequest("வணக்கம்"))
	var genErr *ResponseGenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected *ResponseGenerationError, got %v", err)
	}
	if !strings.Contains(err.Error(), "groq") {
		t.Fatalf("expected backend in error, got %v", err)
	}
}

func TestRequestFromConfigCustomPrompt(t *testing.T) {
	cfg := config.Default().LLM
	cfg.SystemPrompt = "Reply briefly in Tamil."
	req := RequestFromConfig(cfg, "hi")
	if req.System != "Reply briefly in Tamil." {
		t.Fatalf("system = %q", req.System)
	}

	req = RequestFromConfig(config.Default().LLM, "hi")
	if req.System != SystemPromptTamil {
		t.Fatal("expected default Tamil system prompt")
	}
}

func TestMockGenerator(t *testing.T) {
	gen := NewMockGenerator()
	resp, err := gen.Generate(context.Background(), defaultRequest("வணக்கம்"))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Content != GreetingReply {
		t.Fatalf("content = %q", resp.Content)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = gen.Generate(ctx, defaultRequest("வணக்கம்"))
	var genErr *ResponseGenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected generation error on cancelled context, got %v", err)
	}
}
