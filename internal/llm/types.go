package llm

import (
	"context"
	"fmt"

	"github.com/loqalabs/pesu/internal/config"
)

// Request describes a single-turn chat completion.
type Request struct {
	System      string
	Prompt      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Response is the generated reply.
type Response struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	Placeholder      bool
}

// Generator defines a pluggable LLM backend.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// ResponseGenerationError wraps any network or endpoint failure during chat completion.
type ResponseGenerationError struct {
	Backend string
	Err     error
}

func (e *ResponseGenerationError) Error() string {
	return fmt.Sprintf("response generation via %s failed: %v", e.Backend, e.Err)
}

func (e *ResponseGenerationError) Unwrap() error { return e.Err }

// RequestFromConfig builds the fixed request for a transcript.
func RequestFromConfig(cfg config.LLMConfig, prompt string) Request {
	system := cfg.SystemPrompt
	if system == "" {
		system = SystemPromptTamil
	}
	return Request{
		System:      system,
		Prompt:      prompt,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
}
