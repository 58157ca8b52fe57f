package llm

import (
	"context"
	"strings"
	"time"
)

type mockGenerator struct{}

func NewMockGenerator() Generator { return &mockGenerator{} }

func (m *mockGenerator) Generate(ctx context.Context, req Request) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, &ResponseGenerationError{Backend: "mock", Err: ctx.Err()}
	case <-time.After(20 * time.Millisecond):
	}
	prompt := strings.TrimSpace(req.Prompt)
	if strings.Contains(prompt, Greeting) {
		return Response{Content: GreetingReply}, nil
	}
	if prompt == "" {
		return Response{Content: NoContentPlaceholder, Placeholder: true}, nil
	}
	return Response{Content: "நீங்கள் சொன்னது: " + prompt}, nil
}
