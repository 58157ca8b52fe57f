package llm

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

type groqGenerator struct {
	client *openai.Client
}

// NewGroqGenerator posts single-turn chats to {base_url}/chat/completions.
func NewGroqGenerator(client *openai.Client) Generator {
	return &groqGenerator{client: client}
}

func (g *groqGenerator) Generate(ctx context.Context, req Request) (Response, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return Response{}, &ResponseGenerationError{Backend: "groq", Err: err}
	}

	out := Response{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	if len(resp.Choices) > 0 {
		out.Content = resp.Choices[0].Message.Content
	}
	if out.Content == "" {
		out.Content = NoContentPlaceholder
		out.Placeholder = true
	}
	return out, nil
}
