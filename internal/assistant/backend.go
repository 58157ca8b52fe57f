package assistant

import (
	"context"

	"github.com/loqalabs/pesu/internal/audio"
	"github.com/loqalabs/pesu/internal/config"
	"github.com/loqalabs/pesu/internal/llm"
	"github.com/loqalabs/pesu/internal/stt"
)

// Backend is the remote side of a chain: speech to text, then text to reply.
type Backend interface {
	Transcribe(ctx context.Context, clip audio.Clip) (string, error)
	Generate(ctx context.Context, transcript string) (string, error)
}

// Remote combines a recognizer and a generator into a Backend.
type Remote struct {
	Recognizer stt.Recognizer
	Generator  llm.Generator
	LLM        config.LLMConfig
}

func NewRemote(recognizer stt.Recognizer, generator llm.Generator, cfg config.LLMConfig) *Remote {
	return &Remote{Recognizer: recognizer, Generator: generator, LLM: cfg}
}

func (r *Remote) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	result, err := r.Recognizer.Transcribe(ctx, clip)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

func (r *Remote) Generate(ctx context.Context, transcript string) (string, error) {
	resp, err := r.Generator.Generate(ctx, llm.RequestFromConfig(r.LLM, transcript))
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
