package stt

import (
	"bytes"
	"context"

	"github.com/loqalabs/pesu/internal/audio"
	openai "github.com/sashabaranov/go-openai"
)

// clipFilename is the multipart filename; the endpoint sniffs the container from it.
const clipFilename = "audio.wav"

type groqRecognizer struct {
	client   *openai.Client
	model    string
	language string
}

// NewGroqRecognizer posts clips to {base_url}/audio/transcriptions.
func NewGroqRecognizer(client *openai.Client, model, language string) Recognizer {
	return &groqRecognizer{client: client, model: model, language: language}
}

func (r *groqRecognizer) Transcribe(ctx context.Context, clip audio.Clip) (TranscriptResult, error) {
	resp, err := r.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    r.model,
		FilePath: clipFilename,
		Reader:   bytes.NewReader(clip.Data),
		Language: r.language,
	})
	if err != nil {
		return TranscriptResult{}, &TranscriptionError{Backend: "groq", Err: err}
	}
	return TranscriptResult{Text: resp.Text, Language: r.language}, nil
}
