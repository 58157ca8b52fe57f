package stt

import (
	"context"
	"errors"

	"github.com/loqalabs/pesu/internal/audio"
)

type mockRecognizer struct {
	text string
}

// NewMockRecognizer returns a recognizer that hears the same phrase in every clip.
func NewMockRecognizer(text string) Recognizer {
	if text == "" {
		text = "வணக்கம்"
	}
	return &mockRecognizer{text: text}
}

func (m *mockRecognizer) Transcribe(ctx context.Context, clip audio.Clip) (TranscriptResult, error) {
	if err := ctx.Err(); err != nil {
		return TranscriptResult{}, &TranscriptionError{Backend: "mock", Err: err}
	}
	if clip.Empty() {
		return TranscriptResult{}, &TranscriptionError{Backend: "mock", Err: errors.New("empty clip")}
	}
	return TranscriptResult{Text: m.text, Language: "ta"}, nil
}
