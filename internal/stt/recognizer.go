package stt

import (
	"context"
	"fmt"

	"github.com/loqalabs/pesu/internal/audio"
)

// TranscriptResult captures recognizer output.
type TranscriptResult struct {
	Text     string
	Language string
}

// Recognizer abstracts speech-to-text backends.
type Recognizer interface {
	Transcribe(ctx context.Context, clip audio.Clip) (TranscriptResult, error)
}

// TranscriptionError wraps any network or endpoint failure during speech-to-text.
type TranscriptionError struct {
	Backend string
	Err     error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription via %s failed: %v", e.Backend, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }
