package tts

import (
	"context"
	"errors"
)

// ErrJobFinished is returned when controlling a job that already ended.
var ErrJobFinished = errors.New("speech job already finished")

// Utterance is one piece of text to be spoken.
type Utterance struct {
	ID    string
	Text  string
	Lang  string
	Voice string
}

// Job is a running utterance. Done is closed exactly once, when playback
// completes naturally, is cancelled, or the engine context ends.
type Job interface {
	Done() <-chan struct{}
	Pause() error
	Resume() error
	Cancel()
}

// Engine is the speech synthesis capability. ctx bounds the job lifetime.
type Engine interface {
	Speak(ctx context.Context, u Utterance) (Job, error)
}
