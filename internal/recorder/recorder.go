// Package recorder owns the microphone capture lifecycle and turns buffered
// frames into a single clip.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/loqalabs/pesu/internal/audio"
)

// ErrAlreadyRecording is returned by Start while a capture is open.
var ErrAlreadyRecording = errors.New("recording already in progress")

// minClipMS pads short recordings; the transcription endpoint rejects clips under ~100 ms.
const minClipMS = 200

type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
)

type Controller struct {
	mic    audio.Microphone
	format audio.Format
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	capture audio.Capture
	samples []int16
	drained chan struct{}
}

func New(mic audio.Microphone, format audio.Format, logger *slog.Logger) *Controller {
	return &Controller{
		mic:    mic,
		format: format,
		logger: logger.With(slog.String("component", "recorder")),
		state:  StateIdle,
	}
}

// Start opens the microphone and begins buffering frames.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateRecording {
		return ErrAlreadyRecording
	}

	capture, err := c.mic.Open(ctx, c.format)
	if err != nil {
		var permErr *audio.PermissionError
		if !errors.As(err, &permErr) {
			err = &audio.PermissionError{Device: "microphone", Err: err}
		}
		return err
	}

	c.capture = capture
	c.samples = c.samples[:0]
	c.drained = make(chan struct{})
	c.state = StateRecording
	go c.drain(capture, c.drained)

	c.logger.Info("recording started",
		slog.Int("sample_rate", c.format.SampleRate),
		slog.Int("channels", c.format.Channels))
	return nil
}

func (c *Controller) drain(capture audio.Capture, done chan struct{}) {
	defer close(done)
	for frame := range capture.Frames() {
		c.mu.Lock()
		c.samples = append(c.samples, frame...)
		c.mu.Unlock()
	}
}

// Stop releases the microphone and returns the recorded clip. ok is false
// when nothing was recording.
func (c *Controller) Stop() (clip audio.Clip, ok bool, err error) {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return audio.Clip{}, false, nil
	}
	capture := c.capture
	drained := c.drained
	c.capture = nil
	c.state = StateIdle
	c.mu.Unlock()

	if closeErr := capture.Close(); closeErr != nil {
		c.logger.Warn("microphone close failed", slogError(closeErr))
	}
	<-drained

	c.mu.Lock()
	samples := append([]int16(nil), c.samples...)
	c.samples = c.samples[:0]
	c.mu.Unlock()

	minSamples := c.format.SampleRate * minClipMS / 1000 * c.format.Channels
	if len(samples) < minSamples {
		samples = append(samples, make([]int16, minSamples-len(samples))...)
	}

	clip, err = audio.EncodeWAV(samples, c.format)
	if err != nil {
		return audio.Clip{}, false, fmt.Errorf("package clip: %w", err)
	}
	c.logger.Info("recording stopped",
		slog.Duration("duration", clip.Duration),
		slog.Int("bytes", len(clip.Data)))
	return clip, true, nil
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
