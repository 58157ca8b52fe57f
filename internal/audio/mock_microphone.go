package audio

import (
	"context"
	"math"
	"sync"
	"time"
)

type mockMicrophone struct {
	frameMS int
}

// NewMockMicrophone returns a microphone that produces a quiet 440 Hz tone.
func NewMockMicrophone(frameMS int) Microphone {
	if frameMS <= 0 {
		frameMS = 20
	}
	return &mockMicrophone{frameMS: frameMS}
}

func (m *mockMicrophone) Open(ctx context.Context, format Format) (Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, &PermissionError{Device: "mock", Err: err}
	}
	c := &toneCapture{
		frames: make(chan []int16, 8),
		stop:   make(chan struct{}),
	}
	go c.run(format, m.frameMS)
	return c, nil
}

type toneCapture struct {
	frames chan []int16
	stop   chan struct{}
	once   sync.Once
}

func (c *toneCapture) run(format Format, frameMS int) {
	defer close(c.frames)

	ticker := time.NewTicker(time.Duration(frameMS) * time.Millisecond)
	defer ticker.Stop()

	size := FrameSamples(format, frameMS)
	phase := 0
	for {
		frame := make([]int16, size)
		for i := 0; i < size; i += format.Channels {
			v := int16(2000 * math.Sin(2*math.Pi*440*float64(phase)/float64(format.SampleRate)))
			for ch := 0; ch < format.Channels && i+ch < size; ch++ {
				frame[i+ch] = v
			}
			phase++
		}
		select {
		case <-c.stop:
			return
		case c.frames <- frame:
		}
		select {
		case <-c.stop:
			return
		case <-ticker.C:
		}
	}
}

func (c *toneCapture) Frames() <-chan []int16 { return c.frames }

func (c *toneCapture) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}
