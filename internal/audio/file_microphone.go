package audio

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

type fileMicrophone struct {
	path    string
	frameMS int
}

// NewFileMicrophone replays a 16-bit WAV file as if it were spoken into a
// microphone, then stays silent until the capture is closed.
func NewFileMicrophone(path string, frameMS int) Microphone {
	if frameMS <= 0 {
		frameMS = 20
	}
	return &fileMicrophone{path: path, frameMS: frameMS}
}

func (m *fileMicrophone) Open(ctx context.Context, format Format) (Capture, error) {
	f, err := os.Open(m.path)
	if err != nil {
		return nil, &PermissionError{Device: m.path, Err: err}
	}
	defer f.Close()

	samples, fileFormat, err := DecodeWAV(f)
	if err != nil {
		return nil, &PermissionError{Device: m.path, Err: err}
	}
	if fileFormat != format {
		return nil, &PermissionError{Device: m.path, Err: fmt.Errorf("file format %+v does not match requested %+v", fileFormat, format)}
	}
	if err := ctx.Err(); err != nil {
		return nil, &PermissionError{Device: m.path, Err: err}
	}

	c := &replayCapture{
		frames: make(chan []int16, 8),
		stop:   make(chan struct{}),
	}
	go c.run(samples, FrameSamples(format, m.frameMS), time.Duration(m.frameMS)*time.Millisecond)
	return c, nil
}

type replayCapture struct {
	frames chan []int16
	stop   chan struct{}
	once   sync.Once
}

func (c *replayCapture) run(samples []int16, size int, interval time.Duration) {
	defer close(c.frames)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for start := 0; start < len(samples); start += size {
		end := min(start+size, len(samples))
		frame := append([]int16(nil), samples[start:end]...)
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
	<-c.stop
}

func (c *replayCapture) Frames() <-chan []int16 { return c.frames }

func (c *replayCapture) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}
