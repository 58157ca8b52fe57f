//go:build portaudio

package audio

import (
	"context"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

type portAudioMicrophone struct {
	frameMS int
}

// NewPortAudioMicrophone opens the system default input device.
func NewPortAudioMicrophone(frameMS int) (Microphone, error) {
	if frameMS <= 0 {
		frameMS = 20
	}
	return &portAudioMicrophone{frameMS: frameMS}, nil
}

func (m *portAudioMicrophone) Open(ctx context.Context, format Format) (Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, &PermissionError{Device: "portaudio", Err: err}
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, &PermissionError{Device: "portaudio", Err: err}
	}

	buffer := make([]int16, FrameSamples(format, m.frameMS))
	stream, err := portaudio.OpenDefaultStream(format.Channels, 0, float64(format.SampleRate), len(buffer)/format.Channels, buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, &PermissionError{Device: "portaudio", Err: err}
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, &PermissionError{Device: "portaudio", Err: err}
	}

	c := &portAudioCapture{
		stream: stream,
		buffer: buffer,
		frames: make(chan []int16, 16),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go c.run()
	return c, nil
}

type portAudioCapture struct {
	stream *portaudio.Stream
	buffer []int16
	frames chan []int16
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (c *portAudioCapture) run() {
	defer close(c.done)
	defer close(c.frames)

	for {
		select {
		case <-c.stop:
			return
		default:
		}

		available, err := c.stream.AvailableToRead()
		if err != nil || available == 0 {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		if err := c.stream.Read(); err != nil {
			time.Sleep(5 * time.Millisecond)
			continue
		}

		frame := append([]int16(nil), c.buffer...)
		select {
		case <-c.stop:
			return
		case c.frames <- frame:
		}
	}
}

func (c *portAudioCapture) Frames() <-chan []int16 { return c.frames }

func (c *portAudioCapture) Close() error {
	var err error
	c.once.Do(func() {
		close(c.stop)
		<-c.done
		if stopErr := c.stream.Stop(); stopErr != nil {
			err = stopErr
		}
		if closeErr := c.stream.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		portaudio.Terminate()
	})
	return err
}
