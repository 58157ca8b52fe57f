package audio

import (
	"context"
	"errors"
	"fmt"
)

// ErrPermission marks microphone access that was denied or is unavailable.
var ErrPermission = errors.New("microphone access denied")

// PermissionError reports why a microphone could not be opened.
type PermissionError struct {
	Device string
	Err    error
}

func (e *PermissionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Device, ErrPermission)
	}
	return fmt.Sprintf("%s: %s: %v", e.Device, ErrPermission, e.Err)
}

func (e *PermissionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPermission}
	}
	return []error{ErrPermission, e.Err}
}

// Microphone is the capture device capability.
type Microphone interface {
	Open(ctx context.Context, format Format) (Capture, error)
}

// Capture is one open microphone session. Frames is closed after Close
// has stopped the device; Close is safe to call more than once.
type Capture interface {
	Frames() <-chan []int16
	Close() error
}

// FrameSamples returns the interleaved sample count of one frame.
func FrameSamples(format Format, frameMS int) int {
	n := format.SampleRate * frameMS / 1000 * format.Channels
	if n <= 0 {
		return format.Channels
	}
	return n
}
