//go:build !unix

package tts

import "errors"

// NewExecEngine needs job-control signals to pause playback.
func NewExecEngine(string) (Engine, error) {
	return nil, errors.New("exec tts engine is only supported on unix")
}
