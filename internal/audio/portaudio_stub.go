//go:build !portaudio

package audio

import "errors"

// NewPortAudioMicrophone is unavailable unless built with -tags portaudio.
func NewPortAudioMicrophone(int) (Microphone, error) {
	return nil, errors.New("portaudio microphone requires building with -tags portaudio")
}
