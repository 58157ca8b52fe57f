package audio

import (
	"errors"
	"fmt"
	"io"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// MIMEWAV is the content type of every clip produced by this package.
const MIMEWAV = "audio/wav"

// Format describes 16-bit PCM audio.
type Format struct {
	SampleRate int
	Channels   int
}

// Clip is a finished recording ready for transcription.
type Clip struct {
	Data     []byte
	MIMEType string
	Format   Format
	Duration time.Duration
}

// Empty reports whether the clip carries no audio bytes.
func (c Clip) Empty() bool {
	return len(c.Data) == 0
}

// EncodeWAV packages interleaved 16-bit samples into a WAV clip.
func EncodeWAV(samples []int16, format Format) (Clip, error) {
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return Clip{}, fmt.Errorf("invalid audio format %+v", format)
	}
	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		buffer.Data[i] = int(s)
	}

	out := &seekBuffer{}
	enc := wav.NewEncoder(out, format.SampleRate, 16, format.Channels, 1)
	if err := enc.Write(buffer); err != nil {
		return Clip{}, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return Clip{}, fmt.Errorf("close wav encoder: %w", err)
	}

	frames := len(samples) / format.Channels
	return Clip{
		Data:     out.Bytes(),
		MIMEType: MIMEWAV,
		Format:   format,
		Duration: time.Duration(frames) * time.Second / time.Duration(format.SampleRate),
	}, nil
}

// DecodeWAV reads a WAV stream back into interleaved 16-bit samples.
func DecodeWAV(r io.ReadSeeker) ([]int16, Format, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, Format{}, errors.New("not a valid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, Format{}, fmt.Errorf("decode wav: %w", err)
	}
	if dec.BitDepth != 16 {
		return nil, Format{}, fmt.Errorf("unsupported bit depth %d", dec.BitDepth)
	}
	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}
	return samples, Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans)}, nil
}

// seekBuffer is an in-memory io.WriteSeeker; the wav encoder rewinds to patch chunk sizes.
type seekBuffer struct {
	buf []byte
	pos int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	end := b.pos + len(p)
	if end > len(b.buf) {
		if end > cap(b.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, b.buf)
			b.buf = grown
		} else {
			b.buf = b.buf[:end]
		}
	}
	copy(b.buf[b.pos:], p)
	b.pos = end
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(b.pos) + offset
	case io.SeekEnd:
		next = int64(len(b.buf)) + offset
	default:
		return 0, errors.New("seek: invalid whence")
	}
	if next < 0 {
		return 0, errors.New("seek: negative position")
	}
	b.pos = int(next)
	return next, nil
}

func (b *seekBuffer) Bytes() []byte {
	return b.buf
}
