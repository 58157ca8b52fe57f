package runtime

import (
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/loqalabs/pesu/internal/assistant"
	"github.com/loqalabs/pesu/internal/audio"
	"github.com/loqalabs/pesu/internal/config"
	"github.com/loqalabs/pesu/internal/groq"
	"github.com/loqalabs/pesu/internal/llm"
	"github.com/loqalabs/pesu/internal/stt"
	"github.com/loqalabs/pesu/internal/tts"
)

func newMicrophone(cfg config.MicrophoneConfig) (audio.Microphone, error) {
	switch cfg.Mode {
	case "mock":
		return audio.NewMockMicrophone(cfg.FrameDurationMS), nil
	case "file":
		return audio.NewFileMicrophone(cfg.File, cfg.FrameDurationMS), nil
	case "portaudio":
		return audio.NewPortAudioMicrophone(cfg.FrameDurationMS)
	default:
		return nil, fmt.Errorf("unsupported microphone mode %q", cfg.Mode)
	}
}

func newSpeechEngine(cfg config.TTSConfig) (tts.Engine, error) {
	switch cfg.Mode {
	case "mock":
		return tts.NewMockEngine(cfg.WordsPerMinute), nil
	case "exec":
		return tts.NewExecEngine(cfg.Command)
	default:
		return nil, fmt.Errorf("unsupported tts mode %q", cfg.Mode)
	}
}

// newBackend builds the remote side of the chain. Both groq backends share
// one HTTP client.
func newBackend(cfg config.Config) (*assistant.Remote, error) {
	var client *openai.Client
	if cfg.UsesRemoteAPI() {
		client = groq.NewClient(cfg.API)
	}

	var recognizer stt.Recognizer
	switch cfg.STT.Mode {
	case "groq":
		recognizer = stt.NewGroqRecognizer(client, cfg.STT.Model, cfg.STT.Language)
	case "mock":
		recognizer = stt.NewMockRecognizer("")
	default:
		return nil, fmt.Errorf("unsupported stt mode %q", cfg.STT.Mode)
	}

	var generator llm.Generator
	switch cfg.LLM.Mode {
	case "groq":
		generator = llm.NewGroqGenerator(client)
	case "mock":
		generator = llm.NewMockGenerator()
	default:
		return nil, fmt.Errorf("unsupported llm mode %q", cfg.LLM.Mode)
	}

	return assistant.NewRemote(recognizer, generator, cfg.LLM), nil
}
