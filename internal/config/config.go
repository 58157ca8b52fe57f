package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	SentryDSN    string `yaml:"sentry_dsn"`
}

type HTTPConfig struct {
	Bind               string   `yaml:"bind"`
	Port               int      `yaml:"port"`
	CORSOrigins        []string `yaml:"cors_origins"`
	RateLimitPerMinute int      `yaml:"rate_limit_per_minute"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	API         APIConfig        `yaml:"api"`
	STT         STTConfig        `yaml:"stt"`
	LLM         LLMConfig        `yaml:"llm"`
	Microphone  MicrophoneConfig `yaml:"microphone"`
	TTS         TTSConfig        `yaml:"tts"`
	Pipeline    PipelineConfig   `yaml:"pipeline"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
	SubjectPrefix  string   `yaml:"subject_prefix"`
}

// APIConfig points both remote clients at one OpenAI-compatible endpoint.
type APIConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type STTConfig struct {
	Mode     string `yaml:"mode"` // groq, mock
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
}

type LLMConfig struct {
	Mode         string  `yaml:"mode"` // groq, mock
	Model        string  `yaml:"model"`
	Temperature  float64 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	SystemPrompt string  `yaml:"system_prompt"`
}

type MicrophoneConfig struct {
	Mode            string `yaml:"mode"` // mock, file, portaudio
	File            string `yaml:"file"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
	FrameDurationMS int    `yaml:"frame_duration_ms"`
}

type TTSConfig struct {
	Mode           string `yaml:"mode"` // mock, exec
	Command        string `yaml:"command"`
	Lang           string `yaml:"lang"`
	Voice          string `yaml:"voice"`
	WordsPerMinute int    `yaml:"words_per_minute"`
}

type PipelineConfig struct {
	TimeoutMS int `yaml:"timeout_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "pesu",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:               "0.0.0.0",
			Port:               8080,
			CORSOrigins:        []string{"*"},
			RateLimitPerMinute: 120,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
			SubjectPrefix:  "pesu",
		},
		API: APIConfig{
			BaseURL:   "https://api.groq.com/openai/v1",
			TimeoutMS: 30000,
		},
		STT: STTConfig{
			Mode:     "groq",
			Model:    "whisper-large-v3",
			Language: "ta",
		},
		LLM: LLMConfig{
			Mode:        "groq",
			Model:       "gemma2-9b-it",
			Temperature: 0.7,
			MaxTokens:   200,
		},
		Microphone: MicrophoneConfig{
			Mode:            "mock",
			SampleRate:      16000,
			Channels:        1,
			FrameDurationMS: 20,
		},
		TTS: TTSConfig{
			Mode:           "mock",
			Lang:           "ta-IN",
			WordsPerMinute: 150,
		},
		Pipeline: PipelineConfig{
			TimeoutMS: 60000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "PESU_RUNTIME_NAME")
	overrideString(&cfg.Environment, "PESU_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "PESU_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "PESU_HTTP_PORT")
	overrideStringSlice(&cfg.HTTP.CORSOrigins, "PESU_HTTP_CORS_ORIGINS")
	overrideInt(&cfg.HTTP.RateLimitPerMinute, "PESU_HTTP_RATE_LIMIT_PER_MINUTE")
	overrideString(&cfg.Telemetry.LogLevel, "PESU_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "PESU_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "PESU_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.SentryDSN, "PESU_TELEMETRY_SENTRY_DSN")
	overrideBool(&cfg.Bus.Enabled, "PESU_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "PESU_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "PESU_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "PESU_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "PESU_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "PESU_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "PESU_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "PESU_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "PESU_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Bus.SubjectPrefix, "PESU_BUS_SUBJECT_PREFIX")
	overrideString(&cfg.API.BaseURL, "PESU_API_BASE_URL")
	overrideString(&cfg.API.APIKey, "GROQ_API_KEY")
	overrideString(&cfg.API.APIKey, "PESU_API_KEY")
	overrideInt(&cfg.API.TimeoutMS, "PESU_API_TIMEOUT_MS")
	overrideString(&cfg.STT.Mode, "PESU_STT_MODE")
	overrideString(&cfg.STT.Model, "PESU_STT_MODEL")
	overrideString(&cfg.STT.Language, "PESU_STT_LANGUAGE")
	overrideString(&cfg.LLM.Mode, "PESU_LLM_MODE")
	overrideString(&cfg.LLM.Model, "PESU_LLM_MODEL")
	overrideFloat(&cfg.LLM.Temperature, "PESU_LLM_TEMPERATURE")
	overrideInt(&cfg.LLM.MaxTokens, "PESU_LLM_MAX_TOKENS")
	overrideString(&cfg.LLM.SystemPrompt, "PESU_LLM_SYSTEM_PROMPT")
	overrideString(&cfg.Microphone.Mode, "PESU_MICROPHONE_MODE")
	overrideString(&cfg.Microphone.File, "PESU_MICROPHONE_FILE")
	overrideInt(&cfg.Microphone.SampleRate, "PESU_MICROPHONE_SAMPLE_RATE")
	overrideInt(&cfg.Microphone.Channels, "PESU_MICROPHONE_CHANNELS")
	overrideInt(&cfg.Microphone.FrameDurationMS, "PESU_MICROPHONE_FRAME_DURATION_MS")
	overrideString(&cfg.TTS.Mode, "PESU_TTS_MODE")
	overrideString(&cfg.TTS.Command, "PESU_TTS_COMMAND")
	overrideString(&cfg.TTS.Lang, "PESU_TTS_LANG")
	overrideString(&cfg.TTS.Voice, "PESU_TTS_VOICE")
	overrideInt(&cfg.TTS.WordsPerMinute, "PESU_TTS_WORDS_PER_MINUTE")
	overrideInt(&cfg.Pipeline.TimeoutMS, "PESU_PIPELINE_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

// UsesRemoteAPI reports whether any backend talks to the remote endpoint.
func (c Config) UsesRemoteAPI() bool {
	return c.STT.Mode == "groq" || c.LLM.Mode == "groq"
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.HTTP.RateLimitPerMinute < 0 {
		return errors.New("http.rate_limit_per_minute must be >= 0")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
		if cfg.Bus.SubjectPrefix == "" {
			return errors.New("bus.subject_prefix must not be empty")
		}
	}
	switch cfg.STT.Mode {
	case "groq", "mock":
	default:
		return errors.New("stt.mode must be one of groq|mock")
	}
	switch cfg.LLM.Mode {
	case "groq", "mock":
	default:
		return errors.New("llm.mode must be one of groq|mock")
	}
	if cfg.UsesRemoteAPI() {
		if cfg.API.BaseURL == "" {
			return errors.New("api.base_url must be set when a groq backend is enabled")
		}
		if cfg.API.APIKey == "" {
			return errors.New("api key must be set (GROQ_API_KEY) when a groq backend is enabled")
		}
	}
	if cfg.API.TimeoutMS < 0 {
		return errors.New("api.timeout_ms must be >= 0")
	}
	if cfg.STT.Model == "" || cfg.STT.Language == "" {
		return errors.New("stt.model and stt.language must not be empty")
	}
	if cfg.LLM.Model == "" {
		return errors.New("llm.model must not be empty")
	}
	if cfg.LLM.MaxTokens < 0 {
		return errors.New("llm.max_tokens must be >= 0")
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return errors.New("llm.temperature must be between 0 and 2")
	}
	switch cfg.Microphone.Mode {
	case "mock", "portaudio":
	case "file":
		if cfg.Microphone.File == "" {
			return errors.New("microphone.file must be set when mode=file")
		}
	default:
		return errors.New("microphone.mode must be one of mock|file|portaudio")
	}
	if cfg.Microphone.SampleRate <= 0 {
		return errors.New("microphone.sample_rate must be positive")
	}
	if cfg.Microphone.Channels <= 0 {
		return errors.New("microphone.channels must be positive")
	}
	if cfg.Microphone.FrameDurationMS <= 0 {
		return errors.New("microphone.frame_duration_ms must be positive")
	}
	switch cfg.TTS.Mode {
	case "mock":
	case "exec":
		if cfg.TTS.Command == "" {
			return errors.New("tts.command must be set when mode=exec")
		}
	default:
		return errors.New("tts.mode must be one of mock|exec")
	}
	if cfg.TTS.Lang == "" {
		return errors.New("tts.lang must not be empty")
	}
	if cfg.Pipeline.TimeoutMS <= 0 {
		return errors.New("pipeline.timeout_ms must be positive")
	}
	return nil
}
