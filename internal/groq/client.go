// Package groq builds the OpenAI-compatible client shared by the
// transcription and chat backends.
package groq

import (
	"net/http"
	"time"

	"github.com/loqalabs/pesu/internal/config"
	openai "github.com/sashabaranov/go-openai"
)

// NewClient configures a go-openai client against cfg.BaseURL with bearer auth.
func NewClient(cfg config.APIConfig) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.HTTPClient = &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond}
	return openai.NewClientWithConfig(clientCfg)
}
