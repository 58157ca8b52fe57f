// Package httpapi exposes the assistant session over HTTP and websockets.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/loqalabs/pesu/internal/assistant"
	"github.com/loqalabs/pesu/internal/audio"
	"github.com/loqalabs/pesu/internal/protocol"
	"github.com/loqalabs/pesu/internal/recorder"
)

type Options struct {
	Assistant          *assistant.Assistant
	Hub                *Hub
	CORSOrigins        []string
	RateLimitPerMinute int
	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler
	Ready   func() bool
	Logger  *slog.Logger
}

type handler struct {
	assistant *assistant.Assistant
	hub       *Hub
	ready     func() bool
	logger    *slog.Logger
}

func NewRouter(opts Options) http.Handler {
	h := &handler{
		assistant: opts.Assistant,
		hub:       opts.Hub,
		ready:     opts.Ready,
		logger:    opts.Logger.With(slog.String("component", "httpapi")),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.handleHealth)
	r.Get("/readyz", h.handleReady)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		if opts.RateLimitPerMinute > 0 {
			r.Use(httprate.LimitByIP(opts.RateLimitPerMinute, time.Minute))
		}
		r.Get("/state", h.handleState)
		r.Get("/events", h.handleEvents)
		r.Route("/recording", func(r chi.Router) {
			r.Post("/start", h.handleRecordingStart)
			r.Post("/stop", h.handleRecordingStop)
			r.Post("/toggle", h.handleRecordingToggle)
		})
		r.Route("/playback", func(r chi.Router) {
			r.Post("/pause", h.handlePlaybackPause)
			r.Post("/resume", h.handlePlaybackResume)
			r.Post("/stop", h.handlePlaybackStop)
		})
	})
	return r
}

type actionResponse struct {
	RunID string         `json:"run_id,omitempty"`
	State protocol.State `json:"state"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handler) handleReady(w http.ResponseWriter, _ *http.Request) {
	if h.ready == nil || h.ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (h *handler) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.assistant.Snapshot().Wire())
}

func (h *handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	wire := h.assistant.Snapshot().Wire()
	h.hub.serve(w, r, protocol.Event{
		Type:      protocol.EventState,
		RunID:     wire.RunID,
		State:     &wire,
		Timestamp: time.Now().UTC(),
	})
}

func (h *handler) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	err := h.assistant.StartRecording(r.Context())
	h.respond(w, r, "", err)
}

func (h *handler) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	runID, err := h.assistant.StopRecording()
	h.respond(w, r, runID, err)
}

func (h *handler) handleRecordingToggle(w http.ResponseWriter, r *http.Request) {
	runID, err := h.assistant.ToggleRecording(r.Context())
	h.respond(w, r, runID, err)
}

func (h *handler) handlePlaybackPause(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "", h.assistant.PauseSpeech())
}

func (h *handler) handlePlaybackResume(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "", h.assistant.ResumeSpeech())
}

func (h *handler) handlePlaybackStop(w http.ResponseWriter, r *http.Request) {
	h.assistant.StopSpeech()
	h.respond(w, r, "", nil)
}

// respond writes the current state. A denied microphone is not an error for
// the client: nothing starts and the unchanged state is returned.
func (h *handler) respond(w http.ResponseWriter, r *http.Request, runID string, err error) {
	switch {
	case err == nil, errors.Is(err, audio.ErrPermission):
	case errors.Is(err, assistant.ErrBusy), errors.Is(err, recorder.ErrAlreadyRecording):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	case errors.Is(err, assistant.ErrClosed):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	default:
		h.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slogError(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{RunID: runID, State: h.assistant.Snapshot().Wire()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
