package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loqalabs/pesu/internal/assistant"
	"github.com/loqalabs/pesu/internal/audio"
	"github.com/loqalabs/pesu/internal/bus"
	"github.com/loqalabs/pesu/internal/config"
	"github.com/loqalabs/pesu/internal/httpapi"
	"github.com/loqalabs/pesu/internal/natsserver"
	"github.com/loqalabs/pesu/internal/playback"
	"github.com/loqalabs/pesu/internal/recorder"
)

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger
	ready  atomic.Bool
	addr   atomic.Value
	bus    atomic.Pointer[bus.Client]
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Addr returns the HTTP listen address once the server is up.
func (r *Runtime) Addr() string {
	if v, ok := r.addr.Load().(string); ok {
		return v
	}
	return ""
}

// Ready reports whether the server is up and, when the bus is enabled, still
// connected to it.
func (r *Runtime) Ready() bool {
	if !r.ready.Load() {
		return false
	}
	if c := r.bus.Load(); c != nil && !c.Healthy() {
		return false
	}
	return true
}

// Start runs until ctx is cancelled or the HTTP server fails.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slogError(err))
		}
	}()

	flushSentry, err := setupSentry(r.cfg, r.logger)
	if err != nil {
		r.logger.Warn("sentry init failed", slogError(err))
	}
	defer flushSentry()

	busClient, closeBus, err := r.startBus(ctx)
	if err != nil {
		return err
	}
	defer closeBus()
	if busClient != nil {
		r.bus.Store(busClient)
	}

	asst, err := r.buildAssistant(ctx)
	if err != nil {
		return err
	}
	defer asst.Close()

	hub := httpapi.NewHub(r.cfg.HTTP.CORSOrigins, r.logger)
	asst.Subscribe(hub)
	if busClient != nil {
		asst.Subscribe(busClient)
	}

	router := httpapi.NewRouter(httpapi.Options{
		Assistant:          asst,
		Hub:                hub,
		CORSOrigins:        r.cfg.HTTP.CORSOrigins,
		RateLimitPerMinute: r.cfg.HTTP.RateLimitPerMinute,
		Metrics:            metricsHandler,
		Ready:              r.Ready,
		Logger:             r.logger,
	})

	addr := net.JoinHostPort(r.cfg.HTTP.Bind, strconv.Itoa(r.cfg.HTTP.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	r.addr.Store(listener.Addr().String())
	httpServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		r.ready.Store(false)
		r.logger.Info("runtime stopping")
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slogError(err))
		}
		return nil
	})

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", r.Addr()))

	return g.Wait()
}

func (r *Runtime) startBus(ctx context.Context) (*bus.Client, func(), error) {
	if !r.cfg.Bus.Enabled {
		return nil, func() {}, nil
	}
	cfg := r.cfg.Bus
	embedded, err := natsserver.Start(cfg, r.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start embedded NATS: %w", err)
	}
	if embedded != nil {
		cfg.Servers = []string{embedded.ClientURL()}
	}
	client, err := bus.Connect(ctx, cfg, r.logger)
	if err != nil {
		embedded.Shutdown()
		return nil, nil, fmt.Errorf("failed to connect to bus: %w", err)
	}
	return client, func() {
		client.Close()
		embedded.Shutdown()
	}, nil
}

func (r *Runtime) buildAssistant(ctx context.Context) (*assistant.Assistant, error) {
	mic, err := newMicrophone(r.cfg.Microphone)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize microphone: %w", err)
	}
	engine, err := newSpeechEngine(r.cfg.TTS)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize speech engine: %w", err)
	}
	backend, err := newBackend(r.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize backend: %w", err)
	}

	format := audio.Format{SampleRate: r.cfg.Microphone.SampleRate, Channels: r.cfg.Microphone.Channels}
	r.logger.Info("assistant configured",
		slog.String("microphone", r.cfg.Microphone.Mode),
		slog.String("tts", r.cfg.TTS.Mode),
		slog.String("stt", r.cfg.STT.Mode),
		slog.String("llm", r.cfg.LLM.Mode))

	return assistant.New(ctx, assistant.Options{
		Recorder: recorder.New(mic, format, r.logger),
		Playback: playback.New(ctx, engine, r.cfg.TTS.Lang, r.cfg.TTS.Voice, r.logger),
		Backend:  backend,
		Timeout:  time.Duration(r.cfg.Pipeline.TimeoutMS) * time.Millisecond,
		Logger:   r.logger,
	}), nil
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
