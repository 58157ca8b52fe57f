// Package assistant runs the record, transcribe, reply and speak loop for a
// single user session.
package assistant

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/pesu/internal/audio"
	"github.com/loqalabs/pesu/internal/playback"
	"github.com/loqalabs/pesu/internal/protocol"
	"github.com/loqalabs/pesu/internal/recorder"
)

// Apology replaces the response whenever a remote call fails.
const Apology = "மன்னிக்கவும், ஏதோ தவறு நேர்ந்துவிட்டது."

var (
	// ErrBusy is returned by StartRecording while a chain is still running.
	ErrBusy   = errors.New("assistant is processing the previous recording")
	ErrClosed = errors.New("assistant closed")
)

// Observer receives session events. Publish must not block or call back
// into the Assistant.
type Observer interface {
	Publish(evt protocol.Event)
}

type ObserverFunc func(protocol.Event)

func (f ObserverFunc) Publish(evt protocol.Event) { f(evt) }

type Options struct {
	Recorder *recorder.Controller
	Playback *playback.Controller
	Backend  Backend
	// Timeout bounds one chain, both remote calls included.
	Timeout time.Duration
	Logger  *slog.Logger
}

type Assistant struct {
	ctx     context.Context
	cancel  context.CancelFunc
	rec     *recorder.Controller
	player  *playback.Controller
	backend Backend
	timeout time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics instruments

	mu        sync.Mutex
	session   *session
	observers []Observer
	closed    bool
	wg        sync.WaitGroup
}

func New(parent context.Context, opts Options) *Assistant {
	ctx, cancel := context.WithCancel(parent)
	logger := opts.Logger.With(slog.String("component", "assistant"))
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	a := &Assistant{
		ctx:     ctx,
		cancel:  cancel,
		rec:     opts.Recorder,
		player:  opts.Playback,
		backend: opts.Backend,
		timeout: timeout,
		logger:  logger,
		tracer:  otel.Tracer(instrumentationName),
		metrics: newInstruments(logger),
		session: newSession(time.Now),
	}
	a.player.Observe(a.onPlayback)
	return a
}

// Subscribe registers o for every event emitted after the call.
func (a *Assistant) Subscribe(o Observer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, o)
}

func (a *Assistant) Snapshot() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session.state
}

// StartRecording opens the microphone. Playback is left untouched.
func (a *Assistant) StartRecording(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if err := a.session.canStartRecording(); err != nil {
		return err
	}
	if err := a.rec.Start(ctx); err != nil {
		if errors.Is(err, audio.ErrPermission) {
			a.logger.Warn("microphone unavailable", slogError(err))
		} else {
			a.logger.Error("start recording failed", slogError(err))
		}
		return err
	}
	a.session.startRecording()
	a.emitStateLocked()
	return nil
}

// StopRecording ends the capture and runs the chain in the background. It
// returns the run id, or "" when nothing was recording.
func (a *Assistant) StopRecording() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session.state.Phase != PhaseRecording {
		return "", nil
	}
	if a.closed {
		if _, _, err := a.rec.Stop(); err != nil {
			a.logger.Warn("release microphone", slogError(err))
		}
		a.session.abortRecording()
		a.emitStateLocked()
		return "", ErrClosed
	}
	clip, ok, err := a.rec.Stop()
	if err != nil || !ok {
		a.session.abortRecording()
		a.emitStateLocked()
		return "", err
	}

	runID := uuid.NewString()
	a.session.startProcessing(runID)
	a.emitStateLocked()

	a.wg.Add(1)
	go a.run(runID, clip)
	return runID, nil
}

// ToggleRecording starts a recording when idle and stops it when recording.
func (a *Assistant) ToggleRecording(ctx context.Context) (string, error) {
	if a.Snapshot().Recording() {
		return a.StopRecording()
	}
	return "", a.StartRecording(ctx)
}

func (a *Assistant) run(runID string, clip audio.Clip) {
	defer a.wg.Done()

	ctx, cancel := context.WithTimeout(a.ctx, a.timeout)
	defer cancel()
	ctx, span := a.tracer.Start(ctx, "assistant.chain", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.Int64("clip_ms", clip.Duration.Milliseconds()),
	))
	defer span.End()

	logger := a.logger.With(slog.String("run_id", runID))
	start := time.Now()

	reply, outcome := a.converse(ctx, runID, clip, logger)
	if outcome != "ok" {
		span.SetStatus(codes.Error, outcome)
	}

	a.mu.Lock()
	a.session.setResponse(reply)
	a.emitLocked(protocol.Event{Type: protocol.EventResponse, RunID: runID, Text: reply})
	a.mu.Unlock()

	if a.ctx.Err() != nil {
		logger.Info("shutting down, response not spoken")
	} else if err := a.player.Speak(reply); err != nil {
		logger.Warn("speak response failed", slogError(err))
	}

	a.mu.Lock()
	a.session.finishProcessing()
	a.emitStateLocked()
	a.mu.Unlock()

	a.metrics.recordChain(ctx, outcome)
	logger.Info("chain complete",
		slog.String("outcome", outcome),
		slog.Duration("latency", time.Since(start)))
}

func (a *Assistant) converse(ctx context.Context, runID string, clip audio.Clip, logger *slog.Logger) (string, string) {
	transcript, err := a.step(ctx, "transcribe", func(ctx context.Context) (string, error) {
		return a.backend.Transcribe(ctx, clip)
	})
	if err != nil {
		a.fail(runID, "transcribe", err, logger)
		return Apology, "transcription_failed"
	}
	logger.Info("transcribed", slog.Int("chars", len(transcript)))

	a.mu.Lock()
	a.session.setTranscript(transcript)
	a.emitLocked(protocol.Event{Type: protocol.EventTranscript, RunID: runID, Text: transcript})
	a.mu.Unlock()

	reply, err := a.step(ctx, "generate", func(ctx context.Context) (string, error) {
		return a.backend.Generate(ctx, transcript)
	})
	if err != nil {
		a.fail(runID, "generate", err, logger)
		return Apology, "generation_failed"
	}
	return reply, "ok"
}

func (a *Assistant) step(ctx context.Context, name string, fn func(context.Context) (string, error)) (string, error) {
	ctx, span := a.tracer.Start(ctx, "assistant."+name)
	defer span.End()

	start := time.Now()
	out, err := fn(ctx)
	a.metrics.recordStep(ctx, name, time.Since(start), err != nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

func (a *Assistant) fail(runID, step string, err error, logger *slog.Logger) {
	logger.Warn("remote call failed", slog.String("step", step), slogError(err))
	reportFailure(runID, step, err)

	a.mu.Lock()
	a.emitLocked(protocol.Event{Type: protocol.EventError, RunID: runID, Error: err.Error()})
	a.mu.Unlock()
}

// PauseSpeech pauses the current utterance. Calls made while not speaking
// are ignored.
func (a *Assistant) PauseSpeech() error {
	return ignoreStateError(a.player.Pause())
}

func (a *Assistant) ResumeSpeech() error {
	return ignoreStateError(a.player.Resume())
}

func (a *Assistant) StopSpeech() {
	a.player.Cancel()
}

func ignoreStateError(err error) error {
	if errors.Is(err, playback.ErrInvalidState) {
		return nil
	}
	return err
}

func (a *Assistant) onPlayback(playback.State) {
	// Notifications run outside the controller lock and may arrive out of
	// order, so read the live state instead of trusting the argument.
	current := a.player.State()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session.setPlayback(current) {
		a.emitStateLocked()
	}
}

// Wait blocks until every running chain has settled.
func (a *Assistant) Wait() {
	a.wg.Wait()
}

// Close stops accepting recordings, cancels running chains and releases the
// microphone and speech engine.
func (a *Assistant) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()

	a.cancel()
	a.wg.Wait()

	a.mu.Lock()
	if a.session.state.Phase == PhaseRecording {
		if _, _, err := a.rec.Stop(); err != nil {
			a.logger.Warn("release microphone", slogError(err))
		}
		a.session.abortRecording()
	}
	a.mu.Unlock()
	a.player.Cancel()
}

func (a *Assistant) emitStateLocked() {
	wire := a.session.state.Wire()
	a.emitLocked(protocol.Event{Type: protocol.EventState, RunID: wire.RunID, State: &wire})
}

func (a *Assistant) emitLocked(evt protocol.Event) {
	evt.Timestamp = time.Now().UTC()
	for _, o := range a.observers {
		o.Publish(evt)
	}
}
