package assistant

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/pesu/internal/audio"
	"github.com/loqalabs/pesu/internal/config"
	"github.com/loqalabs/pesu/internal/llm"
	"github.com/loqalabs/pesu/internal/playback"
	"github.com/loqalabs/pesu/internal/protocol"
	"github.com/loqalabs/pesu/internal/recorder"
	"github.com/loqalabs/pesu/internal/stt"
	"github.com/loqalabs/pesu/internal/tts"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// callLog records the order in which the chain touches its collaborators.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeBackend struct {
	log           *callLog
	transcript    string
	reply         string
	transcribeErr error
	generateErr   error
	release       chan struct{}
}

func (b *fakeBackend) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	if b.release != nil {
		select {
		case <-b.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	b.log.add("transcribe")
	if clip.Empty() {
		return "", errors.New("empty clip")
	}
	return b.transcript, b.transcribeErr
}

func (b *fakeBackend) Generate(_ context.Context, transcript string) (string, error) {
	b.log.add("generate:" + transcript)
	return b.reply, b.generateErr
}

type heldJob struct {
	done chan struct{}
	once sync.Once
}

func (j *heldJob) Done() <-chan struct{} { return j.done }
func (j *heldJob) Pause() error          { return nil }
func (j *heldJob) Resume() error         { return nil }
func (j *heldJob) Cancel()               { j.once.Do(func() { close(j.done) }) }

type heldEngine struct {
	log *callLog
}

func (e *heldEngine) Speak(_ context.Context, u tts.Utterance) (tts.Job, error) {
	e.log.add("speak:" + u.Text)
	return &heldJob{done: make(chan struct{})}, nil
}

type deniedMic struct{}

func (deniedMic) Open(context.Context, audio.Format) (audio.Capture, error) {
	return nil, &audio.PermissionError{Device: "test", Err: errors.New("NotAllowedError")}
}

type eventSink struct {
	mu     sync.Mutex
	events []protocol.Event
}

func (s *eventSink) Publish(evt protocol.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

func (s *eventSink) ofType(t protocol.EventType) []protocol.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []protocol.Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	assistant *Assistant
	log       *callLog
	backend   *fakeBackend
	player    *playback.Controller
	events    *eventSink
}

func newHarness(t *testing.T, mic audio.Microphone, backend *fakeBackend) *harness {
	t.Helper()
	log := &callLog{}
	backend.log = log
	logger := newLogger()
	format := audio.Format{SampleRate: 16000, Channels: 1}
	player := playback.New(context.Background(), &heldEngine{log: log}, "ta-IN", "", logger)
	a := New(context.Background(), Options{
		Recorder: recorder.New(mic, format, logger),
		Playback: player,
		Backend:  backend,
		Timeout:  5 * time.Second,
		Logger:   logger,
	})
	sink := &eventSink{}
	a.Subscribe(sink)
	t.Cleanup(a.Close)
	return &harness{assistant: a, log: log, backend: backend, player: player, events: sink}
}

func (h *harness) record(t *testing.T) string {
	t.Helper()
	if err := h.assistant.StartRecording(context.Background()); err != nil {
		t.Fatalf("start recording: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	runID, err := h.assistant.StopRecording()
	if err != nil {
		t.Fatalf("stop recording: %v", err)
	}
	if runID == "" {
		t.Fatal("expected a chain to start")
	}
	return runID
}

func TestGreetingReachesPlaybackVerbatim(t *testing.T) {
	h := newHarness(t, audio.NewMockMicrophone(10), &fakeBackend{
		transcript: llm.Greeting,
		reply:      llm.GreetingReply,
	})

	runID := h.record(t)
	h.assistant.Wait()

	got := h.log.snapshot()
	want := []string{"transcribe", "generate:" + llm.Greeting, "speak:" + llm.GreetingReply}
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}

	snap := h.assistant.Snapshot()
	if snap.Phase != PhaseIdle {
		t.Fatalf("phase = %s, want idle", snap.Phase)
	}
	if snap.Transcript != llm.Greeting || snap.Response != llm.GreetingReply {
		t.Fatalf("unexpected exchange %+v", snap)
	}
	if snap.Playback != playback.StateSpeaking || snap.Wire().Status != protocol.StatusPlaying {
		t.Fatalf("playback = %s", snap.Playback)
	}
	if snap.RunID != runID {
		t.Fatalf("run id = %q, want %q", snap.RunID, runID)
	}

	responses := h.events.ofType(protocol.EventResponse)
	if len(responses) != 1 || responses[0].Text != llm.GreetingReply || responses[0].RunID != runID {
		t.Fatalf("unexpected response events %+v", responses)
	}
}

func TestTranscriptionFailureSpeaksApology(t *testing.T) {
	h := newHarness(t, audio.NewMockMicrophone(10), &fakeBackend{
		transcribeErr: &stt.TranscriptionError{Backend: "groq", Err: errors.New("503")},
	})

	h.record(t)
	h.assistant.Wait()

	got := h.log.snapshot()
	if len(got) != 2 || got[0] != "transcribe" || got[1] != "speak:"+Apology {
		t.Fatalf("calls = %v", got)
	}
	snap := h.assistant.Snapshot()
	if snap.Response != Apology || snap.Transcript != "" || snap.Processing() {
		t.Fatalf("unexpected state %+v", snap)
	}
	if len(h.events.ofType(protocol.EventError)) != 1 {
		t.Fatal("expected one error event")
	}
}

func TestGenerationFailureSpeaksApology(t *testing.T) {
	h := newHarness(t, audio.NewMockMicrophone(10), &fakeBackend{
		transcript:  "இன்று வானிலை என்ன?",
		generateErr: &llm.ResponseGenerationError{Backend: "groq", Err: errors.New("timeout")},
	})

	h.record(t)
	h.assistant.Wait()

	snap := h.assistant.Snapshot()
	if snap.Transcript != "இன்று வானிலை என்ன?" {
		t.Fatalf("transcript = %q", snap.Transcript)
	}
	if snap.Response != Apology || snap.Playback != playback.StateSpeaking {
		t.Fatalf("unexpected state %+v", snap)
	}
	calls := h.log.snapshot()
	if calls[len(calls)-1] != "speak:"+Apology {
		t.Fatalf("calls = %v", calls)
	}
}

func TestStopWhenIdleStartsNothing(t *testing.T) {
	h := newHarness(t, audio.NewMockMicrophone(10), &fakeBackend{})

	runID, err := h.assistant.StopRecording()
	if err != nil || runID != "" {
		t.Fatalf("stop while idle: run=%q err=%v", runID, err)
	}
	h.assistant.Wait()
	if calls := h.log.snapshot(); len(calls) != 0 {
		t.Fatalf("expected no calls, got %v", calls)
	}
}

func TestPermissionDeniedKeepsIdle(t *testing.T) {
	h := newHarness(t, deniedMic{}, &fakeBackend{})

	err := h.assistant.StartRecording(context.Background())
	if !errors.Is(err, audio.ErrPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if h.assistant.Snapshot().Phase != PhaseIdle {
		t.Fatal("expected idle after denial")
	}
}

func TestStartWhileProcessingIsBusy(t *testing.T) {
	backend := &fakeBackend{transcript: "x", reply: "y", release: make(chan struct{})}
	h := newHarness(t, audio.NewMockMicrophone(10), backend)

	h.record(t)
	if !h.assistant.Snapshot().Processing() {
		t.Fatal("expected processing")
	}
	if err := h.assistant.StartRecording(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	close(backend.release)
	h.assistant.Wait()
	if err := h.assistant.StartRecording(context.Background()); err != nil {
		t.Fatalf("start after chain: %v", err)
	}
	if err := h.assistant.StartRecording(context.Background()); !errors.Is(err, recorder.ErrAlreadyRecording) {
		t.Fatalf("expected ErrAlreadyRecording, got %v", err)
	}
}

func TestRecordingClearsPreviousExchangeButNotPlayback(t *testing.T) {
	h := newHarness(t, audio.NewMockMicrophone(10), &fakeBackend{transcript: "a", reply: "b"})

	h.record(t)
	h.assistant.Wait()
	if err := h.assistant.StartRecording(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap := h.assistant.Snapshot()
	if snap.Transcript != "" || snap.Response != "" {
		t.Fatalf("expected cleared exchange, got %+v", snap)
	}
	if snap.Playback != playback.StateSpeaking {
		t.Fatalf("playback = %s, want speaking", snap.Playback)
	}
}

func TestSpeechControls(t *testing.T) {
	h := newHarness(t, audio.NewMockMicrophone(10), &fakeBackend{transcript: "a", reply: "b"})

	if err := h.assistant.PauseSpeech(); err != nil {
		t.Fatalf("pause while idle should be ignored: %v", err)
	}
	h.record(t)
	h.assistant.Wait()

	if err := h.assistant.ResumeSpeech(); err != nil {
		t.Fatalf("resume while speaking should be ignored: %v", err)
	}
	if err := h.assistant.PauseSpeech(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	snap := h.assistant.Snapshot()
	if snap.Playback != playback.StatePaused || snap.Wire().Status != protocol.StatusPaused {
		t.Fatalf("playback = %s", snap.Playback)
	}
	h.assistant.StopSpeech()
	h.assistant.StopSpeech()
	snap = h.assistant.Snapshot()
	if snap.Playback != playback.StateIdle || snap.Wire().Status != "" {
		t.Fatalf("playback = %s", snap.Playback)
	}
}

func TestChainTimeoutFallsBackToApology(t *testing.T) {
	log := &callLog{}
	backend := &fakeBackend{log: log, release: make(chan struct{})}
	logger := newLogger()
	player := playback.New(context.Background(), &heldEngine{log: log}, "ta-IN", "", logger)
	a := New(context.Background(), Options{
		Recorder: recorder.New(audio.NewMockMicrophone(10), audio.Format{SampleRate: 16000, Channels: 1}, logger),
		Playback: player,
		Backend:  backend,
		Timeout:  50 * time.Millisecond,
		Logger:   logger,
	})
	t.Cleanup(a.Close)

	if err := a.StartRecording(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := a.StopRecording(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	a.Wait()
	if got := a.Snapshot().Response; got != Apology {
		t.Fatalf("response = %q, want apology", got)
	}
}

func TestRemoteAdaptsClients(t *testing.T) {
	remote := NewRemote(stt.NewMockRecognizer(""), llm.NewMockGenerator(), config.Default().LLM)
	clip, err := audio.EncodeWAV(make([]int16, 3200), audio.Format{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	text, err := remote.Transcribe(context.Background(), clip)
	if err != nil || text != llm.Greeting {
		t.Fatalf("transcribe: %q %v", text, err)
	}
	reply, err := remote.Generate(context.Background(), text)
	if err != nil || reply != llm.GreetingReply {
		t.Fatalf("generate: %q %v", reply, err)
	}
}

// finishedJob has ended on the engine side while Done is still open.
type finishedJob struct{ heldJob }

func (j *finishedJob) Pause() error  { return tts.ErrJobFinished }
func (j *finishedJob) Resume() error { return tts.ErrJobFinished }

type finishedEngine struct{}

func (finishedEngine) Speak(context.Context, tts.Utterance) (tts.Job, error) {
	return &finishedJob{heldJob{done: make(chan struct{})}}, nil
}

func TestPauseAfterUtteranceEndedIsIgnored(t *testing.T) {
	logger := newLogger()
	player := playback.New(context.Background(), finishedEngine{}, "ta-IN", "", logger)
	a := New(context.Background(), Options{
		Recorder: recorder.New(audio.NewMockMicrophone(10), audio.Format{SampleRate: 16000, Channels: 1}, logger),
		Playback: player,
		Backend:  &fakeBackend{log: &callLog{}, transcript: "a", reply: "b"},
		Timeout:  5 * time.Second,
		Logger:   logger,
	})
	t.Cleanup(a.Close)

	var mu sync.Mutex
	var phases []string
	a.Subscribe(ObserverFunc(func(evt protocol.Event) {
		if evt.Type != protocol.EventState {
			return
		}
		mu.Lock()
		phases = append(phases, evt.State.Phase)
		mu.Unlock()
	}))

	if err := a.StartRecording(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := a.StopRecording(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	a.Wait()

	if err := a.PauseSpeech(); err != nil {
		t.Fatalf("pause after utterance ended: %v", err)
	}
	if err := a.ResumeSpeech(); err != nil {
		t.Fatalf("resume after utterance ended: %v", err)
	}
	if got := a.Snapshot().Playback; got != playback.StateSpeaking {
		t.Fatalf("playback = %s, want speaking", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(phases) < 3 || phases[0] != "recording" || phases[1] != "processing" || phases[len(phases)-1] != "idle" {
		t.Fatalf("phases = %v", phases)
	}
}

func TestStopRecordingAfterCloseStartsNoChain(t *testing.T) {
	h := newHarness(t, audio.NewMockMicrophone(10), &fakeBackend{transcript: "a", reply: "b"})
	if err := h.assistant.StartRecording(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Close has marked the assistant but not yet released the recorder.
	h.assistant.mu.Lock()
	h.assistant.closed = true
	h.assistant.mu.Unlock()

	runID, err := h.assistant.StopRecording()
	if !errors.Is(err, ErrClosed) || runID != "" {
		t.Fatalf("stop after close: run=%q err=%v", runID, err)
	}
	h.assistant.Wait()
	if calls := h.log.snapshot(); len(calls) != 0 {
		t.Fatalf("expected no chain, got %v", calls)
	}
	snap := h.assistant.Snapshot()
	if snap.Phase != PhaseIdle {
		t.Fatalf("phase = %s, want idle", snap.Phase)
	}
	if h.assistant.rec.State() != recorder.StateIdle {
		t.Fatal("microphone should be released")
	}
}
