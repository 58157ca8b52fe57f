package assistant

import (
	"errors"
	"testing"
	"time"

	"github.com/loqalabs/pesu/internal/playback"
	"github.com/loqalabs/pesu/internal/recorder"
)

func fixedClock() func() time.Time {
	t := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestSessionTransitions(t *testing.T) {
	s := newSession(fixedClock())
	if s.state.Phase != PhaseIdle || s.state.Playback != playback.StateIdle {
		t.Fatalf("unexpected initial state %+v", s.state)
	}

	s.state.Transcript = "old"
	s.state.Response = "old"
	if err := s.canStartRecording(); err != nil {
		t.Fatalf("canStartRecording: %v", err)
	}
	s.startRecording()
	if !s.state.Recording() || s.state.Transcript != "" || s.state.Response != "" {
		t.Fatalf("expected cleared recording state, got %+v", s.state)
	}
	if err := s.canStartRecording(); !errors.Is(err, recorder.ErrAlreadyRecording) {
		t.Fatalf("expected ErrAlreadyRecording, got %v", err)
	}

	if !s.startProcessing("run-1") {
		t.Fatal("expected processing to start")
	}
	if err := s.canStartRecording(); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if s.startProcessing("run-2") {
		t.Fatal("processing must only start from recording")
	}

	s.setTranscript("வணக்கம்")
	s.setResponse("வணக்கம்! எவ்வளவு உதவி வேண்டும்?")
	s.finishProcessing()
	if s.state.Phase != PhaseIdle || s.state.RunID != "run-1" {
		t.Fatalf("unexpected final state %+v", s.state)
	}
}

func TestSessionAbortAndPlayback(t *testing.T) {
	s := newSession(fixedClock())
	s.abortRecording()
	if s.state.Phase != PhaseIdle {
		t.Fatal("abort from idle must be a no-op")
	}
	s.startRecording()
	s.abortRecording()
	if s.state.Phase != PhaseIdle {
		t.Fatalf("phase = %s", s.state.Phase)
	}

	before := s.state.UpdatedAt
	if !s.setPlayback(playback.StateSpeaking) {
		t.Fatal("expected change")
	}
	if s.setPlayback(playback.StateSpeaking) {
		t.Fatal("same playback state must not report a change")
	}
	if !s.state.UpdatedAt.After(before) {
		t.Fatal("expected UpdatedAt to advance")
	}
}

func TestWireStatusLine(t *testing.T) {
	cases := map[playback.State]string{
		playback.StateIdle:     "",
		playback.StateSpeaking: "Playing",
		playback.StatePaused:   "Paused",
	}
	for ps, want := range cases {
		wire := State{Phase: PhaseIdle, Playback: ps}.Wire()
		if wire.Status != want {
			t.Errorf("%s: status = %q, want %q", ps, wire.Status, want)
		}
		if wire.Playback != string(ps) {
			t.Errorf("%s: playback = %q", ps, wire.Playback)
		}
	}
	wire := State{Phase: PhaseProcessing}.Wire()
	if !wire.Processing || wire.Recording {
		t.Fatalf("unexpected flags %+v", wire)
	}
}
