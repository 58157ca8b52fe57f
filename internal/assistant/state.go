package assistant

import (
	"time"

	"github.com/loqalabs/pesu/internal/playback"
	"github.com/loqalabs/pesu/internal/protocol"
	"github.com/loqalabs/pesu/internal/recorder"
)

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseRecording  Phase = "recording"
	PhaseProcessing Phase = "processing"
)

// State is an immutable snapshot of the session.
type State struct {
	Phase      Phase
	Transcript string
	Response   string
	Playback   playback.State
	RunID      string
	UpdatedAt  time.Time
}

func (s State) Recording() bool  { return s.Phase == PhaseRecording }
func (s State) Processing() bool { return s.Phase == PhaseProcessing }

func (s State) Wire() protocol.State {
	return protocol.State{
		Phase:      string(s.Phase),
		Recording:  s.Recording(),
		Processing: s.Processing(),
		Playback:   string(s.Playback),
		Status:     protocol.StatusLine(string(s.Playback)),
		Transcript: s.Transcript,
		Response:   s.Response,
		RunID:      s.RunID,
		UpdatedAt:  s.UpdatedAt,
	}
}

// session holds the mutable state machine. Callers serialize access.
//
//	idle --startRecording--> recording --startProcessing--> processing --finish--> idle
type session struct {
	state State
	now   func() time.Time
}

func newSession(now func() time.Time) *session {
	s := &session{now: now}
	s.state = State{Phase: PhaseIdle, Playback: playback.StateIdle, UpdatedAt: now()}
	return s
}

func (s *session) canStartRecording() error {
	switch s.state.Phase {
	case PhaseProcessing:
		return ErrBusy
	case PhaseRecording:
		return recorder.ErrAlreadyRecording
	}
	return nil
}

// startRecording clears the previous exchange.
func (s *session) startRecording() {
	s.state.Phase = PhaseRecording
	s.state.Transcript = ""
	s.state.Response = ""
	s.state.RunID = ""
	s.touch()
}

// abortRecording returns to idle without running a chain.
func (s *session) abortRecording() {
	if s.state.Phase == PhaseRecording {
		s.state.Phase = PhaseIdle
		s.touch()
	}
}

func (s *session) startProcessing(runID string) bool {
	if s.state.Phase != PhaseRecording {
		return false
	}
	s.state.Phase = PhaseProcessing
	s.state.RunID = runID
	s.touch()
	return true
}

func (s *session) setTranscript(text string) {
	s.state.Transcript = text
	s.touch()
}

func (s *session) setResponse(text string) {
	s.state.Response = text
	s.touch()
}

func (s *session) finishProcessing() {
	if s.state.Phase == PhaseProcessing {
		s.state.Phase = PhaseIdle
		s.touch()
	}
}

func (s *session) setPlayback(p playback.State) bool {
	if s.state.Playback == p {
		return false
	}
	s.state.Playback = p
	s.touch()
	return true
}

func (s *session) touch() { s.state.UpdatedAt = s.now() }
