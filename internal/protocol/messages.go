package protocol

import "time"

type EventType string

const (
	EventState      EventType = "state"
	EventTranscript EventType = "transcript"
	EventResponse   EventType = "response"
	EventError      EventType = "error"
)

// State is the session snapshot as seen by clients.
type State struct {
	Phase      string    `json:"phase"`
	Recording  bool      `json:"recording"`
	Processing bool      `json:"processing"`
	Playback   string    `json:"playback"`
	Status     string    `json:"status"`
	Transcript string    `json:"transcript"`
	Response   string    `json:"response"`
	RunID      string    `json:"run_id,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Event is published on the bus and streamed over websockets.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	Text      string    `json:"text,omitempty"`
	Error     string    `json:"error,omitempty"`
	State     *State    `json:"state,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	StatusPlaying = "Playing"
	StatusPaused  = "Paused"
)

// StatusLine maps a playback state to the label shown next to the controls.
func StatusLine(playback string) string {
	switch playback {
	case "speaking":
		return StatusPlaying
	case "paused":
		return StatusPaused
	default:
		return ""
	}
}

// Subject returns the bus subject for an event type, e.g. "pesu.transcript".
func Subject(prefix string, t EventType) string {
	return prefix + "." + string(t)
}
