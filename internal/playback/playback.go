// Package playback drives one speech utterance at a time through a tts.Engine.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/loqalabs/pesu/internal/tts"
)

// ErrInvalidState marks a control call made from the wrong state.
var ErrInvalidState = errors.New("invalid playback state")

type State string

const (
	StateIdle     State = "idle"
	StateSpeaking State = "speaking"
	StatePaused   State = "paused"
)

// StateError reports a pause/resume issued while not in its source state.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %s while %s", ErrInvalidState, e.Op, e.State)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

type Controller struct {
	ctx    context.Context
	engine tts.Engine
	lang   string
	voice  string
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	job       tts.Job
	utterance *tts.Utterance
	observers []func(State)
}

// New returns a controller whose jobs live no longer than parent.
func New(parent context.Context, engine tts.Engine, lang, voice string, logger *slog.Logger) *Controller {
	return &Controller{
		ctx:    parent,
		engine: engine,
		lang:   lang,
		voice:  voice,
		logger: logger.With(slog.String("component", "playback")),
		state:  StateIdle,
	}
}

// Observe registers fn for every state transition. fn runs without the
// controller lock held.
func (c *Controller) Observe(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// Speak replaces any current utterance with text and starts playback.
func (c *Controller) Speak(text string) error {
	u := tts.Utterance{
		ID:    uuid.NewString(),
		Text:  text,
		Lang:  c.lang,
		Voice: c.voice,
	}

	c.mu.Lock()
	replaced := c.cancelLocked()
	job, err := c.engine.Speak(c.ctx, u)
	if err != nil {
		c.mu.Unlock()
		if replaced {
			c.notify(StateIdle)
		}
		return fmt.Errorf("speak utterance: %w", err)
	}
	c.job = job
	c.utterance = &u
	c.state = StateSpeaking
	c.mu.Unlock()

	go c.watch(job, u.ID)
	c.logger.Info("speaking", slog.String("utterance_id", u.ID), slog.String("lang", u.Lang))
	c.notify(StateSpeaking)
	return nil
}

func (c *Controller) watch(job tts.Job, id string) {
	<-job.Done()

	c.mu.Lock()
	if c.job != job {
		c.mu.Unlock()
		return
	}
	c.job = nil
	c.utterance = nil
	c.state = StateIdle
	c.mu.Unlock()

	c.logger.Info("utterance finished", slog.String("utterance_id", id))
	c.notify(StateIdle)
}

func (c *Controller) Pause() error {
	c.mu.Lock()
	if c.state != StateSpeaking || c.job == nil {
		state := c.state
		c.mu.Unlock()
		return &StateError{Op: "pause", State: state}
	}
	if err := c.job.Pause(); err != nil {
		state := c.state
		c.mu.Unlock()
		// The job ended but its watcher has not run yet.
		if errors.Is(err, tts.ErrJobFinished) {
			return &StateError{Op: "pause", State: state}
		}
		return fmt.Errorf("pause utterance: %w", err)
	}
	c.state = StatePaused
	c.mu.Unlock()

	c.notify(StatePaused)
	return nil
}

func (c *Controller) Resume() error {
	c.mu.Lock()
	if c.state != StatePaused || c.job == nil {
		state := c.state
		c.mu.Unlock()
		return &StateError{Op: "resume", State: state}
	}
	if err := c.job.Resume(); err != nil {
		state := c.state
		c.mu.Unlock()
		// The job ended but its watcher has not run yet.
		if errors.Is(err, tts.ErrJobFinished) {
			return &StateError{Op: "resume", State: state}
		}
		return fmt.Errorf("resume utterance: %w", err)
	}
	c.state = StateSpeaking
	c.mu.Unlock()

	c.notify(StateSpeaking)
	return nil
}

// Cancel stops playback from any state. Calling it while idle does nothing.
func (c *Controller) Cancel() {
	c.mu.Lock()
	wasActive := c.cancelLocked()
	c.mu.Unlock()
	if wasActive {
		c.notify(StateIdle)
	}
}

func (c *Controller) cancelLocked() bool {
	if c.job == nil {
		c.state = StateIdle
		return false
	}
	job := c.job
	c.job = nil
	c.utterance = nil
	c.state = StateIdle
	job.Cancel()
	return true
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Current returns the active or paused utterance, if any.
func (c *Controller) Current() (tts.Utterance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.utterance == nil {
		return tts.Utterance{}, false
	}
	return *c.utterance, true
}

func (c *Controller) notify(state State) {
	c.mu.Lock()
	observers := append([]func(State){}, c.observers...)
	c.mu.Unlock()
	for _, fn := range observers {
		fn(state)
	}
}
