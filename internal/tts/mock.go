package tts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

type mockEngine struct {
	wordsPerMinute int
}

// NewMockEngine "speaks" silently for as long as a reader at wordsPerMinute would.
func NewMockEngine(wordsPerMinute int) Engine {
	if wordsPerMinute <= 0 {
		wordsPerMinute = 150
	}
	return &mockEngine{wordsPerMinute: wordsPerMinute}
}

func (m *mockEngine) Speak(ctx context.Context, u Utterance) (Job, error) {
	if strings.TrimSpace(u.Text) == "" {
		return nil, errors.New("nothing to speak")
	}
	words := len(strings.Fields(u.Text))
	return startTimedJob(ctx, time.Duration(words)*time.Minute/time.Duration(m.wordsPerMinute)), nil
}

// timedJob completes after a fixed amount of unpaused time.
type timedJob struct {
	mu        sync.Mutex
	timer     *time.Timer
	remaining time.Duration
	startedAt time.Time
	paused    bool
	finished  bool
	gen       int
	done      chan struct{}
}

func startTimedJob(ctx context.Context, d time.Duration) *timedJob {
	j := &timedJob{remaining: d, done: make(chan struct{})}
	j.mu.Lock()
	j.arm()
	j.mu.Unlock()
	go func() {
		select {
		case <-ctx.Done():
			j.Cancel()
		case <-j.done:
		}
	}()
	return j
}

// arm must be called with mu held.
func (j *timedJob) arm() {
	j.gen++
	gen := j.gen
	j.startedAt = time.Now()
	j.timer = time.AfterFunc(j.remaining, func() { j.expire(gen) })
}

func (j *timedJob) expire(gen int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if gen != j.gen || j.paused {
		return
	}
	j.finishLocked()
}

func (j *timedJob) finishLocked() {
	if j.finished {
		return
	}
	j.finished = true
	j.timer.Stop()
	close(j.done)
}

func (j *timedJob) Done() <-chan struct{} { return j.done }

func (j *timedJob) Pause() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finished {
		return ErrJobFinished
	}
	if j.paused {
		return nil
	}
	j.timer.Stop()
	j.gen++
	j.remaining -= time.Since(j.startedAt)
	if j.remaining < 0 {
		j.remaining = 0
	}
	j.paused = true
	return nil
}

func (j *timedJob) Resume() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finished {
		return ErrJobFinished
	}
	if !j.paused {
		return nil
	}
	j.paused = false
	j.arm()
	return nil
}

func (j *timedJob) Cancel() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finishLocked()
}
