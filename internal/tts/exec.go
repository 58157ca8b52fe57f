//go:build unix

package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/mattn/go-shellwords"
)

type execEngine struct {
	cmd []string
}

// NewExecEngine runs an external synthesizer per utterance, feeding the text
// on stdin. The arguments {lang} and {voice} are substituted per utterance,
// e.g. "espeak-ng -v {voice} --stdin".
func NewExecEngine(command string) (Engine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &execEngine{cmd: args}, nil
}

func (e *execEngine) Speak(ctx context.Context, u Utterance) (Job, error) {
	voice := u.Voice
	if voice == "" {
		voice = u.Lang
	}
	replacer := strings.NewReplacer("{lang}", u.Lang, "{voice}", voice)
	args := make([]string, 0, len(e.cmd)-1)
	for _, a := range e.cmd[1:] {
		args = append(args, replacer.Replace(a))
	}

	cmd := exec.Command(e.cmd[0], args...)
	cmd.Stdin = strings.NewReader(u.Text)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start tts command: %w", err)
	}

	j := &processJob{cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		j.mu.Lock()
		j.exited = true
		j.mu.Unlock()
		close(j.done)
	}()
	go func() {
		select {
		case <-ctx.Done():
			j.Cancel()
		case <-j.done:
		}
	}()
	return j, nil
}

// processJob pauses the synthesizer with job-control signals.
type processJob struct {
	cmd    *exec.Cmd
	mu     sync.Mutex
	paused bool
	exited bool
	done   chan struct{}
}

func (j *processJob) Done() <-chan struct{} { return j.done }

func (j *processJob) Pause() error {
	return j.signal(syscall.SIGSTOP, true)
}

func (j *processJob) Resume() error {
	return j.signal(syscall.SIGCONT, false)
}

func (j *processJob) signal(sig syscall.Signal, paused bool) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.exited {
		return ErrJobFinished
	}
	if j.paused == paused {
		return nil
	}
	if err := j.cmd.Process.Signal(sig); err != nil {
		if errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
			return ErrJobFinished
		}
		return err
	}
	j.paused = paused
	return nil
}

func (j *processJob) Cancel() {
	j.mu.Lock()
	if !j.exited {
		_ = j.cmd.Process.Kill()
	}
	j.mu.Unlock()
	<-j.done
}
