package audio

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// Playback is one running track. Done receives exactly one value and is then closed.
type Playback interface {
	Done() <-chan error
	Stop()
}

// Player starts tracks on the audio output device.
type Player interface {
	Start(ctx context.Context, track Track) (Playback, error)
}

type execPlayer struct {
	cmd []string
}

// NewExecPlayer plays files by running command with the track path appended,
// e.g. "aplay -q" or "afplay".
func NewExecPlayer(command string) (Player, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse player command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("player command empty")
	}
	return &execPlayer{cmd: args}, nil
}

func (p *execPlayer) Start(ctx context.Context, track Track) (Playback, error) {
	ctx, cancel := context.WithCancel(ctx)
	args := append(append([]string{}, p.cmd[1:]...), track.Path)
	cmd := exec.CommandContext(ctx, p.cmd[0], args...)
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start player: %w", err)
	}
	pb := &execPlayback{cancel: cancel, done: make(chan error, 1)}
	go func() {
		err := cmd.Wait()
		if ctx.Err() != nil {
			// killed by Stop or by the parent context
			err = nil
		}
		cancel()
		pb.done <- err
		close(pb.done)
	}()
	return pb, nil
}

type execPlayback struct {
	cancel context.CancelFunc
	done   chan error
	once   sync.Once
}

func (p *execPlayback) Done() <-chan error { return p.done }

func (p *execPlayback) Stop() {
	p.once.Do(p.cancel)
}
