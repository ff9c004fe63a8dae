package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"sync"

	"github.com/MrWong99/ensotalk/pkg/audio"
)

// Play implements [audio.Player]. data is written to a temp file whose
// extension matches the sniffed container; the file is removed when the
// playback is closed.
func (p *Platform) Play(ctx context.Context, data []byte) (audio.Playback, error) {
	if len(data) == 0 {
		return nil, errors.New("local audio: nothing to play")
	}
	container := audio.DetectContainer(data)
	argv, err := p.playerCommand(container)
	if err != nil {
		return nil, err
	}

	path := p.newFilePath(string(container))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("local audio: write playback: %w", err)
	}

	args := append(append([]string(nil), argv[1:]...), path)
	cmd := exec.CommandContext(ctx, argv[0], args...)
	if err := cmd.Start(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("local audio: start %s: %w", argv[0], err)
	}

	pb := &playback{cmd: cmd, path: path, done: make(chan struct{})}
	go func() {
		pb.err = cmd.Wait()
		close(pb.done)
	}()
	return pb, nil
}

// playback is a running player process.
type playback struct {
	cmd  *exec.Cmd
	path string
	done chan struct{}
	err  error // set before done is closed

	closeOnce sync.Once
	closeErr  error
}

var _ audio.Playback = (*playback)(nil)

// Playing implements [audio.Playback].
func (pb *playback) Playing() bool {
	select {
	case <-pb.done:
		return false
	default:
		return true
	}
}

// Close implements [audio.Playback]. A still running player is killed.
func (pb *playback) Close() error {
	pb.closeOnce.Do(func() {
		select {
		case <-pb.done:
		default:
			_ = pb.cmd.Process.Kill()
			<-pb.done
		}
		if err := os.Remove(pb.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			pb.closeErr = fmt.Errorf("local audio: remove playback file: %w", err)
		}
	})
	return pb.closeErr
}
