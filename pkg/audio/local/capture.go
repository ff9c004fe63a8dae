package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/ensotalk/pkg/audio"
)

// StartCapture implements [audio.Recorder]. The recorder process is bound to
// ctx and is killed when ctx is cancelled.
func (p *Platform) StartCapture(ctx context.Context) (audio.Capture, error) {
	argv, err := p.captureCommand()
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("local audio: capture pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("local audio: start %s: %w", argv[0], err)
	}

	c := &capture{
		platform: p,
		cmd:      cmd,
		done:     make(chan struct{}),
	}
	c.level.Store(math.Float64bits(audio.MinLevelDB))
	go c.read(stdout)
	return c, nil
}

// capture is a running recorder process.
type capture struct {
	platform *Platform
	cmd      *exec.Cmd

	level atomic.Uint64 // float64 bits of the latest chunk level
	done  chan struct{} // closed once the process has exited

	mu      sync.Mutex
	pcm     []byte
	retain  int // byte bound on pcm; 0 means unbounded
	stopped bool
	waitErr error
}

var (
	_ audio.Capture  = (*capture)(nil)
	_ audio.Trimmer  = (*capture)(nil)
	_ audio.Retainer = (*capture)(nil)
)

// read drains the recorder's stdout until EOF and then reaps the process.
func (c *capture) read(r io.Reader) {
	defer close(c.done)

	f := c.platform.format
	chunk := make([]byte, int(chunkDuration.Seconds()*float64(f.BytesPerSecond()))&^1)
	for {
		n, err := io.ReadFull(r, chunk)
		if n > 0 {
			data := chunk[:n&^1]
			c.level.Store(math.Float64bits(audio.LevelDB(data)))
			c.mu.Lock()
			c.pcm = append(c.pcm, data...)
			c.enforceRetain()
			c.mu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				slog.Debug("local audio: capture read failed", "err", err)
			}
			break
		}
	}

	err := c.cmd.Wait()
	c.mu.Lock()
	c.waitErr = err
	c.mu.Unlock()
}

// LevelDB implements [audio.Capture].
func (c *capture) LevelDB() float64 {
	return math.Float64frombits(c.level.Load())
}

// Active implements [audio.Capture].
func (c *capture) Active() bool {
	c.mu.Lock()
	stopped := c.stopped
	c.mu.Unlock()
	if stopped {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Retain implements [audio.Retainer].
func (c *capture) Retain(window time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retain = 0
	if window > 0 {
		c.retain = max(c.bytesFor(window), 2)
	}
	c.enforceRetain()
}

// enforceRetain drops the oldest audio beyond the retention bound in place,
// so the backing array stays at roughly one window plus one chunk.
// c.mu must be held.
func (c *capture) enforceRetain() {
	if c.retain == 0 || len(c.pcm) <= c.retain {
		return
	}
	c.pcm = append(c.pcm[:0], c.pcm[len(c.pcm)-c.retain:]...)
}

func (c *capture) bytesFor(d time.Duration) int {
	return int(d.Seconds()*float64(c.platform.format.BytesPerSecond())) &^ 1
}

// buffered returns how many bytes of PCM the capture currently holds.
func (c *capture) buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pcm)
}

// Trim implements [audio.Trimmer]. It keeps only the most recent keep of
// captured audio.
func (c *capture) Trim(keep time.Duration) {
	n := c.bytesFor(keep)
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 0 || len(c.pcm) <= n {
		return
	}
	kept := make([]byte, n)
	copy(kept, c.pcm[len(c.pcm)-n:])
	c.pcm = kept
}

// Stop implements [audio.Capture]. The recorder is interrupted, given a short
// grace period and then killed. The captured PCM is written to a WAV file.
func (c *capture) Stop() (audio.Artifact, error) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil, errors.New("local audio: capture already stopped")
	}
	c.stopped = true
	c.mu.Unlock()

	select {
	case <-c.done:
	default:
		if c.cmd.Process != nil {
			_ = c.cmd.Process.Signal(os.Interrupt)
		}
		select {
		case <-c.done:
		case <-time.After(stopGrace):
			_ = c.cmd.Process.Kill()
			<-c.done
		}
	}

	c.mu.Lock()
	pcm := c.pcm
	c.pcm = nil
	c.mu.Unlock()

	path := c.platform.newFilePath(string(audio.ContainerWAV))
	if err := os.WriteFile(path, audio.EncodeWAV(pcm, c.platform.format), 0o600); err != nil {
		return nil, fmt.Errorf("local audio: write capture: %w", err)
	}
	return audio.NewFileArtifact(path), nil
}
