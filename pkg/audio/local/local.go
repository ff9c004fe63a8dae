// Package local implements [audio.Platform] on top of the command-line audio
// tools found on desktop systems.
//
// Capture streams raw 16-bit mono PCM from a recorder process (arecord or
// sox) and keeps it in memory until the capture is stopped, at which point it
// is written to a WAV file in the temp directory. Playback writes the encoded
// audio to a temp file and hands it to a player process (afplay, ffplay, aplay
// or mpg123).
//
// Usage:
//
//	p := local.New()
//	c, err := p.StartCapture(ctx)
//	...
//	art, err := c.Stop()
//	defer art.Release()
package local

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/ensotalk/pkg/audio"
)

const (
	defaultSampleRate = 16000

	// chunkDuration is how much audio is read from the recorder between level
	// updates.
	chunkDuration = 50 * time.Millisecond

	// stopGrace is how long a recorder process gets to exit after an
	// interrupt before it is killed.
	stopGrace = 500 * time.Millisecond

	// ArtifactPrefix is the file name prefix of every audio file the platform
	// creates.
	ArtifactPrefix = "ensotalk_"
)

// ErrNoCaptureTool is returned by StartCapture when no recorder command is
// configured and none of the known tools is installed.
var ErrNoCaptureTool = errors.New("local audio: no capture tool found (install alsa-utils or sox)")

// ErrNoPlayerTool is returned by Play when no player command is configured and
// none of the known tools can play the given container.
var ErrNoPlayerTool = errors.New("local audio: no playback tool found (install ffmpeg, alsa-utils or mpg123)")

// Compile-time assertion that Platform implements audio.Platform.
var _ audio.Platform = (*Platform)(nil)

// Option is a functional option for configuring a Platform.
type Option func(*Platform)

// WithCaptureCommand sets the recorder command. The process must write raw
// signed 16-bit little-endian mono PCM at the platform sample rate to stdout.
func WithCaptureCommand(name string, args ...string) Option {
	return func(p *Platform) {
		p.captureCmd = append([]string{name}, args...)
	}
}

// WithPlayerCommand sets the player command. The path of the audio file is
// appended as the last argument.
func WithPlayerCommand(name string, args ...string) Option {
	return func(p *Platform) {
		p.playerCmd = append([]string{name}, args...)
	}
}

// WithSampleRate sets the capture sample rate in Hz. Defaults to 16000.
func WithSampleRate(hz int) Option {
	return func(p *Platform) {
		if hz > 0 {
			p.format.SampleRate = hz
		}
	}
}

// WithTempDir sets the directory used for audio files. Defaults to
// [os.TempDir].
func WithTempDir(dir string) Option {
	return func(p *Platform) {
		p.tempDir = dir
	}
}

// Platform is a subprocess-backed [audio.Platform]. It is safe for concurrent
// use; each capture and playback owns its own process.
type Platform struct {
	captureCmd []string
	playerCmd  []string
	tempDir    string
	format     audio.Format
	lookPath   func(string) (string, error)
}

// New creates a Platform. Tools are looked up lazily so that a machine without
// a microphone can still start and report the failure on first use.
func New(opts ...Option) *Platform {
	p := &Platform{
		tempDir:  os.TempDir(),
		format:   audio.Format{SampleRate: defaultSampleRate, Channels: 1},
		lookPath: exec.LookPath,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Format returns the PCM format produced by captures.
func (p *Platform) Format() audio.Format { return p.format }

// captureCommand returns the recorder argv, detecting an installed tool when
// none was configured.
func (p *Platform) captureCommand() ([]string, error) {
	if len(p.captureCmd) > 0 {
		return p.captureCmd, nil
	}
	rate := fmt.Sprint(p.format.SampleRate)
	if runtime.GOOS == "linux" {
		if _, err := p.lookPath("arecord"); err == nil {
			return []string{"arecord", "-q", "-f", "S16_LE", "-c", "1", "-r", rate, "-t", "raw"}, nil
		}
	}
	if _, err := p.lookPath("sox"); err == nil {
		return []string{"sox", "-q", "-d", "-t", "raw", "-b", "16", "-e", "signed", "-c", "1", "-r", rate, "-"}, nil
	}
	return nil, ErrNoCaptureTool
}

// playerCommand returns the player argv for the given container without the
// trailing file argument.
func (p *Platform) playerCommand(c audio.Container) ([]string, error) {
	if len(p.playerCmd) > 0 {
		return p.playerCmd, nil
	}
	if runtime.GOOS == "darwin" {
		if _, err := p.lookPath("afplay"); err == nil {
			return []string{"afplay"}, nil
		}
	}
	if _, err := p.lookPath("ffplay"); err == nil {
		return []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"}, nil
	}
	switch c {
	case audio.ContainerWAV:
		if _, err := p.lookPath("aplay"); err == nil {
			return []string{"aplay", "-q"}, nil
		}
	case audio.ContainerMP3:
		if _, err := p.lookPath("mpg123"); err == nil {
			return []string{"mpg123", "-q"}, nil
		}
	}
	return nil, ErrNoPlayerTool
}

// newFilePath returns a fresh path in the temp directory with the given
// extension.
func (p *Platform) newFilePath(ext string) string {
	name := ArtifactPrefix + uuid.NewString()
	if ext != "" {
		name += "." + ext
	}
	return filepath.Join(p.tempDir, name)
}
