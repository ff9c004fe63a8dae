// Package local provides the fallback speech synthesizer: the operating
// system's own voice, driven through a command-line tool. It needs no
// credential and no network, so it is used whenever no synthesis key is
// configured.
//
// Supported tools, in order of preference: say (macOS), espeak-ng and espeak
// (Linux), and PowerShell's System.Speech (Windows). Each writes a WAV file
// that Synthesize reads back and removes.
package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/MrWong99/ensotalk/pkg/audio"
	"github.com/MrWong99/ensotalk/pkg/provider/tts"
)

// Placeholders substituted in custom command arguments.
const (
	PlaceholderOut  = "{out}"
	PlaceholderText = "{text}"
)

// ErrNoVoiceTool is returned when no speech tool is configured or installed.
var ErrNoVoiceTool = errors.New("local tts: no speech tool found (install espeak-ng)")

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithCommand sets a custom speech command. The arguments may contain
// PlaceholderOut (the WAV path to write) and PlaceholderText.
func WithCommand(name string, args ...string) Option {
	return func(p *Provider) {
		p.command = append([]string{name}, args...)
	}
}

// WithVoice sets the tool-specific default voice (e.g., "Samantha" for say,
// "en-us" for espeak-ng).
func WithVoice(voice string) Option {
	return func(p *Provider) { p.voice = voice }
}

// WithRate sets the speaking rate in words per minute. Zero keeps the tool
// default.
func WithRate(wpm int) Option {
	return func(p *Provider) { p.rate = wpm }
}

// WithTempDir sets the directory for intermediate WAV files.
func WithTempDir(dir string) Option {
	return func(p *Provider) { p.tempDir = dir }
}

// Provider implements tts.Provider with a local speech tool.
type Provider struct {
	command  []string
	voice    string
	rate     int
	tempDir  string
	goos     string
	lookPath func(string) (string, error)
}

// New creates a local Provider. The tool is detected on first use.
func New(opts ...Option) *Provider {
	p := &Provider{
		tempDir:  os.TempDir(),
		goos:     runtime.GOOS,
		lookPath: exec.LookPath,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Synthesize implements tts.Provider. It returns a WAV file; req.APIKey is
// ignored.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("local tts: %w", tts.ErrEmptyText)
	}
	voice := req.Voice
	if voice == "" {
		voice = p.voice
	}

	out := filepath.Join(p.tempDir, "ensotalk_tts_"+uuid.NewString()+".wav")
	defer os.Remove(out)

	argv, err := p.argv(out, text, voice)
	if err != nil {
		return nil, err
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("local tts: %s: %w: %s", argv[0], err, msg)
		}
		return nil, fmt.Errorf("local tts: %s: %w", argv[0], err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("local tts: read output: %w", err)
	}
	if audio.DetectContainer(data) != audio.ContainerWAV {
		return nil, fmt.Errorf("local tts: %s output: %w", argv[0], audio.ErrNotWAV)
	}
	return data, nil
}

// argv returns the command line that writes text to out.
func (p *Provider) argv(out, text, voice string) ([]string, error) {
	if len(p.command) > 0 {
		r := strings.NewReplacer(PlaceholderOut, out, PlaceholderText, text)
		argv := make([]string, len(p.command))
		for i, a := range p.command {
			argv[i] = r.Replace(a)
		}
		return argv, nil
	}

	switch p.goos {
	case "darwin":
		if _, err := p.lookPath("say"); err == nil {
			argv := []string{"say", "-o", out, "--data-format=LEI16@22050"}
			if voice != "" {
				argv = append(argv, "-v", voice)
			}
			if p.rate > 0 {
				argv = append(argv, "-r", strconv.Itoa(p.rate))
			}
			return append(argv, "--", text), nil
		}
	case "windows":
		if _, err := p.lookPath("powershell"); err == nil {
			return []string{"powershell", "-NoProfile", "-Command", powershellScript(out, text, voice)}, nil
		}
	}

	for _, tool := range []string{"espeak-ng", "espeak"} {
		if _, err := p.lookPath(tool); err != nil {
			continue
		}
		argv := []string{tool, "-w", out}
		if voice != "" {
			argv = append(argv, "-v", voice)
		}
		if p.rate > 0 {
			argv = append(argv, "-s", strconv.Itoa(p.rate))
		}
		return append(argv, "--", text), nil
	}
	return nil, ErrNoVoiceTool
}

func powershellScript(out, text, voice string) string {
	quote := func(s string) string { return "'" + strings.ReplaceAll(s, "'", "''") + "'" }
	var b strings.Builder
	b.WriteString("Add-Type -AssemblyName System.Speech; ")
	b.WriteString("$s = New-Object System.Speech.Synthesis.SpeechSynthesizer; ")
	if voice != "" {
		b.WriteString("$s.SelectVoice(" + quote(voice) + "); ")
	}
	b.WriteString("$s.SetOutputToWaveFile(" + quote(out) + "); ")
	b.WriteString("$s.Speak(" + quote(text) + "); $s.Dispose()")
	return b.String()
}
