package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/ensotalk/pkg/provider/tts"
)

var errEmptyAudio = errors.New("synthesizer returned no audio")

// TTSFallback implements [tts.Provider] with failover across synthesis
// backends.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback]. cfg.Kind defaults to "tts".
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	if cfg.Kind == "" {
		cfg.Kind = "tts"
	}
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another synthesis backend.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Status reports the breaker state of every backend.
func (f *TTSFallback) Status() []EntryStatus { return f.group.Status() }

// Synthesize renders req with the first healthy backend. An empty result
// counts as a failure so the next backend gets a chance.
func (f *TTSFallback) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	return ExecuteWithResult(ctx, f.group, func(p tts.Provider) ([]byte, error) {
		audio, err := p.Synthesize(ctx, req)
		if err == nil && len(audio) == 0 {
			return nil, errEmptyAudio
		}
		return audio, err
	})
}
