// Package mock provides a test double for the tts.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Audio: []byte("ID3...")}
//	data, _ := p.Synthesize(ctx, tts.Request{Text: "hello"})
//	p.LastCall().Text // "hello"
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/ensotalk/pkg/provider/tts"
)

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Audio is returned by Synthesize when Err is nil.
	Audio []byte

	// Err, if non-nil, is returned by Synthesize.
	Err error

	// Calls records every request passed to Synthesize.
	Calls []tts.Request
}

// Synthesize records the call and returns a copy of Audio, or Err.
func (p *Provider) Synthesize(_ context.Context, req tts.Request) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, req)
	if p.Err != nil {
		return nil, p.Err
	}
	return append([]byte(nil), p.Audio...), nil
}

// CallCount returns how many times Synthesize was called. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// LastCall returns the most recent request. It panics when there is none.
func (p *Provider) LastCall() tts.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Calls[len(p.Calls)-1]
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

var _ tts.Provider = (*Provider)(nil)
