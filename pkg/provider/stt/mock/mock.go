// Package mock provides a test double for the stt.Provider interface.
//
// Set Text / Err to control the result and inspect Calls afterwards:
//
//	p := &mock.Provider{Text: "hello"}
//	text, _ := p.Transcribe(ctx, stt.Request{Audio: wav})
//	p.CallCount() // 1
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/ensotalk/pkg/provider/stt"
)

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Text is returned by Transcribe when Err is nil.
	Text string

	// Err, if non-nil, is returned by Transcribe.
	Err error

	// Block, if non-nil, makes Transcribe wait until the channel is closed or
	// the context is cancelled.
	Block chan struct{}

	// Calls records every request passed to Transcribe.
	Calls []stt.Request
}

// Transcribe records the call and returns Text, Err.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, req)
	block := p.Block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return "", p.Err
	}
	return p.Text, nil
}

// CallCount returns how many times Transcribe was called. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// LastCall returns the most recent request. It panics if there were no calls.
func (p *Provider) LastCall() stt.Request {
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

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
