// Package mock provides in-memory mock implementations of the [audio.Recorder],
// [audio.Capture], [audio.Player] and [audio.Artifact] interfaces for use in
// unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	rec := &mock.Recorder{Audio: []byte("RIFF...")}
//	rec.SetLevel(-10) // every capture now reports -10 dBFS
//	c, _ := rec.StartCapture(ctx)
//	art, _ := c.Stop()
//	_ = art.Release()
//	rec.Artifacts()[0].ReleaseCount() // 1
package mock

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/ensotalk/pkg/audio"
)

// ─── Artifact ────────────────────────────────────────────────────────────────

// Artifact is a mock implementation of [audio.Artifact].
type Artifact struct {
	mu sync.Mutex

	// NameValue is returned by Name.
	NameValue string

	// Data is returned by Bytes.
	Data []byte

	// BytesErr, if non-nil, is returned by Bytes.
	BytesErr error

	// ReleaseErr, if non-nil, is returned by Release.
	ReleaseErr error

	releases int
}

// Name implements [audio.Artifact].
func (a *Artifact) Name() string { return a.NameValue }

// Bytes implements [audio.Artifact].
func (a *Artifact) Bytes() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.BytesErr != nil {
		return nil, a.BytesErr
	}
	return a.Data, nil
}

// Release implements [audio.Artifact] and counts the call.
func (a *Artifact) Release() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.releases++
	return a.ReleaseErr
}

// ReleaseCount returns how many times Release was called.
func (a *Artifact) ReleaseCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.releases
}

var _ audio.Artifact = (*Artifact)(nil)

// ─── Recorder / Capture ─────────────────────────────────────────────────────

// Recorder is a mock implementation of [audio.Recorder]. Every capture it
// creates reports the level last passed to SetLevel.
type Recorder struct {
	mu sync.Mutex

	// Audio is the payload of every artifact produced by a capture's Stop.
	Audio []byte

	// StartErr, if non-nil, is returned by StartCapture.
	StartErr error

	// StopErr, if non-nil, is returned by every capture's Stop.
	StopErr error

	level     float64
	captures  []*Capture
	artifacts []*Artifact
}

// StartCapture implements [audio.Recorder].
func (r *Recorder) StartCapture(_ context.Context) (audio.Capture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.StartErr != nil {
		return nil, r.StartErr
	}
	c := &Capture{rec: r, active: true}
	r.captures = append(r.captures, c)
	return c, nil
}

// SetLevel sets the level reported by all captures.
func (r *Recorder) SetLevel(db float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.level = db
}

// Captures returns every capture started so far, oldest first.
func (r *Recorder) Captures() []*Capture {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Capture, len(r.captures))
	copy(out, r.captures)
	return out
}

// Artifacts returns every artifact produced so far, oldest first.
func (r *Recorder) Artifacts() []*Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Artifact, len(r.artifacts))
	copy(out, r.artifacts)
	return out
}

// ActiveCaptures returns how many captures have not been stopped.
func (r *Recorder) ActiveCaptures() int {
	r.mu.Lock()
	captures := append([]*Capture(nil), r.captures...)
	r.mu.Unlock()

	n := 0
	for _, c := range captures {
		if c.Active() {
			n++
		}
	}
	return n
}

var _ audio.Recorder = (*Recorder)(nil)

// Capture is a mock implementation of [audio.Capture] created by [Recorder].
type Capture struct {
	rec *Recorder

	mu      sync.Mutex
	active  bool
	stopped bool
	trims   int
	retain  []time.Duration
}

// LevelDB implements [audio.Capture].
func (c *Capture) LevelDB() float64 {
	c.rec.mu.Lock()
	defer c.rec.mu.Unlock()
	return c.rec.level
}

// Active implements [audio.Capture].
func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Fail marks the capture inactive as if the device went away.
func (c *Capture) Fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
}

// Trim implements [audio.Trimmer] and counts the call.
func (c *Capture) Trim(time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trims++
}

// TrimCount returns how many times Trim was called.
func (c *Capture) TrimCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trims
}

// Retain implements [audio.Retainer] and records the window.
func (c *Capture) Retain(window time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retain = append(c.retain, window)
}

// RetainCalls returns every window passed to Retain, oldest first.
func (c *Capture) RetainCalls() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.retain)
}

// Stop implements [audio.Capture].
func (c *Capture) Stop() (audio.Artifact, error) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil, errors.New("mock: capture already stopped")
	}
	c.stopped = true
	c.active = false
	c.mu.Unlock()

	c.rec.mu.Lock()
	defer c.rec.mu.Unlock()
	if c.rec.StopErr != nil {
		return nil, c.rec.StopErr
	}
	a := &Artifact{
		NameValue: fmt.Sprintf("ensotalk_mock_%d.wav", len(c.rec.artifacts)),
		Data:      c.rec.Audio,
	}
	c.rec.artifacts = append(c.rec.artifacts, a)
	return a, nil
}

// Stopped reports whether Stop has been called.
func (c *Capture) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

var (
	_ audio.Capture  = (*Capture)(nil)
	_ audio.Trimmer  = (*Capture)(nil)
	_ audio.Retainer = (*Capture)(nil)
)

// ─── Player ─────────────────────────────────────────────────────────────────

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// PlayErr, if non-nil, is returned by Play.
	PlayErr error

	// PollsUntilDone is how many Playing calls on each playback return true
	// before it reports completion.
	PollsUntilDone int

	plays     [][]byte
	playbacks []*Playback
}

// Play implements [audio.Player].
func (p *Player) Play(_ context.Context, data []byte) (audio.Playback, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	p.plays = append(p.plays, cp)
	if p.PlayErr != nil {
		return nil, p.PlayErr
	}
	pb := &Playback{remaining: p.PollsUntilDone}
	p.playbacks = append(p.playbacks, pb)
	return pb, nil
}

// Plays returns a copy of every buffer passed to Play.
func (p *Player) Plays() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.plays))
	copy(out, p.plays)
	return out
}

// Playbacks returns every playback handle created so far.
func (p *Player) Playbacks() []*Playback {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Playback, len(p.playbacks))
	copy(out, p.playbacks)
	return out
}

var _ audio.Player = (*Player)(nil)

// Playback is a mock implementation of [audio.Playback].
type Playback struct {
	mu        sync.Mutex
	remaining int
	closes    int
}

// Playing implements [audio.Playback].
func (pb *Playback) Playing() bool {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.remaining > 0 {
		pb.remaining--
		return true
	}
	return false
}

// Close implements [audio.Playback].
func (pb *Playback) Close() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.closes++
	return nil
}

// CloseCount returns how many times Close was called.
func (pb *Playback) CloseCount() int {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.closes
}

var _ audio.Playback = (*Playback)(nil)

// ─── Platform ───────────────────────────────────────────────────────────────

// Platform combines a mock Recorder and Player into an [audio.Platform].
type Platform struct {
	*Recorder
	*Player
}

var _ audio.Platform = Platform{}
