// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that sessions are created with the expected Config or
// to inject a NewSession failure. Use Session to script the events returned
// by Observe and inspect the samples that were submitted.
//
// Example:
//
//	sess := &mock.Session{Events: []vad.Event{vad.EventSpeechStarted}}
//	eng := &mock.Engine{Session: sess}
//	handle, _ := eng.NewSession(cfg)
package mock

import (
	"sync"
	"time"

	"github.com/MrWong99/ensotalk/pkg/provider/vad"
)

// NewSessionCall records a single invocation of Engine.NewSession.
type NewSessionCall struct {
	// Cfg is the Config passed to NewSession.
	Cfg vad.Config
}

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by NewSession. If nil, NewSession
	// returns a new default Session.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records every call to NewSession in order.
	NewSessionCalls []NewSessionCall
}

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, NewSessionCall{Cfg: cfg})
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// CallCount returns the number of NewSession calls. Thread-safe.
func (e *Engine) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.NewSessionCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = nil
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// ObserveCall records a single invocation of Session.Observe.
type ObserveCall struct {
	LevelDB float64
	At      time.Time
}

// Session is a mock implementation of vad.SessionHandle.
type Session struct {
	mu sync.Mutex

	// Events are returned by successive Observe calls. Once exhausted,
	// Observe returns vad.EventNone.
	Events []vad.Event

	// ForceEndResult is returned by ForceEnd.
	ForceEndResult vad.Event

	// Speech is returned by SpeechDetected.
	Speech bool

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// ObserveCalls records every call to Observe in order.
	ObserveCalls []ObserveCall

	// ForceEndCallCount is the number of times ForceEnd was called.
	ForceEndCallCount int

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Observe records the call and returns the next scripted event.
func (s *Session) Observe(levelDB float64, now time.Time) vad.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ObserveCalls = append(s.ObserveCalls, ObserveCall{LevelDB: levelDB, At: now})
	if len(s.Events) == 0 {
		return vad.EventNone
	}
	ev := s.Events[0]
	s.Events = s.Events[1:]
	return ev
}

// Expire always returns vad.EventNone; the mock has no debounce.
func (s *Session) Expire(time.Time) vad.Event { return vad.EventNone }

// ForceEnd records the call and returns ForceEndResult.
func (s *Session) ForceEnd(time.Time) vad.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ForceEndCallCount++
	return s.ForceEndResult
}

// Deadline always reports no pending debounce.
func (s *Session) Deadline() (time.Time, bool) { return time.Time{}, false }

// SpeechDetected returns Speech.
func (s *Session) SpeechDetected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Speech
}

// Reset records the call by incrementing ResetCallCount.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// Observed returns a copy of the recorded Observe calls. Thread-safe.
func (s *Session) Observed() []ObserveCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ObserveCall, len(s.ObserveCalls))
	copy(out, s.ObserveCalls)
	return out
}

// Ensure Session implements vad.SessionHandle at compile time.
var _ vad.SessionHandle = (*Session)(nil)
