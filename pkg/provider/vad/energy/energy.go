// Package energy implements a level-threshold voice activity detector with
// silence debounce.
//
// A sample above the threshold starts (or continues) speech. The first
// sample at or below the threshold opens a debounce window; any louder
// sample before the window closes cancels it. When the window closes the
// speech span is measured from its start to the onset of the confirming
// silence and classified as an accepted utterance or a too-short discard.
//
// This is deliberately not spectral VAD: there is no noise-floor tracking and
// no frequency analysis.
package energy

import (
	"time"

	"github.com/MrWong99/ensotalk/pkg/provider/vad"
)

// Engine creates level-threshold detector sessions. The zero value is ready
// to use.
type Engine struct{}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// New returns an [Engine].
func New() *Engine { return &Engine{} }

// NewSession implements [vad.Engine].
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Session{cfg: cfg}, nil
}

// Session is the detector state for a single capture. It is not safe for
// concurrent use.
type Session struct {
	cfg vad.Config

	speechDetected  bool
	speechStartedAt time.Time

	silencePending bool
	silenceSince   time.Time

	closed bool
}

// Ensure Session implements vad.SessionHandle at compile time.
var _ vad.SessionHandle = (*Session)(nil)

// Observe implements [vad.SessionHandle].
func (s *Session) Observe(levelDB float64, now time.Time) vad.Event {
	if s.closed {
		return vad.EventNone
	}

	if levelDB > s.cfg.ThresholdDB {
		s.silencePending = false
		s.silenceSince = time.Time{}
		if s.speechDetected {
			return vad.EventNone
		}
		s.speechDetected = true
		s.speechStartedAt = now
		return vad.EventSpeechStarted
	}

	if !s.speechDetected {
		return vad.EventNone
	}
	if !s.silencePending {
		s.silencePending = true
		s.silenceSince = now
		return vad.EventNone
	}
	return s.Expire(now)
}

// Expire implements [vad.SessionHandle].
func (s *Session) Expire(now time.Time) vad.Event {
	if s.closed || !s.speechDetected || !s.silencePending {
		return vad.EventNone
	}
	if now.Sub(s.silenceSince) < s.cfg.SilenceDebounce {
		return vad.EventNone
	}
	return s.end(s.silenceSince)
}

// ForceEnd implements [vad.SessionHandle]. When silence is already pending
// the speech span ends at the silence onset, otherwise at now.
func (s *Session) ForceEnd(now time.Time) vad.Event {
	if s.closed || !s.speechDetected {
		return vad.EventNone
	}
	endedAt := now
	if s.silencePending {
		endedAt = s.silenceSince
	}
	return s.end(endedAt)
}

// Deadline implements [vad.SessionHandle].
func (s *Session) Deadline() (time.Time, bool) {
	if s.closed || !s.silencePending {
		return time.Time{}, false
	}
	return s.silenceSince.Add(s.cfg.SilenceDebounce), true
}

// SpeechDetected implements [vad.SessionHandle].
func (s *Session) SpeechDetected() bool { return s.speechDetected }

// SpeechStartedAt returns the start of the current speech span. ok is false
// when no speech is in progress.
func (s *Session) SpeechStartedAt() (t time.Time, ok bool) {
	return s.speechStartedAt, s.speechDetected
}

// Reset implements [vad.SessionHandle].
func (s *Session) Reset() {
	s.speechDetected = false
	s.speechStartedAt = time.Time{}
	s.silencePending = false
	s.silenceSince = time.Time{}
}

// Close implements [vad.SessionHandle].
func (s *Session) Close() error {
	s.Reset()
	s.closed = true
	return nil
}

// end classifies the speech span [speechStartedAt, endedAt) and clears the
// session.
func (s *Session) end(endedAt time.Time) vad.Event {
	d := endedAt.Sub(s.speechStartedAt)
	s.Reset()
	if d >= s.cfg.MinUtterance {
		return vad.EventSpeechEnded
	}
	return vad.EventSpeechEndedTooShort
}
