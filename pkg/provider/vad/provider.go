// Package vad defines the Engine interface for voice activity detection.
//
// A VAD engine turns a periodic stream of audio-level samples into discrete
// speech-boundary decisions. Each [SessionHandle] tracks one capture: whether
// speech is in progress, when it started, and whether an end-of-speech
// debounce is pending.
//
// Sessions are pure logic and never start goroutines or timers of their own.
// The pending debounce is exposed through [SessionHandle.Deadline]; the caller
// owns the timer and reports its expiry via [SessionHandle.Expire]. This keeps
// every state change on the caller's goroutine.
//
// A SessionHandle must not be shared between goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

import (
	"errors"
	"fmt"
	"time"
)

// Default detector parameters.
const (
	DefaultThresholdDB     = -40.0
	DefaultSilenceDebounce = 1500 * time.Millisecond
	DefaultMinUtterance    = 500 * time.Millisecond
	DefaultSampleInterval  = 100 * time.Millisecond
)

// Config holds the parameters for a VAD session.
type Config struct {
	// ThresholdDB is the level at or below which audio counts as silence.
	// Levels are in dBFS, nominally -160..0.
	ThresholdDB float64

	// SilenceDebounce is how long the level must stay at or below
	// ThresholdDB before speech is considered ended.
	SilenceDebounce time.Duration

	// MinUtterance is the minimum speech duration for an utterance to be
	// accepted. Shorter speech is reported as [EventSpeechEndedTooShort].
	MinUtterance time.Duration

	// SampleInterval is the cadence at which the caller samples the level.
	// The engine itself does not use it; it is carried here so the sampling
	// loop and the detector are configured from one place.
	SampleInterval time.Duration
}

// DefaultConfig returns the stock detector configuration.
func DefaultConfig() Config {
	return Config{
		ThresholdDB:     DefaultThresholdDB,
		SilenceDebounce: DefaultSilenceDebounce,
		MinUtterance:    DefaultMinUtterance,
		SampleInterval:  DefaultSampleInterval,
	}
}

// Validate reports every invalid field of c.
func (c Config) Validate() error {
	var errs []error
	if c.ThresholdDB > 0 || c.ThresholdDB < -160 {
		errs = append(errs, fmt.Errorf("vad: threshold %.1f dB is out of range [-160, 0]", c.ThresholdDB))
	}
	if c.SilenceDebounce <= 0 {
		errs = append(errs, fmt.Errorf("vad: silence debounce must be positive, got %s", c.SilenceDebounce))
	}
	if c.MinUtterance < 0 {
		errs = append(errs, fmt.Errorf("vad: min utterance must not be negative, got %s", c.MinUtterance))
	}
	if c.SampleInterval <= 0 {
		errs = append(errs, fmt.Errorf("vad: sample interval must be positive, got %s", c.SampleInterval))
	}
	return errors.Join(errs...)
}

// SessionHandle is the per-capture detector state.
type SessionHandle interface {
	// Observe feeds one level sample taken at now and returns the resulting
	// event, or [EventNone]. A sample that arrives after the pending
	// debounce deadline also completes the end-of-speech decision.
	Observe(levelDB float64, now time.Time) Event

	// Expire completes a pending end-of-speech decision if the debounce
	// deadline has passed at now. It returns [EventNone] when nothing is
	// pending or the deadline has not been reached.
	Expire(now time.Time) Event

	// ForceEnd ends the current speech immediately, bypassing the debounce
	// wait. The minimum-duration rule still applies. Returns [EventNone]
	// when no speech is in progress.
	ForceEnd(now time.Time) Event

	// Deadline returns the instant at which the pending debounce fires.
	// ok is false when no debounce is pending.
	Deadline() (deadline time.Time, ok bool)

	// SpeechDetected reports whether speech is currently in progress.
	SpeechDetected() bool

	// Reset discards all detection state without closing the session.
	Reset()

	// Close releases the session. Calling Close more than once is safe.
	Close() error
}

// Engine is the factory for VAD sessions.
//
// Implementations must be safe for concurrent use.
type Engine interface {
	// NewSession creates a session with the given configuration. It returns
	// an error if cfg is invalid.
	NewSession(cfg Config) (SessionHandle, error)
}
