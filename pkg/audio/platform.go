// Package audio defines the interfaces and helpers for local audio capture and
// playback within EnsoTalk.
//
// The primary abstractions are:
//
//   - [Recorder] starts a [Capture], a live microphone recording that exposes
//     its instantaneous signal level and yields an [Artifact] when stopped.
//   - [Player] plays a buffer of encoded audio and returns a [Playback]
//     handle that reports whether sound is still coming out.
//   - [Platform] bundles both for a single audio device.
//
// Implementations are provided by backend packages (e.g., audio/local). The
// interfaces are intentionally narrow to keep the session controller
// decoupled from device details.
package audio

import (
	"context"
	"time"
)

// MinLevelDB is the level reported for digital silence.
const MinLevelDB = -160.0

// Capture is a live recording. It is created by [Recorder.StartCapture] and
// is owned by exactly one caller until [Capture.Stop] is called.
//
// Implementations must be safe for concurrent use.
type Capture interface {
	// LevelDB returns the most recent signal level in dBFS, nominally in the
	// range [MinLevelDB, 0].
	LevelDB() float64

	// Active reports whether the capture is still recording. A capture that
	// failed underneath its owner reports false.
	Active() bool

	// Stop ends the recording and returns the captured audio. The caller owns
	// the returned Artifact and must release it. Calling Stop more than once
	// returns an error.
	Stop() (Artifact, error)
}

// Trimmer is implemented by captures that can drop audio recorded before a
// point of interest. Callers type-assert for it; it is optional.
type Trimmer interface {
	// Trim discards captured audio older than keep.
	Trim(keep time.Duration)
}

// Retainer is implemented by captures that can bound how much audio they
// hold. Callers type-assert for it; it is optional.
type Retainer interface {
	// Retain keeps only the most recent window of audio from now on. A
	// window of zero or less lifts the bound.
	Retain(window time.Duration)
}

// Recorder opens captures on an input device.
type Recorder interface {
	// StartCapture begins a new recording. ctx bounds the lifetime of the
	// underlying device session; cancelling it stops the capture.
	StartCapture(ctx context.Context) (Capture, error)
}

// Playback is an in-progress playback started by [Player.Play].
type Playback interface {
	// Playing reports whether audio is still being played.
	Playing() bool

	// Close stops playback if it is still running and releases any temporary
	// resources. Calling Close more than once is safe.
	Close() error
}

// Player plays encoded audio on an output device.
type Player interface {
	// Play starts playing data, which may be any container the backend
	// supports (WAV, MP3). Play returns as soon as playback has started.
	Play(ctx context.Context, data []byte) (Playback, error)
}

// Platform is a single audio device with both input and output.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	Recorder
	Player
}
