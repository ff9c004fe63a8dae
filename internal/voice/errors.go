package voice

import (
	"errors"
	"fmt"
)

// ErrorKind classifies session errors.
type ErrorKind int

const (
	// ConfigurationMissing: a credential required by a stage is absent.
	ConfigurationMissing ErrorKind = iota + 1
	// CaptureFailure: the audio device could not be opened or failed.
	CaptureFailure
	// NetworkFailure: a provider call failed or returned unusable data.
	NetworkFailure
	// PlaybackFailure: the synthesized reply could not be played.
	PlaybackFailure
	// EmptyTranscript: the utterance contained no words. Silent.
	EmptyTranscript
	// TooShortUtterance: speech was shorter than the minimum. Silent.
	TooShortUtterance
)

// String returns the snake_case kind name used in logs and metrics.
func (k ErrorKind) String() string {
	switch k {
	case ConfigurationMissing:
		return "configuration_missing"
	case CaptureFailure:
		return "capture_failure"
	case NetworkFailure:
		return "network_failure"
	case PlaybackFailure:
		return "playback_failure"
	case EmptyTranscript:
		return "empty_transcript"
	case TooShortUtterance:
		return "too_short_utterance"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Silent reports whether errors of kind k are discards that never reach the
// user.
func (k ErrorKind) Silent() bool {
	return k == EmptyTranscript || k == TooShortUtterance
}

// Sentinels for errors.Is. An *Error matches the sentinel of its kind.
var (
	ErrConfigurationMissing = &Error{Kind: ConfigurationMissing}
	ErrCaptureFailure       = &Error{Kind: CaptureFailure}
	ErrNetworkFailure       = &Error{Kind: NetworkFailure}
	ErrPlaybackFailure      = &Error{Kind: PlaybackFailure}
	ErrEmptyTranscript      = &Error{Kind: EmptyTranscript}
	ErrTooShortUtterance    = &Error{Kind: TooShortUtterance}
)

// ErrNotRunning is returned by commands sent to a controller whose Run loop
// is not active.
var ErrNotRunning = errors.New("voice: controller is not running")

// Error is a classified session error.
type Error struct {
	Kind ErrorKind

	// Stage names the pipeline stage or activity that failed ("capture",
	// "transcribe", "dispatch", "speak").
	Stage string

	// Message is the user-facing text. When empty the cause is shown.
	Message string

	// Err is the underlying cause.
	Err error
}

func newError(kind ErrorKind, stage, msg string, cause error) *Error {
	return &Error{Kind: kind, Stage: stage, Message: msg, Err: cause}
}

func (e *Error) Error() string {
	var s string
	switch {
	case e.Stage != "":
		s = "voice: " + e.Stage + ": " + e.Kind.String()
	default:
		s = "voice: " + e.Kind.String()
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Stage == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Silent reports whether the error is a discard rather than a failure.
func (e *Error) Silent() bool { return e.Kind.Silent() }

// UserMessage returns the text to show the user.
func (e *Error) UserMessage() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}
