package voice

import (
	"fmt"
	"strings"
	"time"
)

// State is the session state. Exactly one is current at any time and only
// the controller loop changes it.
type State int

const (
	// Idle: nothing is captured and no pipeline runs.
	Idle State = iota
	// Listening: waiting for speech in always-listening mode. A metering
	// capture may be open to feed the level signal.
	Listening
	// Recording: an utterance capture is open.
	Recording
	// Transcribing: the captured utterance is being transcribed.
	Transcribing
	// Dispatching: the transcript is with the chat backend.
	Dispatching
	// Speaking: the reply is being synthesized and played.
	Speaking
)

var stateNames = [...]string{"idle", "listening", "recording", "transcribing", "dispatching", "speaking"}

// String returns the lower-case state name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Busy reports whether a pipeline is running in s.
func (s State) Busy() bool {
	return s == Transcribing || s == Dispatching || s == Speaking
}

// ListenMode selects how utterances are captured.
type ListenMode int

const (
	// PushToTalk captures one utterance per Toggle and returns to Idle.
	PushToTalk ListenMode = iota
	// AlwaysListening re-arms listening after every utterance.
	AlwaysListening
)

// String returns the mode name as used in configuration files.
func (m ListenMode) String() string {
	switch m {
	case PushToTalk:
		return "push_to_talk"
	case AlwaysListening:
		return "always_listening"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseListenMode parses a mode name. It accepts the configuration names and
// the short forms "ptt" and "always".
func ParseListenMode(s string) (ListenMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "push_to_talk", "ptt", "push-to-talk":
		return PushToTalk, nil
	case "always_listening", "always", "always-listening":
		return AlwaysListening, nil
	default:
		return 0, fmt.Errorf("voice: unknown listen mode %q", s)
	}
}

// Snapshot is the observable state of the session at one instant.
type Snapshot struct {
	State State
	Mode  ListenMode

	// Transcript is the last transcript; Reply is the last reply text.
	Transcript string
	Reply      string

	// Err is the last user-visible error. It is cleared when the next stage
	// succeeds. Silent kinds never appear here.
	Err *Error

	// Level is the latest audio level in dBFS while a capture is open.
	Level float64

	At time.Time
}

// ErrMessage returns the user-facing error message, or "".
func (s Snapshot) ErrMessage() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.UserMessage()
}
