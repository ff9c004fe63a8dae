package vad

// Event is a speech-boundary decision produced by a [SessionHandle].
type Event int

const (
	// EventNone means the sample did not change the speech state.
	EventNone Event = iota

	// EventSpeechStarted is emitted on the first above-threshold sample.
	EventSpeechStarted

	// EventSpeechEnded is emitted when speech that lasted at least the
	// minimum utterance duration is followed by the full silence debounce.
	EventSpeechEnded

	// EventSpeechEndedTooShort is emitted instead of [EventSpeechEnded] when
	// the speech was shorter than the minimum utterance duration. It is a
	// discard, not an utterance.
	EventSpeechEndedTooShort
)

// String returns the human-readable name of the event.
func (e Event) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventSpeechStarted:
		return "speech_started"
	case EventSpeechEnded:
		return "speech_ended"
	case EventSpeechEndedTooShort:
		return "speech_ended_too_short"
	default:
		return "unknown"
	}
}

// Ended reports whether e terminates a speech span.
func (e Event) Ended() bool {
	return e == EventSpeechEnded || e == EventSpeechEndedTooShort
}
