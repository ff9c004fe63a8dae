package energy_test

import (
	"testing"
	"time"

	"github.com/MrWong99/ensotalk/pkg/provider/vad"
	"github.com/MrWong99/ensotalk/pkg/provider/vad/energy"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type emitted struct {
	event vad.Event
	at    time.Duration
}

func newSession(t *testing.T) vad.SessionHandle {
	t.Helper()
	s, err := energy.New().NewSession(vad.DefaultConfig())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// feed plays levels into s at the default sample interval and returns every
// non-empty event with its offset from t0.
func feed(s vad.SessionHandle, levels []float64) []emitted {
	var out []emitted
	for i, l := range levels {
		at := time.Duration(i) * vad.DefaultSampleInterval
		if ev := s.Observe(l, t0.Add(at)); ev != vad.EventNone {
			out = append(out, emitted{event: ev, at: at})
		}
	}
	return out
}

func repeat(level float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = level
	}
	return out
}

func concat(parts ...[]float64) []float64 {
	var out []float64
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestSession_AcceptedUtterance(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	levels := concat(repeat(-50, 2), repeat(-10, 6), repeat(-50, 16))
	got := feed(s, levels)

	want := []emitted{
		{event: vad.EventSpeechStarted, at: 200 * time.Millisecond},
		{event: vad.EventSpeechEnded, at: 2300 * time.Millisecond},
	}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if s.SpeechDetected() {
		t.Error("SpeechDetected() = true after SpeechEnded, want false")
	}
}

func TestSession_TooShortUtterance(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	levels := concat(repeat(-50, 2), repeat(-10, 3), repeat(-50, 16))
	got := feed(s, levels)

	if len(got) != 2 {
		t.Fatalf("events = %v, want exactly 2", got)
	}
	if got[0].event != vad.EventSpeechStarted {
		t.Errorf("first event = %v, want %v", got[0].event, vad.EventSpeechStarted)
	}
	if got[1].event != vad.EventSpeechEndedTooShort {
		t.Errorf("second event = %v, want %v", got[1].event, vad.EventSpeechEndedTooShort)
	}
	if got[1].at != 2000*time.Millisecond {
		t.Errorf("too-short decision at %v, want 2s", got[1].at)
	}
}

func TestSession_DebounceCancelledBySpeech(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	// 1.4s of silence, then speech again, then 1.4s more silence: the
	// debounce never completes.
	levels := concat(repeat(-10, 6), repeat(-50, 14), repeat(-10, 2), repeat(-50, 14))
	got := feed(s, levels)

	if len(got) != 1 || got[0].event != vad.EventSpeechStarted {
		t.Fatalf("events = %v, want a single SpeechStarted", got)
	}
	if !s.SpeechDetected() {
		t.Error("SpeechDetected() = false, want true while debounce is pending")
	}
}

func TestSession_ExpireHonoursDeadline(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	s.Observe(-10, t0)
	s.Observe(-10, t0.Add(700*time.Millisecond))
	s.Observe(-60, t0.Add(800*time.Millisecond))

	deadline, ok := s.Deadline()
	if !ok {
		t.Fatal("Deadline() ok = false, want true after silence onset")
	}
	if want := t0.Add(2300 * time.Millisecond); !deadline.Equal(want) {
		t.Errorf("Deadline() = %v, want %v", deadline, want)
	}

	if ev := s.Expire(deadline.Add(-time.Millisecond)); ev != vad.EventNone {
		t.Errorf("Expire before deadline = %v, want none", ev)
	}
	if ev := s.Expire(deadline); ev != vad.EventSpeechEnded {
		t.Errorf("Expire at deadline = %v, want %v", ev, vad.EventSpeechEnded)
	}
	if _, ok := s.Deadline(); ok {
		t.Error("Deadline() ok = true after expiry, want false")
	}
}

func TestSession_ForceEnd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		samples []float64
		forceAt time.Duration
		want    vad.Event
	}{
		{
			name:    "long speech",
			samples: repeat(-10, 8),
			forceAt: 800 * time.Millisecond,
			want:    vad.EventSpeechEnded,
		},
		{
			name:    "short speech",
			samples: repeat(-10, 2),
			forceAt: 300 * time.Millisecond,
			want:    vad.EventSpeechEndedTooShort,
		},
		{
			name:    "measured to silence onset",
			samples: concat(repeat(-10, 3), repeat(-50, 10)),
			forceAt: 1300 * time.Millisecond,
			want:    vad.EventSpeechEndedTooShort,
		},
		{
			name:    "no speech",
			samples: repeat(-50, 5),
			forceAt: 500 * time.Millisecond,
			want:    vad.EventNone,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newSession(t)
			feed(s, tc.samples)
			if got := s.ForceEnd(t0.Add(tc.forceAt)); got != tc.want {
				t.Errorf("ForceEnd() = %v, want %v", got, tc.want)
			}
			if s.SpeechDetected() {
				t.Error("SpeechDetected() = true after ForceEnd, want false")
			}
		})
	}
}

func TestSession_SilenceWithoutSpeechIsIgnored(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	if got := feed(s, repeat(-80, 30)); len(got) != 0 {
		t.Errorf("events = %v, want none", got)
	}
	if _, ok := s.Deadline(); ok {
		t.Error("Deadline() ok = true without speech, want false")
	}
}

func TestSession_ThresholdIsExclusive(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	if ev := s.Observe(vad.DefaultThresholdDB, t0); ev != vad.EventNone {
		t.Errorf("Observe(threshold) = %v, want none", ev)
	}
	if ev := s.Observe(vad.DefaultThresholdDB+0.1, t0); ev != vad.EventSpeechStarted {
		t.Errorf("Observe(threshold+0.1) = %v, want %v", ev, vad.EventSpeechStarted)
	}
}

func TestSession_ResetAndClose(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	s.Observe(-10, t0)
	s.Reset()
	if s.SpeechDetected() {
		t.Fatal("SpeechDetected() = true after Reset")
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if ev := s.Observe(-10, t0); ev != vad.EventNone {
		t.Errorf("Observe after Close = %v, want none", ev)
	}
}

func TestSession_SpeechStartedAt(t *testing.T) {
	t.Parallel()

	s := newSession(t).(*energy.Session)
	if _, ok := s.SpeechStartedAt(); ok {
		t.Fatal("SpeechStartedAt ok = true before speech")
	}
	s.Observe(-5, t0.Add(time.Second))
	at, ok := s.SpeechStartedAt()
	if !ok || !at.Equal(t0.Add(time.Second)) {
		t.Errorf("SpeechStartedAt() = %v, %v; want %v, true", at, ok, t0.Add(time.Second))
	}
}

func TestEngine_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  vad.Config
	}{
		{name: "positive threshold", cfg: vad.Config{ThresholdDB: 3, SilenceDebounce: time.Second, SampleInterval: time.Millisecond}},
		{name: "zero debounce", cfg: vad.Config{ThresholdDB: -40, SampleInterval: time.Millisecond}},
		{name: "negative min", cfg: vad.Config{ThresholdDB: -40, SilenceDebounce: time.Second, MinUtterance: -1, SampleInterval: time.Millisecond}},
		{name: "zero interval", cfg: vad.Config{ThresholdDB: -40, SilenceDebounce: time.Second}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := energy.New().NewSession(tc.cfg); err == nil {
				t.Error("NewSession: expected error, got nil")
			}
		})
	}
}
