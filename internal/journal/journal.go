// Package journal records one row per voice exchange: what was heard, what
// was answered, how long each stage took and how it ended. It backs the
// "history" console command and offline latency analysis.
package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Exchange is one pipeline run.
type Exchange struct {
	ID        uuid.UUID
	StartedAt time.Time
	Mode      string

	Transcript string
	Reply      string

	// ErrorKind is empty for a successful run.
	ErrorKind    string
	ErrorMessage string

	STTLatency      time.Duration
	LLMLatency      time.Duration
	TTSLatency      time.Duration
	PlaybackLatency time.Duration
	Total           time.Duration
}

// Store persists exchanges.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Record appends e. A zero ID is replaced with a new random one.
	Record(ctx context.Context, e Exchange) error

	// Recent returns up to limit exchanges, newest first.
	Recent(ctx context.Context, limit int) ([]Exchange, error)
}
