package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the exchanges table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS ensotalk_exchanges (
    id            UUID PRIMARY KEY,
    started_at    TIMESTAMPTZ NOT NULL,
    mode          TEXT NOT NULL DEFAULT '',
    transcript    TEXT NOT NULL DEFAULT '',
    reply         TEXT NOT NULL DEFAULT '',
    error_kind    TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    stt_ms        BIGINT NOT NULL DEFAULT 0,
    llm_ms        BIGINT NOT NULL DEFAULT 0,
    tts_ms        BIGINT NOT NULL DEFAULT 0,
    playback_ms   BIGINT NOT NULL DEFAULT 0,
    total_ms      BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_ensotalk_exchanges_started ON ensotalk_exchanges(started_at DESC);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] on the given connection or pool.
// Call [PostgresStore.Migrate] before first use.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("journal: migrate: %w", err)
	}
	return nil
}

// Record implements [Store].
func (s *PostgresStore) Record(ctx context.Context, e Exchange) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	const query = `
		INSERT INTO ensotalk_exchanges (
			id, started_at, mode, transcript, reply, error_kind, error_message,
			stt_ms, llm_ms, tts_ms, playback_ms, total_ms
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`

	_, err := s.db.Exec(ctx, query,
		e.ID, e.StartedAt, e.Mode, e.Transcript, e.Reply, e.ErrorKind, e.ErrorMessage,
		e.STTLatency.Milliseconds(), e.LLMLatency.Milliseconds(), e.TTSLatency.Milliseconds(),
		e.PlaybackLatency.Milliseconds(), e.Total.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("journal: record %s: %w", e.ID, err)
	}
	return nil
}

// Recent implements [Store].
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Exchange, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `
		SELECT id, started_at, mode, transcript, reply, error_kind, error_message,
		       stt_ms, llm_ms, tts_ms, playback_ms, total_ms
		FROM ensotalk_exchanges
		ORDER BY started_at DESC
		LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	defer rows.Close()

	var out []Exchange
	for rows.Next() {
		var e Exchange
		var sttMS, llmMS, ttsMS, playMS, totalMS int64
		if err := rows.Scan(
			&e.ID, &e.StartedAt, &e.Mode, &e.Transcript, &e.Reply, &e.ErrorKind, &e.ErrorMessage,
			&sttMS, &llmMS, &ttsMS, &playMS, &totalMS,
		); err != nil {
			return nil, fmt.Errorf("journal: scan exchange: %w", err)
		}
		e.STTLatency = ms(sttMS)
		e.LLMLatency = ms(llmMS)
		e.TTSLatency = ms(ttsMS)
		e.PlaybackLatency = ms(playMS)
		e.Total = ms(totalMS)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterate exchanges: %w", err)
	}
	return out, nil
}

func ms(n int64) time.Duration { return time.Duration(n) * time.Millisecond }
