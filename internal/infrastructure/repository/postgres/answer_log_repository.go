package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"datanav/internal/core/domain"
)

// AnswerLogRepository persists answer analytics events consumed from the
// queue. Inserts are idempotent on event_id so a replayed event never
// doubles a row, while cache-hit servings of the same answer each keep
// their own row.
type AnswerLogRepository struct {
	db *sql.DB
}

func NewAnswerLogRepository(db *sql.DB) *AnswerLogRepository {
	return &AnswerLogRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *AnswerLogRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026021003)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS answer_events (
	event_id TEXT PRIMARY KEY,
	answer_id TEXT NOT NULL,
	query_id TEXT NOT NULL,
	mode TEXT NOT NULL,
	provider TEXT NOT NULL DEFAULT '',
	cache_hit BOOLEAN NOT NULL,
	partial_retrieval BOOLEAN NOT NULL,
	latency_ms BIGINT NOT NULL,
	citation_count INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_answer_events_created_at ON answer_events(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_answer_events_answer_id ON answer_events(answer_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *AnswerLogRepository) RecordAnswerEvent(ctx context.Context, ev domain.AnswerEvent) error {
	if ev.EventID == "" {
		return fmt.Errorf("record answer event: empty event id")
	}
	if ev.AnswerID == "" {
		return fmt.Errorf("record answer event: empty answer id")
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO answer_events (
	event_id, answer_id, query_id, mode, provider, cache_hit, partial_retrieval, latency_ms, citation_count, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (event_id) DO NOTHING
`,
		ev.EventID, ev.AnswerID, ev.QueryID, string(ev.Mode), ev.Provider, ev.CacheHit,
		ev.PartialRetrieval, ev.LatencyMillis, ev.CitationCount, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert answer event: %w", err)
	}
	return nil
}
