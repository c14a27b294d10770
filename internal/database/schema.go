package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema holds one sequence counter, the event journal and the latest
// checkpoint per whiteboard session. Rows live only as long as the session.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS board_sequences (
		session_id    UUID PRIMARY KEY,
		last_sequence BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS sync_events (
		id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		session_id      UUID NOT NULL,
		replica_id      UUID NOT NULL,
		event_type      TEXT NOT NULL,
		sequence_number BIGINT NOT NULL,
		payload         JSONB NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (session_id, sequence_number)
	)`,
	`CREATE TABLE IF NOT EXISTS checkpoints (
		session_id      UUID PRIMARY KEY,
		sequence_number BIGINT NOT NULL,
		state           JSONB NOT NULL,
		digest          BIGINT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// EnsureSchema creates the relay tables if they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
