package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/syncboard/internal/models"
)

type PostgresCheckpointRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresCheckpointRepository(pool *pgxpool.Pool) *PostgresCheckpointRepository {
	return &PostgresCheckpointRepository{pool: pool}
}

func (r *PostgresCheckpointRepository) Get(ctx context.Context, sessionID uuid.UUID) (*models.Checkpoint, error) {
	return scanCheckpoint(r.pool.QueryRow(ctx,
		`SELECT session_id, sequence_number, state, digest, created_at
		 FROM checkpoints
		 WHERE session_id = $1`,
		sessionID))
}

// Save replaces the stored checkpoint when cp is newer. The current row is
// locked while comparing, so concurrent offers are decided one at a time.
func (r *PostgresCheckpointRepository) Save(ctx context.Context, cp *models.Checkpoint) error {
	state, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint state: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// 1. Compare against what is stored
	existing, err := scanCheckpoint(tx.QueryRow(ctx,
		`SELECT session_id, sequence_number, state, digest, created_at
		 FROM checkpoints
		 WHERE session_id = $1
		 FOR UPDATE`,
		cp.SessionID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if err := existing.Accepts(*cp); err != nil {
		return err
	}
	if existing != nil && existing.SequenceNumber == cp.SequenceNumber {
		// same state, nothing to write
		cp.CreatedAt = existing.CreatedAt
		return nil
	}

	// 2. Upsert
	err = tx.QueryRow(ctx,
		`INSERT INTO checkpoints (session_id, sequence_number, state, digest)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id)
		 DO UPDATE SET sequence_number = EXCLUDED.sequence_number,
		               state = EXCLUDED.state,
		               digest = EXCLUDED.digest,
		               updated_at = NOW()
		 RETURNING updated_at`,
		cp.SessionID,
		cp.SequenceNumber,
		state,
		int64(cp.Digest),
	).Scan(&cp.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return nil
}

func (r *PostgresCheckpointRepository) Delete(ctx context.Context, sessionID uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM checkpoints WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCheckpoint(row pgx.Row) (*models.Checkpoint, error) {
	var (
		cp     models.Checkpoint
		state  []byte
		digest int64
	)
	err := row.Scan(&cp.SessionID, &cp.SequenceNumber, &state, &digest, &cp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	if err := json.Unmarshal(state, &cp.State); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint state: %w", err)
	}
	// stored as BIGINT; the bit pattern round-trips
	cp.Digest = uint64(digest)
	return &cp, nil
}
