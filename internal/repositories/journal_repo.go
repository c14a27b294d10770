package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/syncboard/internal/models"
)

type PostgresJournalRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresJournalRepository(pool *pgxpool.Pool) *PostgresJournalRepository {
	return &PostgresJournalRepository{pool: pool}
}

// Append sequences and stores an event in one transaction. The row lock on
// board_sequences serializes appends to the same session, so sequence
// numbers are gap-free and commit in order.
func (r *PostgresJournalRepository) Append(ctx context.Context, event *models.SyncEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// 1. Claim the next sequence number
	var seq int64
	err = tx.QueryRow(ctx,
		`INSERT INTO board_sequences (session_id, last_sequence)
		 VALUES ($1, 1)
		 ON CONFLICT (session_id)
		 DO UPDATE SET last_sequence = board_sequences.last_sequence + 1
		 RETURNING last_sequence`,
		event.SessionID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("failed to claim sequence number: %w", err)
	}

	// 2. Store the event at that position
	err = tx.QueryRow(ctx,
		`INSERT INTO sync_events (session_id, replica_id, event_type, sequence_number, payload)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		event.SessionID,
		event.ReplicaID,
		string(event.EventType),
		seq,
		[]byte(event.Payload),
	).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit event: %w", err)
	}

	event.SequenceNumber = seq
	return nil
}

func (r *PostgresJournalRepository) GetSinceSequence(ctx context.Context, sessionID uuid.UUID, sequenceNumber int64) ([]*models.SyncEvent, error) {
	query := `SELECT id, session_id, replica_id, event_type, sequence_number, payload, created_at
	          FROM sync_events
	          WHERE session_id = $1 AND sequence_number > $2
	          ORDER BY sequence_number ASC`

	rows, err := r.pool.Query(ctx, query, sessionID, sequenceNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []*models.SyncEvent{}
	for rows.Next() {
		var (
			ev      models.SyncEvent
			kind    string
			payload []byte
		)
		err := rows.Scan(
			&ev.ID,
			&ev.SessionID,
			&ev.ReplicaID,
			&kind,
			&ev.SequenceNumber,
			&payload,
			&ev.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.EventType = models.EventKind(kind)
		ev.Payload = payload
		events = append(events, &ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

func (r *PostgresJournalRepository) LatestSequence(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	var seq int64
	err := r.pool.QueryRow(ctx,
		`SELECT last_sequence FROM board_sequences WHERE session_id = $1`,
		sessionID,
	).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get latest sequence: %w", err)
	}
	return seq, nil
}

func (r *PostgresJournalRepository) Sessions(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT session_id FROM board_sequences`)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal sessions: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return ids, nil
}

func (r *PostgresJournalRepository) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM sync_events WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM board_sequences WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete sequence: %w", err)
	}

	return tx.Commit(ctx)
}
