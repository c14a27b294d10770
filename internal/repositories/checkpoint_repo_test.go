package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/prudhvinik1/syncboard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testState(points ...models.Point) models.CanvasState {
	return models.CanvasState{Strokes: []models.Stroke{{ID: "a", Points: points}}}
}

// TestCheckpointRepository_Save_Create tests storing the first checkpoint
func TestCheckpointRepository_Save_Create(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresCheckpointRepository(pool)
	ctx := context.Background()

	sessionID := uuid.New()
	defer cleanupTestBoard(t, pool, ctx, sessionID)

	// ACT
	cp := models.NewCheckpoint(sessionID, 5, testState(models.Point{X: 1, Y: 2}))
	err := repo.Save(ctx, &cp)

	// ASSERT: Round-trips state and digest
	require.NoError(t, err)
	assert.False(t, cp.CreatedAt.IsZero())

	stored, err := repo.Get(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stored.SequenceNumber)
	assert.Equal(t, cp.Digest, stored.Digest)
	assert.True(t, cp.State.Equal(stored.State))
	assert.Equal(t, stored.State.Digest(), stored.Digest)
}

// TestCheckpointRepository_Save_Rules tests newer-wins, stale and mismatch
func TestCheckpointRepository_Save_Rules(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresCheckpointRepository(pool)
	ctx := context.Background()

	sessionID := uuid.New()
	defer cleanupTestBoard(t, pool, ctx, sessionID)

	first := models.NewCheckpoint(sessionID, 5, testState(models.Point{X: 1, Y: 1}))
	require.NoError(t, repo.Save(ctx, &first))

	// Same sequence, same digest: accepted, nothing changes
	again := models.NewCheckpoint(sessionID, 5, testState(models.Point{X: 1, Y: 1}))
	assert.NoError(t, repo.Save(ctx, &again))

	// Same sequence, different digest: divergence
	diverged := models.NewCheckpoint(sessionID, 5, testState(models.Point{X: 9, Y: 9}))
	assert.ErrorIs(t, repo.Save(ctx, &diverged), models.ErrCheckpointMismatch)

	// Older: stale
	older := models.NewCheckpoint(sessionID, 4, testState())
	assert.ErrorIs(t, repo.Save(ctx, &older), models.ErrStaleCheckpoint)

	// Newer: replaces
	newer := models.NewCheckpoint(sessionID, 8, testState(models.Point{X: 2, Y: 2}))
	require.NoError(t, repo.Save(ctx, &newer))

	stored, err := repo.Get(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(8), stored.SequenceNumber)
	assert.Equal(t, newer.Digest, stored.Digest)
}

func TestCheckpointRepository_NotFound(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresCheckpointRepository(pool)
	ctx := context.Background()

	_, err := repo.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, uuid.New()), ErrNotFound)
}
