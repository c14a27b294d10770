package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/syncboard/internal/models"
	"github.com/prudhvinik1/syncboard/internal/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	service     *RelayService
	sessions    *testkit.SessionRepository
	presence    *testkit.PresenceRepository
	journal     *testkit.JournalRepository
	checkpoints *testkit.CheckpointRepository
	broadcaster *testkit.Broadcaster
}

func newFixture() *fixture {
	f := &fixture{
		sessions:    testkit.NewSessionRepository(),
		presence:    testkit.NewPresenceRepository(),
		journal:     testkit.NewJournalRepository(),
		checkpoints: testkit.NewCheckpointRepository(),
		broadcaster: testkit.NewBroadcaster(),
	}
	f.service = NewRelayService(f.sessions, f.presence, f.journal, f.checkpoints, f.broadcaster, time.Hour)
	return f
}

func drawPayload(t *testing.T, points ...models.Point) []byte {
	t.Helper()
	payload, err := json.Marshal(models.DrawEvent{StrokeID: "s1", Points: points})
	require.NoError(t, err)
	return payload
}

func TestRelayService_CreateAndGetSession(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// ACT
	session, err := f.service.CreateSession(ctx, "  standup  ")

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, "standup", session.Name)
	assert.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, time.Minute)

	info, err := f.service.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, info.ID)
	assert.Empty(t, info.Online)

	sessions, err := f.service.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	_, err = f.service.GetSession(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRelayService_CreateSession_InvalidName(t *testing.T) {
	f := newFixture()

	_, err := f.service.CreateSession(context.Background(), "   ")

	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestRelayService_PublishAssignsTotalOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	session, err := f.service.CreateSession(ctx, "board")
	require.NoError(t, err)

	events, cancel, err := f.service.Subscribe(ctx, session.ID)
	require.NoError(t, err)
	defer cancel()

	// ACT: Two replicas publish
	first, err := f.service.Publish(ctx, session.ID, uuid.New(), models.KindDraw, drawPayload(t, models.Point{X: 1, Y: 1}))
	require.NoError(t, err)
	second, err := f.service.Publish(ctx, session.ID, uuid.New(), models.KindClear, []byte(`{}`))
	require.NoError(t, err)

	// ASSERT: Numbered in order and broadcast
	assert.Equal(t, int64(1), first.SequenceNumber)
	assert.Equal(t, int64(2), second.SequenceNumber)
	assert.Equal(t, int64(1), (<-events).SequenceNumber)
	assert.Equal(t, int64(2), (<-events).SequenceNumber)

	since, err := f.service.EventsSince(ctx, session.ID, 1)
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, models.KindClear, since[0].EventType)

	head, err := f.service.Head(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), head)
}

func TestRelayService_PublishRejectsInvalidEvents(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	session, err := f.service.CreateSession(ctx, "board")
	require.NoError(t, err)

	tests := []struct {
		name    string
		kind    models.EventKind
		payload []byte
	}{
		{"derived kind", models.KindStateChanged, []byte(`{}`)},
		{"unknown kind", "erase", []byte(`{}`)},
		{"malformed draw", models.KindDraw, []byte(`{"points":`)},
		{"empty draw", models.KindDraw, []byte(`{"stroke_id":"s","points":[]}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Publish(ctx, session.ID, uuid.New(), tt.kind, tt.payload)
			assert.ErrorIs(t, err, ErrInvalidEvent)
		})
	}

	assert.Zero(t, f.journal.Len(session.ID), "nothing was sequenced")

	_, err = f.service.Publish(ctx, uuid.New(), uuid.New(), models.KindClear, nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRelayService_PublishCanonicalizesPayload(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	session, err := f.service.CreateSession(ctx, "board")
	require.NoError(t, err)

	ev, err := f.service.Publish(ctx, session.ID, uuid.New(), models.KindClear, []byte(`{"junk": true}`))

	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(ev.Payload))
}

func TestRelayService_PublishExtendsSession(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	session := &models.Session{ID: uuid.New(), Name: "b", ExpiresAt: time.Now().Add(time.Minute), CreatedAt: time.Now()}
	require.NoError(t, f.sessions.Create(ctx, session))

	_, err := f.service.Publish(ctx, session.ID, uuid.New(), models.KindClear, nil)
	require.NoError(t, err)

	stored, err := f.sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), stored.ExpiresAt, time.Minute)
}

func TestRelayService_JoinWelcome(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	session, err := f.service.CreateSession(ctx, "board")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := f.service.Publish(ctx, session.ID, uuid.New(), models.KindClear, nil)
		require.NoError(t, err)
	}

	// ARRANGE: A checkpoint at 2
	empty := models.CanvasState{}
	require.NoError(t, f.service.SaveCheckpoint(ctx, session.ID, models.NewCheckpoint(uuid.Nil, 2, empty)))

	// ACT
	replicaID := uuid.New()
	welcome, err := f.service.Join(ctx, session.ID, replicaID)

	// ASSERT: Checkpoint plus the tail, and the replica is online
	require.NoError(t, err)
	require.NotNil(t, welcome.Checkpoint)
	assert.Equal(t, int64(2), welcome.Checkpoint.SequenceNumber)
	assert.Equal(t, session.ID, welcome.Checkpoint.SessionID)
	require.Len(t, welcome.Events, 1)
	assert.Equal(t, int64(3), welcome.Events[0].SequenceNumber)

	info, err := f.service.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, info.Online, 1)
	assert.Equal(t, replicaID, info.Online[0].ReplicaID)

	// ACT: Leave
	require.NoError(t, f.service.Leave(ctx, session.ID, replicaID))
	info, err = f.service.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, info.Online)

	_, err = f.service.Join(ctx, uuid.New(), replicaID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRelayService_SaveCheckpointRules(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	session, err := f.service.CreateSession(ctx, "board")
	require.NoError(t, err)

	state := func(x float64) models.CanvasState {
		return models.CanvasState{Strokes: []models.Stroke{{ID: "a", Points: []models.Point{{X: x, Y: x}}}}}
	}

	require.NoError(t, f.service.SaveCheckpoint(ctx, session.ID, models.NewCheckpoint(session.ID, 4, state(1))))
	assert.NoError(t, f.service.SaveCheckpoint(ctx, session.ID, models.NewCheckpoint(session.ID, 4, state(1))), "agreeing replica")
	assert.ErrorIs(t, f.service.SaveCheckpoint(ctx, session.ID, models.NewCheckpoint(session.ID, 4, state(2))), models.ErrCheckpointMismatch)
	assert.ErrorIs(t, f.service.SaveCheckpoint(ctx, session.ID, models.NewCheckpoint(session.ID, 3, state(1))), models.ErrStaleCheckpoint)
	require.NoError(t, f.service.SaveCheckpoint(ctx, session.ID, models.NewCheckpoint(session.ID, 6, state(3))))

	forged := models.NewCheckpoint(session.ID, 9, state(1))
	forged.Digest++
	assert.ErrorIs(t, f.service.SaveCheckpoint(ctx, session.ID, forged), ErrInvalidCheckpoint)
	assert.ErrorIs(t, f.service.SaveCheckpoint(ctx, session.ID, models.NewCheckpoint(session.ID, 0, state(1))), ErrInvalidCheckpoint)

	stored, err := f.checkpoints.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), stored.SequenceNumber)
}

func TestRelayService_CloseSessionDropsEverything(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	session, err := f.service.CreateSession(ctx, "board")
	require.NoError(t, err)
	_, err = f.service.Join(ctx, session.ID, uuid.New())
	require.NoError(t, err)
	_, err = f.service.Publish(ctx, session.ID, uuid.New(), models.KindClear, nil)
	require.NoError(t, err)
	require.NoError(t, f.service.SaveCheckpoint(ctx, session.ID, models.NewCheckpoint(session.ID, 1, models.CanvasState{})))

	// ACT
	require.NoError(t, f.service.CloseSession(ctx, session.ID))

	// ASSERT
	_, err = f.service.GetSession(ctx, session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Zero(t, f.journal.Len(session.ID))
	_, err = f.checkpoints.Get(ctx, session.ID)
	assert.Error(t, err)
	online, err := f.presence.ListOnline(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, online)

	assert.ErrorIs(t, f.service.CloseSession(ctx, session.ID), ErrSessionNotFound)
}

func TestRelayService_ReapExpired(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	live, err := f.service.CreateSession(ctx, "live")
	require.NoError(t, err)
	gone, err := f.service.CreateSession(ctx, "gone")
	require.NoError(t, err)
	for _, id := range []uuid.UUID{live.ID, gone.ID} {
		_, err := f.service.Publish(ctx, id, uuid.New(), models.KindClear, nil)
		require.NoError(t, err)
	}

	// ARRANGE: One TTL runs out
	f.sessions.Expire(gone.ID)

	// ACT
	reaped, err := f.service.ReapExpired(ctx)

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)
	assert.Zero(t, f.journal.Len(gone.ID))
	assert.Equal(t, 1, f.journal.Len(live.ID))
}
