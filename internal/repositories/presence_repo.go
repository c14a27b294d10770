package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/syncboard/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	presenceKeyPrefix = "presence:"
	// DefaultPresenceTTL expires a replica that stopped answering pings.
	DefaultPresenceTTL = 60 * time.Second
)

type RedisPresenceRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisPresenceRepository(client *redis.Client, ttl time.Duration) *RedisPresenceRepository {
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	return &RedisPresenceRepository{client: client, ttl: ttl}
}

// SetPresence sets or refreshes the presence of a replica with automatic TTL.
// The relay calls it on join and on every pong.
func (r *RedisPresenceRepository) SetPresence(ctx context.Context, presence *models.Presence) error {
	presence.LastSeen = time.Now()
	if presence.Status == "" {
		presence.Status = string(models.StatusOnline)
	}

	data, err := json.Marshal(presence)
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, presenceKey(presence.SessionID, presence.ReplicaID), data, r.ttl)
		pipe.SAdd(ctx, replicasKey(presence.SessionID), presence.ReplicaID.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}

	return nil
}

func (r *RedisPresenceRepository) GetPresence(ctx context.Context, sessionID, replicaID uuid.UUID) (*models.Presence, error) {
	data, err := r.client.Get(ctx, presenceKey(sessionID, replicaID)).Result()
	if errors.Is(err, redis.Nil) {
		// No presence = replica is offline
		return offline(sessionID, replicaID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}

	var presence models.Presence
	if err := json.Unmarshal([]byte(data), &presence); err != nil {
		return nil, fmt.Errorf("failed to unmarshal presence: %w", err)
	}

	return &presence, nil
}

func (r *RedisPresenceRepository) DeletePresence(ctx context.Context, sessionID, replicaID uuid.UUID) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, presenceKey(sessionID, replicaID))
		pipe.SRem(ctx, replicasKey(sessionID), replicaID.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete presence: %w", err)
	}

	return nil
}

// ListOnline retrieves the presence of every known replica of a session in a
// single MGET. Replicas whose key expired are dropped from the session set.
func (r *RedisPresenceRepository) ListOnline(ctx context.Context, sessionID uuid.UUID) ([]models.Presence, error) {
	members, err := r.client.SMembers(ctx, replicasKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get session replicas: %w", err)
	}
	if len(members) == 0 {
		return []models.Presence{}, nil
	}

	// Build keys
	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = presenceKeyPrefix + sessionID.String() + ":" + m
	}

	// MGet retrieves multiple keys in one round trip
	results, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get bulk presence: %w", err)
	}

	online := make([]models.Presence, 0, len(results))
	var gone []interface{}

	for i, result := range results {
		data, ok := result.(string)
		if !ok {
			gone = append(gone, members[i])
			continue
		}

		var presence models.Presence
		if err := json.Unmarshal([]byte(data), &presence); err != nil {
			// If we can't unmarshal, treat as offline
			gone = append(gone, members[i])
			continue
		}
		online = append(online, presence)
	}

	if len(gone) > 0 {
		if err := r.client.SRem(ctx, replicasKey(sessionID), gone...).Err(); err != nil {
			return nil, fmt.Errorf("failed to remove expired replicas: %w", err)
		}
	}

	return online, nil
}

func (r *RedisPresenceRepository) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	members, err := r.client.SMembers(ctx, replicasKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("failed to get session replicas: %w", err)
	}

	keys := []string{replicasKey(sessionID)}
	for _, m := range members {
		keys = append(keys, presenceKeyPrefix+sessionID.String()+":"+m)
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete session presence: %w", err)
	}
	return nil
}

func offline(sessionID, replicaID uuid.UUID) *models.Presence {
	return &models.Presence{
		SessionID: sessionID,
		ReplicaID: replicaID,
		Status:    string(models.StatusOffline),
		LastSeen:  time.Time{}, // Zero time indicates unknown
	}
}

// Helper: build Redis keys for presence
func presenceKey(sessionID, replicaID uuid.UUID) string {
	return presenceKeyPrefix + sessionID.String() + ":" + replicaID.String()
}

func replicasKey(sessionID uuid.UUID) string {
	return sessionPrefix + sessionID.String() + ":replicas"
}
