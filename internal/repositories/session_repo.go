package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/syncboard/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	sessionPrefix     = "board:"
	activeSessionsKey = "boards:active"
)

type RedisSessionRepository struct {
	client *redis.Client
}

func NewRedisSessionRepository(client *redis.Client) *RedisSessionRepository {
	return &RedisSessionRepository{client: client}
}

func (r *RedisSessionRepository) Create(ctx context.Context, session *models.Session) error {
	// 1. Serialize session to JSON
	jsonData, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// 2. Store with key "board:{id}" and TTL from session.ExpiresAt
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", session.ID)
	}
	err = r.client.Set(ctx, sessionKey(session.ID), jsonData, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}

	// 3. Put the session in the active set
	err = r.client.SAdd(ctx, activeSessionsKey, session.ID.String()).Err()
	if err != nil {
		return fmt.Errorf("failed to add session to active sessions: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	jsonData, err := r.client.Get(ctx, sessionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal([]byte(jsonData), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// List returns every live session. Members of the active set whose key has
// expired are removed on the way.
func (r *RedisSessionRepository) List(ctx context.Context) ([]*models.Session, error) {
	ids, err := r.client.SMembers(ctx, activeSessionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get active sessions: %w", err)
	}

	sessions := make([]*models.Session, 0, len(ids))
	var expiredIDs []interface{}

	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			expiredIDs = append(expiredIDs, raw)
			continue
		}

		session, err := r.GetByID(ctx, id)
		if errors.Is(err, ErrNotFound) {
			expiredIDs = append(expiredIDs, raw)
			continue
		}
		if err != nil {
			log.Printf("failed to get session %s: %v", id, err)
			continue
		}
		sessions = append(sessions, session)
	}

	// Clean up expired sessions
	if len(expiredIDs) > 0 {
		if err := r.client.SRem(ctx, activeSessionsKey, expiredIDs...).Err(); err != nil {
			return nil, fmt.Errorf("failed to remove expired sessions: %w", err)
		}
	}
	return sessions, nil
}

func (r *RedisSessionRepository) Touch(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	session, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !expiresAt.After(session.ExpiresAt) {
		return nil
	}

	session.ExpiresAt = expiresAt
	jsonData, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// XX: never resurrect a session that expired in between
	ok, err := r.client.SetXX(ctx, sessionKey(id), jsonData, time.Until(expiresAt)).Result()
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (r *RedisSessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	deleted, err := r.client.Del(ctx, sessionKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if err := r.client.SRem(ctx, activeSessionsKey, id.String()).Err(); err != nil {
		return fmt.Errorf("failed to remove session from active sessions: %w", err)
	}

	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

func sessionKey(id uuid.UUID) string {
	return sessionPrefix + id.String()
}
