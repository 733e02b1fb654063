package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps sessions in Redis with a per-key idle TTL. Preference
// keys are written without expiry.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps an existing client. ttl is the session idle timeout.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func sessionKey(tenantID, userID string) string {
	return fmt.Sprintf("session:%s:%s", tenantID, userID)
}

func prefsKey(tenantID, contact string) string {
	return fmt.Sprintf("prefs:%s:%s", tenantID, contact)
}

func (s *RedisStore) Get(ctx context.Context, tenantID, userID string) (*Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(tenantID, userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("error decoding session: %w", err)
	}
	return &sess, nil
}

func (s *RedisStore) Put(ctx context.Context, tenantID, userID string, sess *Session) error {
	sess.UpdatedAt = time.Now()
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("error encoding session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(tenantID, userID), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("error writing session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, tenantID, userID string) error {
	if err := s.client.Del(ctx, sessionKey(tenantID, userID)).Err(); err != nil {
		return fmt.Errorf("error deleting session: %w", err)
	}
	return nil
}

func (s *RedisStore) RemindersDisabled(ctx context.Context, tenantID, contact string) (bool, error) {
	_, err := s.client.Get(ctx, prefsKey(tenantID, contact)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error reading reminder preference: %w", err)
	}
	return true, nil
}

func (s *RedisStore) SetRemindersDisabled(ctx context.Context, tenantID, contact string, disabled bool) error {
	key := prefsKey(tenantID, contact)
	if !disabled {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("error clearing reminder preference: %w", err)
		}
		return nil
	}
	// Preferences persist until explicitly cleared.
	if err := s.client.Set(ctx, key, "1", 0).Err(); err != nil {
		return fmt.Errorf("error writing reminder preference: %w", err)
	}
	return nil
}
