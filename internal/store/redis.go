package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/FathanAS/fdvp-backend/internal/models"
)

const cacheTTL = 24 * time.Hour

// RedisStore is the hot cache for recent room history. Joining a room loads
// history from here when primed and from the durable store otherwise; any
// mutation of already-delivered messages (read marks, edits, soft deletes)
// invalidates the room's cache rather than patching it.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for health checks.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// roomKey returns the key for a room's message sorted set.
func roomKey(roomID string) string {
	return fmt.Sprintf("room:%s:messages", roomID)
}

// PrimeRoom replaces a room's cached history with the given messages.
func (s *RedisStore) PrimeRoom(ctx context.Context, roomID string, msgs []models.Message) error {
	key := roomKey(roomID)

	members := make([]redis.Z, 0, len(msgs))
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		members = append(members, redis.Z{
			Score:  float64(m.CreatedAt.UnixMilli()),
			Member: string(data),
		})
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(members) > 0 {
		pipe.ZAdd(ctx, key, members...)
	}
	pipe.Expire(ctx, key, cacheTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// AppendMessage adds a message to a room's cache, but only when the room is
// already primed; an unprimed room stays a durable-store read so the cache
// never serves a partial history.
func (s *RedisStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	key := roomKey(msg.RoomID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return nil
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(msg.CreatedAt.UnixMilli()),
		Member: string(data),
	})
	pipe.Expire(ctx, key, cacheTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// RoomMessages returns a room's cached history oldest first. The second
// return value reports whether the cache held the room at all.
func (s *RedisStore) RoomMessages(ctx context.Context, roomID string) ([]models.Message, bool, error) {
	key := roomKey(roomID)

	results, err := s.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, false, err
	}
	if len(results) == 0 {
		return nil, false, nil
	}

	msgs := make([]models.Message, 0, len(results))
	for _, data := range results {
		var m models.Message
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, true, nil
}

// InvalidateRoom drops a room's cached history.
func (s *RedisStore) InvalidateRoom(ctx context.Context, roomID string) error {
	return s.client.Del(ctx, roomKey(roomID)).Err()
}
