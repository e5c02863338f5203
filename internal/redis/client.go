package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/mossy-p/consult-signaling/config"
	"github.com/redis/go-redis/v9"
)

// Store mirrors room membership into Redis sets so occupancy is visible to
// other processes. The relay's in-memory registry stays authoritative.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// Connect initializes the Redis client and verifies the connection.
func Connect(ctx context.Context, cfg config.RedisConfig) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewStore(client, cfg.PresenceTTL), nil
}

// NewStore wraps an existing client.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func peersKey(room string) string {
	return "room:" + room + ":peers"
}

// Add records participant as present in room and refreshes the key TTL.
func (s *Store) Add(ctx context.Context, room, participant string) error {
	key := peersKey(room)
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, key, participant)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence add %s/%s: %w", room, participant, err)
	}
	return nil
}

// Remove drops participant from room. Redis deletes the set once it is empty.
func (s *Store) Remove(ctx context.Context, room, participant string) error {
	if err := s.client.SRem(ctx, peersKey(room), participant).Err(); err != nil {
		return fmt.Errorf("presence remove %s/%s: %w", room, participant, err)
	}
	return nil
}

// Count returns the number of participants present in room across processes.
func (s *Store) Count(ctx context.Context, room string) (int64, error) {
	n, err := s.client.SCard(ctx, peersKey(room)).Result()
	if err != nil {
		return 0, fmt.Errorf("presence count %s: %w", room, err)
	}
	return n, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
