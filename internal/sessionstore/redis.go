package sessionstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// redisStore keeps the key set in a single hash without TTL; the record must
// outlive any number of restarts.
type redisStore struct {
	client *redis.Client
	key    string
}

func (s *redisStore) Load(ctx context.Context) (Record, error) {
	values, err := s.client.HGetAll(ctx, s.key).Result()
	if err == redis.Nil {
		return Record{}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("redis load session: %w", err)
	}
	return FromValues(values), nil
}

func (s *redisStore) Save(ctx context.Context, r Record) error {
	fields := make([]any, 0, 8)
	for k, v := range r.Values() {
		fields = append(fields, k, v)
	}
	if err := s.client.HSet(ctx, s.key, fields...).Err(); err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

// Close leaves the shared client open; its owner closes it.
func (s *redisStore) Close() error { return nil }
