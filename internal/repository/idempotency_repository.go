package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyRepository reserves Idempotency-Key values in Redis.
// Without a client every reservation succeeds, so duplicate protection is best effort.
type IdempotencyRepository struct {
	client *redis.Client
	prefix string
}

// NewIdempotencyRepository constructs the repository.
func NewIdempotencyRepository(client *redis.Client) *IdempotencyRepository {
	return &IdempotencyRepository{client: client, prefix: "idem:"}
}

func (r *IdempotencyRepository) key(scope, key string) string {
	return r.prefix + scope + ":" + key
}

// Reserve claims scope/key for ttl. It returns false when the key was already claimed.
func (r *IdempotencyRepository) Reserve(ctx context.Context, scope, key string, ttl time.Duration) (bool, error) {
	if r.client == nil {
		return true, nil
	}
	ok, err := r.client.SetNX(ctx, r.key(scope, key), time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	return ok, nil
}

// Release frees a key so a failed action can be retried with it.
func (r *IdempotencyRepository) Release(ctx context.Context, scope, key string) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Del(ctx, r.key(scope, key)).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
