package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis stores sessions as JSON values with a server-side TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedis creates a Redis-backed session store.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Redis{client: client, ttl: ttl, prefix: "uniform:session:"}
}

// Create issues a fresh opaque token for the identity.
func (r *Redis) Create(ctx context.Context, id Identity) (string, error) {
	token := uuid.NewString()
	payload, err := json.Marshal(id)
	if err != nil {
		return "", err
	}
	if err := r.client.Set(ctx, r.prefix+token, payload, r.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Lookup resolves a token; expiry is handled by Redis.
func (r *Redis) Lookup(ctx context.Context, token string) (Identity, bool, error) {
	val, err := r.client.Get(ctx, r.prefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Identity{}, false, nil
		}
		return Identity{}, false, err
	}
	var id Identity
	if err := json.Unmarshal([]byte(val), &id); err != nil {
		return Identity{}, false, err
	}
	return id, true, nil
}

// Invalidate removes a token.
func (r *Redis) Invalidate(ctx context.Context, token string) error {
	return r.client.Del(ctx, r.prefix+token).Err()
}
