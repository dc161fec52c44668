// Package cache keeps verified proof payloads in Redis so the archival
// fallback can often be answered without a network hop to the archivist.
// Cache misses and cache write failures are silent; the cache never decides
// validity.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	platformredis "github.com/xyo-geohacker/chaincheck-sub003/internal/platform/redis"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
)

// DefaultTTL bounds how long a cached payload may serve fallback reads.
const DefaultTTL = 24 * time.Hour

// PayloadCache stores payload sets keyed by proof hash.
type PayloadCache struct {
	client *platformredis.Client
	ttl    time.Duration
}

// New builds a payload cache. Returns nil when Redis is not configured;
// callers treat a nil cache as a permanent miss.
func New(client *platformredis.Client, ttl time.Duration) *PayloadCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PayloadCache{client: client, ttl: ttl}
}

func key(hash domain.Hash) string {
	return "chaincheck:proof:" + hash.String()
}

// Get returns the cached payload for the hash, or ok=false on a miss or any
// Redis failure.
func (c *PayloadCache) Get(ctx context.Context, hash domain.Hash) (json.RawMessage, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, key(hash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		// Redis trouble degrades to a miss; the caller falls through to the
		// archivist.
		return nil, false
	}
	return json.RawMessage(raw), true
}

// Set stores the payload with the configured TTL. Failures are dropped.
func (c *PayloadCache) Set(ctx context.Context, hash domain.Hash, payload json.RawMessage) {
	if c == nil || len(payload) == 0 {
		return
	}
	_ = c.client.Set(ctx, key(hash), []byte(payload), c.ttl).Err()
}
