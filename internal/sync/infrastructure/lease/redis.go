package lease

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mokkoji/syncd/internal/sync/application"
)

const leaseKeyPrefix = "syncd:lease:"

// releaseScript deletes the lease only if this holder still owns it, so
// a lease that expired and was re-acquired by another instance is never
// released by the old holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a distributed lease on SET NX with a TTL. The TTL bounds how
// long a crashed holder can block a triple.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedis creates a Redis-backed lease. A zero TTL defaults to ten
// minutes, comfortably above any single sync's runtime.
func NewRedis(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, ttl: ttl, logger: logger}
}

// TryAcquire takes the lease or fails with ErrLeaseHeld.
func (r *Redis) TryAcquire(ctx context.Context, key application.TripleKey) (func(), error) {
	k := leaseKeyPrefix + key.String()
	holder := uuid.NewString()

	ok, err := r.client.SetNX(ctx, k, holder, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", k, err)
	}
	if !ok {
		return nil, application.ErrLeaseHeld
	}

	release := func() {
		// Release must run even when the job's context was cancelled.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, r.client, []string{k}, holder).Err(); err != nil {
			r.logger.Warn("failed to release sync lease", "key", k, "error", err)
		}
	}
	return release, nil
}

// Held reports whether the lease is taken.
func (r *Redis) Held(ctx context.Context, key application.TripleKey) (bool, error) {
	n, err := r.client.Exists(ctx, leaseKeyPrefix+key.String()).Result()
	if err != nil {
		return false, fmt.Errorf("check lease: %w", err)
	}
	return n > 0, nil
}
