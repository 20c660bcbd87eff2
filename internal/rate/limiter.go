package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Scope names a counter namespace. Counters in different scopes never
// collide even for the same identifier.
type Scope string

const (
	// ScopeLogin counts failed login attempts per identifier.
	ScopeLogin Scope = "login"
	// ScopeOTP counts failed OTP verifications per identifier.
	ScopeOTP Scope = "otp"
	// ScopeIP counts failures per source address.
	ScopeIP Scope = "ip"
)

// Limiter maintains fixed-window counters in Redis. It is the single
// primitive underneath lockout, suspicious-activity tracking, captcha
// gating and OTP issue throttling.
type Limiter struct {
	redis redis.UniversalClient
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient) *Limiter {
	return &Limiter{redis: redisClient}
}

func counterKey(scope Scope, key string) string {
	return "fc:" + string(scope) + ":" + key
}

// Allow atomically increments the counter for (scope, key) and reports
// whether the post-increment count is within limit. The window TTL is
// applied only when this increment created the counter.
func (l *Limiter) Allow(ctx context.Context, scope Scope, key string, limit int, window time.Duration) (bool, error) {
	count, err := l.Increment(ctx, scope, key, window)
	if err != nil {
		return false, err
	}
	return count <= int64(limit), nil
}

// Increment bumps the counter for (scope, key) and returns the new count.
func (l *Limiter) Increment(ctx context.Context, scope Scope, key string, window time.Duration) (int64, error) {
	return l.incrementWithTTL(ctx, counterKey(scope, key), window)
}

// Count returns the current count for (scope, key). Missing counters
// return zero and do not reveal whether the identifier exists.
func (l *Limiter) Count(ctx context.Context, scope Scope, key string) (int64, error) {
	count, err := l.redis.Get(ctx, counterKey(scope, key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return count, nil
}

// Reset deletes the counters for (scope, key) pairs. Called after
// successful authentication or by an operator action.
func (l *Limiter) Reset(ctx context.Context, scope Scope, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, counterKey(scope, k))
	}

	if err := l.redis.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// CheckRefresh enforces the per-session refresh budget by incrementing
// the counter and applying the cooldown TTL on first hit.
func (l *Limiter) CheckRefresh(ctx context.Context, sessionID string, limit int, cooldown time.Duration) error {
	count, err := l.incrementWithTTL(ctx, "rr:"+sessionID, cooldown)
	if err != nil {
		return err
	}
	if count > int64(limit) {
		return ErrRateLimited
	}
	return nil
}

// CheckIssue enforces the OTP issue budget for an identifier.
func (l *Limiter) CheckIssue(ctx context.Context, identifier string, limit int, window time.Duration) error {
	count, err := l.incrementWithTTL(ctx, "oi:"+identifier, window)
	if err != nil {
		return err
	}
	if count > int64(limit) {
		return ErrRateLimited
	}
	return nil
}

// IncrementActivity bumps the suspicious-activity counter for an
// (identifier, activityType) pair and returns the new running count.
func (l *Limiter) IncrementActivity(ctx context.Context, identifier, activityType string, window time.Duration) (int64, error) {
	return l.incrementWithTTL(ctx, "sa:"+activityType+":"+identifier, window)
}

// ResetActivity clears the suspicious-activity counter for a pair.
func (l *Limiter) ResetActivity(ctx context.Context, identifier, activityType string) error {
	if err := l.redis.Del(ctx, "sa:"+activityType+":"+identifier).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
