package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/velobay/authcore/internal/rate"
)

// LockoutConfig holds configuration for the failed-attempt lockout policy.
type LockoutConfig struct {
	MaxFailedAttempts int
	FailureWindow     time.Duration
	LockoutDuration   time.Duration
}

// ErrLockoutUnavailable indicates the lockout backend is unreachable.
var ErrLockoutUnavailable = errors.New("lockout backend unavailable")

// LockoutLimiter tracks failed authentication attempts per identifier and
// applies a timed lockout entry once the configured threshold is reached.
type LockoutLimiter struct {
	redis    redis.UniversalClient
	counters *rate.Limiter
	config   LockoutConfig
}

// NewLockoutLimiter creates a new lockout limiter sharing the given counter primitive.
func NewLockoutLimiter(redisClient redis.UniversalClient, counters *rate.Limiter, cfg LockoutConfig) *LockoutLimiter {
	return &LockoutLimiter{redis: redisClient, counters: counters, config: cfg}
}

func lockKey(identifier string) string {
	return "alo:" + identifier
}

// RecordFailure increments the failure counter for an identifier in the
// given scope. When the post-increment count reaches the threshold, a
// lockout entry is written with TTL equal to the lockout duration.
// Returns whether lockout was just applied and the running count.
func (l *LockoutLimiter) RecordFailure(ctx context.Context, scope rate.Scope, identifier string) (bool, int64, error) {
	if identifier == "" {
		return false, 0, nil
	}

	count, err := l.counters.Increment(ctx, scope, identifier, l.config.FailureWindow)
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}

	if count >= int64(l.config.MaxFailedAttempts) {
		if err := l.Lock(ctx, identifier); err != nil {
			return false, count, err
		}
		// Only the crossing increment reports a fresh lockout.
		return count == int64(l.config.MaxFailedAttempts), count, nil
	}

	return false, count, nil
}

// Lock writes the lockout entry for an identifier. The entry self-expires
// after the configured lockout duration; a zero duration means the entry
// persists until an explicit Unlock.
func (l *LockoutLimiter) Lock(ctx context.Context, identifier string) error {
	if err := l.redis.Set(ctx, lockKey(identifier), time.Now().Unix(), l.config.LockoutDuration).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// IsLocked reports whether a live lockout entry exists for the identifier.
// Errors must be treated as locked by callers (fail closed).
func (l *LockoutLimiter) IsLocked(ctx context.Context, identifier string) (bool, error) {
	n, err := l.redis.Exists(ctx, lockKey(identifier)).Result()
	if err != nil {
		return true, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return n > 0, nil
}

// Unlock removes the lockout entry and clears the failure counters for an
// identifier. Operator action or successful authentication path.
func (l *LockoutLimiter) Unlock(ctx context.Context, identifier string) error {
	if err := l.redis.Del(ctx, lockKey(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return l.ResetFailures(ctx, identifier)
}

// ResetFailures clears the failure counters for an identifier across all scopes.
func (l *LockoutLimiter) ResetFailures(ctx context.Context, identifier string) error {
	for _, scope := range []rate.Scope{rate.ScopeLogin, rate.ScopeOTP} {
		if err := l.counters.Reset(ctx, scope, identifier); err != nil {
			return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
		}
	}
	return nil
}

// FailureCount returns the current failure count for an identifier in a scope.
func (l *LockoutLimiter) FailureCount(ctx context.Context, scope rate.Scope, identifier string) (int64, error) {
	count, err := l.counters.Count(ctx, scope, identifier)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return count, nil
}
