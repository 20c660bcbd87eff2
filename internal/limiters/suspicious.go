package limiters

import (
	"context"
	"fmt"
	"time"

	"github.com/velobay/authcore/internal/rate"
)

// SuspiciousConfig holds configuration for suspicious-activity tracking.
// The threshold is independent of, and typically higher than, the plain
// failed-attempt threshold.
type SuspiciousConfig struct {
	Threshold int
	Window    time.Duration
}

// SuspiciousLimiter tracks named abuse patterns per identifier. Counters are
// namespaced by (identifier, activityType) so distinct patterns escalate
// independently.
type SuspiciousLimiter struct {
	counters *rate.Limiter
	config   SuspiciousConfig
}

// NewSuspiciousLimiter creates a suspicious-activity limiter.
func NewSuspiciousLimiter(counters *rate.Limiter, cfg SuspiciousConfig) *SuspiciousLimiter {
	return &SuspiciousLimiter{counters: counters, config: cfg}
}

// Track increments the counter for an (identifier, activityType) pair.
// Returns whether the threshold was crossed on this increment and the
// running count.
func (l *SuspiciousLimiter) Track(ctx context.Context, identifier, activityType string) (bool, int64, error) {
	if identifier == "" || activityType == "" {
		return false, 0, nil
	}

	count, err := l.counters.IncrementActivity(ctx, identifier, activityType, l.config.Window)
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}

	return count >= int64(l.config.Threshold), count, nil
}

// Reset clears the counter for an (identifier, activityType) pair.
func (l *SuspiciousLimiter) Reset(ctx context.Context, identifier, activityType string) error {
	return l.counters.ResetActivity(ctx, identifier, activityType)
}
