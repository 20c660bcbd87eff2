package authcore

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/velobay/authcore/internal/rate"
)

// Allow atomically increments the failure counter for (scope, key) and
// reports whether the post-increment count stays within limit. The window
// TTL is fixed at the increment that creates the counter. On backend
// timeout this fails closed: callers treat an error as "not allowed".
func (e *Engine) Allow(ctx context.Context, scope, key string, limit int, window time.Duration) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}
	return e.counters.Allow(ctx, rate.Scope(scope), key, limit, window)
}

// RecordFailedAttempt counts one failed attempt for an identifier. Crossing
// the lockout threshold writes a lockout entry with TTL equal to the
// configured lockout duration and raises a high-severity event; below the
// threshold a medium-severity event records the running count. Returns
// whether lockout was applied by this call.
func (e *Engine) RecordFailedAttempt(ctx context.Context, identifier, action, accountID string) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}

	scope := rate.ScopeLogin
	if action == "otp_verify" {
		scope = rate.ScopeOTP
	}

	lockedNow, count, err := e.lockout.RecordFailure(ctx, scope, identifier)
	if err != nil {
		e.logger.Error("failed attempt record failed", zap.Error(err))
		return false, err
	}

	if lockedNow {
		e.metricInc(MetricAccountLocked)
		e.emit(SecurityEvent{
			EventType:   "account_locked",
			Severity:    SeverityHigh,
			AccountID:   accountID,
			Description: "failed attempt threshold reached, lockout applied",
			Context: map[string]string{
				"action": action,
				"count":  strconv.FormatInt(count, 10),
			},
		})
		return true, nil
	}

	e.emit(SecurityEvent{
		EventType:   "failed_attempt",
		Severity:    SeverityMedium,
		AccountID:   accountID,
		Description: "authentication attempt failed",
		Context: map[string]string{
			"action": action,
			"count":  strconv.FormatInt(count, 10),
		},
	})
	return false, nil
}

// IsLocked reports whether a live lockout entry exists for the identifier.
// Backend errors fail closed: the identifier reads as locked.
func (e *Engine) IsLocked(ctx context.Context, identifier string) bool {
	if !e.ready() {
		return true
	}
	locked, err := e.lockout.IsLocked(ctx, identifier)
	if err != nil {
		e.logger.Error("lockout check failed", zap.Error(err))
		return true
	}
	return locked
}

// TrackSuspiciousActivity counts a named abuse pattern for an identifier
// on its own counter, independent of plain failure counts. Crossing the
// (higher) threshold applies the same lockout mechanism with high
// severity; below it a medium-severity event carries the running count.
// Returns whether lockout was applied by this call.
func (e *Engine) TrackSuspiciousActivity(ctx context.Context, identifier, activityType, accountID string) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}

	e.metricInc(MetricSuspiciousActivity)

	crossed, count, err := e.suspicious.Track(ctx, identifier, activityType)
	if err != nil {
		e.logger.Error("suspicious activity track failed", zap.Error(err))
		return false, err
	}

	if crossed {
		if err := e.lockout.Lock(ctx, identifier); err != nil {
			return false, err
		}
		e.metricInc(MetricAccountLocked)
		e.emit(SecurityEvent{
			EventType:   "suspicious_activity_lockout",
			Severity:    SeverityHigh,
			AccountID:   accountID,
			Description: "suspicious activity threshold reached, lockout applied",
			Context: map[string]string{
				"activity_type": activityType,
				"count":         strconv.FormatInt(count, 10),
			},
		})
		return true, nil
	}

	e.emit(SecurityEvent{
		EventType:   "suspicious_activity",
		Severity:    SeverityMedium,
		AccountID:   accountID,
		Description: "suspicious activity observed",
		Context: map[string]string{
			"activity_type": activityType,
			"count":         strconv.FormatInt(count, 10),
		},
	})
	return false, nil
}

// ShouldRequireCaptcha reports whether the identifier's or the source
// address's failure counters exceed the captcha threshold — a cheaper,
// earlier gate than lockout. This is a read-through check and fails open:
// a backend error logs a warning and returns false.
func (e *Engine) ShouldRequireCaptcha(ctx context.Context, identifier, ip string) bool {
	if !e.ready() {
		return false
	}
	required, err := e.captcha.ShouldRequire(ctx, identifier, ip)
	if err != nil {
		e.logger.Warn("captcha check failed", zap.Error(err))
		return false
	}
	if required {
		e.metricInc(MetricCaptchaRequired)
	}
	return required
}

// ClearFailedAttempts resets the failure counters for an identifier,
// called on successful authentication.
func (e *Engine) ClearFailedAttempts(ctx context.Context, identifier string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.lockout.ResetFailures(ctx, identifier)
}

// Unlock removes the lockout entry and counters for an identifier.
// Operator action.
func (e *Engine) Unlock(ctx context.Context, identifier string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := e.lockout.Unlock(ctx, identifier); err != nil {
		return err
	}
	e.emit(SecurityEvent{
		EventType:   "account_unlocked",
		Severity:    SeverityMedium,
		Description: "lockout cleared by operator",
	})
	return nil
}
