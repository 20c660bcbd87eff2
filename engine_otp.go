package authcore

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/velobay/authcore/internal"
	"github.com/velobay/authcore/internal/rate"
	"github.com/velobay/authcore/internal/stores"
)

// Challenge is the caller-visible result of issuing an OTP. The code
// itself travels only through the notifier; OTPSent reports whether
// delivery was handed off successfully.
type Challenge struct {
	Channel    Channel
	Identifier string
	ExpiresAt  time.Time
	OTPSent    bool
}

// RequestOTP creates a challenge for a (channel, identifier) pair and
// hands the code to the notifier. Issuing again for the same pair
// supersedes the prior challenge: the old code stops verifying
// immediately. Delivery failure does not roll back the challenge; it is
// reported through the OTPSent flag.
func (e *Engine) RequestOTP(ctx context.Context, channel Channel, identifier, ip string) (*Challenge, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	locked, err := e.lockout.IsLocked(ctx, identifier)
	if err != nil {
		// Lockout checks fail closed.
		e.logger.Error("lockout check failed", zap.Error(err))
		return nil, ErrAccountLocked
	}
	if locked {
		return nil, ErrAccountLocked
	}

	if err := e.counters.CheckIssue(ctx, string(channel)+":"+identifier, e.config.OTP.IssueLimit, e.config.OTP.IssueWindow); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricOTPRateLimited)
			e.emit(SecurityEvent{
				EventType:   "otp_rate_limited",
				Severity:    SeverityMedium,
				Description: "otp issue budget exceeded",
				IP:          ip,
				Context:     map[string]string{"channel": string(channel)},
			})
			return nil, ErrOTPRateLimited
		}
		e.logger.Error("otp issue throttle failed", zap.Error(err))
		return nil, ErrOTPRateLimited
	}

	code, err := internal.NewOTP(e.config.OTP.CodeDigits)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	record := &stores.ChallengeRecord{
		CodeHash:  internal.HashCode(code),
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(e.config.OTP.Window).Unix(),
	}
	if err := e.otpStore.Save(ctx, string(channel), identifier, record, e.config.OTP.Window); err != nil {
		e.logger.Error("otp challenge save failed", zap.Error(err))
		return nil, err
	}

	e.metricInc(MetricOTPIssued)

	challenge := &Challenge{
		Channel:    channel,
		Identifier: identifier,
		ExpiresAt:  time.Unix(record.ExpiresAt, 0),
		OTPSent:    true,
	}

	if err := e.notifier.Send(ctx, channel, identifier, code); err != nil {
		// Delivery is best-effort: the challenge stands either way.
		challenge.OTPSent = false
		e.metricInc(MetricOTPDeliveryFailed)
		e.logger.Warn("otp delivery failed",
			zap.String("channel", string(channel)),
			zap.Error(err),
		)
	}

	e.emit(SecurityEvent{
		EventType:   "otp_issued",
		Severity:    SeverityLow,
		Description: "otp challenge created",
		IP:          ip,
		Context: map[string]string{
			"channel":   string(channel),
			"delivered": boolString(challenge.OTPSent),
		},
	})

	return challenge, nil
}

// VerifyOTP runs one verification attempt against the live challenge for
// the pair. Failed attempts count toward lockout in the otp scope; a
// success clears the pair's failure counters.
//
// Verifying an already-verified, still-live challenge again succeeds
// without side effect.
func (e *Engine) VerifyOTP(ctx context.Context, channel Channel, identifier, code string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	locked, err := e.lockout.IsLocked(ctx, identifier)
	if err != nil {
		e.logger.Error("lockout check failed", zap.Error(err))
		return ErrAccountLocked
	}
	if locked {
		return ErrAccountLocked
	}

	_, err = e.otpStore.VerifyAttempt(ctx, string(channel), identifier, internal.HashCode(code), e.config.OTP.MaxAttempts)
	if err != nil {
		return e.handleOTPFailure(ctx, channel, identifier, err)
	}

	e.metricInc(MetricOTPVerified)
	if err := e.lockout.ResetFailures(ctx, identifier); err != nil {
		e.logger.Warn("failure counter reset failed", zap.Error(err))
	}
	e.emit(SecurityEvent{
		EventType:   "otp_verified",
		Severity:    SeverityLow,
		Description: "otp challenge verified",
		Context:     map[string]string{"channel": string(channel)},
	})
	return nil
}

func (e *Engine) handleOTPFailure(ctx context.Context, channel Channel, identifier string, err error) error {
	e.metricInc(MetricOTPFailure)

	var mapped error
	switch {
	case errors.Is(err, stores.ErrChallengeNotFound):
		mapped = ErrOTPNotFound
	case errors.Is(err, stores.ErrChallengeExpired):
		mapped = ErrOTPExpired
	case errors.Is(err, stores.ErrAttemptsExceeded):
		mapped = ErrOTPAttemptsExceeded
	case errors.Is(err, stores.ErrCodeMismatch):
		mapped = ErrOTPMismatch
	default:
		e.logger.Error("otp verify failed", zap.Error(err))
		return err
	}

	// Mismatches and exhausted challenges feed the lockout counters; an
	// expired or missing challenge is not evidence of guessing.
	if errors.Is(mapped, ErrOTPMismatch) || errors.Is(mapped, ErrOTPAttemptsExceeded) {
		if _, err := e.RecordFailedAttempt(ctx, identifier, "otp_verify", ""); err != nil {
			e.logger.Warn("failed attempt record failed", zap.Error(err))
		}
	}

	e.emit(SecurityEvent{
		EventType:   "otp_verify_failed",
		Severity:    SeverityMedium,
		Description: mapped.Error(),
		Context:     map[string]string{"channel": string(channel)},
	})
	return mapped
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
