package limiters

import (
	"context"

	"github.com/velobay/authcore/internal/rate"
)

// CaptchaConfig holds the low-water threshold for captcha gating. Crossing
// it does not block anything by itself; it signals the caller to demand a
// captcha before the identifier reaches full lockout.
type CaptchaConfig struct {
	Threshold int
}

// CaptchaLimiter answers the cheap "should this request carry a captcha"
// question from the existing failure counters. It never writes.
type CaptchaLimiter struct {
	counters *rate.Limiter
	config   CaptchaConfig
}

// NewCaptchaLimiter creates a captcha gate over the shared counters.
func NewCaptchaLimiter(counters *rate.Limiter, cfg CaptchaConfig) *CaptchaLimiter {
	return &CaptchaLimiter{counters: counters, config: cfg}
}

// ShouldRequire reports whether either the identifier's or the source
// address's failure counters exceed the captcha threshold. This is a
// read-through convenience check: backend errors fail open and are
// reported to the caller for logging, never escalated.
func (l *CaptchaLimiter) ShouldRequire(ctx context.Context, identifier, ip string) (bool, error) {
	if identifier != "" {
		for _, scope := range []rate.Scope{rate.ScopeLogin, rate.ScopeOTP} {
			count, err := l.counters.Count(ctx, scope, identifier)
			if err != nil {
				return false, err
			}
			if count >= int64(l.config.Threshold) {
				return true, nil
			}
		}
	}

	if ip != "" {
		count, err := l.counters.Count(ctx, rate.ScopeIP, ip)
		if err != nil {
			return false, err
		}
		if count >= int64(l.config.Threshold) {
			return true, nil
		}
	}

	return false, nil
}
