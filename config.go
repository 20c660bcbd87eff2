package authcore

import (
	"errors"
	"time"

	"github.com/velobay/authcore/jwt"
)

// Config bundles every tunable of the security core. All thresholds and
// windows are plain fields: externally tunable, never a rules engine.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable.
type Config struct {
	OTP        OTPConfig
	Token      TokenConfig
	Session    SessionConfig
	Lockout    LockoutConfig
	Suspicious SuspiciousConfig
	Captcha    CaptchaConfig
	Suspension SuspensionConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig tunes the challenge lifecycle.
type OTPConfig struct {
	CodeDigits  int
	Window      time.Duration
	MaxAttempts int
	// IssueLimit bounds code requests per identifier per IssueWindow, so
	// resends cannot be used to spam the notification channel.
	IssueLimit  int
	IssueWindow time.Duration
	RedisPrefix string
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig tunes token issuance and revocation.
type TokenConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod jwt.SigningMethod // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
	// RotateOnRefresh issues a new refresh token on every refresh and
	// revokes the old one. Off by default: the non-rotating behavior keeps
	// revocation semantics simple; rotation is the stricter hardening.
	RotateOnRefresh bool
	// MaxRefreshPerSession bounds refresh calls per session per cooldown.
	MaxRefreshPerSession int
	RefreshCooldown      time.Duration
	RevocationPrefix     string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig tunes the ephemeral session registry. Session TTL mirrors
// the refresh-token lifetime and is not configured separately.
type SessionConfig struct {
	RedisPrefix string
}

/*
====================================
LOCKOUT / ABUSE CONFIG
====================================
*/

// LockoutConfig tunes the failed-attempt lockout policy.
type LockoutConfig struct {
	MaxFailedAttempts int
	FailureWindow     time.Duration
	LockoutDuration   time.Duration
}

// SuspiciousConfig tunes the suspicious-activity escalation, which runs on
// its own counters with a higher threshold than plain failures.
type SuspiciousConfig struct {
	Threshold int
	Window    time.Duration
}

// CaptchaConfig tunes the early captcha gate.
type CaptchaConfig struct {
	Threshold int
}

/*
====================================
SUSPENSION CONFIG
====================================
*/

// SuspensionConfig tunes the monthly cancellation policy.
type SuspensionConfig struct {
	// WarningCount is the monthly driver-cancellation count that logs a
	// warning event without any state change.
	WarningCount int
	// TriggerCount is the monthly count at which suspension applies.
	TriggerCount int
	DurationDays int
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig tunes the async security-event dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

func defaultConfig() Config {
	return Config{
		OTP: OTPConfig{
			CodeDigits:  6,
			Window:      5 * time.Minute,
			MaxAttempts: 3,
			IssueLimit:  3,
			IssueWindow: 10 * time.Minute,
			RedisPrefix: "otp",
		},
		Token: TokenConfig{
			AccessTTL:            15 * time.Minute,
			RefreshTTL:           24 * time.Hour,
			SigningMethod:        jwt.MethodEd25519,
			Issuer:               "authcore",
			MaxRefreshPerSession: 30,
			RefreshCooldown:      time.Minute,
			RevocationPrefix:     "arv",
		},
		Session: SessionConfig{
			RedisPrefix: "as",
		},
		Lockout: LockoutConfig{
			MaxFailedAttempts: 5,
			FailureWindow:     30 * time.Minute,
			LockoutDuration:   30 * time.Minute,
		},
		Suspicious: SuspiciousConfig{
			Threshold: 10,
			Window:    time.Hour,
		},
		Captcha: CaptchaConfig{
			Threshold: 3,
		},
		Suspension: SuspensionConfig{
			WarningCount: 3,
			TriggerCount: 5,
			DurationDays: 90,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate rejects configurations the engine cannot run safely with.
func (c *Config) Validate() error {
	if c.OTP.CodeDigits < 4 || c.OTP.CodeDigits > 10 {
		return errors.New("otp code digits out of range")
	}
	if c.OTP.Window <= 0 {
		return errors.New("otp window must be positive")
	}
	if c.OTP.MaxAttempts < 1 {
		return errors.New("otp max attempts must be at least 1")
	}
	if c.OTP.IssueLimit < 1 || c.OTP.IssueWindow <= 0 {
		return errors.New("otp issue throttle misconfigured")
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Token.RefreshTTL < c.Token.AccessTTL {
		return errors.New("refresh TTL shorter than access TTL")
	}
	if c.Lockout.MaxFailedAttempts < 1 {
		return errors.New("lockout threshold must be at least 1")
	}
	if c.Lockout.FailureWindow <= 0 || c.Lockout.LockoutDuration < 0 {
		return errors.New("lockout windows misconfigured")
	}
	if c.Suspicious.Threshold < 1 || c.Suspicious.Window <= 0 {
		return errors.New("suspicious activity config misconfigured")
	}
	if c.Captcha.Threshold < 1 {
		return errors.New("captcha threshold must be at least 1")
	}
	if c.Suspension.TriggerCount < 1 || c.Suspension.DurationDays < 1 {
		return errors.New("suspension policy misconfigured")
	}
	if c.Suspension.WarningCount > c.Suspension.TriggerCount {
		return errors.New("suspension warning count above trigger count")
	}
	return nil
}
