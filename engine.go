package authcore

import (
	"time"

	"go.uber.org/zap"

	"github.com/velobay/authcore/internal/limiters"
	"github.com/velobay/authcore/internal/rate"
	"github.com/velobay/authcore/internal/stores"
	"github.com/velobay/authcore/jwt"
	"github.com/velobay/authcore/session"
)

// Engine is the security core: OTP challenges, the account verification
// state machine, token issuance/revocation, the session registry, rate
// limiting and lockout, and the cancellation suspension policy.
//
// Engine instances are built once via [Builder] and safe for concurrent
// use. All ephemeral state lives in Redis keyed per identifier, so a fleet
// of engines over the same Redis behaves as one.
type Engine struct {
	config     Config
	logger     *zap.Logger
	store      DurableStore
	notifier   Notifier
	otpStore   *stores.OTPStore
	revocation *stores.RevocationStore
	sessions   *session.Store
	counters   *rate.Limiter
	lockout    *limiters.LockoutLimiter
	suspicious *limiters.SuspiciousLimiter
	captcha    *limiters.CaptchaLimiter
	jwtManager *jwt.Manager
	audit      *auditDispatcher
	metrics    *Metrics
	suspendMu  *keyedMutex
}

func (e *Engine) ready() bool {
	return e != nil && e.store != nil && e.otpStore != nil && e.sessions != nil && e.jwtManager != nil
}

// Close flushes the audit dispatcher. The Redis client and the durable
// store belong to the caller and are not closed here.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many security events were dropped because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the in-process counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// emit queues a security event. Timestamp is stamped here so callers only
// describe what happened.
func (e *Engine) emit(event SecurityEvent) {
	if e == nil || e.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	e.audit.Emit(event)
}
