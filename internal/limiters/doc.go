// Package limiters implements the domain rate-limit policies layered on top of
// the internal/rate counter primitives: account lockout, suspicious-activity
// escalation and captcha gating.
//
// Each limiter owns its thresholds and windows; the counters themselves live
// in Redis so that policy decisions hold across server instances. Lockout
// state is a presence-keyed entry whose TTL is the lockout duration — a live
// entry means locked, absence means not locked.
package limiters
