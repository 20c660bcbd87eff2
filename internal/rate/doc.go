// Package rate provides internal primitives used to build Redis-backed rate limit keys,
// errors, and fixed-window counter behavior for security-sensitive authentication workflows.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. The TTL is
// set only on the increment that creates the counter (count==1); concurrent
// increments inside a window never extend it. Key prefixes:
//   - fc:  — failure counters, namespaced by scope (login, otp, ip)
//   - sa:  — suspicious-activity counters, namespaced by activity type
//   - oi:  — OTP issue throttle per identifier
//   - rr:  — refresh throttle per session
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Be imported outside the authcore module.
package rate
