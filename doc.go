// Package authcore provides the account security engine for the Velobay
// platform: OTP challenges over SMS and email, account verification state,
// JWT access and refresh tokens, Redis-backed sessions with revocation,
// rate limiting with lockout, cancellation penalties, and an audit trail.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the durable store interfaces, and value types (LoginResult, AuthResult,
// MetricsSnapshot, etc.). Redis coordination — counters, lockout, OTP and
// session encoding — lives under internal/ and is never exported. Durable
// state reaches the engine only through the [DurableStore] interfaces; the
// postgres subpackage is one implementation of them.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its
//     public API.
//   - Send OTP codes itself; delivery goes through the [Notifier] the
//     caller supplies.
//   - Import any sub-package that re-imports authcore (no import cycles).
//
// # Failure posture
//
// Checks that grant access fail closed: a Redis error during a lockout or
// revocation lookup denies the request. Checks that merely add friction
// (captcha) fail open with a logged warning.
package authcore
