// Package internal contains helper utilities that are intentionally private to authcore,
// including secure random generation and one-time-code hashing helpers.
//
// # Sub-packages
//
//   - limiters — domain-specific policies (lockout, suspicious activity, captcha gating)
//   - rate — core Redis-backed fixed-window counter primitives
//   - stores — Redis record stores (OTP challenges, token revocation entries)
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API.
//   - Be imported by any package outside the authcore module.
package internal
