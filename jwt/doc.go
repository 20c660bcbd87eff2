// Package jwt wraps token creation and validation for the security core.
//
// Two token kinds share one claim shape: short-lived access tokens and
// long-lived refresh tokens, distinguished by the "use" claim. Every token
// carries a unique jti (the revocation-list key), the owning account (sub),
// the session it is bound to (sid), the account's verification flags and
// its permission snapshot — so resource servers can authorize without a
// store round trip.
//
// Signing is ed25519 by default; HS256 is available for single-service
// deployments. Key material is supplied by the operator. Generated keys
// (see [GenerateEd25519Key]) must be persisted: restarting with a fresh
// key invalidates every outstanding token.
package jwt
