package authcore

import "errors"

var (
	// ErrEngineNotReady is returned when a flow runs before Build completed.
	ErrEngineNotReady = errors.New("engine not ready")

	// ErrAccountNotFound is returned when no account matches the lookup.
	ErrAccountNotFound = errors.New("account not found")
	// ErrSessionNotFound is returned when no live session matches the id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrPhoneExists is returned when registration collides on phone number.
	ErrPhoneExists = errors.New("phone number already registered")
	// ErrEmailExists is returned when the corporate email is already attached elsewhere.
	ErrEmailExists = errors.New("email already registered")

	// ErrOTPNotFound is returned when no live challenge exists for the key.
	ErrOTPNotFound = errors.New("otp challenge not found")
	// ErrOTPExpired is returned when the challenge window has passed.
	ErrOTPExpired = errors.New("otp challenge expired")
	// ErrOTPMismatch is returned when the submitted code does not match.
	ErrOTPMismatch = errors.New("otp code mismatch")
	// ErrOTPAttemptsExceeded is returned once the challenge attempt budget is consumed.
	ErrOTPAttemptsExceeded = errors.New("otp attempts exceeded")
	// ErrOTPRateLimited is returned when code requests exceed the issue budget.
	ErrOTPRateLimited = errors.New("otp requests rate limited")

	// ErrTokenExpired is returned when a token is past its expiry claim.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned when a token id is on the revocation list.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenMalformed is returned for tokens that fail to parse or carry
	// an invalid signature.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrRefreshRateLimited is returned when refresh calls exceed the per-session budget.
	ErrRefreshRateLimited = errors.New("refresh rate limited")

	// ErrAccountLocked is returned while a lockout entry is live. The
	// message is deliberately generic: callers must not reveal whether
	// lockout, suspension or bad credentials caused the rejection.
	ErrAccountLocked = errors.New("too many attempts, try again later")
	// ErrAccountSuspended is returned for accounts under an active suspension.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrNotFullyVerified is returned by verification-tier guards and by
	// Reactivate when a flag is missing.
	ErrNotFullyVerified = errors.New("verification level not met")

	// ErrSuspensionExists is returned by the durable store when an active
	// suspension row already exists for the account. The policy treats it
	// as an idempotent no-op.
	ErrSuspensionExists = errors.New("active suspension already exists")

	// ErrStoreUnavailable wraps unexpected durable-store failures surfaced
	// to callers. Security checks never fail open on it.
	ErrStoreUnavailable = errors.New("durable store unavailable")
)
