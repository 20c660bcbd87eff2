package session

// Session is the ephemeral per-device session record. The permission and
// verification fields are a snapshot taken at creation or last refresh;
// the engine re-reads the account when it needs current values.
type Session struct {
	SessionID      string
	AccountID      string
	Device         string
	Permissions    []string
	MobileVerified bool
	EmailVerified  bool
	RefreshTokenID string

	CreatedAt    int64
	LastAccessAt int64
	ExpiresAt    int64
}
