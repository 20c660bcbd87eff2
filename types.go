package authcore

import (
	"context"
	"time"
)

// AccountStatus represents the lifecycle state of an account.
//
// PendingEmail is the initial state: the phone may already be verified but
// the corporate email is not. Active requires both verification flags.
// Suspended is entered by policy and leaves only through Reactivate, which
// demands both flags still true.
type AccountStatus uint8

const (
	// StatusPendingEmail is the initial account state.
	StatusPendingEmail AccountStatus = iota
	// StatusActive means both phone and corporate email are verified.
	StatusActive
	// StatusSuspended means the account is barred by policy.
	StatusSuspended
)

// String returns the stable storage form of the status.
func (s AccountStatus) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusSuspended:
		return "SUSPENDED"
	default:
		return "PENDING_EMAIL"
	}
}

// ParseAccountStatus maps the storage form back to the enum.
func ParseAccountStatus(s string) AccountStatus {
	switch s {
	case "ACTIVE":
		return StatusActive
	case "SUSPENDED":
		return StatusSuspended
	default:
		return StatusPendingEmail
	}
}

// VerificationLevel is the ordered capability tier an account holds.
type VerificationLevel uint8

const (
	// LevelUnverified means no channel has been proven yet.
	LevelUnverified VerificationLevel = iota
	// LevelMobileVerified means control of the phone number is proven.
	LevelMobileVerified
	// LevelFullyVerified means phone and corporate email are both proven.
	LevelFullyVerified
)

// Channel identifies an OTP delivery channel.
type Channel string

const (
	// ChannelMobile delivers codes over SMS to a phone number.
	ChannelMobile Channel = "mobile"
	// ChannelEmail delivers codes to a corporate email address.
	ChannelEmail Channel = "email"
)

// Account is the identity anchor persisted in the durable store.
// Phone numbers are unique; the corporate email is unique once attached.
// Accounts are never hard-deleted by this core.
type Account struct {
	ID            string
	Phone         string
	PhoneVerified bool
	Email         string
	EmailVerified bool
	Status        AccountStatus
	LastLoginAt   time.Time
	CreatedAt     time.Time
}

// Level derives the verification tier from the account flags.
func (a *Account) Level() VerificationLevel {
	switch {
	case a.PhoneVerified && a.EmailVerified:
		return LevelFullyVerified
	case a.PhoneVerified:
		return LevelMobileVerified
	default:
		return LevelUnverified
	}
}

// Permissions derives the permission snapshot embedded in tokens and
// sessions. Tiers are cumulative.
func (a *Account) Permissions() []string {
	perms := []string{"account:read"}
	if a.PhoneVerified {
		perms = append(perms, "ride:request", "wallet:read")
	}
	if a.PhoneVerified && a.EmailVerified {
		perms = append(perms, "ride:drive", "wallet:manage")
	}
	return perms
}

// SessionMetadata is the durable twin of an ephemeral session: an
// audit-grade row that outlives the session's Redis TTL.
type SessionMetadata struct {
	MetadataID        string
	SessionID         string
	AccountID         string
	Device            string
	CreatedAt         time.Time
	LastActivityAt    time.Time
	EndedAt           time.Time
	TerminationReason string
	Active            bool
	MobileVerified    bool
	EmailVerified     bool
}

// CancellationType distinguishes who cancelled a ride.
type CancellationType string

const (
	// CancelDriver marks a driver-initiated cancellation. Only these count
	// toward suspension.
	CancelDriver CancellationType = "DRIVER"
	// CancelRider marks a rider-initiated cancellation, logged for
	// analytics only.
	CancelRider CancellationType = "RIDER"
)

// CancellationRecord is one row of the cancellation log, bucketed by
// calendar month.
type CancellationRecord struct {
	ID                string
	AccountID         string
	RideID            string
	Type              CancellationType
	Reason            string
	MinutesBeforeRide int
	Note              string
	Month             int
	Year              int
	CreatedAt         time.Time
}

// SuspensionRecord is the penalty row created when the monthly driver
// cancellation count crosses the trigger threshold. At most one active row
// exists per account; the store enforces that.
type SuspensionRecord struct {
	ID           string
	AccountID    string
	PenaltyType  string
	StartDate    time.Time
	EndDate      time.Time
	DurationDays int
	Active       bool
}

// Severity grades a security event.
type Severity string

const (
	// SeverityLow marks routine events.
	SeverityLow Severity = "LOW"
	// SeverityMedium marks events worth watching (failed attempts).
	SeverityMedium Severity = "MEDIUM"
	// SeverityHigh marks events demanding attention (lockouts, suspensions).
	SeverityHigh Severity = "HIGH"
)

// SecurityEvent is one append-only row of the security audit log. It is
// never updated or deleted by this core.
type SecurityEvent struct {
	Timestamp   time.Time         `json:"timestamp"`
	EventType   string            `json:"event_type"`
	AccountID   string            `json:"account_id,omitempty"`
	Phone       string            `json:"phone,omitempty"`
	Email       string            `json:"email,omitempty"`
	IP          string            `json:"ip,omitempty"`
	Severity    Severity          `json:"severity"`
	Description string            `json:"description"`
	Context     map[string]string `json:"context,omitempty"`
}

// AccountStore is the durable adapter for accounts.
type AccountStore interface {
	Create(ctx context.Context, account *Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByPhone(ctx context.Context, phone string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	// SetPhoneVerified and SetEmailVerified flip a single flag; status
	// transitions are computed by the engine and written via SetStatus.
	SetPhoneVerified(ctx context.Context, id string, verified bool) error
	SetEmailVerified(ctx context.Context, id string, verified bool) error
	SetEmail(ctx context.Context, id, email string) error
	SetStatus(ctx context.Context, id string, status AccountStatus) error
	SetLastLogin(ctx context.Context, id string, at time.Time) error
}

// SessionMetadataStore is the durable adapter for session audit rows.
type SessionMetadataStore interface {
	Create(ctx context.Context, meta *SessionMetadata) error
	Touch(ctx context.Context, sessionID string, at time.Time) error
	End(ctx context.Context, sessionID, reason string, at time.Time) error
	GetBySessionID(ctx context.Context, sessionID string) (*SessionMetadata, error)
}

// CancellationStore is the durable adapter for the cancellation log and
// suspension rows.
type CancellationStore interface {
	Insert(ctx context.Context, rec *CancellationRecord) error
	// CountByMonth counts cancellations of the given type for an account in
	// a calendar month bucket.
	CountByMonth(ctx context.Context, accountID string, t CancellationType, month, year int) (int, error)
	// InsertSuspension creates a penalty row. Must return
	// ErrSuspensionExists when an active row already exists for the account.
	InsertSuspension(ctx context.Context, rec *SuspensionRecord) error
	ActiveSuspension(ctx context.Context, accountID string) (*SuspensionRecord, error)
	// DeactivateExpired flips active=false on rows whose end date has
	// passed and returns the affected account ids.
	DeactivateExpired(ctx context.Context, now time.Time) ([]string, error)
}

// SecurityEventStore is the durable adapter for the append-only audit log.
type SecurityEventStore interface {
	Append(ctx context.Context, event *SecurityEvent) error
}

// DurableStore bundles the relational adapters the engine needs.
type DurableStore interface {
	Accounts() AccountStore
	SessionMetadata() SessionMetadataStore
	Cancellations() CancellationStore
	SecurityEvents() SecurityEventStore
}

// Notifier delivers one-time codes out of band. Delivery failure never
// rolls back challenge creation; the engine surfaces it via the
// OTPSent flag on the issue result.
type Notifier interface {
	Send(ctx context.Context, channel Channel, destination, code string) error
}

// NoopNotifier swallows every send. Default when no notifier is wired;
// also the test implementation.
type NoopNotifier struct{}

// Send implements [Notifier].
func (NoopNotifier) Send(context.Context, Channel, string, string) error { return nil }

// NotifierFunc adapts a function to the [Notifier] interface.
type NotifierFunc func(ctx context.Context, channel Channel, destination, code string) error

// Send implements [Notifier].
func (f NotifierFunc) Send(ctx context.Context, channel Channel, destination, code string) error {
	return f(ctx, channel, destination, code)
}
