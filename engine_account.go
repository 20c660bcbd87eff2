package authcore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RegistrationResult reports the outcome of Register.
type RegistrationResult struct {
	AccountID string
	Challenge *Challenge
}

// Register creates an account anchored on a phone number and issues the
// first mobile OTP. The account starts PendingEmail with both flags false.
// A phone collision returns ErrPhoneExists.
func (e *Engine) Register(ctx context.Context, phone, ip string) (*RegistrationResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	account := &Account{
		ID:        uuid.NewString(),
		Phone:     phone,
		Status:    StatusPendingEmail,
		CreatedAt: time.Now(),
	}
	if err := e.store.Accounts().Create(ctx, account); err != nil {
		return nil, err
	}

	e.emit(SecurityEvent{
		EventType:   "account_registered",
		Severity:    SeverityLow,
		AccountID:   account.ID,
		Phone:       phone,
		IP:          ip,
		Description: "account created, phone verification pending",
	})

	challenge, err := e.RequestOTP(ctx, ChannelMobile, phone, ip)
	if err != nil {
		// The account exists either way; the caller can re-request a code.
		e.logger.Warn("registration otp issue failed", zap.Error(err))
		return &RegistrationResult{AccountID: account.ID}, nil
	}

	return &RegistrationResult{AccountID: account.ID, Challenge: challenge}, nil
}

// VerifyPhone verifies the mobile OTP for a phone number and marks the
// account's phone flag. Status does not change: an account without a
// verified corporate email stays PendingEmail.
func (e *Engine) VerifyPhone(ctx context.Context, phone, code string) (*Account, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	if err := e.VerifyOTP(ctx, ChannelMobile, phone, code); err != nil {
		return nil, err
	}

	account, err := e.store.Accounts().GetByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}

	return account, e.markPhoneVerified(ctx, account)
}

// AttachCorporateEmail stages a corporate email on the account and issues
// the email OTP. The email stays unverified until VerifyEmail succeeds.
// An email collision returns ErrEmailExists.
func (e *Engine) AttachCorporateEmail(ctx context.Context, accountID, email, ip string) (*Challenge, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	account, err := e.store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if err := e.store.Accounts().SetEmail(ctx, account.ID, email); err != nil {
		return nil, err
	}

	return e.RequestOTP(ctx, ChannelEmail, email, ip)
}

// VerifyEmail verifies the email OTP and marks the account's email flag.
// When the phone is already verified this completes activation:
// PendingEmail transitions to Active.
func (e *Engine) VerifyEmail(ctx context.Context, email, code string) (*Account, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	if err := e.VerifyOTP(ctx, ChannelEmail, email, code); err != nil {
		return nil, err
	}

	account, err := e.store.Accounts().GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	return account, e.markEmailVerified(ctx, account)
}

// MarkPhoneVerified flips the phone flag directly. Exposed for operator
// tooling; the OTP path goes through VerifyPhone.
func (e *Engine) MarkPhoneVerified(ctx context.Context, accountID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	account, err := e.store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	return e.markPhoneVerified(ctx, account)
}

// MarkEmailVerified flips the email flag directly and applies the
// activation transition when due.
func (e *Engine) MarkEmailVerified(ctx context.Context, accountID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	account, err := e.store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	return e.markEmailVerified(ctx, account)
}

func (e *Engine) markPhoneVerified(ctx context.Context, account *Account) error {
	if account.PhoneVerified {
		return nil
	}
	if err := e.store.Accounts().SetPhoneVerified(ctx, account.ID, true); err != nil {
		return err
	}
	account.PhoneVerified = true

	e.emit(SecurityEvent{
		EventType:   "phone_verified",
		Severity:    SeverityLow,
		AccountID:   account.ID,
		Phone:       account.Phone,
		Description: "phone number verified",
	})

	return e.maybeActivate(ctx, account)
}

func (e *Engine) markEmailVerified(ctx context.Context, account *Account) error {
	if account.EmailVerified {
		return nil
	}
	if err := e.store.Accounts().SetEmailVerified(ctx, account.ID, true); err != nil {
		return err
	}
	account.EmailVerified = true

	e.emit(SecurityEvent{
		EventType:   "email_verified",
		Severity:    SeverityLow,
		AccountID:   account.ID,
		Email:       account.Email,
		Description: "corporate email verified",
	})

	return e.maybeActivate(ctx, account)
}

// maybeActivate applies the only automatic forward transition:
// PendingEmail→Active once both flags hold. Suspended accounts never
// activate here; that edge belongs to Reactivate.
func (e *Engine) maybeActivate(ctx context.Context, account *Account) error {
	if account.Status != StatusPendingEmail || !account.PhoneVerified || !account.EmailVerified {
		return nil
	}
	if err := e.store.Accounts().SetStatus(ctx, account.ID, StatusActive); err != nil {
		return err
	}
	account.Status = StatusActive

	e.metricInc(MetricAccountActivated)
	e.emit(SecurityEvent{
		EventType:   "account_activated",
		Severity:    SeverityLow,
		AccountID:   account.ID,
		Description: "account fully verified and activated",
	})
	return nil
}

// Suspend moves the account to Suspended. Policy and operator entry point.
func (e *Engine) Suspend(ctx context.Context, accountID, reason string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	account, err := e.store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account.Status == StatusSuspended {
		return nil
	}

	if err := e.store.Accounts().SetStatus(ctx, accountID, StatusSuspended); err != nil {
		return err
	}

	e.emit(SecurityEvent{
		EventType:   "account_suspended",
		Severity:    SeverityHigh,
		AccountID:   accountID,
		Description: reason,
	})
	return nil
}

// Reactivate is the only reverse edge out of Suspended, gated on both
// verification flags still being true.
func (e *Engine) Reactivate(ctx context.Context, accountID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	account, err := e.store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account.Status != StatusSuspended {
		return nil
	}
	if !account.PhoneVerified || !account.EmailVerified {
		return ErrNotFullyVerified
	}

	if err := e.store.Accounts().SetStatus(ctx, accountID, StatusActive); err != nil {
		return err
	}

	e.metricInc(MetricAccountReactivated)
	e.emit(SecurityEvent{
		EventType:   "account_reactivated",
		Severity:    SeverityMedium,
		AccountID:   accountID,
		Description: "suspension lifted",
	})
	return nil
}

// RequireVerificationLevel is the read-only guard downstream features call
// before their own mutations. It is the single coupling point between this
// core and the profile/wallet/safety modules: they never write verification
// flags themselves.
func (e *Engine) RequireVerificationLevel(ctx context.Context, accountID string, level VerificationLevel) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	account, err := e.store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account.Status == StatusSuspended {
		return ErrAccountSuspended
	}
	if account.Level() < level {
		return ErrNotFullyVerified
	}
	return nil
}

// GetAccount fetches the durable account row.
func (e *Engine) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	return e.store.Accounts().GetByID(ctx, accountID)
}
