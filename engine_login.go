package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/velobay/authcore/internal"
	"github.com/velobay/authcore/internal/rate"
	"github.com/velobay/authcore/jwt"
	"github.com/velobay/authcore/session"
)

// LoginResult carries the tokens and session minted by a completed login.
type LoginResult struct {
	AccountID    string
	SessionID    string
	AccessToken  string
	RefreshToken string
	Account      *Account
}

// AuthResult is returned by Validate: the authenticated account, its
// session and the snapshot embedded in the token.
type AuthResult struct {
	AccountID      string
	SessionID      string
	TokenID        string
	MobileVerified bool
	EmailVerified  bool
	Permissions    []string
}

// LoginWithOTP completes a phone login: lockout gate, OTP verification,
// account status gate, session materialization and token issuance. A
// successful login clears the identifier's failure counters and stamps
// lastLoginAt.
func (e *Engine) LoginWithOTP(ctx context.Context, phone, code, device, ip string) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	locked, err := e.lockout.IsLocked(ctx, phone)
	if err != nil {
		e.logger.Error("lockout check failed", zap.Error(err))
		return nil, ErrAccountLocked
	}
	if locked {
		e.metricInc(MetricLoginFailure)
		return nil, ErrAccountLocked
	}

	if err := e.VerifyOTP(ctx, ChannelMobile, phone, code); err != nil {
		e.metricInc(MetricLoginFailure)
		if ip != "" {
			if _, ipErr := e.counters.Increment(ctx, rate.ScopeIP, ip, e.config.Lockout.FailureWindow); ipErr != nil {
				e.logger.Warn("ip failure counter failed", zap.Error(ipErr))
			}
		}
		return nil, err
	}

	account, err := e.store.Accounts().GetByPhone(ctx, phone)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		return nil, err
	}

	if account.Status == StatusSuspended {
		e.metricInc(MetricLoginFailure)
		e.emit(SecurityEvent{
			EventType:   "login_rejected",
			Severity:    SeverityMedium,
			AccountID:   account.ID,
			IP:          ip,
			Description: "login attempt on suspended account",
		})
		return nil, ErrAccountSuspended
	}

	// OTP success proves channel control even for first login.
	if err := e.markPhoneVerified(ctx, account); err != nil {
		return nil, err
	}

	result, err := e.createSession(ctx, account, device, ip)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		return nil, err
	}

	if err := e.lockout.Unlock(ctx, phone); err != nil {
		e.logger.Warn("counter clear after login failed", zap.Error(err))
	}
	if err := e.store.Accounts().SetLastLogin(ctx, account.ID, time.Now()); err != nil {
		e.logger.Warn("last login update failed", zap.Error(err))
	}

	e.metricInc(MetricLoginSuccess)
	e.emit(SecurityEvent{
		EventType:   "login_success",
		Severity:    SeverityLow,
		AccountID:   account.ID,
		IP:          ip,
		Description: "login completed",
		Context:     map[string]string{"session_id": result.SessionID},
	})

	return result, nil
}

// createSession writes the durable SessionMetadata row first (audit source
// of truth), then the ephemeral session (live validity), then mints the
// token pair. A crash between the writes leaves an inactive metadata row
// and no session: "not fully created", retried by the caller.
func (e *Engine) createSession(ctx context.Context, account *Account, device, ip string) (*LoginResult, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	sessionID := sid.String()

	refreshJTI, err := internal.NewTokenID()
	if err != nil {
		return nil, err
	}
	accessJTI, err := internal.NewTokenID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	perms := account.Permissions()

	meta := &SessionMetadata{
		MetadataID:     uuid.NewString(),
		SessionID:      sessionID,
		AccountID:      account.ID,
		Device:         device,
		CreatedAt:      now,
		LastActivityAt: now,
		Active:         true,
		MobileVerified: account.PhoneVerified,
		EmailVerified:  account.EmailVerified,
	}
	if err := e.store.SessionMetadata().Create(ctx, meta); err != nil {
		return nil, err
	}

	sess := &session.Session{
		SessionID:      sessionID,
		AccountID:      account.ID,
		Device:         device,
		Permissions:    perms,
		MobileVerified: account.PhoneVerified,
		EmailVerified:  account.EmailVerified,
		RefreshTokenID: refreshJTI,
		CreatedAt:      now.Unix(),
		LastAccessAt:   now.Unix(),
		ExpiresAt:      now.Add(e.config.Token.RefreshTTL).Unix(),
	}
	if err := e.sessions.Save(ctx, sess, e.config.Token.RefreshTTL); err != nil {
		return nil, err
	}

	accessToken, _, err := e.jwtManager.Create(jwt.UseAccess, accessJTI, account.ID, sessionID, account.PhoneVerified, account.EmailVerified, perms)
	if err != nil {
		return nil, err
	}
	refreshToken, _, err := e.jwtManager.Create(jwt.UseRefresh, refreshJTI, account.ID, sessionID, account.PhoneVerified, account.EmailVerified, perms)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricSessionCreated)

	return &LoginResult{
		AccountID:    account.ID,
		SessionID:    sessionID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Account:      account,
	}, nil
}

// Validate verifies an access token: signature, expiry, then the
// revocation list for its jti. Revocation lookups fail closed.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.Parse(accessToken, jwt.UseAccess)
	if err != nil {
		return nil, mapTokenError(err)
	}

	revoked, err := e.revocation.IsRevoked(ctx, claims.ID)
	if err != nil {
		e.logger.Error("revocation check failed", zap.Error(err))
		return nil, ErrTokenRevoked
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	return &AuthResult{
		AccountID:      claims.Subject,
		SessionID:      claims.SID,
		TokenID:        claims.ID,
		MobileVerified: claims.MobileVerified,
		EmailVerified:  claims.EmailVerified,
		Permissions:    claims.Permissions,
	}, nil
}

// Touch records activity on a session without extending its TTL.
func (e *Engine) Touch(ctx context.Context, sessionID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	now := time.Now()
	if err := e.sessions.Touch(ctx, sessionID, now); err != nil {
		return mapSessionError(err)
	}
	if err := e.store.SessionMetadata().Touch(ctx, sessionID, now); err != nil {
		e.logger.Warn("session metadata touch failed", zap.Error(err))
	}
	return nil
}

func mapTokenError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrExpired):
		return ErrTokenExpired
	default:
		return ErrTokenMalformed
	}
}

func mapSessionError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, session.ErrSessionNotFound) {
		return ErrSessionNotFound
	}
	return err
}
