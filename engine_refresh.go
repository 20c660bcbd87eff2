package authcore

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/velobay/authcore/internal"
	"github.com/velobay/authcore/internal/rate"
	"github.com/velobay/authcore/jwt"
)

// RefreshResult carries the new access token and, when rotation is
// enabled, the replacement refresh token. With rotation off RefreshToken
// echoes the presented token, which stays valid.
type RefreshResult struct {
	AccountID    string
	SessionID    string
	AccessToken  string
	RefreshToken string
}

// Refresh validates a refresh token (signature, expiry, revocation list,
// session binding), re-reads the account so current verification flags and
// permissions land in the new access token without re-login, slides the
// session expiry, and issues a new access token bound to the same session.
//
// The refresh token is not rotated unless TokenConfig.RotateOnRefresh is
// set; rotation revokes the old jti for its remaining lifetime.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.Parse(refreshToken, jwt.UseRefresh)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, mapTokenError(err)
	}

	if err := e.counters.CheckRefresh(ctx, claims.SID, e.config.Token.MaxRefreshPerSession, e.config.Token.RefreshCooldown); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricRefreshRateLimited)
			return nil, ErrRefreshRateLimited
		}
		e.logger.Error("refresh throttle failed", zap.Error(err))
		return nil, ErrRefreshRateLimited
	}

	revoked, err := e.revocation.IsRevoked(ctx, claims.ID)
	if err != nil {
		e.logger.Error("revocation check failed", zap.Error(err))
		return nil, ErrTokenRevoked
	}
	if revoked {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrTokenRevoked
	}

	sess, err := e.sessions.Get(ctx, claims.SID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, mapSessionError(err)
	}
	if sess.RefreshTokenID != claims.ID || sess.AccountID != claims.Subject {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrTokenRevoked
	}

	account, err := e.store.Accounts().GetByID(ctx, claims.Subject)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, err
	}
	if account.Status == StatusSuspended {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrAccountSuspended
	}

	now := time.Now()
	perms := account.Permissions()

	newRefreshToken := refreshToken
	newRefreshJTI := ""
	if e.config.Token.RotateOnRefresh {
		newRefreshJTI, err = internal.NewTokenID()
		if err != nil {
			return nil, err
		}
		newRefreshToken, _, err = e.jwtManager.Create(jwt.UseRefresh, newRefreshJTI, account.ID, claims.SID, account.PhoneVerified, account.EmailVerified, perms)
		if err != nil {
			return nil, err
		}
		if err := e.revocation.Revoke(ctx, claims.ID, account.ID, "rotated", claims.Remaining(now)); err != nil {
			e.logger.Warn("rotated refresh token revoke failed", zap.Error(err))
		}
	}

	if _, err := e.sessions.Refresh(ctx, claims.SID, e.config.Token.RefreshTTL, now, newRefreshJTI); err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, mapSessionError(err)
	}
	if err := e.store.SessionMetadata().Touch(ctx, claims.SID, now); err != nil {
		e.logger.Warn("session metadata touch failed", zap.Error(err))
	}

	accessJTI, err := internal.NewTokenID()
	if err != nil {
		return nil, err
	}
	accessToken, _, err := e.jwtManager.Create(jwt.UseAccess, accessJTI, account.ID, claims.SID, account.PhoneVerified, account.EmailVerified, perms)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)

	return &RefreshResult{
		AccountID:    account.ID,
		SessionID:    claims.SID,
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
	}, nil
}
