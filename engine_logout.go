package authcore

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/velobay/authcore/jwt"
)

// Logout ends the session bound to a refresh token: deletes the ephemeral
// session, marks the durable twin ended, and revokes the refresh jti for
// its remaining lifetime. An expired or unknown token still returns a
// token error rather than success; a missing session is treated as
// already-logged-out.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	claims, err := e.jwtManager.Parse(refreshToken, jwt.UseRefresh)
	if err != nil {
		return mapTokenError(err)
	}

	return e.revokeSession(ctx, claims.SID, claims.Subject, claims.ID, claims.Remaining(time.Now()), "logout")
}

// RevokeSession ends a session by id, for administrative flows. The
// refresh token's remaining lifetime is not derivable from the session
// alone, so the denylist entry uses the full refresh TTL as the upper
// bound.
func (e *Engine) RevokeSession(ctx context.Context, sessionID, reason string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return mapSessionError(err)
	}

	return e.revokeSession(ctx, sessionID, sess.AccountID, sess.RefreshTokenID, e.config.Token.RefreshTTL, reason)
}

// RevokeAllForAccount ends every indexed session for an account.
// Best-effort across keys: a failure on one session is logged and counted,
// never escalated — the dominant single-device logout path is unaffected.
// Returns how many sessions were revoked.
func (e *Engine) RevokeAllForAccount(ctx context.Context, accountID, reason string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}

	ids, err := e.sessions.ListByAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}

	revoked := 0
	for _, sessionID := range ids {
		sess, err := e.sessions.Get(ctx, sessionID)
		if err != nil {
			// Expired blob behind a stale index entry; drop the entry.
			if _, delErr := e.sessions.Delete(ctx, sessionID, accountID); delErr != nil {
				e.logger.Warn("stale session index cleanup failed",
					zap.String("session_id", sessionID), zap.Error(delErr))
			}
			continue
		}
		if err := e.revokeSession(ctx, sessionID, accountID, sess.RefreshTokenID, e.config.Token.RefreshTTL, reason); err != nil {
			e.logger.Warn("session revoke failed",
				zap.String("session_id", sessionID), zap.Error(err))
			continue
		}
		revoked++
	}

	e.emit(SecurityEvent{
		EventType:   "sessions_revoked_all",
		Severity:    SeverityMedium,
		AccountID:   accountID,
		Description: reason,
		Context:     map[string]string{"revoked": strconv.Itoa(revoked), "indexed": strconv.Itoa(len(ids))},
	})

	return revoked, nil
}

func (e *Engine) revokeSession(ctx context.Context, sessionID, accountID, refreshJTI string, remaining time.Duration, reason string) error {
	now := time.Now()

	if _, err := e.sessions.Delete(ctx, sessionID, accountID); err != nil {
		return err
	}
	if err := e.store.SessionMetadata().End(ctx, sessionID, reason, now); err != nil {
		e.logger.Warn("session metadata end failed", zap.Error(err))
	}
	if refreshJTI != "" {
		if err := e.revocation.Revoke(ctx, refreshJTI, accountID, reason, remaining); err != nil {
			return err
		}
		e.metricInc(MetricTokenRevoked)
	}

	e.metricInc(MetricSessionRevoked)
	e.emit(SecurityEvent{
		EventType:   "session_revoked",
		Severity:    SeverityLow,
		AccountID:   accountID,
		Description: reason,
		Context:     map[string]string{"session_id": sessionID},
	})
	return nil
}

// RevokeToken writes a denylist entry for a token id with TTL equal to the
// token's remaining lifetime. Revoking an already-expired token is a no-op:
// validation rejects it on expiry anyway.
func (e *Engine) RevokeToken(ctx context.Context, token, reason string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	// Either use parses here; the revocation list is use-agnostic.
	claims, err := e.jwtManager.Parse(token, jwt.UseAccess)
	if err != nil {
		claims, err = e.jwtManager.Parse(token, jwt.UseRefresh)
		if err != nil {
			return mapTokenError(err)
		}
	}

	remaining := claims.Remaining(time.Now())
	if remaining <= 0 {
		return nil
	}
	if err := e.revocation.Revoke(ctx, claims.ID, claims.Subject, reason, remaining); err != nil {
		return err
	}

	e.metricInc(MetricTokenRevoked)
	e.emit(SecurityEvent{
		EventType:   "token_revoked",
		Severity:    SeverityMedium,
		AccountID:   claims.Subject,
		Description: reason,
	})
	return nil
}
