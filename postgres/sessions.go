package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velobay/authcore"
)

type sessionMetadataStore struct {
	pool *pgxpool.Pool
}

func (s *sessionMetadataStore) Create(ctx context.Context, meta *authcore.SessionMetadata) error {
	query := `
		INSERT INTO session_metadata (
			metadata_id, session_id, account_id, device,
			created_at, last_activity_at, ended_at, termination_reason,
			active, mobile_verified, email_verified
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := s.pool.Exec(ctx, query,
		meta.MetadataID, meta.SessionID, meta.AccountID, meta.Device,
		meta.CreatedAt, meta.LastActivityAt, nullTime(meta.EndedAt), meta.TerminationReason,
		meta.Active, meta.MobileVerified, meta.EmailVerified,
	)
	if err != nil {
		return fmt.Errorf("insert session metadata: %w", err)
	}
	return nil
}

func (s *sessionMetadataStore) Touch(ctx context.Context, sessionID string, at time.Time) error {
	query := `UPDATE session_metadata SET last_activity_at = $2 WHERE session_id = $1 AND active`
	tag, err := s.pool.Exec(ctx, query, sessionID, at)
	if err != nil {
		return fmt.Errorf("touch session metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrSessionNotFound
	}
	return nil
}

func (s *sessionMetadataStore) End(ctx context.Context, sessionID, reason string, at time.Time) error {
	query := `
		UPDATE session_metadata
		SET active = FALSE, ended_at = $3, termination_reason = $2
		WHERE session_id = $1 AND active`
	tag, err := s.pool.Exec(ctx, query, sessionID, reason, at)
	if err != nil {
		return fmt.Errorf("end session metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrSessionNotFound
	}
	return nil
}

func (s *sessionMetadataStore) GetBySessionID(ctx context.Context, sessionID string) (*authcore.SessionMetadata, error) {
	query := `
		SELECT metadata_id, session_id, account_id, device,
		       created_at, last_activity_at, ended_at, termination_reason,
		       active, mobile_verified, email_verified
		FROM session_metadata WHERE session_id = $1`

	var (
		meta    authcore.SessionMetadata
		endedAt *time.Time
	)
	err := s.pool.QueryRow(ctx, query, sessionID).Scan(
		&meta.MetadataID, &meta.SessionID, &meta.AccountID, &meta.Device,
		&meta.CreatedAt, &meta.LastActivityAt, &endedAt, &meta.TerminationReason,
		&meta.Active, &meta.MobileVerified, &meta.EmailVerified,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authcore.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session metadata: %w", err)
	}
	meta.EndedAt = fromNullTime(endedAt)
	return &meta, nil
}
