package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velobay/authcore"
)

type cancellationStore struct {
	pool *pgxpool.Pool
}

func (s *cancellationStore) Insert(ctx context.Context, rec *authcore.CancellationRecord) error {
	query := `
		INSERT INTO cancellations (
			id, account_id, ride_id, cancel_type, reason,
			minutes_before_ride, note, month, year, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.AccountID, rec.RideID, string(rec.Type), rec.Reason,
		rec.MinutesBeforeRide, rec.Note, rec.Month, rec.Year, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert cancellation: %w", err)
	}
	return nil
}

func (s *cancellationStore) CountByMonth(ctx context.Context, accountID string, t authcore.CancellationType, month, year int) (int, error) {
	query := `
		SELECT count(*) FROM cancellations
		WHERE account_id = $1 AND cancel_type = $2 AND month = $3 AND year = $4`
	var count int
	if err := s.pool.QueryRow(ctx, query, accountID, string(t), month, year).Scan(&count); err != nil {
		return 0, fmt.Errorf("count cancellations: %w", err)
	}
	return count, nil
}

func (s *cancellationStore) InsertSuspension(ctx context.Context, rec *authcore.SuspensionRecord) error {
	query := `
		INSERT INTO suspensions (id, account_id, penalty_type, start_date, end_date, duration_days, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.AccountID, rec.PenaltyType,
		rec.StartDate, rec.EndDate, rec.DurationDays, rec.Active,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return authcore.ErrSuspensionExists
		}
		return fmt.Errorf("insert suspension: %w", err)
	}
	return nil
}

func (s *cancellationStore) ActiveSuspension(ctx context.Context, accountID string) (*authcore.SuspensionRecord, error) {
	query := `
		SELECT id, account_id, penalty_type, start_date, end_date, duration_days, active
		FROM suspensions WHERE account_id = $1 AND active`
	var rec authcore.SuspensionRecord
	err := s.pool.QueryRow(ctx, query, accountID).Scan(
		&rec.ID, &rec.AccountID, &rec.PenaltyType,
		&rec.StartDate, &rec.EndDate, &rec.DurationDays, &rec.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active suspension: %w", err)
	}
	return &rec, nil
}

func (s *cancellationStore) DeactivateExpired(ctx context.Context, now time.Time) ([]string, error) {
	query := `
		UPDATE suspensions SET active = FALSE
		WHERE active AND end_date <= $1
		RETURNING account_id`
	rows, err := s.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("deactivate suspensions: %w", err)
	}
	defer rows.Close()

	var accountIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan suspension row: %w", err)
		}
		accountIDs = append(accountIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("deactivate suspensions: %w", err)
	}
	return accountIDs, nil
}
