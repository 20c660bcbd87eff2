package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velobay/authcore"
)

type accountStore struct {
	pool *pgxpool.Pool
}

func (s *accountStore) Create(ctx context.Context, account *authcore.Account) error {
	query := `
		INSERT INTO accounts (id, phone, phone_verified, email, email_verified, status, last_login_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.pool.Exec(ctx, query,
		account.ID, account.Phone, account.PhoneVerified,
		account.Email, account.EmailVerified, account.Status.String(),
		nullTime(account.LastLoginAt), account.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if strings.Contains(pgErr.ConstraintName, "email") {
				return authcore.ErrEmailExists
			}
			return authcore.ErrPhoneExists
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

const accountColumns = `id, phone, phone_verified, email, email_verified, status, last_login_at, created_at`

func (s *accountStore) scanAccount(row pgx.Row) (*authcore.Account, error) {
	var (
		account     authcore.Account
		status      string
		lastLoginAt *time.Time
	)
	err := row.Scan(
		&account.ID, &account.Phone, &account.PhoneVerified,
		&account.Email, &account.EmailVerified, &status,
		&lastLoginAt, &account.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authcore.ErrAccountNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	account.Status = authcore.ParseAccountStatus(status)
	account.LastLoginAt = fromNullTime(lastLoginAt)
	return &account, nil
}

func (s *accountStore) GetByID(ctx context.Context, id string) (*authcore.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return s.scanAccount(s.pool.QueryRow(ctx, query, id))
}

func (s *accountStore) GetByPhone(ctx context.Context, phone string) (*authcore.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE phone = $1`
	return s.scanAccount(s.pool.QueryRow(ctx, query, phone))
}

func (s *accountStore) GetByEmail(ctx context.Context, email string) (*authcore.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1 AND email <> ''`
	return s.scanAccount(s.pool.QueryRow(ctx, query, email))
}

func (s *accountStore) SetPhoneVerified(ctx context.Context, id string, verified bool) error {
	return s.updateOne(ctx, `UPDATE accounts SET phone_verified = $2 WHERE id = $1`, id, verified)
}

func (s *accountStore) SetEmailVerified(ctx context.Context, id string, verified bool) error {
	return s.updateOne(ctx, `UPDATE accounts SET email_verified = $2 WHERE id = $1`, id, verified)
}

func (s *accountStore) SetEmail(ctx context.Context, id, email string) error {
	err := s.updateOne(ctx, `UPDATE accounts SET email = $2, email_verified = FALSE WHERE id = $1`, id, email)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return authcore.ErrEmailExists
		}
	}
	return err
}

func (s *accountStore) SetStatus(ctx context.Context, id string, status authcore.AccountStatus) error {
	return s.updateOne(ctx, `UPDATE accounts SET status = $2 WHERE id = $1`, id, status.String())
}

func (s *accountStore) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	return s.updateOne(ctx, `UPDATE accounts SET last_login_at = $2 WHERE id = $1`, id, at)
}

func (s *accountStore) updateOne(ctx context.Context, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrAccountNotFound
	}
	return nil
}
