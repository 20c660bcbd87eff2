package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velobay/authcore"
)

// Schema is the DDL for every table this package owns. Idempotent; run it
// through [Store.Migrate] on startup or apply it out of band.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id              UUID PRIMARY KEY,
    phone           TEXT NOT NULL UNIQUE,
    phone_verified  BOOLEAN NOT NULL DEFAULT FALSE,
    email           TEXT NOT NULL DEFAULT '',
    email_verified  BOOLEAN NOT NULL DEFAULT FALSE,
    status          TEXT NOT NULL DEFAULT 'PENDING_EMAIL',
    last_login_at   TIMESTAMPTZ,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS accounts_email_key
    ON accounts (email) WHERE email <> '';

CREATE TABLE IF NOT EXISTS session_metadata (
    metadata_id        UUID PRIMARY KEY,
    session_id         TEXT NOT NULL UNIQUE,
    account_id         UUID NOT NULL REFERENCES accounts (id),
    device             TEXT NOT NULL DEFAULT '',
    created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_activity_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    ended_at           TIMESTAMPTZ,
    termination_reason TEXT NOT NULL DEFAULT '',
    active             BOOLEAN NOT NULL DEFAULT TRUE,
    mobile_verified    BOOLEAN NOT NULL DEFAULT FALSE,
    email_verified     BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS session_metadata_account_idx
    ON session_metadata (account_id);

CREATE TABLE IF NOT EXISTS cancellations (
    id                  UUID PRIMARY KEY,
    account_id          UUID NOT NULL REFERENCES accounts (id),
    ride_id             TEXT NOT NULL,
    cancel_type         TEXT NOT NULL,
    reason              TEXT NOT NULL DEFAULT '',
    minutes_before_ride INTEGER NOT NULL DEFAULT 0,
    note                TEXT NOT NULL DEFAULT '',
    month               INTEGER NOT NULL,
    year                INTEGER NOT NULL,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS cancellations_month_idx
    ON cancellations (account_id, cancel_type, year, month);

CREATE TABLE IF NOT EXISTS suspensions (
    id            UUID PRIMARY KEY,
    account_id    UUID NOT NULL REFERENCES accounts (id),
    penalty_type  TEXT NOT NULL,
    start_date    TIMESTAMPTZ NOT NULL,
    end_date      TIMESTAMPTZ NOT NULL,
    duration_days INTEGER NOT NULL,
    active        BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE UNIQUE INDEX IF NOT EXISTS suspensions_active_key
    ON suspensions (account_id) WHERE active;

CREATE TABLE IF NOT EXISTS security_events (
    id          BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    occurred_at TIMESTAMPTZ NOT NULL,
    event_type  TEXT NOT NULL,
    account_id  TEXT NOT NULL DEFAULT '',
    phone       TEXT NOT NULL DEFAULT '',
    email       TEXT NOT NULL DEFAULT '',
    ip          TEXT NOT NULL DEFAULT '',
    severity    TEXT NOT NULL,
    description TEXT NOT NULL,
    context     JSONB
);

CREATE INDEX IF NOT EXISTS security_events_account_idx
    ON security_events (account_id, occurred_at);
`

// Store implements [authcore.DurableStore] on a pgx connection pool.
type Store struct {
	pool          *pgxpool.Pool
	accounts      *accountStore
	sessions      *sessionMetadataStore
	cancellations *cancellationStore
	events        *securityEventStore
}

// New wraps an existing pool. The pool's lifecycle stays with the caller.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:          pool,
		accounts:      &accountStore{pool: pool},
		sessions:      &sessionMetadataStore{pool: pool},
		cancellations: &cancellationStore{pool: pool},
		events:        &securityEventStore{pool: pool},
	}
}

// Connect creates a pool from a connection string and pings it.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return New(pool), nil
}

// Migrate applies [Schema].
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// Accounts implements [authcore.DurableStore].
func (s *Store) Accounts() authcore.AccountStore { return s.accounts }

// SessionMetadata implements [authcore.DurableStore].
func (s *Store) SessionMetadata() authcore.SessionMetadataStore { return s.sessions }

// Cancellations implements [authcore.DurableStore].
func (s *Store) Cancellations() authcore.CancellationStore { return s.cancellations }

// SecurityEvents implements [authcore.DurableStore].
func (s *Store) SecurityEvents() authcore.SecurityEventStore { return s.events }

// nullTime maps Go's zero time to SQL NULL and back.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func fromNullTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
