package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velobay/authcore"
)

type securityEventStore struct {
	pool *pgxpool.Pool
}

func (s *securityEventStore) Append(ctx context.Context, event *authcore.SecurityEvent) error {
	var contextJSON []byte
	if len(event.Context) > 0 {
		b, err := json.Marshal(event.Context)
		if err != nil {
			return fmt.Errorf("marshal event context: %w", err)
		}
		contextJSON = b
	}

	query := `
		INSERT INTO security_events (
			occurred_at, event_type, account_id, phone, email, ip,
			severity, description, context
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.pool.Exec(ctx, query,
		event.Timestamp, event.EventType, event.AccountID, event.Phone,
		event.Email, event.IP, string(event.Severity), event.Description,
		contextJSON,
	)
	if err != nil {
		return fmt.Errorf("append security event: %w", err)
	}
	return nil
}
