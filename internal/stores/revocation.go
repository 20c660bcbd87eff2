package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRevocationUnavailable is returned when the revocation backend is
// unreachable. Callers must treat it as revoked (fail closed).
var ErrRevocationUnavailable = errors.New("revocation redis unavailable")

// RevocationStore keeps the token denylist. Entries are keyed by jti and
// carry a TTL equal to the token's remaining lifetime, so an entry
// disappears exactly when expiry would reject the token anyway.
type RevocationStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRevocationStore creates a revocation store with the given key prefix.
func NewRevocationStore(redisClient redis.UniversalClient, prefix string) *RevocationStore {
	if prefix == "" {
		prefix = "arv"
	}
	return &RevocationStore{redis: redisClient, prefix: prefix}
}

func (s *RevocationStore) key(jti string) string {
	return s.prefix + ":" + jti
}

// Revoke writes a denylist entry for a token id. A non-positive remaining
// lifetime makes this a no-op: expiry already rejects the token.
func (s *RevocationStore) Revoke(ctx context.Context, jti, accountID, reason string, remaining time.Duration) error {
	if remaining <= 0 {
		return nil
	}

	value := accountID + "|" + reason
	if err := s.redis.Set(ctx, s.key(jti), value, remaining).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether a live denylist entry exists for the token id.
func (s *RevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(jti)).Result()
	if err != nil {
		return true, fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	return n > 0, nil
}
