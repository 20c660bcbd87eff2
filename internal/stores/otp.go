package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	otpKeyPrefix       = "otp"
	otpRecordVersionV1 = 1
)

var (
	// ErrChallengeNotFound is returned when no live challenge exists for the key.
	ErrChallengeNotFound = errors.New("otp challenge not found")
	// ErrChallengeExpired is returned when the challenge window has passed.
	ErrChallengeExpired = errors.New("otp challenge expired")
	// ErrCodeMismatch is returned when the submitted code does not match.
	ErrCodeMismatch = errors.New("otp code mismatch")
	// ErrAttemptsExceeded is returned once the challenge has consumed its attempt budget.
	ErrAttemptsExceeded = errors.New("otp attempts exceeded")
	// ErrOTPRedisUnavailable is returned when the challenge backend is unreachable.
	ErrOTPRedisUnavailable = errors.New("otp redis unavailable")
)

// ChallengeRecord is the stored form of an OTP challenge. Only the code
// hash is persisted; the plaintext code exists solely in the delivery path.
type ChallengeRecord struct {
	CodeHash  [32]byte
	Attempts  uint16
	CreatedAt int64
	ExpiresAt int64
	Verified  bool
}

// OTPStore keeps at most one live challenge per (channel, identifier) key.
// Saving a new record for the same key supersedes the previous one.
type OTPStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewOTPStore creates an OTP challenge store with the given key prefix.
func NewOTPStore(redisClient redis.UniversalClient, prefix string) *OTPStore {
	if prefix == "" {
		prefix = otpKeyPrefix
	}
	return &OTPStore{redis: redisClient, prefix: prefix}
}

func (s *OTPStore) key(channel, identifier string) string {
	return s.prefix + ":" + channel + ":" + identifier
}

// Save stores a challenge record, overwriting any prior live challenge for
// the same key. The TTL bounds the challenge window; Redis expiry is the
// backstop, the record's ExpiresAt is the authoritative check.
func (s *OTPStore) Save(ctx context.Context, channel, identifier string, record *ChallengeRecord, ttl time.Duration) error {
	encoded, err := encodeChallengeRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(channel, identifier), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	return nil
}

// Get returns the live challenge record for a key, or ErrChallengeNotFound.
func (s *OTPStore) Get(ctx context.Context, channel, identifier string) (*ChallengeRecord, error) {
	data, err := s.redis.Get(ctx, s.key(channel, identifier)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	return decodeChallengeRecord(data)
}

// Delete removes the challenge for a key. Deleting a missing key is a no-op.
func (s *OTPStore) Delete(ctx context.Context, channel, identifier string) error {
	if err := s.redis.Del(ctx, s.key(channel, identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	return nil
}

// VerifyAttempt runs one verification attempt against the live challenge.
//
// Outcomes:
//   - ErrChallengeNotFound — no live challenge for the key.
//   - ErrChallengeExpired — window passed; the record is removed.
//   - ErrAttemptsExceeded — attempt budget already consumed, or consumed by
//     this mismatch. The terminal record is kept so later submissions keep
//     failing with the same outcome instead of NotFound.
//   - ErrCodeMismatch — wrong code; attempts incremented by exactly one.
//   - nil — hash matched; the record is marked verified in place. Verifying
//     an already-verified live challenge again is an idempotent success.
//
// The attempt runs under WATCH so concurrent attempts on the same challenge
// serialize their increments.
func (s *OTPStore) VerifyAttempt(ctx context.Context, channel, identifier string, providedHash [32]byte, maxAttempts int) (*ChallengeRecord, error) {
	const maxRetries = 4
	key := s.key(channel, identifier)

	for i := 0; i < maxRetries; i++ {
		var verified *ChallengeRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeChallengeRecord(data)
			if err != nil {
				return err
			}

			now := time.Now()
			if now.Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrChallengeExpired
			}

			if int(record.Attempts) >= maxAttempts {
				return ErrAttemptsExceeded
			}

			ttl := time.Until(time.Unix(record.ExpiresAt, 0))
			if ttl <= 0 {
				ttl = time.Second
			}

			if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
				record.Attempts++
				record.Verified = false

				updated, err := encodeChallengeRecord(record)
				if err != nil {
					return err
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				if err != nil {
					return err
				}
				if int(record.Attempts) >= maxAttempts {
					return ErrAttemptsExceeded
				}
				return ErrCodeMismatch
			}

			if !record.Verified {
				record.Verified = true
				updated, err := encodeChallengeRecord(record)
				if err != nil {
					return err
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				if err != nil {
					return err
				}
			}

			verified = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, ErrChallengeNotFound
			case errors.Is(err, ErrChallengeExpired), errors.Is(err, ErrCodeMismatch), errors.Is(err, ErrAttemptsExceeded):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
			}
		}

		return verified, nil
	}

	return nil, ErrChallengeNotFound
}

func encodeChallengeRecord(record *ChallengeRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(otpRecordVersionV1)

	var flags byte
	if record.Verified {
		flags |= 1
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeChallengeRecord(data []byte) (*ChallengeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != otpRecordVersionV1 {
		return nil, errors.New("invalid otp record version")
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &ChallengeRecord{
		Verified: flags&1 == 1,
	}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
