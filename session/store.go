package session

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrSessionNotFound is returned when no live session exists for the id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionCorrupt is returned when a stored session blob does not decode.
	ErrSessionCorrupt = errors.New("session record corrupt")
	// ErrRedisUnavailable is returned when the session backend is unreachable.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

const sessionRecordVersionV1 = 1

// deleteSessionScript removes the session blob and its index entry in one
// atomic step. Returns whether the blob existed.
const deleteSessionScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
end
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// Store is the Redis-backed session registry.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session store with the given key prefix.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "as"
	}
	return &Store{redis: redisClient, prefix: prefix}
}

func (s *Store) sessionKey(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) indexKey(accountID string) string {
	return s.prefix + "i:" + accountID
}

// Save writes the session blob with the given TTL and adds the session to
// the account index. The index set carries the same TTL refreshed on every
// save, so an account's index never outlives its longest session by more
// than one lifetime.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	encoded, err := encodeSession(sess)
	if err != nil {
		return err
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, s.sessionKey(sess.SessionID), encoded, ttl)
	pipe.SAdd(ctx, s.indexKey(sess.AccountID), sess.SessionID)
	pipe.Expire(ctx, s.indexKey(sess.AccountID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get returns the live session for an id.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := decodeSession(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	sess.SessionID = sessionID
	return sess, nil
}

// Touch updates LastAccessAt without extending the TTL. Read-only
// heartbeats must not slide expiry; only Refresh does that.
func (s *Store) Touch(ctx context.Context, sessionID string, now time.Time) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.LastAccessAt = now.Unix()

	encoded, err := encodeSession(sess)
	if err != nil {
		return err
	}
	if err := s.redis.SetArgs(ctx, s.sessionKey(sessionID), encoded, redis.SetArgs{KeepTTL: true}).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Refresh slides the session expiry to now+ttl, updates LastAccessAt and
// optionally swaps the bound refresh-token id (rotation).
func (s *Store) Refresh(ctx context.Context, sessionID string, ttl time.Duration, now time.Time, newRefreshTokenID string) (*Session, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	sess.LastAccessAt = now.Unix()
	sess.ExpiresAt = now.Add(ttl).Unix()
	if newRefreshTokenID != "" {
		sess.RefreshTokenID = newRefreshTokenID
	}

	if err := s.Save(ctx, sess, ttl); err != nil {
		return nil, err
	}
	return sess, nil
}

// Delete removes the session and its index entry. Deleting an absent
// session is a no-op and reports found=false.
func (s *Store) Delete(ctx context.Context, sessionID, accountID string) (bool, error) {
	keys := []string{s.sessionKey(sessionID), s.indexKey(accountID)}
	existed, err := deleteSessionLua.Run(ctx, s.redis, keys, sessionID).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return existed == 1, nil
}

// ListByAccount returns the session ids currently indexed for an account.
// Entries whose blobs have expired may still linger in the set; callers
// tolerate ErrSessionNotFound on individual ids.
func (s *Store) ListByAccount(ctx context.Context, accountID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.indexKey(accountID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

func encodeSession(sess *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionRecordVersionV1)

	var flags byte
	if sess.MobileVerified {
		flags |= 1
	}
	if sess.EmailVerified {
		flags |= 2
	}
	buf.WriteByte(flags)

	for _, ts := range []int64{sess.CreatedAt, sess.LastAccessAt, sess.ExpiresAt} {
		if err := binary.Write(&buf, binary.BigEndian, ts); err != nil {
			return nil, err
		}
	}

	for _, field := range []string{sess.AccountID, sess.Device, sess.RefreshTokenID} {
		if len(field) > 255 {
			return nil, errors.New("session field too long")
		}
		buf.WriteByte(byte(len(field)))
		buf.WriteString(field)
	}

	if len(sess.Permissions) > 255 {
		return nil, errors.New("too many permissions")
	}
	buf.WriteByte(byte(len(sess.Permissions)))
	for _, perm := range sess.Permissions {
		if len(perm) > 255 {
			return nil, errors.New("permission name too long")
		}
		buf.WriteByte(byte(len(perm)))
		buf.WriteString(perm)
	}

	return buf.Bytes(), nil
}

func decodeSession(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionRecordVersionV1 {
		return nil, errors.New("invalid session record version")
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	sess := &Session{
		MobileVerified: flags&1 == 1,
		EmailVerified:  flags&2 == 2,
	}

	for _, ts := range []*int64{&sess.CreatedAt, &sess.LastAccessAt, &sess.ExpiresAt} {
		if err := binary.Read(reader, binary.BigEndian, ts); err != nil {
			return nil, err
		}
	}

	for _, field := range []*string{&sess.AccountID, &sess.Device, &sess.RefreshTokenID} {
		val, err := readString(reader)
		if err != nil {
			return nil, err
		}
		*field = val
	}

	count, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if count > 0 {
		sess.Permissions = make([]string, 0, count)
		for i := 0; i < int(count); i++ {
			perm, err := readString(reader)
			if err != nil {
				return nil, err
			}
			sess.Permissions = append(sess.Permissions, perm)
		}
	}

	return sess, nil
}

func readString(reader *bytes.Reader) (string, error) {
	length, err := reader.ReadByte()
	if err != nil {
		return "", err
	}
	raw := make([]byte, length)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
