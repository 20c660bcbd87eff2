package session

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func testSession() *Session {
	now := time.Now()
	return &Session{
		SessionID:      "sess-1",
		AccountID:      "acc-1",
		Device:         "android-app",
		Permissions:    []string{"ride:request", "ride:cancel", "profile:read"},
		MobileVerified: true,
		EmailVerified:  true,
		RefreshTokenID: "jti-1",
		CreatedAt:      now.Unix(),
		LastAccessAt:   now.Unix(),
		ExpiresAt:      now.Add(24 * time.Hour).Unix(),
	}
}

func TestSaveGetRoundTrip(t *testing.T) {
	_, client := newTestRedis(t)
	s := NewStore(client, "")
	ctx := context.Background()

	sess := testSession()
	if err := s.Save(ctx, sess, 24*time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !reflect.DeepEqual(got, sess) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, sess)
	}
}

func TestGetMissingSession(t *testing.T) {
	_, client := newTestRedis(t)
	s := NewStore(client, "")

	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionExpiresWithTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewStore(client, "")
	ctx := context.Background()

	if err := s.Save(ctx, testSession(), time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	mr.FastForward(time.Hour + time.Second)

	if _, err := s.Get(ctx, "sess-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expired session gone, got %v", err)
	}
}

func TestTouchKeepsTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewStore(client, "")
	ctx := context.Background()

	if err := s.Save(ctx, testSession(), time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	mr.FastForward(30 * time.Minute)

	now := time.Now()
	if err := s.Touch(ctx, "sess-1", now); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}

	got, err := s.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.LastAccessAt != now.Unix() {
		t.Fatalf("expected LastAccessAt updated, got %d", got.LastAccessAt)
	}

	// The original expiry still stands: 31 more minutes crosses it.
	mr.FastForward(31 * time.Minute)
	if _, err := s.Get(ctx, "sess-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected Touch not to extend the TTL, got %v", err)
	}
}

func TestRefreshSlidesExpiry(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewStore(client, "")
	ctx := context.Background()

	if err := s.Save(ctx, testSession(), time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	mr.FastForward(50 * time.Minute)

	now := time.Now()
	sess, err := s.Refresh(ctx, "sess-1", time.Hour, now, "")
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if sess.RefreshTokenID != "jti-1" {
		t.Fatalf("expected refresh-token id preserved without rotation, got %q", sess.RefreshTokenID)
	}
	if sess.ExpiresAt != now.Add(time.Hour).Unix() {
		t.Fatalf("expected expiry slid to now+1h, got %d", sess.ExpiresAt)
	}

	// Past the original expiry but inside the refreshed one.
	mr.FastForward(30 * time.Minute)
	if _, err := s.Get(ctx, "sess-1"); err != nil {
		t.Fatalf("expected session alive after refresh: %v", err)
	}
}

func TestRefreshRotatesTokenID(t *testing.T) {
	_, client := newTestRedis(t)
	s := NewStore(client, "")
	ctx := context.Background()

	if err := s.Save(ctx, testSession(), time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	sess, err := s.Refresh(ctx, "sess-1", time.Hour, time.Now(), "jti-2")
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if sess.RefreshTokenID != "jti-2" {
		t.Fatalf("expected rotated token id, got %q", sess.RefreshTokenID)
	}

	got, _ := s.Get(ctx, "sess-1")
	if got.RefreshTokenID != "jti-2" {
		t.Fatalf("expected rotation persisted, got %q", got.RefreshTokenID)
	}
}

func TestDeleteReportsExistence(t *testing.T) {
	_, client := newTestRedis(t)
	s := NewStore(client, "")
	ctx := context.Background()

	if err := s.Save(ctx, testSession(), time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	found, err := s.Delete(ctx, "sess-1", "acc-1")
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !found {
		t.Fatal("expected found=true for a live session")
	}

	found, err = s.Delete(ctx, "sess-1", "acc-1")
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if found {
		t.Fatal("expected found=false on repeat delete")
	}

	ids, err := s.ListByAccount(ctx, "acc-1")
	if err != nil {
		t.Fatalf("ListByAccount failed: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected index entry removed, got %v", ids)
	}
}

func TestListByAccount(t *testing.T) {
	_, client := newTestRedis(t)
	s := NewStore(client, "")
	ctx := context.Background()

	for _, id := range []string{"sess-1", "sess-2"} {
		sess := testSession()
		sess.SessionID = id
		if err := s.Save(ctx, sess, time.Hour); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	other := testSession()
	other.SessionID = "sess-3"
	other.AccountID = "acc-2"
	if err := s.Save(ctx, other, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	ids, err := s.ListByAccount(ctx, "acc-1")
	if err != nil {
		t.Fatalf("ListByAccount failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 sessions indexed, got %v", ids)
	}
	for _, id := range ids {
		if id != "sess-1" && id != "sess-2" {
			t.Fatalf("unexpected session id %q", id)
		}
	}
}

func TestNoPermissionsRoundTrip(t *testing.T) {
	_, client := newTestRedis(t)
	s := NewStore(client, "")
	ctx := context.Background()

	sess := testSession()
	sess.Permissions = nil
	sess.MobileVerified = false
	sess.EmailVerified = false
	if err := s.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Permissions != nil {
		t.Fatalf("expected nil permissions, got %v", got.Permissions)
	}
	if got.MobileVerified || got.EmailVerified {
		t.Fatalf("unexpected verification flags: %+v", got)
	}
}

func TestCorruptBlobRejected(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewStore(client, "")

	mr.Set("as:sess-1", "not a session blob")

	if _, err := s.Get(context.Background(), "sess-1"); !errors.Is(err, ErrSessionCorrupt) {
		t.Fatalf("expected ErrSessionCorrupt, got %v", err)
	}
}
