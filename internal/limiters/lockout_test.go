package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/velobay/authcore/internal/rate"
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

func newLockout(client *redis.Client, cfg LockoutConfig) *LockoutLimiter {
	return NewLockoutLimiter(client, rate.New(client), cfg)
}

var lockoutCfg = LockoutConfig{
	MaxFailedAttempts: 3,
	FailureWindow:     15 * time.Minute,
	LockoutDuration:   30 * time.Minute,
}

func TestRecordFailureReportsCrossingOnce(t *testing.T) {
	_, client := newTestRedis(t)
	l := newLockout(client, lockoutCfg)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		locked, count, err := l.RecordFailure(ctx, rate.ScopeLogin, "user-1")
		if err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
		if locked {
			t.Fatalf("attempt %d should not lock", i)
		}
		if count != int64(i) {
			t.Fatalf("expected count %d, got %d", i, count)
		}
	}

	locked, count, err := l.RecordFailure(ctx, rate.ScopeLogin, "user-1")
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if !locked || count != 3 {
		t.Fatalf("third attempt should report a fresh lockout, got locked=%v count=%d", locked, count)
	}

	// Past the threshold the identifier stays locked but the crossing is
	// not reported again.
	locked, _, err = l.RecordFailure(ctx, rate.ScopeLogin, "user-1")
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if locked {
		t.Fatal("fourth attempt should not report a fresh lockout")
	}

	isLocked, err := l.IsLocked(ctx, "user-1")
	if err != nil {
		t.Fatalf("IsLocked failed: %v", err)
	}
	if !isLocked {
		t.Fatal("expected identifier locked")
	}
}

func TestRecordFailureEmptyIdentifierIgnored(t *testing.T) {
	_, client := newTestRedis(t)
	l := newLockout(client, lockoutCfg)

	locked, count, err := l.RecordFailure(context.Background(), rate.ScopeLogin, "")
	if err != nil || locked || count != 0 {
		t.Fatalf("expected no-op for empty identifier, got locked=%v count=%d err=%v", locked, count, err)
	}
}

func TestLockoutExpires(t *testing.T) {
	mr, client := newTestRedis(t)
	l := newLockout(client, lockoutCfg)
	ctx := context.Background()

	if err := l.Lock(ctx, "user-1"); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	mr.FastForward(lockoutCfg.LockoutDuration + time.Second)

	locked, err := l.IsLocked(ctx, "user-1")
	if err != nil {
		t.Fatalf("IsLocked failed: %v", err)
	}
	if locked {
		t.Fatal("expected lockout entry expired")
	}
}

func TestUnlockClearsEntryAndCounters(t *testing.T) {
	_, client := newTestRedis(t)
	l := newLockout(client, lockoutCfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, _ = l.RecordFailure(ctx, rate.ScopeOTP, "user-1")
	}
	if err := l.Unlock(ctx, "user-1"); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	locked, _ := l.IsLocked(ctx, "user-1")
	if locked {
		t.Fatal("expected identifier unlocked")
	}
	count, err := l.FailureCount(ctx, rate.ScopeOTP, "user-1")
	if err != nil {
		t.Fatalf("FailureCount failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected counters cleared, got %d", count)
	}
}

func TestScopesCountSeparately(t *testing.T) {
	_, client := newTestRedis(t)
	l := newLockout(client, lockoutCfg)
	ctx := context.Background()

	_, _, _ = l.RecordFailure(ctx, rate.ScopeLogin, "user-1")
	_, _, _ = l.RecordFailure(ctx, rate.ScopeLogin, "user-1")
	locked, count, err := l.RecordFailure(ctx, rate.ScopeOTP, "user-1")
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if locked || count != 1 {
		t.Fatalf("expected otp scope to start fresh, got locked=%v count=%d", locked, count)
	}
}

func TestIsLockedErrorFailsClosedForCaller(t *testing.T) {
	mr, client := newTestRedis(t)
	l := newLockout(client, lockoutCfg)
	mr.Close()

	locked, err := l.IsLocked(context.Background(), "user-1")
	if !errors.Is(err, ErrLockoutUnavailable) {
		t.Fatalf("expected ErrLockoutUnavailable, got %v", err)
	}
	if !locked {
		t.Fatal("expected locked=true alongside the backend error")
	}
}

func TestTrackThreshold(t *testing.T) {
	_, client := newTestRedis(t)
	l := NewSuspiciousLimiter(rate.New(client), SuspiciousConfig{Threshold: 3, Window: time.Hour})
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		crossed, count, err := l.Track(ctx, "user-1", "token_reuse")
		if err != nil {
			t.Fatalf("Track failed: %v", err)
		}
		if crossed || count != int64(i) {
			t.Fatalf("event %d: got crossed=%v count=%d", i, crossed, count)
		}
	}

	crossed, count, err := l.Track(ctx, "user-1", "token_reuse")
	if err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	if !crossed || count != 3 {
		t.Fatalf("expected threshold crossed at 3, got crossed=%v count=%d", crossed, count)
	}
}

func TestTrackTypesIndependent(t *testing.T) {
	_, client := newTestRedis(t)
	l := NewSuspiciousLimiter(rate.New(client), SuspiciousConfig{Threshold: 2, Window: time.Hour})
	ctx := context.Background()

	_, _, _ = l.Track(ctx, "user-1", "token_reuse")
	crossed, count, err := l.Track(ctx, "user-1", "geo_anomaly")
	if err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	if crossed || count != 1 {
		t.Fatalf("expected separate counters per type, got crossed=%v count=%d", crossed, count)
	}
}

func TestTrackResetRestartsCounter(t *testing.T) {
	_, client := newTestRedis(t)
	l := NewSuspiciousLimiter(rate.New(client), SuspiciousConfig{Threshold: 2, Window: time.Hour})
	ctx := context.Background()

	_, _, _ = l.Track(ctx, "user-1", "token_reuse")
	if err := l.Reset(ctx, "user-1", "token_reuse"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	_, count, err := l.Track(ctx, "user-1", "token_reuse")
	if err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected restart after reset, got %d", count)
	}
}

func TestShouldRequireReadsBothScopes(t *testing.T) {
	_, client := newTestRedis(t)
	counters := rate.New(client)
	gate := NewCaptchaLimiter(counters, CaptchaConfig{Threshold: 2})
	ctx := context.Background()

	required, err := gate.ShouldRequire(ctx, "user-1", "203.0.113.5")
	if err != nil {
		t.Fatalf("ShouldRequire failed: %v", err)
	}
	if required {
		t.Fatal("expected no captcha with zero failures")
	}

	for i := 0; i < 2; i++ {
		if _, err := counters.Increment(ctx, rate.ScopeIP, "203.0.113.5", time.Hour); err != nil {
			t.Fatalf("Increment failed: %v", err)
		}
	}

	required, err = gate.ShouldRequire(ctx, "user-1", "203.0.113.5")
	if err != nil {
		t.Fatalf("ShouldRequire failed: %v", err)
	}
	if !required {
		t.Fatal("expected captcha once the ip counter reached the threshold")
	}

	// The gate is read-only: asking again must not escalate anything.
	count, _ := counters.Count(ctx, rate.ScopeIP, "203.0.113.5")
	if count != 2 {
		t.Fatalf("expected counter untouched by the gate, got %d", count)
	}
}

func TestShouldRequireSurfacesBackendError(t *testing.T) {
	mr, client := newTestRedis(t)
	gate := NewCaptchaLimiter(rate.New(client), CaptchaConfig{Threshold: 2})
	mr.Close()

	required, err := gate.ShouldRequire(context.Background(), "user-1", "")
	if err == nil {
		t.Fatal("expected an error with the backend down")
	}
	if required {
		t.Fatal("expected required=false alongside the error")
	}
}
