package authcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/velobay/authcore/jwt"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func testEngineConfig() Config {
	cfg := defaultConfig()
	cfg.Token.SigningMethod = jwt.MethodHS256
	cfg.Token.PrivateKey = []byte("test-secret")
	return cfg
}

type testEnv struct {
	engine   *Engine
	store    *memDurableStore
	notifier *captureNotifier
	redis    *redis.Client
	mr       *miniredis.Miniredis
}

func newTestEngine(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	store := newMemDurableStore()
	notifier := newCaptureNotifier()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDurableStore(store).
		WithNotifier(notifier).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	t.Cleanup(func() {
		engine.Close()
		mr.Close()
	})

	return &testEnv{engine: engine, store: store, notifier: notifier, redis: rdb, mr: mr}
}

const testPhone = "+14155550100"

func TestRequestOTPDeliversCode(t *testing.T) {
	env := newTestEngine(t, testEngineConfig())

	before := time.Now()
	ch, err := env.engine.RequestOTP(context.Background(), ChannelMobile, testPhone, "203.0.113.7")
	if err != nil {
		t.Fatalf("RequestOTP failed: %v", err)
	}
	if !ch.OTPSent {
		t.Fatal("expected OTPSent true")
	}

	code := env.notifier.code(testPhone)
	if len(code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", code)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("expected numeric code, got %q", code)
		}
	}

	wantExpiry := before.Add(5 * time.Minute)
	if ch.ExpiresAt.Before(wantExpiry.Add(-5*time.Second)) || ch.ExpiresAt.After(wantExpiry.Add(5*time.Second)) {
		t.Fatalf("expected expiry near %v, got %v", wantExpiry, ch.ExpiresAt)
	}

	if err := env.engine.VerifyOTP(context.Background(), ChannelMobile, testPhone, code); err != nil {
		t.Fatalf("VerifyOTP failed: %v", err)
	}
}

func TestRequestOTPSupersedesPrior(t *testing.T) {
	env := newTestEngine(t, testEngineConfig())
	ctx := context.Background()

	if _, err := env.engine.RequestOTP(ctx, ChannelMobile, testPhone, ""); err != nil {
		t.Fatalf("first RequestOTP failed: %v", err)
	}
	first := env.notifier.code(testPhone)

	if _, err := env.engine.RequestOTP(ctx, ChannelMobile, testPhone, ""); err != nil {
		t.Fatalf("second RequestOTP failed: %v", err)
	}
	second := env.notifier.code(testPhone)

	if first == second {
		t.Fatal("expected a fresh code on reissue")
	}
	if err := env.engine.VerifyOTP(ctx, ChannelMobile, testPhone, first); !errors.Is(err, ErrOTPMismatch) {
		t.Fatalf("expected superseded code to mismatch, got %v", err)
	}
	if err := env.engine.VerifyOTP(ctx, ChannelMobile, testPhone, second); err != nil {
		t.Fatalf("expected current code to verify, got %v", err)
	}
}

func TestRequestOTPIssueLimit(t *testing.T) {
	cfg := testEngineConfig()
	cfg.OTP.IssueLimit = 2
	env := newTestEngine(t, cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := env.engine.RequestOTP(ctx, ChannelMobile, testPhone, ""); err != nil {
			t.Fatalf("request %d failed: %v", i+1, err)
		}
	}

	_, err := env.engine.RequestOTP(ctx, ChannelMobile, testPhone, "")
	if !errors.Is(err, ErrOTPRateLimited) {
		t.Fatalf("expected ErrOTPRateLimited, got %v", err)
	}

	// The window lapses; the budget resets.
	env.mr.FastForward(cfg.OTP.IssueWindow + time.Second)
	if _, err := env.engine.RequestOTP(ctx, ChannelMobile, testPhone, ""); err != nil {
		t.Fatalf("expected request after window to succeed, got %v", err)
	}
}

func TestRequestOTPDeliveryFailureKeepsChallenge(t *testing.T) {
	env := newTestEngine(t, testEngineConfig())
	env.notifier.err = errors.New("sms gateway down")
	ctx := context.Background()

	ch, err := env.engine.RequestOTP(ctx, ChannelMobile, testPhone, "")
	if err != nil {
		t.Fatalf("RequestOTP failed: %v", err)
	}
	if ch.OTPSent {
		t.Fatal("expected OTPSent false when delivery fails")
	}

	// The challenge stands: a wrong code is a mismatch, not not-found.
	if err := env.engine.VerifyOTP(ctx, ChannelMobile, testPhone, "000000"); !errors.Is(err, ErrOTPMismatch) {
		t.Fatalf("expected ErrOTPMismatch, got %v", err)
	}
}

func TestVerifyOTPWrongThenCorrect(t *testing.T) {
	env := newTestEngine(t, testEngineConfig())
	ctx := context.Background()

	if _, err := env.engine.RequestOTP(ctx, ChannelMobile, testPhone, ""); err != nil {
		t.Fatalf("RequestOTP failed: %v", err)
	}
	code := env.notifier.code(testPhone)

	if err := env.engine.VerifyOTP(ctx, ChannelMobile, testPhone, "000000"); !errors.Is(err, ErrOTPMismatch) {
		t.Fatalf("expected ErrOTPMismatch, got %v", err)
	}
	if err := env.engine.VerifyOTP(ctx, ChannelMobile, testPhone, code); err != nil {
		t.Fatalf("expected correct code to verify after one miss, got %v", err)
	}
}

func TestVerifyOTPAttemptsExhaustedIsTerminal(t *testing.T) {
	env := newTestEngine(t, testEngineConfig())
	ctx := context.Background()

	if _, err := env.engine.RequestOTP(ctx, ChannelMobile, testPhone, ""); err != nil {
		t.Fatalf("RequestOTP failed: %v", err)
	}
	code := env.notifier.code(testPhone)

	for i := 0; i < 2; i++ {
		if err := env.engine.VerifyOTP(ctx, ChannelMobile, testPhone, "000000"); !errors.Is(err, ErrOTPMismatch) {
			t.Fatalf("attempt %d: expected ErrOTPMismatch, got %v", i+1, err)
		}
	}
	// Third miss exhausts the budget.
	if err := env.engine.VerifyOTP(ctx, ChannelMobile, testPhone, "000000"); !errors.Is(err, ErrOTPAttemptsExceeded) {
		t.Fatalf("expected ErrOTPAttemptsExceeded, got %v", err)
	}
	// Even the correct code is rejected now.
	if err := env.engine.VerifyOTP(ctx, ChannelMobile, testPhone, code); !errors.Is(err, ErrOTPAttemptsExceeded) {
		t.Fatalf("expected terminal challenge to reject correct code, got %v", err)
	}
}

func TestVerifyOTPExpired(t *testing.T) {
	cfg := testEngineConfig()
	env := newTestEngine(t, cfg)
	ctx := context.Background()

	if _, err := env.engine.RequestOTP(ctx, ChannelMobile, testPhone, ""); err != nil {
		t.Fatalf("RequestOTP failed: %v", err)
	}
	code := env.notifier.code(testPhone)

	env.mr.FastForward(cfg.OTP.Window + time.Second)

	err := env.engine.VerifyOTP(ctx, ChannelMobile, testPhone, code)
	if !errors.Is(err, ErrOTPNotFound) && !errors.Is(err, ErrOTPExpired) {
		t.Fatalf("expected expired or missing challenge, got %v", err)
	}
}

func TestVerifyOTPNoChallenge(t *testing.T) {
	env := newTestEngine(t, testEngineConfig())

	err := env.engine.VerifyOTP(context.Background(), ChannelMobile, testPhone, "123456")
	if !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected ErrOTPNotFound, got %v", err)
	}
}

func TestVerifyOTPIdempotentOnVerified(t *testing.T) {
	env := newTestEngine(t, testEngineConfig())
	ctx := context.Background()

	if _, err := env.engine.RequestOTP(ctx, ChannelEmail, "dispatch@corp.example", ""); err != nil {
		t.Fatalf("RequestOTP failed: %v", err)
	}
	code := env.notifier.code("dispatch@corp.example")

	if err := env.engine.VerifyOTP(ctx, ChannelEmail, "dispatch@corp.example", code); err != nil {
		t.Fatalf("first verify failed: %v", err)
	}
	if err := env.engine.VerifyOTP(ctx, ChannelEmail, "dispatch@corp.example", code); err != nil {
		t.Fatalf("expected re-verify of live challenge to succeed, got %v", err)
	}
}

func TestChannelsAreIndependent(t *testing.T) {
	env := newTestEngine(t, testEngineConfig())
	ctx := context.Background()

	if _, err := env.engine.RequestOTP(ctx, ChannelMobile, testPhone, ""); err != nil {
		t.Fatalf("mobile RequestOTP failed: %v", err)
	}
	mobileCode := env.notifier.code(testPhone)

	if _, err := env.engine.RequestOTP(ctx, ChannelEmail, "ops@corp.example", ""); err != nil {
		t.Fatalf("email RequestOTP failed: %v", err)
	}

	// The mobile challenge is untouched by the email issue.
	if err := env.engine.VerifyOTP(ctx, ChannelMobile, testPhone, mobileCode); err != nil {
		t.Fatalf("mobile verify failed: %v", err)
	}
}
