package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with an asymmetric ed25519 key pair (default).
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with a shared symmetric secret.
	MethodHS256 SigningMethod = "hs256"
)

// TokenUse distinguishes access tokens from refresh tokens at the claim level.
type TokenUse string

const (
	// UseAccess marks a short-lived access token.
	UseAccess TokenUse = "access"
	// UseRefresh marks a long-lived refresh token.
	UseRefresh TokenUse = "refresh"
)

var (
	// ErrExpired is returned when a token is past its exp claim.
	ErrExpired = errors.New("token expired")
	// ErrBadSignature is returned when the signature does not verify.
	ErrBadSignature = errors.New("token signature invalid")
	// ErrMalformed is returned for tokens that do not parse at all.
	ErrMalformed = errors.New("token malformed")
	// ErrWrongUse is returned when an access token is presented where a
	// refresh token is required, or vice versa.
	ErrWrongUse = errors.New("token use mismatch")
)

// Config holds token manager settings.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

// Claims is the wire-level claim set. Field names round-trip exactly:
// sub, jti, sid, exp, iat, iss plus verification flags and permissions.
type Claims struct {
	SID            string   `json:"sid"`
	Use            TokenUse `json:"use"`
	MobileVerified bool     `json:"mv"`
	EmailVerified  bool     `json:"ev"`
	Permissions    []string `json:"perms,omitempty"`
	jwt.RegisteredClaims
}

// Manager signs and validates tokens. Safe for concurrent use.
type Manager struct {
	config Config
}

// GenerateEd25519Key produces a fresh signing key pair. Intended for first
// startup when the operator has not supplied key material; the returned
// keys must be persisted or every token dies with the process.
func GenerateEd25519Key() (publicKey, privateKey []byte, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return pub, priv, nil
}

// NewManager validates the config and returns a token manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, errors.New("refresh TTL shorter than access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519, "":
		cfg.SigningMethod = MethodEd25519
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PrivateKey) == 0 || len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires key pair")
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{config: cfg}, nil
}

// TTL returns the configured lifetime for a token use.
func (j *Manager) TTL(use TokenUse) time.Duration {
	if use == UseRefresh {
		return j.config.RefreshTTL
	}
	return j.config.AccessTTL
}

// Create signs a token of the given use for the account/session pair.
// Returns the compact token and the claims embedded in it, including the
// generated jti and expiry.
func (j *Manager) Create(
	use TokenUse,
	jti string,
	accountID string,
	sessionID string,
	mobileVerified bool,
	emailVerified bool,
	permissions []string,
) (string, *Claims, error) {
	now := time.Now()
	claims := &Claims{
		SID:            sessionID,
		Use:            use,
		MobileVerified: mobileVerified,
		EmailVerified:  emailVerified,
		Permissions:    permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(now.Add(j.TTL(use))),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.config.Issuer,
		},
	}

	token := jwt.NewWithClaims(j.getMethod(), claims)

	signKey, err := j.getSignKey()
	if err != nil {
		return "", nil, err
	}

	signed, err := token.SignedString(signKey)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Parse verifies signature and expiry and returns the claim set. The use
// claim must match expectedUse.
func (j *Manager) Parse(tokenStr string, expectedUse TokenUse) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.getMethod().Alg()}),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != j.getMethod().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return j.getVerifyKey()
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		default:
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrMalformed
	}
	if claims.Use != expectedUse {
		return nil, ErrWrongUse
	}
	if claims.ID == "" || claims.Subject == "" || claims.SID == "" {
		return nil, ErrMalformed
	}

	return claims, nil
}

// Remaining returns the time left until the claim set's expiry, clamped at zero.
func (c *Claims) Remaining(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	d := c.ExpiresAt.Time.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

func (j *Manager) getMethod() jwt.SigningMethod {
	switch j.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (j *Manager) getSignKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(j.config.PrivateKey)
	}
}

func (j *Manager) getVerifyKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		return parseEdPublicKey(j.config.PublicKey)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
