package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"math/big"
)

const idSize = 16

// SessionID is a 128-bit random identifier rendered as unpadded
// base64url on the wire.
type SessionID [idSize]byte

func NewSessionID() (SessionID, error) {
	var sid SessionID
	if _, err := rand.Read(sid[:]); err != nil {
		return SessionID{}, err
	}
	return sid, nil
}

func (s SessionID) Bytes() []byte { return s[:] }

func (s SessionID) String() string {
	return base64.RawURLEncoding.EncodeToString(s[:])
}

func ParseSessionID(sessionID string) (SessionID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil {
		return SessionID{}, err
	}
	if len(raw) != idSize {
		return SessionID{}, errors.New("invalid session id size")
	}
	return SessionID(raw), nil
}

// NewTokenID returns a random token identifier (jti) in compact
// base64url form. Same entropy budget as session ids.
func NewTokenID() (string, error) {
	var raw [idSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashCode hashes a submitted one-time code. Only the hash is ever
// stored; comparison happens in constant time at the store layer.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

var otpDigitMax = big.NewInt(10)

// NewOTP generates a random numeric one-time code of the given length.
// Each digit is drawn independently so the code has no modulo bias.
func NewOTP(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	code := make([]byte, digits)
	for i := range code {
		n, err := rand.Int(rand.Reader, otpDigitMax)
		if err != nil {
			return "", err
		}
		code[i] = '0' + byte(n.Int64())
	}
	return string(code), nil
}
