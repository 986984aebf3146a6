package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Session token format: gs_{base64url(claims)}_{hex hmac}
// The HMAC-SHA256 is computed over the raw claims JSON with the
// server-side session secret.
const tokenPrefix = "gs"

var (
	// ErrInvalidToken indicates a malformed or tampered token.
	ErrInvalidToken = errors.New("invalid session token")
	// ErrTokenExpired indicates the token is past its expiry.
	ErrTokenExpired = errors.New("session token expired")
)

// Claims is the payload carried by a session token.
type Claims struct {
	UserID    string `json:"uid"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// SignToken issues a session token for the given user, valid for ttl.
func SignToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:    userID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}

	sig := signPayload(secret, payload)
	encoded := base64.RawURLEncoding.EncodeToString(payload)

	return fmt.Sprintf("%s_%s_%s", tokenPrefix, encoded, sig), nil
}

// VerifyToken checks the signature and expiry of a session token and
// returns its claims. Signature verification happens before any field
// of the payload is trusted.
func VerifyToken(secret, token string) (*Claims, error) {
	// The base64url alphabet includes "_", so split on the fixed
	// prefix and the last separator rather than every underscore.
	rest, ok := strings.CutPrefix(token, tokenPrefix+"_")
	if !ok {
		return nil, ErrInvalidToken
	}
	sep := strings.LastIndex(rest, "_")
	if sep <= 0 {
		return nil, ErrInvalidToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(rest[:sep])
	if err != nil {
		return nil, ErrInvalidToken
	}

	expected := signPayload(secret, payload)
	if !hmac.Equal([]byte(expected), []byte(rest[sep+1:])) {
		return nil, ErrInvalidToken
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, ErrInvalidToken
	}

	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	if time.Now().Unix() > claims.ExpiresAt {
		return nil, ErrTokenExpired
	}

	return &claims, nil
}

// TokenDigest returns a SHA-256 digest of the token, used as the cache
// key for session lookups so the raw token never reaches Redis.
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func signPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
