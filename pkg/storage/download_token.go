package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrTokenInvalid covers malformed and tampered tokens.
	ErrTokenInvalid = errors.New("storage: invalid download token")
	// ErrTokenExpired is returned for a well-formed token past its expiry.
	ErrTokenExpired = errors.New("storage: download token expired")
)

// DownloadToken is the verified content of a signed download link.
type DownloadToken struct {
	Hash      string
	Key       string
	ExpiresAt time.Time
}

// TokenSigner issues and verifies HMAC-SHA256 download tokens of the form
// hash.expiry.key.signature, with the archive key base64url encoded.
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenSigner constructs a signer. A non-positive ttl defaults to 24h.
func NewTokenSigner(secret string, ttl time.Duration) *TokenSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign returns a token for the archived object key holding the export hash.
func (s *TokenSigner) Sign(hash, key string) (string, time.Time, error) {
	if hash == "" || key == "" || strings.Contains(hash, ".") {
		return "", time.Time{}, fmt.Errorf("sign download: hash and key required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("sign download: secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	payload := strings.Join([]string{
		hash,
		strconv.FormatInt(expiresAt.Unix(), 10),
		base64.RawURLEncoding.EncodeToString([]byte(key)),
	}, ".")
	return payload + "." + s.mac(payload), expiresAt, nil
}

// Verify checks the signature and expiry of a token.
func (s *TokenSigner) Verify(token string) (DownloadToken, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return DownloadToken{}, ErrTokenInvalid
	}
	payload := strings.Join(parts[:3], ".")
	if !hmac.Equal([]byte(s.mac(payload)), []byte(parts[3])) {
		return DownloadToken{}, ErrTokenInvalid
	}
	unix, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return DownloadToken{}, ErrTokenInvalid
	}
	key, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return DownloadToken{}, ErrTokenInvalid
	}
	out := DownloadToken{Hash: parts[0], Key: string(key), ExpiresAt: time.Unix(unix, 0).UTC()}
	if s.now().After(out.ExpiresAt) {
		return out, ErrTokenExpired
	}
	return out, nil
}

func (s *TokenSigner) mac(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
