package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrTokenMalformed = errors.New("download token malformed")
	ErrTokenSignature = errors.New("download token signature mismatch")
	ErrTokenExpired   = errors.New("download token expired")
)

// Grant is the content of a verified download token.
type Grant struct {
	JobID     string
	Path      string
	ExpiresAt time.Time
}

// SignedURLSigner issues HMAC-signed download tokens for finished report files.
// Token layout: <jobID>.<unix expiry>.<base64url path>.<base64url mac>.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL reports how long issued tokens stay valid.
func (s *SignedURLSigner) TTL() time.Duration { return s.ttl }

// Generate signs a token for the job's stored file.
func (s *SignedURLSigner) Generate(jobID, relPath string) (string, time.Time, error) {
	if jobID == "" || relPath == "" {
		return "", time.Time{}, fmt.Errorf("job id and path are required")
	}
	if strings.Contains(jobID, ".") {
		return "", time.Time{}, fmt.Errorf("job id %q: %w", jobID, ErrTokenMalformed)
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}

	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	head := strings.Join([]string{
		jobID,
		strconv.FormatInt(expiresAt.Unix(), 10),
		base64.RawURLEncoding.EncodeToString([]byte(relPath)),
	}, ".")
	return head + "." + s.sign(head), expiresAt, nil
}

// Parse verifies token. allowExpired skips the expiry check so cleanup can still
// locate the file behind an expired link.
func (s *SignedURLSigner) Parse(token string, allowExpired bool) (Grant, error) {
	idx := strings.LastIndex(token, ".")
	if idx <= 0 {
		return Grant{}, ErrTokenMalformed
	}
	head, sig := token[:idx], token[idx+1:]
	if !hmac.Equal([]byte(s.sign(head)), []byte(sig)) {
		return Grant{}, ErrTokenSignature
	}

	parts := strings.Split(head, ".")
	if len(parts) != 3 || parts[0] == "" {
		return Grant{}, ErrTokenMalformed
	}
	exp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Grant{}, ErrTokenMalformed
	}
	path, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil || len(path) == 0 {
		return Grant{}, ErrTokenMalformed
	}

	grant := Grant{JobID: parts[0], Path: string(path), ExpiresAt: time.Unix(exp, 0).UTC()}
	if !allowExpired && s.now().After(grant.ExpiresAt) {
		return grant, ErrTokenExpired
	}
	return grant, nil
}

func (s *SignedURLSigner) sign(head string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(head))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
