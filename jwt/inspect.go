package jwt

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotJWT is returned by Inspect for tokens that are not three-part JWTs,
// such as opaque session tokens.
var ErrNotJWT = errors.New("token is not a jwt")

// AccessClaims are the claims a backend access token may carry. Only the
// registered claims are guaranteed; uid and sid are read when present.
type AccessClaims struct {
	UID string `json:"uid,omitempty"`
	SID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// Claims is the decoded, unverified view of a token.
type Claims struct {
	Subject   string
	UserID    string
	SessionID string
	Issuer    string
	Audience  []string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Algorithm string
}

// HasExpiry reports whether the token carries an exp claim.
func (c *Claims) HasExpiry() bool {
	return c != nil && !c.ExpiresAt.IsZero()
}

// Expired reports whether the token's exp lies before now minus leeway.
// Tokens without exp never expire here.
func (c *Claims) Expired(now time.Time, leeway time.Duration) bool {
	if !c.HasExpiry() {
		return false
	}
	return now.After(c.ExpiresAt.Add(leeway))
}

// TimeLeft returns the time until expiry, zero when expired, and -1 when the
// token has no exp claim.
func (c *Claims) TimeLeft(now time.Time) time.Duration {
	if !c.HasExpiry() {
		return -1
	}
	left := c.ExpiresAt.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Inspect decodes token without verifying its signature.
func Inspect(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if strings.Count(token, ".") != 2 {
		return nil, ErrNotJWT
	}

	parser := jwt.NewParser()
	parsed, _, err := parser.ParseUnverified(token, &AccessClaims{})
	if err != nil {
		return nil, errors.Join(ErrNotJWT, err)
	}

	ac, ok := parsed.Claims.(*AccessClaims)
	if !ok {
		return nil, jwt.ErrTokenInvalidClaims
	}

	out := &Claims{
		Subject:   ac.Subject,
		UserID:    ac.UID,
		SessionID: ac.SID,
		Issuer:    ac.Issuer,
		Audience:  []string(ac.Audience),
	}
	if parsed.Method != nil {
		out.Algorithm = parsed.Method.Alg()
	}
	if ac.IssuedAt != nil {
		out.IssuedAt = ac.IssuedAt.Time
	}
	if ac.ExpiresAt != nil {
		out.ExpiresAt = ac.ExpiresAt.Time
	}
	if out.UserID == "" {
		out.UserID = out.Subject
	}
	return out, nil
}
