package authstore

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is the authenticated role carried by the session record.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Record is the persisted session record. A record without a token is
// equivalent to anonymous. Exp is the credential expiry as a Unix timestamp,
// used purely for local scheduling; the server stays authoritative.
type Record struct {
	Token   string `json:"token"`
	Role    Role   `json:"role,omitempty"`
	LoginID string `json:"loginId,omitempty"`
	Exp     int64  `json:"exp,omitempty"`
}

// IsAnonymous reports whether the record represents no session.
func (r Record) IsAnonymous() bool {
	return r.Token == ""
}

// IsExpired reports whether the record's local expiry has passed. Records
// without a known expiry never expire locally.
func (r Record) IsExpired() bool {
	return r.Exp > 0 && time.Now().Unix() >= r.Exp
}

// ExpiresAt returns the expiry as a time.Time, or the zero time when unknown.
func (r Record) ExpiresAt() time.Time {
	if r.Exp <= 0 {
		return time.Time{}
	}
	return time.Unix(r.Exp, 0)
}

// withDecodedExpiry fills Exp from the token's exp claim when it is missing.
// The parse is deliberately unverified: the value only schedules a local
// timer and is never trusted for authorization.
func (r Record) withDecodedExpiry() Record {
	if r.Exp > 0 || r.Token == "" {
		return r
	}
	r.Exp = tokenExpiry(r.Token)
	return r
}

func tokenExpiry(token string) int64 {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return 0
	}
	return exp.Unix()
}
