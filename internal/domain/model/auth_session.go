package model

import "time"

// [AUTH_SESSION] ACTIVE USER SESSION TRACKED BY THE SHELL
type AuthSession struct {
	Subject     string
	DisplayName string
	// Token is the raw bearer token. We never log it.
	Token     string
	IssuedAt  int64
	ExpiresAt int64
}

// Expired reports whether the session token is past its expiry at the given
// instant. Sessions without an expiry never expire.
func (s AuthSession) Expired(now time.Time) bool {
	return s.ExpiresAt > 0 && now.UnixMilli() >= s.ExpiresAt
}

// TTL returns the remaining lifetime at the given instant, or zero when the
// session is already expired or has no expiry.
func (s AuthSession) TTL(now time.Time) time.Duration {
	if s.ExpiresAt <= 0 {
		return 0
	}
	d := time.UnixMilli(s.ExpiresAt).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
