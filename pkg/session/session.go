// Package session holds the signed-in user's upstream bearer token together with the
// cached profile, and the stores that keep that pair between requests.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"librarydesk/pkg/domain"
)

var (
	ErrNoSession     = errors.New("session: not signed in")
	ErrInvalidCookie = errors.New("session: invalid cookie")
)

// Session is the bearer token issued by the library API plus the profile returned with it.
// The two are created together at login or registration and cleared together at logout.
type Session struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

// Authenticated reports whether the session carries a bearer token.
func (s Session) Authenticated() bool {
	return strings.TrimSpace(s.Token) != ""
}

// ExpiresAt reads the exp claim of the upstream token without verifying it.
// The console cannot verify upstream signatures; the claim only bounds how long
// a session is kept. Opaque or exp-less tokens return the zero time.
func (s Session) ExpiresAt() time.Time {
	if !s.Authenticated() {
		return time.Time{}
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.Token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// lifetime caps ttl by the upstream token expiry. A non-positive result means the
// token is already expired.
func (s Session) lifetime(ttl time.Duration, now time.Time) time.Duration {
	if exp := s.ExpiresAt(); !exp.IsZero() {
		if remaining := exp.Sub(now); remaining < ttl {
			return remaining
		}
	}
	return ttl
}

// Store keeps sessions server side, keyed by an opaque cookie value.
type Store interface {
	Save(ctx context.Context, s Session) (string, error)
	Load(ctx context.Context, key string) (Session, bool, error)
	Delete(ctx context.Context, key string) error
}

type contextKey struct{}

// WithSession attaches s to ctx for the rest of the request.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the request's session, if any.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(contextKey{}).(Session)
	return s, ok && s.Authenticated()
}
