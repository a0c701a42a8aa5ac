package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"librarydesk/internal/util"
	"librarydesk/pkg/domain"
)

const cookieIssuer = "librarydesk-console"

type cookieClaims struct {
	Upstream string      `json:"upt"`
	User     domain.User `json:"usr"`
	jwt.RegisteredClaims
}

// JWTStore is a stateless Store: the cookie value is an HS256 token carrying the
// session itself. Logout revokes the cookie id until it would have expired.
type JWTStore struct {
	secret  []byte
	ttl     time.Duration
	revoker Revoker
	now     func() time.Time
}

func NewJWTStore(secret string, ttl time.Duration, revoker Revoker) (*JWTStore, error) {
	if len(secret) < 32 {
		return nil, errors.New("session: jwt secret must be at least 32 bytes")
	}
	if revoker == nil {
		revoker = NewMemoryRevoker()
	}
	return &JWTStore{secret: []byte(secret), ttl: ttl, revoker: revoker, now: time.Now}, nil
}

func (s *JWTStore) Save(_ context.Context, sess Session) (string, error) {
	if !sess.Authenticated() {
		return "", ErrNoSession
	}
	now := s.now()
	ttl := sess.lifetime(s.ttl, now)
	if ttl <= 0 {
		return "", errors.New("session: upstream token already expired")
	}
	claims := cookieClaims{
		Upstream: sess.Token,
		User:     sess.User,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        util.NewID(),
			Issuer:    cookieIssuer,
			Subject:   fmt.Sprint(sess.User.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

func (s *JWTStore) parse(key string) (*cookieClaims, error) {
	claims := &cookieClaims{}
	_, err := jwt.ParseWithClaims(key, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cookieIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCookie, err)
	}
	return claims, nil
}

// Load verifies the cookie. Expired, forged or revoked cookies report no session.
func (s *JWTStore) Load(ctx context.Context, key string) (Session, bool, error) {
	claims, err := s.parse(key)
	if err != nil {
		return Session{}, false, nil
	}
	revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, false, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return Session{}, false, nil
	}
	return Session{Token: claims.Upstream, User: claims.User}, true, nil
}

func (s *JWTStore) Delete(ctx context.Context, key string) error {
	claims, err := s.parse(key)
	if err != nil {
		return nil
	}
	return s.revoker.Revoke(ctx, claims.ID, claims.ExpiresAt.Sub(s.now()))
}
