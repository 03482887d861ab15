package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

var (
	ErrMalformed = errors.New("token malformed")
	ErrExpired   = errors.New("token expired")
	ErrWrongType = errors.New("token type mismatch")
)

// Claims is the JWT payload.
type Claims struct {
	UserID string    `json:"uid"`
	Type   TokenType `json:"typ"`
	jwtlib.RegisteredClaims
}

// IssuedAtTime returns the iat claim, or the zero time when absent.
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// Issued is a freshly signed token with its lifetime.
type Issued struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Signer signs and verifies access and refresh tokens. Each type has its own
// secret so one can never verify as the other.
type Signer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

type Option func(*Signer)

// WithClock replaces time.Now for issuing and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

func NewSigner(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, opts ...Option) (*Signer, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("jwt secrets must not be empty")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	s := &Signer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Signer) IssueAccess(userID string) (Issued, error) {
	return s.sign(userID, TypeAccess, s.accessTTL, s.accessSecret)
}

func (s *Signer) IssueRefresh(userID string) (Issued, error) {
	return s.sign(userID, TypeRefresh, s.refreshTTL, s.refreshSecret)
}

func (s *Signer) sign(userID string, typ TokenType, ttl time.Duration, secret []byte) (Issued, error) {
	now := s.now()
	iat := jwtlib.NewNumericDate(now)
	exp := jwtlib.NewNumericDate(now.Add(ttl))
	claims := Claims{
		UserID: userID,
		Type:   typ,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  iat,
			ExpiresAt: exp,
		},
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return Issued{}, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return Issued{Token: token, IssuedAt: iat.Time, ExpiresAt: exp.Time}, nil
}

// ParseAccess verifies an access token. Errors are ErrExpired, ErrWrongType
// or ErrMalformed.
func (s *Signer) ParseAccess(token string) (*Claims, error) {
	return s.parseTyped(token, TypeAccess, s.accessSecret, s.refreshSecret)
}

// ParseRefresh verifies a refresh token. Errors are ErrExpired, ErrWrongType
// or ErrMalformed.
func (s *Signer) ParseRefresh(token string) (*Claims, error) {
	return s.parseTyped(token, TypeRefresh, s.refreshSecret, s.accessSecret)
}

func (s *Signer) parseTyped(token string, want TokenType, secret, otherSecret []byte) (*Claims, error) {
	claims, err := s.parse(token, secret)
	if err != nil {
		if errors.Is(err, ErrMalformed) {
			// A genuine token of the other type is reported as such.
			if other, otherErr := s.parse(token, otherSecret); otherErr == nil && other.Type != want {
				return nil, ErrWrongType
			}
		}
		return nil, err
	}
	if claims.Type != want {
		return nil, ErrWrongType
	}
	if claims.UserID == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

func (s *Signer) parse(tokenStr string, secret []byte) (*Claims, error) {
	token, err := jwtlib.ParseWithClaims(tokenStr, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwtlib.WithTimeFunc(s.now), jwtlib.WithIssuedAt())
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrMalformed
	}
	return claims, nil
}
