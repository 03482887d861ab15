// Package session issues and verifies token pairs and owns the per-user
// refresh token and device token lists.
//
// All list changes go through store.MutateUser, so concurrent logins,
// rotations and logouts of one user are serialised by the user version.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aiassist/core/internal/models"
	"github.com/aiassist/core/internal/pkg/jwt"
	"github.com/aiassist/core/internal/store"
)

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type Manager struct {
	signer *jwt.Signer
	users  store.UserStore
	now    func() time.Time
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(signer *jwt.Signer, users store.UserStore, opts ...Option) *Manager {
	m := &Manager{signer: signer, users: users, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) IssueAccessToken(userID string) (string, error) {
	issued, err := m.signer.IssueAccess(userID)
	if err != nil {
		return "", err
	}
	return issued.Token, nil
}

func (m *Manager) IssueRefreshToken(userID string) (string, error) {
	issued, err := m.signer.IssueRefresh(userID)
	if err != nil {
		return "", err
	}
	return issued.Token, nil
}

// VerifyAccessToken resolves a bearer token to its active user.
func (m *Manager) VerifyAccessToken(ctx context.Context, token string) (*models.User, *jwt.Claims, error) {
	claims, err := m.signer.ParseAccess(NormalizeToken(token))
	if err != nil {
		return nil, nil, fromJWT(err)
	}
	u, err := m.loadActive(ctx, claims.UserID)
	if err != nil {
		return nil, nil, err
	}
	// iat has second precision; compare at the same granularity.
	if u.PasswordChangedAt != nil && claims.IssuedAtTime().Unix() < u.PasswordChangedAt.Unix() {
		return nil, nil, ErrStaleToken
	}
	return u, claims, nil
}

// VerifyRefreshToken checks the signature and that the token is still in
// the user's refresh list.
func (m *Manager) VerifyRefreshToken(ctx context.Context, token string) (*models.User, error) {
	claims, err := m.signer.ParseRefresh(strings.TrimSpace(token))
	if err != nil {
		return nil, fromJWT(err)
	}
	u, err := m.loadActive(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if !u.HasRefreshToken(strings.TrimSpace(token)) {
		return nil, ErrRevoked
	}
	return u, nil
}

func (m *Manager) loadActive(ctx context.Context, userID string) (*models.User, error) {
	u, err := m.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fromStore(err)
	}
	if !u.IsActive {
		return nil, ErrAccountDeactivated
	}
	return u, nil
}

// issuedPair is a fresh token pair together with the access token's issue
// time and the refresh entry to store.
type issuedPair struct {
	pair     TokenPair
	issuedAt time.Time
	entry    models.RefreshToken
}

func (m *Manager) issuePair(userID string) (issuedPair, error) {
	access, err := m.signer.IssueAccess(userID)
	if err != nil {
		return issuedPair{}, err
	}
	refresh, err := m.signer.IssueRefresh(userID)
	if err != nil {
		return issuedPair{}, err
	}
	return issuedPair{
		pair:     TokenPair{AccessToken: access.Token, RefreshToken: refresh.Token},
		issuedAt: access.IssuedAt,
		entry:    models.RefreshToken{Token: refresh.Token, IssuedAt: refresh.IssuedAt, ExpiresAt: refresh.ExpiresAt},
	}, nil
}

// StartSession issues a new pair on login or registration, appends the
// refresh token to the bounded list and stamps LastLoginAt.
func (m *Manager) StartSession(ctx context.Context, userID string) (TokenPair, *models.User, error) {
	issued, err := m.issuePair(userID)
	if err != nil {
		return TokenPair{}, nil, err
	}
	u, err := store.MutateUser(ctx, m.users, userID, func(u *models.User) error {
		now := m.now()
		pruneExpired(u, now)
		u.AddRefreshToken(issued.entry)
		u.LastLoginAt = &now
		return nil
	})
	if err != nil {
		return TokenPair{}, nil, fromStore(err)
	}
	return issued.pair, u, nil
}

// RotateRefreshToken swaps old for a new refresh token in one write. When a
// concurrent rotation already consumed old, it fails with ErrRevoked.
func (m *Manager) RotateRefreshToken(ctx context.Context, userID, old string) (TokenPair, error) {
	old = strings.TrimSpace(old)
	issued, err := m.issuePair(userID)
	if err != nil {
		return TokenPair{}, err
	}
	_, err = store.MutateUser(ctx, m.users, userID, func(u *models.User) error {
		if !u.IsActive {
			return ErrAccountDeactivated
		}
		if !u.RemoveRefreshToken(old) {
			return ErrRevoked
		}
		pruneExpired(u, m.now())
		u.AddRefreshToken(issued.entry)
		return nil
	})
	if err != nil {
		return TokenPair{}, fromStore(err)
	}
	return issued.pair, nil
}

// RevokeRefreshToken removes one refresh token. Absent tokens are ignored.
func (m *Manager) RevokeRefreshToken(ctx context.Context, userID, token string) error {
	token = strings.TrimSpace(token)
	_, err := store.MutateUser(ctx, m.users, userID, func(u *models.User) error {
		if !u.RemoveRefreshToken(token) {
			return store.ErrSkipWrite
		}
		return nil
	})
	return fromStore(err)
}

// RevokeAll drops every refresh token except the ones listed in keep.
func (m *Manager) RevokeAll(ctx context.Context, userID string, keep ...string) error {
	_, err := store.MutateUser(ctx, m.users, userID, func(u *models.User) error {
		before := len(u.RefreshTokens)
		u.RefreshTokens, _ = models.RemoveWhere(u.RefreshTokens, func(rt models.RefreshToken) bool {
			for _, k := range keep {
				if rt.Token == k {
					return false
				}
			}
			return true
		})
		if len(u.RefreshTokens) == before {
			return store.ErrSkipWrite
		}
		return nil
	})
	return fromStore(err)
}

// RestartSession applies fn, replaces the whole refresh list with one fresh
// token and stamps PasswordChangedAt in the same write. The stamp is the new
// access token's iat, so every access token from an earlier second turns
// stale while the returned one stays valid.
func (m *Manager) RestartSession(ctx context.Context, userID string, fn func(u *models.User) error) (TokenPair, *models.User, error) {
	issued, err := m.issuePair(userID)
	if err != nil {
		return TokenPair{}, nil, err
	}
	u, err := store.MutateUser(ctx, m.users, userID, func(u *models.User) error {
		if fn != nil {
			if err := fn(u); err != nil {
				return err
			}
		}
		changed := issued.issuedAt
		u.PasswordChangedAt = &changed
		u.RefreshTokens = []models.RefreshToken{issued.entry}
		return nil
	})
	if err != nil {
		return TokenPair{}, nil, fromStore(err)
	}
	return issued.pair, u, nil
}

// RegisterDeviceToken adds a push token. Re-registering a known token does
// not write and reports false.
func (m *Manager) RegisterDeviceToken(ctx context.Context, userID, token, platform string) (bool, error) {
	token = strings.TrimSpace(token)
	platform = strings.ToLower(strings.TrimSpace(platform))
	if token == "" || !models.ValidPlatform(platform) {
		return false, ErrInvalidPlatform
	}
	var added bool
	_, err := store.MutateUser(ctx, m.users, userID, func(u *models.User) error {
		added = u.AddDeviceToken(models.DeviceToken{Token: token, Platform: platform, AddedAt: m.now()})
		if !added {
			return store.ErrSkipWrite
		}
		return nil
	})
	if err != nil {
		return false, fromStore(err)
	}
	return added, nil
}

func (m *Manager) RemoveDeviceToken(ctx context.Context, userID, token string) error {
	token = strings.TrimSpace(token)
	_, err := store.MutateUser(ctx, m.users, userID, func(u *models.User) error {
		if !u.RemoveDeviceToken(token) {
			return store.ErrSkipWrite
		}
		return nil
	})
	return fromStore(err)
}

func pruneExpired(u *models.User, now time.Time) {
	u.RefreshTokens, _ = models.RemoveWhere(u.RefreshTokens, func(rt models.RefreshToken) bool {
		return !rt.ExpiresAt.IsZero() && !rt.ExpiresAt.After(now)
	})
}

// NormalizeToken strips an optional "Bearer " prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if len(token) >= 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}

// IsAuthError reports whether err should be answered with 401.
func IsAuthError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
