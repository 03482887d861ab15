package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aiassist/core/internal/models"
	"github.com/aiassist/core/internal/modules/analytics"
	"github.com/aiassist/core/internal/pkg/session"
	"github.com/aiassist/core/internal/pkg/usage"
	"github.com/aiassist/core/internal/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const DefaultBcryptCost = 12

type Service struct {
	users      store.UserStore
	sessions   *session.Manager
	gate       *usage.Gate
	tracker    *analytics.Tracker
	logger     *zap.Logger
	bcryptCost int
	now        func() time.Time
}

type Option func(*Service)

// WithBcryptCost overrides the hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(users store.UserStore, sessions *session.Manager, gate *usage.Gate, tracker *analytics.Tracker, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		users:      users,
		sessions:   sessions,
		gate:       gate,
		tracker:    tracker,
		logger:     logger,
		bcryptCost: DefaultBcryptCost,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result is a freshly started session.
type Result struct {
	Pair session.TokenPair
	User *models.User
}

func (s *Service) Register(ctx context.Context, dto *RegisterDTO) (*Result, error) {
	email := models.NormalizeEmail(dto.Email)
	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, errEmailExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(dto.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := models.NewUser(email, string(hash), dto.FirstName, dto.LastName, s.now())
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, errEmailExists
		}
		return nil, err
	}

	pair, u, err := s.sessions.StartSession(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered", zap.String("user_id", u.ID), zap.String("email", u.Email))
	return &Result{Pair: pair, User: u}, nil
}

func (s *Service) Login(ctx context.Context, dto *LoginDTO) (*Result, error) {
	u, err := s.users.GetUserByEmail(ctx, dto.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(dto.Password)) != nil {
		return nil, errInvalidCredentials
	}
	if !u.IsActive {
		return nil, errAccountDeactivated
	}

	pair, u, err := s.sessions.StartSession(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user logged in", zap.String("user_id", u.ID))
	return &Result{Pair: pair, User: u}, nil
}

// Refresh rotates a refresh token into a new pair.
func (s *Service) Refresh(ctx context.Context, token string) (session.TokenPair, error) {
	u, err := s.sessions.VerifyRefreshToken(ctx, token)
	if err != nil {
		return session.TokenPair{}, err
	}
	pair, err := s.sessions.RotateRefreshToken(ctx, u.ID, token)
	if err != nil {
		return session.TokenPair{}, err
	}
	return pair, nil
}

func (s *Service) Logout(ctx context.Context, userID, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.RevokeRefreshToken(ctx, userID, refreshToken)
}

// Me reconciles the usage windows, persisting any rollover, and returns the
// user with the derived snapshot.
func (s *Service) Me(ctx context.Context, userID string) (*models.User, usage.Snapshot, error) {
	snap, u, err := s.gate.Check(ctx, userID)
	if err != nil {
		return nil, usage.Snapshot{}, s.mapUserErr(err)
	}
	return u, snap, nil
}

// UpdateProfile applies the given fields. Preferences are merged field by
// field. It returns the updated user and the names of the changed fields.
func (s *Service) UpdateProfile(ctx context.Context, userID string, dto *ProfileDTO) (*models.User, []string, error) {
	var fields []string
	u, err := store.MutateUser(ctx, s.users, userID, func(u *models.User) error {
		fields = fields[:0]
		if dto.FirstName != nil {
			u.FirstName = strings.TrimSpace(*dto.FirstName)
			fields = append(fields, "firstName")
		}
		if dto.LastName != nil {
			u.LastName = strings.TrimSpace(*dto.LastName)
			fields = append(fields, "lastName")
		}
		if dto.Avatar != nil {
			u.Avatar = strings.TrimSpace(*dto.Avatar)
			fields = append(fields, "avatar")
		}
		if p := dto.Preferences; p != nil {
			if p.Theme != nil {
				u.Preferences.Theme = *p.Theme
			}
			if p.Language != nil {
				u.Preferences.Language = *p.Language
			}
			if p.AIPersonality != nil {
				u.Preferences.AIPersonality = *p.AIPersonality
			}
			if n := p.Notifications; n != nil {
				if n.Push != nil {
					u.Preferences.Notifications.Push = *n.Push
				}
				if n.Email != nil {
					u.Preferences.Notifications.Email = *n.Email
				}
			}
			fields = append(fields, "preferences")
		}
		if len(fields) == 0 {
			return store.ErrSkipWrite
		}
		return nil
	})
	if err != nil {
		return nil, nil, s.mapUserErr(err)
	}
	return u, fields, nil
}

// ChangePassword replaces the password and ends every other session. The
// returned pair is the only one still valid.
func (s *Service) ChangePassword(ctx context.Context, userID string, dto *ChangePasswordDTO) (session.TokenPair, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return session.TokenPair{}, s.mapUserErr(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(dto.CurrentPassword)) != nil {
		return session.TokenPair{}, errWrongPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(dto.NewPassword), s.bcryptCost)
	if err != nil {
		return session.TokenPair{}, fmt.Errorf("hash password: %w", err)
	}

	pair, _, err := s.sessions.RestartSession(ctx, userID, func(u *models.User) error {
		u.Password = string(hash)
		return nil
	})
	if err != nil {
		return session.TokenPair{}, err
	}
	s.logger.Info("password changed", zap.String("user_id", userID))
	return pair, nil
}

func (s *Service) RegisterDeviceToken(ctx context.Context, userID string, dto *DeviceTokenDTO) error {
	_, err := s.sessions.RegisterDeviceToken(ctx, userID, dto.Token, dto.Platform)
	if errors.Is(err, session.ErrInvalidPlatform) {
		return errInvalidPlatform.Wrap(err)
	}
	return err
}

func (s *Service) RemoveDeviceToken(ctx context.Context, userID, token string) error {
	return s.sessions.RemoveDeviceToken(ctx, userID, token)
}

// DeleteAccount deactivates the account and frees its email address.
func (s *Service) DeleteAccount(ctx context.Context, userID, password string) error {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return s.mapUserErr(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return errIncorrectPassword
	}
	stamp := s.now().Unix()
	_, err = store.MutateUser(ctx, s.users, userID, func(u *models.User) error {
		u.IsActive = false
		u.Email = fmt.Sprintf("deleted_%d_%s", stamp, u.Email)
		u.RefreshTokens = nil
		u.DeviceTokens = nil
		return nil
	})
	if err != nil {
		return s.mapUserErr(err)
	}
	s.logger.Info("account deleted", zap.String("user_id", userID), zap.String("email", u.Email))
	return nil
}

func (s *Service) Track(ctx context.Context, userID, event string, props map[string]interface{}) {
	s.tracker.Track(ctx, userID, event, props)
}

func (s *Service) mapUserErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return errUserNotFound.Wrap(err)
	}
	return err
}
