// Package admin exposes operator endpoints for users, quota and recent
// activity.
package admin

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/aiassist/core/internal/models"
	"github.com/aiassist/core/internal/modules/analytics"
	"github.com/aiassist/core/internal/modules/processing/ai"
	"github.com/aiassist/core/internal/pkg/apperr"
	"github.com/aiassist/core/internal/pkg/usage"
	"github.com/aiassist/core/internal/store"
	"go.uber.org/zap"
)

const pingTimeout = 2 * time.Second

var errUserNotFound = apperr.NotFound(apperr.CodeUserNotFound, "User not found")

// Pinger is a dependency the health report probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Service struct {
	users    store.UserStore
	convs    store.ConversationStore
	gate     *usage.Gate
	tracker  *analytics.Tracker
	pipeline *ai.Pipeline
	probes   map[string]Pinger
	logger   *zap.Logger
	started  time.Time
	now      func() time.Time
}

func NewService(users store.UserStore, convs store.ConversationStore, gate *usage.Gate, tracker *analytics.Tracker, pipeline *ai.Pipeline, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		users:    users,
		convs:    convs,
		gate:     gate,
		tracker:  tracker,
		pipeline: pipeline,
		probes:   map[string]Pinger{},
		logger:   logger,
		started:  time.Now(),
		now:      time.Now,
	}
}

// WithProbe adds a named dependency to the health report. A nil pinger is
// reported as disabled.
func (s *Service) WithProbe(name string, p Pinger) *Service {
	s.probes[name] = p
	return s
}

func (s *Service) ListUsers(ctx context.Context, f store.UserFilter) ([]UserDetail, int64, error) {
	users, total, err := s.users.ListUsers(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	out := make([]UserDetail, 0, len(users))
	for _, u := range users {
		out = append(out, UserDetail{User: u, Current: s.gate.SnapshotOf(u)})
	}
	return out, total, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (*UserDetail, error) {
	u, err := s.users.GetUser(ctx, id)
	if err != nil {
		return nil, mapUserErr(err)
	}
	n, err := s.convs.CountConversations(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return &UserDetail{User: u, ConversationCount: n, Current: s.gate.SnapshotOf(u)}, nil
}

func (s *Service) UpdateUser(ctx context.Context, id string, dto *UpdateUserDTO) (*UserDetail, error) {
	u, err := store.MutateUser(ctx, s.users, id, func(u *models.User) error {
		if dto.Role != nil {
			u.Role = *dto.Role
		}
		if dto.IsActive != nil {
			u.IsActive = *dto.IsActive
			if !u.IsActive {
				u.RefreshTokens = nil
			}
		}
		if sub := dto.Subscription; sub != nil {
			if sub.Plan != nil {
				u.Subscription.Plan = *sub.Plan
			}
			if sub.IsActive != nil {
				u.Subscription.IsActive = *sub.IsActive
			}
			if sub.ExpiresAt != nil {
				at := *sub.ExpiresAt
				u.Subscription.ExpiresAt = &at
			}
		}
		u.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, mapUserErr(err)
	}
	s.logger.Info("admin updated user",
		zap.String("user_id", u.ID), zap.String("role", u.Role), zap.Bool("active", u.IsActive))
	return &UserDetail{User: u, Current: s.gate.SnapshotOf(u)}, nil
}

func (s *Service) ResetUsage(ctx context.Context, id string) (usage.Snapshot, error) {
	snap, err := s.gate.Reset(ctx, id)
	if err != nil {
		return usage.Snapshot{}, mapUserErr(err)
	}
	s.logger.Info("admin reset usage", zap.String("user_id", id))
	return snap, nil
}

func (s *Service) Activity(ctx context.Context, userID string, limit int) ([]models.AnalyticsEvent, error) {
	return s.tracker.Recent(ctx, userID, limit)
}

// Health probes every registered dependency. The status is degraded when
// any enabled probe fails.
func (s *Service) Health(ctx context.Context) *Health {
	h := &Health{
		Status:    "healthy",
		Timestamp: s.now(),
		Services:  make(map[string]string, len(s.probes)+1),
		Uptime:    int64(time.Since(s.started).Seconds()),
	}
	for name, p := range s.probes {
		h.Services[name] = probe(ctx, p)
		if h.Services[name] == "disconnected" {
			h.Status = "degraded"
		}
	}
	if s.tracker.Enabled() {
		h.Services["analytics"] = "enabled"
	} else {
		h.Services["analytics"] = "disabled"
	}
	if s.pipeline != nil {
		h.AI = s.pipeline.Status()
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	h.Memory = MemoryStats{
		Used:       ms.HeapAlloc >> 20,
		Total:      ms.Sys >> 20,
		Goroutines: runtime.NumGoroutine(),
	}
	return h
}

func probe(ctx context.Context, p Pinger) string {
	if p == nil {
		return "disabled"
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return "disconnected"
	}
	return "connected"
}

func mapUserErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return errUserNotFound
	}
	return err
}
