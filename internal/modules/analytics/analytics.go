// Package analytics records product events. Tracking never fails the
// caller: sink errors are logged and dropped.
package analytics

import (
	"context"
	"time"

	"github.com/aiassist/core/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	trackTimeout       = 3 * time.Second
	DefaultRecentLimit = 50
	MaxRecentLimit     = 500
)

type Tracker struct {
	sink   Sink
	logger *zap.Logger
	now    func() time.Time
}

// NewTracker returns a tracker writing to sink. A nil sink disables
// tracking.
func NewTracker(sink Sink, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{sink: sink, logger: logger, now: time.Now}
}

func (t *Tracker) Enabled() bool { return t != nil && t.sink != nil }

// Track records one event. The write is detached from ctx cancellation so
// an event of a finished request is still stored.
func (t *Tracker) Track(ctx context.Context, userID, eventType string, properties map[string]interface{}) {
	t.track(ctx, &models.AnalyticsEvent{UserID: userID, EventType: eventType, Properties: properties})
}

// TrackRequest records an event with the client IP and user agent of c.
func (t *Tracker) TrackRequest(c *gin.Context, userID, eventType string, properties map[string]interface{}) {
	t.track(c.Request.Context(), &models.AnalyticsEvent{
		UserID:     userID,
		EventType:  eventType,
		Properties: properties,
		IP:         c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
}

func (t *Tracker) track(ctx context.Context, e *models.AnalyticsEvent) {
	if !t.Enabled() {
		return
	}
	if e.Properties == nil {
		e.Properties = map[string]interface{}{}
	}
	e.CreatedAt = t.now()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), trackTimeout)
	defer cancel()
	if err := t.sink.Insert(ctx, e); err != nil {
		t.logger.Warn("analytics tracking failed",
			zap.String("event", e.EventType), zap.String("user_id", e.UserID), zap.Error(err))
		return
	}
	t.logger.Debug("analytics event tracked", zap.String("event", e.EventType))
}

// Recent lists the latest events, newest first, optionally for one user.
func (t *Tracker) Recent(ctx context.Context, userID string, limit int) ([]models.AnalyticsEvent, error) {
	if !t.Enabled() {
		return []models.AnalyticsEvent{}, nil
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}
	return t.sink.Recent(ctx, userID, limit)
}
