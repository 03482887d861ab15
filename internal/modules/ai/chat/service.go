// Package chat runs one AI chat turn: quota admission, conversation
// persistence, generation and usage accounting.
package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aiassist/core/internal/models"
	"github.com/aiassist/core/internal/modules/analytics"
	"github.com/aiassist/core/internal/modules/processing/ai"
	"github.com/aiassist/core/internal/pkg/apperr"
	"github.com/aiassist/core/internal/pkg/usage"
	"github.com/aiassist/core/internal/store"
	"go.uber.org/zap"
)

const settleTimeout = 5 * time.Second

var errConversationNotFound = apperr.NotFound(apperr.CodeConversationNotFound, "Conversation not found")

type Service struct {
	convs    store.ConversationStore
	gate     *usage.Gate
	pipeline *ai.Pipeline
	tracker  *analytics.Tracker
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(convs store.ConversationStore, gate *usage.Gate, pipeline *ai.Pipeline, tracker *analytics.Tracker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		convs:    convs,
		gate:     gate,
		pipeline: pipeline,
		tracker:  tracker,
		logger:   logger,
		now:      time.Now,
	}
}

// Send handles one chat turn for u. The user message is stored before the
// provider is called and stays stored when generation fails. Quota is only
// consumed by a successful reply.
func (s *Service) Send(ctx context.Context, u *models.User, dto *ChatDTO) (*ChatResult, error) {
	message, err := ai.Validate(dto.Message)
	if err != nil {
		return nil, ai.AppError(err)
	}

	ticket, admitted, err := s.gate.Admit(ctx, u.ID)
	if err != nil {
		if d, ok := usage.IsDenial(err); ok {
			return nil, usageLimitError(d.Snapshot)
		}
		return nil, err
	}

	conv, created, err := s.openConversation(ctx, u, dto)
	if err != nil {
		s.release(ctx, ticket)
		return nil, err
	}
	if created {
		conv.AddMessage(models.RoleMessageUser, message, 0, s.now())
		err = s.convs.CreateConversation(ctx, conv)
	} else {
		userMsg := models.Message{Role: models.RoleMessageUser, Content: message, Timestamp: s.now()}
		conv, err = s.convs.AppendMessage(ctx, u.ID, conv.ID, userMsg, "")
	}
	if err != nil {
		s.release(ctx, ticket)
		if errors.Is(err, store.ErrNotFound) {
			return nil, errConversationNotFound
		}
		return nil, fmt.Errorf("store user message: %w", err)
	}
	if created {
		s.tracker.Track(ctx, u.ID, models.EventConversationCreated, map[string]interface{}{"conversationId": conv.ID})
	}
	s.tracker.Track(ctx, u.ID, models.EventAIRequest, map[string]interface{}{
		"conversationId": conv.ID,
		"messageLength":  len([]rune(message)),
	})

	// Everything stored before this turn's message.
	history := ai.HistoryFrom(conv.Messages[:len(conv.Messages)-1])
	resp, err := s.pipeline.Generate(ctx, ai.Request{
		Message:     message,
		History:     history,
		Personality: conv.Metadata.Personality,
	})
	if err != nil {
		s.release(ctx, ticket)
		s.tracker.Track(ctx, u.ID, models.EventAIError, errorProps(conv.ID, err))
		return nil, ai.AppError(err)
	}

	reply := models.Message{
		Role:      models.RoleMessageAssistant,
		Content:   resp.Text,
		Tokens:    resp.Tokens.Total,
		Timestamp: s.now(),
	}
	conv, err = s.convs.AppendMessage(ctx, u.ID, conv.ID, reply, resp.Model)
	if err != nil {
		s.release(ctx, ticket)
		if errors.Is(err, store.ErrNotFound) {
			// Archived or deleted while the reply was being generated.
			return nil, errConversationNotFound
		}
		return nil, fmt.Errorf("store assistant message: %w", err)
	}

	snap := admitted
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	if committed, err := s.gate.Commit(settleCtx, ticket); err != nil {
		// The reservation expires on its own; the admitted view already
		// accounts for this request.
		s.logger.Error("usage commit failed", zap.String("user_id", u.ID), zap.Error(err))
	} else {
		snap = committed
	}

	s.tracker.Track(ctx, u.ID, models.EventAIResponse, map[string]interface{}{
		"conversationId": conv.ID,
		"tokens":         resp.Tokens.Total,
		"processingTime": resp.ProcessingTimeMs,
		"model":          resp.Model,
	})
	s.logger.Debug("AI response generated", zap.String("user_id", u.ID), zap.String("conversation_id", conv.ID))

	return &ChatResult{
		Message: MessageView{Role: reply.Role, Content: reply.Content, Timestamp: reply.Timestamp},
		Conversation: ConversationRef{
			ID:           conv.ID,
			Title:        conv.Title,
			MessageCount: conv.MessageCount(),
		},
		Usage: UsageView{
			Tokens:           resp.Tokens,
			DailyRemaining:   snap.DailyRemaining,
			MonthlyRemaining: snap.MonthlyRemaining,
			Limits:           snap.Limits,
		},
		Metadata: ResponseMetadata{
			Model:            resp.Model,
			ProcessingTimeMs: resp.ProcessingTimeMs,
			IsMock:           resp.IsMock,
		},
	}, nil
}

func (s *Service) openConversation(ctx context.Context, u *models.User, dto *ChatDTO) (*models.Conversation, bool, error) {
	if dto.ConversationID == "" {
		personality := dto.Personality
		if personality == "" {
			personality = u.Preferences.AIPersonality
		}
		p := string(ai.NormalizePersonality(personality))
		return models.NewConversation(u.ID, p, s.now()), true, nil
	}
	conv, err := s.convs.GetConversation(ctx, u.ID, dto.ConversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, errConversationNotFound
		}
		return nil, false, err
	}
	if conv.Status != models.ConversationActive {
		return nil, false, errConversationNotFound
	}
	return conv, false, nil
}

func (s *Service) release(ctx context.Context, t *usage.Ticket) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	if err := s.gate.Release(ctx, t); err != nil {
		s.logger.Error("usage release failed", zap.String("user_id", t.UserID), zap.Error(err))
	}
}

// Usage reconciles the windows and returns the caller's counters.
func (s *Service) Usage(ctx context.Context, userID string) (*UsageStats, error) {
	snap, u, err := s.gate.Check(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UsageStats{
		DailyUsed:     u.Usage.DailyCount,
		MonthlyUsed:   u.Usage.MonthlyCount,
		TotalUsed:     u.Usage.TotalCount,
		LastRequestAt: u.Usage.LastRequestAt,
		Snapshot:      snap,
	}, nil
}

func (s *Service) Status() ai.Status {
	return s.pipeline.Status()
}

func usageLimitError(snap usage.Snapshot) error {
	msg := fmt.Sprintf("You've reached your %s AI request limit. Please upgrade to Premium for more requests.", snap.Boundary)
	return apperr.New(http.StatusTooManyRequests, apperr.CodeUsageLimitExceeded, msg).
		WithDetails(map[string]interface{}{
			"dailyRemaining":   snap.DailyRemaining,
			"monthlyRemaining": snap.MonthlyRemaining,
			"limits":           snap.Limits,
			"boundary":         snap.Boundary,
		})
}

func errorProps(conversationID string, err error) map[string]interface{} {
	props := map[string]interface{}{"conversationId": conversationID, "error": err.Error()}
	var perr *ai.ProviderError
	if errors.As(err, &perr) {
		props["kind"] = string(perr.Kind)
		props["provider"] = perr.Provider
	}
	return props
}
