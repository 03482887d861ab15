// Package conversation serves the stored chat history of a user.
package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aiassist/core/internal/models"
	"github.com/aiassist/core/internal/modules/processing/markdown"
	"github.com/aiassist/core/internal/pkg/apperr"
	"github.com/aiassist/core/internal/store"
	"go.uber.org/zap"
)

const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

var errNotFound = apperr.NotFound(apperr.CodeConversationNotFound, "Conversation not found")

type Service struct {
	convs  store.ConversationStore
	logger *zap.Logger
	now    func() time.Time
}

func NewService(convs store.ConversationStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{convs: convs, logger: logger, now: time.Now}
}

func (s *Service) List(ctx context.Context, f store.ConversationFilter) ([]*models.Conversation, int64, error) {
	return s.convs.ListConversations(ctx, f)
}

func (s *Service) Get(ctx context.Context, userID, id string) (*models.Conversation, error) {
	c, err := s.convs.GetConversation(ctx, userID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errNotFound
		}
		return nil, err
	}
	return c, nil
}

func (s *Service) Update(ctx context.Context, userID, id string, dto *UpdateDTO) (*models.Conversation, error) {
	p := store.ConversationPatch{IsStarred: dto.IsStarred, Category: dto.Category}
	if dto.Title != nil {
		title := strings.TrimSpace(*dto.Title)
		p.Title = &title
	}
	return s.patch(ctx, userID, id, p)
}

func (s *Service) Archive(ctx context.Context, userID, id string) (*models.Conversation, error) {
	status := models.ConversationArchived
	return s.patch(ctx, userID, id, store.ConversationPatch{Status: &status})
}

// Delete is a soft delete. Deleted conversations are invisible to every
// lookup afterwards.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	status := models.ConversationDeleted
	_, err := s.patch(ctx, userID, id, store.ConversationPatch{Status: &status})
	return err
}

func (s *Service) Clear(ctx context.Context, userID string) (int64, error) {
	return s.convs.DeleteAllConversations(ctx, userID)
}

func (s *Service) patch(ctx context.Context, userID, id string, p store.ConversationPatch) (*models.Conversation, error) {
	c, err := s.convs.UpdateConversation(ctx, userID, id, p, s.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errNotFound
		}
		return nil, err
	}
	return c, nil
}

// Export is a rendered transcript ready to be sent as a download.
type Export struct {
	Filename    string
	ContentType string
	Body        string
}

func (s *Service) Export(ctx context.Context, userID, id, format string) (*Export, error) {
	c, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatHTML:
		return &Export{
			Filename:    markdown.Filename(c, "html"),
			ContentType: "text/html; charset=utf-8",
			Body:        markdown.TranscriptHTML(c),
		}, nil
	default:
		return &Export{
			Filename:    markdown.Filename(c, "md"),
			ContentType: "text/markdown; charset=utf-8",
			Body:        markdown.Transcript(c, true),
		}, nil
	}
}
