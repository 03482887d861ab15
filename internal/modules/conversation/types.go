package conversation

import (
	"time"

	"github.com/aiassist/core/internal/models"
)

type ListQuery struct {
	Status    string `form:"status"    binding:"omitempty,oneof=active archived"`
	IsStarred string `form:"isStarred" binding:"omitempty,oneof=true false"`
	Category  string `form:"category"  binding:"omitempty,oneof=general coding writing analysis creative other"`
	Search    string `form:"search"    binding:"omitempty,max=200"`
}

type UpdateDTO struct {
	Title     *string `json:"title"     binding:"omitempty,notblank,max=100"`
	IsStarred *bool   `json:"isStarred"`
	Category  *string `json:"category"  binding:"omitempty,oneof=general coding writing analysis creative other"`
}

type ExportQuery struct {
	Format string `form:"format" binding:"omitempty,oneof=markdown html"`
}

// Summary is the list shape of a conversation, without messages.
type Summary struct {
	ID            string                      `json:"id"`
	Title         string                      `json:"title"`
	Metadata      models.ConversationMetadata `json:"metadata"`
	Status        string                      `json:"status"`
	IsStarred     bool                        `json:"isStarred"`
	LastMessageAt time.Time                   `json:"lastMessageAt"`
	CreatedAt     time.Time                   `json:"createdAt"`
	UpdatedAt     time.Time                   `json:"updatedAt"`
}

func NewSummary(c *models.Conversation) Summary {
	return Summary{
		ID:            c.ID,
		Title:         c.Title,
		Metadata:      c.Metadata,
		Status:        c.Status,
		IsStarred:     c.IsStarred,
		LastMessageAt: c.LastMessageAt,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

// Detail is a conversation with its messages.
type Detail struct {
	Summary
	Messages     []models.Message `json:"messages"`
	MessageCount int              `json:"messageCount"`
}

func NewDetail(c *models.Conversation) Detail {
	msgs := c.Messages
	if msgs == nil {
		msgs = []models.Message{}
	}
	return Detail{Summary: NewSummary(c), Messages: msgs, MessageCount: c.MessageCount()}
}
