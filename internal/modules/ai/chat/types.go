package chat

import (
	"time"

	"github.com/aiassist/core/internal/modules/processing/ai"
	"github.com/aiassist/core/internal/pkg/usage"
)

type ChatDTO struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId" binding:"omitempty,len=24,hexadecimal"`
	Personality    string `json:"personality"    binding:"omitempty,oneof=professional friendly concise detailed"`
}

type ChatResult struct {
	Message      MessageView      `json:"message"`
	Conversation ConversationRef  `json:"conversation"`
	Usage        UsageView        `json:"usage"`
	Metadata     ResponseMetadata `json:"metadata"`
}

type MessageView struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type ConversationRef struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	MessageCount int    `json:"messageCount"`
}

type UsageView struct {
	Tokens           ai.Tokens    `json:"tokens"`
	DailyRemaining   int          `json:"dailyRemaining"`
	MonthlyRemaining int          `json:"monthlyRemaining"`
	Limits           usage.Limits `json:"limits"`
}

type ResponseMetadata struct {
	Model            string `json:"model"`
	ProcessingTimeMs int64  `json:"processingTimeMs"`
	IsMock           bool   `json:"isMock"`
}

// UsageStats is the body of GET /ai/usage.
type UsageStats struct {
	DailyUsed     int            `json:"dailyUsed"`
	MonthlyUsed   int            `json:"monthlyUsed"`
	TotalUsed     int            `json:"totalUsed"`
	LastRequestAt *time.Time     `json:"lastRequestAt,omitempty"`
	Snapshot      usage.Snapshot `json:"current"`
}
