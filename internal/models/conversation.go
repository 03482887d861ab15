package models

import (
	"slices"
	"strings"
	"time"
)

const (
	ConversationActive   = "active"
	ConversationArchived = "archived"
	ConversationDeleted  = "deleted"

	DefaultConversationTitle = "New Conversation"
	maxAutoTitleLen          = 50

	RoleMessageUser      = "user"
	RoleMessageAssistant = "assistant"
	RoleMessageSystem    = "system"
)

var ConversationCategories = []string{"general", "coding", "writing", "analysis", "creative", "other"}

type Conversation struct {
	ID            string               `json:"id"                 bson:"_id"`
	UserID        string               `json:"userId"             bson:"userId"`
	Title         string               `json:"title"              bson:"title"`
	Messages      []Message            `json:"messages,omitempty" bson:"messages"`
	Metadata      ConversationMetadata `json:"metadata"           bson:"metadata"`
	Status        string               `json:"status"             bson:"status"`
	IsStarred     bool                 `json:"isStarred"          bson:"isStarred"`
	LastMessageAt time.Time            `json:"lastMessageAt"      bson:"lastMessageAt"`
	CreatedAt     time.Time            `json:"createdAt"          bson:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"          bson:"updatedAt"`
}

type Message struct {
	Role      string    `json:"role"      bson:"role"`
	Content   string    `json:"content"   bson:"content"`
	Tokens    int       `json:"tokens"    bson:"tokens"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

type ConversationMetadata struct {
	Model       string `json:"model"       bson:"model"`
	TotalTokens int    `json:"totalTokens" bson:"totalTokens"`
	Personality string `json:"personality" bson:"personality"`
	Category    string `json:"category"    bson:"category"`
}

func NewConversation(userID, personality string, now time.Time) *Conversation {
	return &Conversation{
		UserID: userID,
		Title:  DefaultConversationTitle,
		Metadata: ConversationMetadata{
			Personality: personality,
			Category:    "general",
		},
		Status:        ConversationActive,
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// AddMessage appends a message and keeps the derived fields in step. The
// first user message names an untitled conversation.
func (c *Conversation) AddMessage(role, content string, tokens int, now time.Time) Message {
	m := Message{Role: role, Content: content, Tokens: tokens, Timestamp: now}
	c.Messages = append(c.Messages, m)
	c.Metadata.TotalTokens += tokens
	c.LastMessageAt = now
	c.UpdatedAt = now
	if role == RoleMessageUser && c.Title == DefaultConversationTitle && c.countRole(RoleMessageUser) == 1 {
		c.Title = autoTitle(content)
	}
	return m
}

func (c *Conversation) MessageCount() int { return len(c.Messages) }

func (c *Conversation) countRole(role string) int {
	n := 0
	for _, m := range c.Messages {
		if m.Role == role {
			n++
		}
	}
	return n
}

func autoTitle(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	runes := []rune(title)
	if len(runes) > maxAutoTitleLen {
		return string(runes[:maxAutoTitleLen]) + "..."
	}
	if title == "" {
		return DefaultConversationTitle
	}
	return title
}

func ValidCategory(c string) bool {
	return slices.Contains(ConversationCategories, c)
}

func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = slices.Clone(c.Messages)
	return &out
}
