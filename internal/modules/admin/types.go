package admin

import (
	"time"

	"github.com/aiassist/core/internal/models"
	"github.com/aiassist/core/internal/pkg/usage"
)

type UserListQuery struct {
	Role     string `form:"role"     binding:"omitempty,oneof=user premium admin"`
	IsActive string `form:"isActive" binding:"omitempty,oneof=true false"`
	Search   string `form:"search"   binding:"omitempty,max=200"`
}

type UpdateUserDTO struct {
	Role         *string          `json:"role"         binding:"omitempty,oneof=user premium admin"`
	IsActive     *bool            `json:"isActive"`
	Subscription *SubscriptionDTO `json:"subscription"`
}

type SubscriptionDTO struct {
	Plan      *string    `json:"plan"      binding:"omitempty,oneof=free premium"`
	IsActive  *bool      `json:"isActive"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

type ActivityQuery struct {
	UserID string `form:"userId" binding:"omitempty,len=24,hexadecimal"`
	Limit  int    `form:"limit"  binding:"omitempty,min=1,max=500"`
}

// UserDetail is a user as an operator sees it.
type UserDetail struct {
	*models.User
	ConversationCount int64          `json:"conversationCount"`
	Current           usage.Snapshot `json:"current"`
}

// Health is the operator view of the running process.
type Health struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	AI        interface{}       `json:"ai"`
	Memory    MemoryStats       `json:"memory"`
	Uptime    int64             `json:"uptime"`
}

// MemoryStats is in megabytes.
type MemoryStats struct {
	Used       uint64 `json:"used"`
	Total      uint64 `json:"total"`
	Goroutines int    `json:"goroutines"`
}
