// Package store declares the persistence contracts for users and
// conversations. Implementations live in mongostore and memstore.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/aiassist/core/internal/models"
)

var (
	ErrNotFound        = errors.New("store: not found")
	ErrDuplicateEmail  = errors.New("store: email already registered")
	ErrVersionConflict = errors.New("store: version conflict")
)

// UserStore persists users. UpdateUser is a compare-and-swap on
// User.Version: it fails with ErrVersionConflict when the stored version no
// longer matches, and increments u.Version on success.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
	ListUsers(ctx context.Context, f UserFilter) ([]*models.User, int64, error)
}

type UserFilter struct {
	Role     string
	IsActive *bool
	Search   string
	Page     int
	Limit    int
}

// ConversationStore persists conversations. Lookups never return
// conversations in the deleted state. Writes after creation are field-level
// updates so that concurrent writers never overwrite each other.
type ConversationStore interface {
	CreateConversation(ctx context.Context, c *models.Conversation) error
	GetConversation(ctx context.Context, userID, id string) (*models.Conversation, error)
	// AppendMessage pushes m onto an active conversation and returns the
	// conversation as stored right after the push. A non-empty model is
	// recorded in the metadata. Archived or deleted conversations report
	// ErrNotFound.
	AppendMessage(ctx context.Context, userID, id string, m models.Message, model string) (*models.Conversation, error)
	UpdateConversation(ctx context.Context, userID, id string, p ConversationPatch, now time.Time) (*models.Conversation, error)
	ListConversations(ctx context.Context, f ConversationFilter) ([]*models.Conversation, int64, error)
	CountConversations(ctx context.Context, userID string) (int64, error)
	DeleteAllConversations(ctx context.Context, userID string) (int64, error)
}

// ConversationPatch sets only its non-nil fields.
type ConversationPatch struct {
	Title     *string
	IsStarred *bool
	Category  *string
	Status    *string
}

type ConversationFilter struct {
	UserID    string
	Status    string
	Category  string
	Search    string
	IsStarred *bool
	Page      int
	Limit     int
}

// Store is the full persistence surface the server needs.
type Store interface {
	UserStore
	ConversationStore
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Offset converts a 1-based page into a skip count.
func Offset(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}
