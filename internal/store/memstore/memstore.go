// Package memstore is an in-process Store used by the development driver
// and by tests. Every read and write copies, so callers never share state
// with the store.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aiassist/core/internal/models"
	"github.com/aiassist/core/internal/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Store struct {
	mu            sync.RWMutex
	users         map[string]*models.User
	emails        map[string]string
	conversations map[string]*models.Conversation
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:         make(map[string]*models.User),
		emails:        make(map[string]string),
		conversations: make(map[string]*models.Conversation),
	}
}

func (s *Store) Ping(context.Context) error  { return nil }
func (s *Store) Close(context.Context) error { return nil }

func (s *Store) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := models.NormalizeEmail(u.Email)
	if _, exists := s.emails[email]; exists {
		return store.ErrDuplicateEmail
	}
	if u.ID == "" {
		u.ID = primitive.NewObjectID().Hex()
	}
	u.Email = email
	u.Version = 1
	s.users[u.ID] = u.Clone()
	s.emails[email] = u.ID
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u.Clone(), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	id, ok := s.emails[models.NormalizeEmail(email)]
	s.mu.RUnlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.GetUser(ctx, id)
}

func (s *Store) UpdateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[u.ID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Version != u.Version {
		return store.ErrVersionConflict
	}
	email := models.NormalizeEmail(u.Email)
	if email != current.Email {
		if owner, taken := s.emails[email]; taken && owner != u.ID {
			return store.ErrDuplicateEmail
		}
		delete(s.emails, current.Email)
		s.emails[email] = u.ID
	}
	u.Email = email
	u.Version++
	u.UpdatedAt = time.Now()
	s.users[u.ID] = u.Clone()
	return nil
}

func (s *Store) ListUsers(_ context.Context, f store.UserFilter) ([]*models.User, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(f.Search))
	matched := make([]*models.User, 0)
	for _, u := range s.users {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if f.IsActive != nil && u.IsActive != *f.IsActive {
			continue
		}
		if search != "" && !containsFold(search, u.Email, u.FirstName, u.LastName) {
			continue
		}
		matched = append(matched, u.Clone())
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	return paginate(matched, f.Page, f.Limit), int64(len(matched)), nil
}

func (s *Store) CreateConversation(_ context.Context, c *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = primitive.NewObjectID().Hex()
	}
	s.conversations[c.ID] = c.Clone()
	return nil
}

func (s *Store) GetConversation(_ context.Context, userID, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok || c.UserID != userID || c.Status == models.ConversationDeleted {
		return nil, store.ErrNotFound
	}
	return c.Clone(), nil
}

func (s *Store) AppendMessage(_ context.Context, userID, id string, m models.Message, model string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok || c.UserID != userID || c.Status != models.ConversationActive {
		return nil, store.ErrNotFound
	}
	c.AddMessage(m.Role, m.Content, m.Tokens, m.Timestamp)
	if model != "" {
		c.Metadata.Model = model
	}
	return c.Clone(), nil
}

func (s *Store) UpdateConversation(_ context.Context, userID, id string, p store.ConversationPatch, now time.Time) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok || c.UserID != userID || c.Status == models.ConversationDeleted {
		return nil, store.ErrNotFound
	}
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.IsStarred != nil {
		c.IsStarred = *p.IsStarred
	}
	if p.Category != nil {
		c.Metadata.Category = *p.Category
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	c.UpdatedAt = now
	return c.Clone(), nil
}

func (s *Store) ListConversations(_ context.Context, f store.ConversationFilter) ([]*models.Conversation, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := f.Status
	if status == "" {
		status = models.ConversationActive
	}
	search := strings.ToLower(strings.TrimSpace(f.Search))
	matched := make([]*models.Conversation, 0)
	for _, c := range s.conversations {
		if c.UserID != f.UserID || c.Status != status {
			continue
		}
		if f.Category != "" && c.Metadata.Category != f.Category {
			continue
		}
		if f.IsStarred != nil && c.IsStarred != *f.IsStarred {
			continue
		}
		if search != "" && !conversationMatches(c, search) {
			continue
		}
		out := c.Clone()
		out.Messages = nil
		matched = append(matched, out)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].LastMessageAt.After(matched[j].LastMessageAt) })
	return paginate(matched, f.Page, f.Limit), int64(len(matched)), nil
}

func (s *Store) CountConversations(_ context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, c := range s.conversations {
		if c.UserID == userID && c.Status != models.ConversationDeleted {
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteAllConversations(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	now := time.Now()
	for _, c := range s.conversations {
		if c.UserID == userID && c.Status != models.ConversationDeleted {
			c.Status = models.ConversationDeleted
			c.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func conversationMatches(c *models.Conversation, search string) bool {
	if containsFold(search, c.Title) {
		return true
	}
	for _, m := range c.Messages {
		if containsFold(search, m.Content) {
			return true
		}
	}
	return false
}

func containsFold(needle string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, page, limit int) []T {
	if limit <= 0 {
		return items
	}
	start := store.Offset(page, limit)
	if start >= len(items) {
		return []T{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
