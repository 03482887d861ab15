// Package mongostore implements store.Store on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aiassist/core/internal/models"
	"github.com/aiassist/core/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	usersCollection         = "users"
	conversationsCollection = "conversations"
)

type Store struct {
	client        *mongo.Client
	users         *mongo.Collection
	conversations *mongo.Collection
	logger        *zap.Logger
}

var _ store.Store = (*Store)(nil)

// New wraps an already connected database and ensures the indexes the
// queries rely on.
func New(ctx context.Context, db *mongo.Database, logger *zap.Logger) (*Store, error) {
	s := &Store{
		client:        db.Client(),
		users:         db.Collection(usersCollection),
		conversations: db.Collection(conversationsCollection),
		logger:        logger,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("create users.email index: %w", err)
	}
	if _, err := s.conversations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "lastMessageAt", Value: -1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "status", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("create conversations indexes: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = primitive.NewObjectID().Hex()
	}
	u.Email = models.NormalizeEmail(u.Email)
	u.Version = 1
	if _, err := s.users.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"email": models.NormalizeEmail(email)})
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	if err := s.users.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	expected := u.Version
	next := *u
	next.Email = models.NormalizeEmail(u.Email)
	next.Version = expected + 1
	next.UpdatedAt = time.Now()

	res, err := s.users.ReplaceOne(ctx, bson.M{"_id": u.ID, "version": expected}, &next)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDuplicateEmail
		}
		return fmt.Errorf("replace user: %w", err)
	}
	if res.MatchedCount == 0 {
		n, err := s.users.CountDocuments(ctx, bson.M{"_id": u.ID})
		if err != nil {
			return fmt.Errorf("count user: %w", err)
		}
		if n == 0 {
			return store.ErrNotFound
		}
		return store.ErrVersionConflict
	}
	*u = next
	return nil
}

func (s *Store) ListUsers(ctx context.Context, f store.UserFilter) ([]*models.User, int64, error) {
	filter := bson.M{}
	if f.Role != "" {
		filter["role"] = f.Role
	}
	if f.IsActive != nil {
		filter["isActive"] = *f.IsActive
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"email": re},
			bson.M{"firstName": re},
			bson.M{"lastName": re},
		}
	}

	total, err := s.users.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetProjection(bson.M{"password": 0, "refreshTokens": 0})
	if f.Limit > 0 {
		opts.SetSkip(int64(store.Offset(f.Page, f.Limit))).SetLimit(int64(f.Limit))
	}
	cursor, err := s.users.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer cursor.Close(ctx)

	users := make([]*models.User, 0)
	if err := cursor.All(ctx, &users); err != nil {
		return nil, 0, fmt.Errorf("decode users: %w", err)
	}
	return users, total, nil
}

func (s *Store) CreateConversation(ctx context.Context, c *models.Conversation) error {
	if c.ID == "" {
		c.ID = primitive.NewObjectID().Hex()
	}
	if _, err := s.conversations.InsertOne(ctx, c); err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, userID, id string) (*models.Conversation, error) {
	filter := bson.M{
		"_id":    id,
		"userId": userID,
		"status": bson.M{"$ne": models.ConversationDeleted},
	}
	var c models.Conversation
	if err := s.conversations.FindOne(ctx, filter).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return &c, nil
}

func (s *Store) AppendMessage(ctx context.Context, userID, id string, m models.Message, model string) (*models.Conversation, error) {
	filter := bson.M{"_id": id, "userId": userID, "status": models.ConversationActive}
	set := bson.M{"lastMessageAt": m.Timestamp, "updatedAt": m.Timestamp}
	if model != "" {
		set["metadata.model"] = model
	}
	update := bson.M{
		"$push": bson.M{"messages": m},
		"$inc":  bson.M{"metadata.totalTokens": m.Tokens},
		"$set":  set,
	}
	return s.findAndUpdateConversation(ctx, filter, update)
}

func (s *Store) UpdateConversation(ctx context.Context, userID, id string, p store.ConversationPatch, now time.Time) (*models.Conversation, error) {
	filter := bson.M{
		"_id":    id,
		"userId": userID,
		"status": bson.M{"$ne": models.ConversationDeleted},
	}
	set := bson.M{"updatedAt": now}
	if p.Title != nil {
		set["title"] = *p.Title
	}
	if p.IsStarred != nil {
		set["isStarred"] = *p.IsStarred
	}
	if p.Category != nil {
		set["metadata.category"] = *p.Category
	}
	if p.Status != nil {
		set["status"] = *p.Status
	}
	return s.findAndUpdateConversation(ctx, filter, bson.M{"$set": set})
}

func (s *Store) findAndUpdateConversation(ctx context.Context, filter, update bson.M) (*models.Conversation, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var c models.Conversation
	if err := s.conversations.FindOneAndUpdate(ctx, filter, update, opts).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("update conversation: %w", err)
	}
	return &c, nil
}

func (s *Store) ListConversations(ctx context.Context, f store.ConversationFilter) ([]*models.Conversation, int64, error) {
	status := f.Status
	if status == "" {
		status = models.ConversationActive
	}
	filter := bson.M{"userId": f.UserID, "status": status}
	if f.Category != "" {
		filter["metadata.category"] = f.Category
	}
	if f.IsStarred != nil {
		filter["isStarred"] = *f.IsStarred
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"title": re},
			bson.M{"messages.content": re},
		}
	}

	total, err := s.conversations.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count conversations: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "lastMessageAt", Value: -1}}).
		SetProjection(bson.M{"messages": 0})
	if f.Limit > 0 {
		opts.SetSkip(int64(store.Offset(f.Page, f.Limit))).SetLimit(int64(f.Limit))
	}
	cursor, err := s.conversations.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list conversations: %w", err)
	}
	defer cursor.Close(ctx)

	out := make([]*models.Conversation, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, 0, fmt.Errorf("decode conversations: %w", err)
	}
	return out, total, nil
}

func (s *Store) CountConversations(ctx context.Context, userID string) (int64, error) {
	n, err := s.conversations.CountDocuments(ctx, bson.M{
		"userId": userID,
		"status": bson.M{"$ne": models.ConversationDeleted},
	})
	if err != nil {
		return 0, fmt.Errorf("count conversations: %w", err)
	}
	return n, nil
}

func (s *Store) DeleteAllConversations(ctx context.Context, userID string) (int64, error) {
	res, err := s.conversations.UpdateMany(ctx,
		bson.M{"userId": userID, "status": bson.M{"$ne": models.ConversationDeleted}},
		bson.M{"$set": bson.M{"status": models.ConversationDeleted, "updatedAt": time.Now()}},
	)
	if err != nil {
		return 0, fmt.Errorf("delete conversations: %w", err)
	}
	s.logger.Info("conversations cleared", zap.String("user_id", userID), zap.Int64("count", res.ModifiedCount))
	return res.ModifiedCount, nil
}
