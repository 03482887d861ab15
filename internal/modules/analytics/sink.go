package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aiassist/core/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/gorm"
)

// Sink persists events and lists the most recent ones.
type Sink interface {
	Insert(ctx context.Context, e *models.AnalyticsEvent) error
	Recent(ctx context.Context, userID string, limit int) ([]models.AnalyticsEvent, error)
}

const analyticsCollection = "analytics"

// MongoSink stores events in a collection whose TTL index drops them after
// the retention period.
type MongoSink struct {
	coll *mongo.Collection
}

func NewMongoSink(ctx context.Context, db *mongo.Database, retentionDays int) (*MongoSink, error) {
	coll := db.Collection(analyticsCollection)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "eventType", Value: 1}, {Key: "createdAt", Value: -1}}},
	}
	if retentionDays > 0 {
		indexes = append(indexes, mongo.IndexModel{
			Keys:    bson.D{{Key: "createdAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(retentionDays * 24 * 60 * 60)),
		})
	}
	if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("create analytics indexes: %w", err)
	}
	return &MongoSink{coll: coll}, nil
}

func (s *MongoSink) Insert(ctx context.Context, e *models.AnalyticsEvent) error {
	if e.ID == "" {
		e.ID = primitive.NewObjectID().Hex()
	}
	_, err := s.coll.InsertOne(ctx, e)
	return err
}

func (s *MongoSink) Recent(ctx context.Context, userID string, limit int) ([]models.AnalyticsEvent, error) {
	filter := bson.M{}
	if userID != "" {
		filter["userId"] = userID
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(int64(limit))
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	events := make([]models.AnalyticsEvent, 0, limit)
	if err := cur.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// GormSink stores events in the analytics_events table.
type GormSink struct {
	db *gorm.DB
}

func NewGormSink(db *gorm.DB) *GormSink {
	return &GormSink{db: db}
}

func (s *GormSink) Insert(ctx context.Context, e *models.AnalyticsEvent) error {
	return s.db.WithContext(ctx).Create(e).Error
}

func (s *GormSink) Recent(ctx context.Context, userID string, limit int) ([]models.AnalyticsEvent, error) {
	q := s.db.WithContext(ctx).Model(&models.AnalyticsEvent{}).Order("created_at DESC").Limit(limit)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var events []models.AnalyticsEvent
	if err := q.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// Purge deletes rows older than before. Mongo handles this with its TTL
// index; MySQL needs an explicit sweep.
func (s *GormSink) Purge(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", before).Delete(&models.AnalyticsEvent{})
	return res.RowsAffected, res.Error
}

// MemorySink keeps the latest events in process. It backs the memory store
// driver and tests.
type MemorySink struct {
	mu     sync.Mutex
	events []models.AnalyticsEvent
	limit  int
}

func NewMemorySink(limit int) *MemorySink {
	return &MemorySink{limit: limit}
}

func (s *MemorySink) Insert(_ context.Context, e *models.AnalyticsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = primitive.NewObjectID().Hex()
	}
	s.events = models.PushBounded(s.events, *e, s.limit)
	return nil
}

func (s *MemorySink) Recent(_ context.Context, userID string, limit int) ([]models.AnalyticsEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AnalyticsEvent, 0, limit)
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		if userID == "" || s.events[i].UserID == userID {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}
