package repository

import (
	"context"
	"fmt"
	"time"
	bookingserrors "tripdesk/internal/bookings/errors"
	"tripdesk/pkg/config"
	"tripdesk/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const HistoryCollectionName = "Reschedule_history"

type HistoryRepository interface {
	Append(ctx context.Context, entry *model.RescheduleHistoryEntry) error
	FindByBooking(ctx context.Context, bookingID string) ([]*model.RescheduleHistoryEntry, error)
	CountByActorOnDate(ctx context.Context, actorID string, date time.Time) (int64, error)
	MarkNotificationSent(ctx context.Context, entryID string) error
}

type mongoHistoryRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoHistoryRepository(cfg *config.Config) HistoryRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoHistoryRepository{
		cfg:        cfg,
		collection: db.Collection(HistoryCollectionName),
	}
}

func (r *mongoHistoryRepository) Append(ctx context.Context, entry *model.RescheduleHistoryEntry) error {
	entry.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	result, err := r.collection.InsertOne(ctx, entry)
	if err != nil {
		return fmt.Errorf("failed to append reschedule history: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		entry.ID = oid.Hex()
	}
	return nil
}

func (r *mongoHistoryRepository) FindByBooking(ctx context.Context, bookingID string) ([]*model.RescheduleHistoryEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := r.collection.Find(ctx, bson.M{"booking_id": bookingID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find reschedule history: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*model.RescheduleHistoryEntry
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode reschedule history: %w", err)
	}

	return entries, nil
}

// CountByActorOnDate counts the reschedules an actor committed on the
// calendar day of date. Feeds the per-day frequency limit.
func (r *mongoHistoryRepository) CountByActorOnDate(ctx context.Context, actorID string, date time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	filter := bson.M{
		"actor_id":   actorID,
		"created_at": bson.M{"$gte": dayStart, "$lt": dayEnd},
	}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count reschedules by actor: %w", err)
	}
	return count, nil
}

func (r *mongoHistoryRepository) MarkNotificationSent(ctx context.Context, entryID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(entryID)
	if err != nil {
		return fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, entryID)
	}

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": bson.M{"notification_sent": true}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}

	if result.MatchedCount == 0 {
		return bookingserrors.ErrHistoryNotFound
	}

	return nil
}
