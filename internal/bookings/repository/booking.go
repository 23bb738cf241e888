package repository

import (
	"context"
	"errors"
	"fmt"
	"time"
	bookingserrors "tripdesk/internal/bookings/errors"
	"tripdesk/pkg/config"
	mongotx "tripdesk/pkg/db/mongo"
	"tripdesk/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Bookings"
)

type mongoBookingRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

// RescheduleUpdate carries the fields the coordinator writes when a
// reschedule commits.
type RescheduleUpdate struct {
	NewStart        time.Time
	OriginalStart   *time.Time
	Reason          string
	ActorID         string
	RescheduledAt   time.Time
	RescheduleCount int
	TotalAmount     float64
	ServiceLines    []model.ServiceLine
}

type BookingRepository interface {
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	UpdateReschedule(ctx context.Context, id string, upd RescheduleUpdate) error
	CountActiveOnDate(ctx context.Context, date time.Time, excludeID string) (int64, error)
	FindConflictingOnDate(ctx context.Context, date time.Time, serviceIDs []string, excludeID string) ([]*model.Booking, error)
	FindActiveByPackageOnDate(ctx context.Context, date time.Time, packageID string, excludeID string) ([]*model.Booking, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoBookingRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout wraps the context with a timeout if not already in a transaction.
// When inside a transaction (SessionContext), returns the original context unchanged
// with a no-op cancel function, as we cannot wrap SessionContext without breaking
// transaction semantics.
func (r *mongoBookingRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	var booking model.Booking
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}

	return &booking, nil
}

func (r *mongoBookingRepository) UpdateReschedule(ctx context.Context, id string, upd RescheduleUpdate) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	set := bson.M{
		"start_time":        upd.NewStart,
		"status":            model.BookingRescheduled,
		"reschedule_reason": upd.Reason,
		"rescheduled_by":    upd.ActorID,
		"rescheduled_at":    upd.RescheduledAt,
		"reschedule_count":  upd.RescheduleCount,
		"total_amount":      upd.TotalAmount,
		"service_lines":     upd.ServiceLines,
	}
	// The first reschedule records where the booking originally started;
	// later moves never touch it.
	if upd.OriginalStart != nil {
		set["original_start_time"] = *upd.OriginalStart
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}

	if result.MatchedCount == 0 {
		return bookingserrors.ErrNotFound
	}

	return nil
}

func (r *mongoBookingRepository) CountActiveOnDate(ctx context.Context, date time.Time, excludeID string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := r.activeOnDateFilter(date, excludeID)

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings on date: %w", err)
	}
	return count, nil
}

func (r *mongoBookingRepository) FindConflictingOnDate(ctx context.Context, date time.Time, serviceIDs []string, excludeID string) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := r.activeOnDateFilter(date, excludeID)
	filter["service_lines.service_id"] = bson.M{"$in": serviceIDs}

	opts := options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find conflicting bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode conflicting bookings: %w", err)
	}

	return bookings, nil
}

func (r *mongoBookingRepository) FindActiveByPackageOnDate(ctx context.Context, date time.Time, packageID string, excludeID string) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := r.activeOnDateFilter(date, excludeID)
	filter["service_lines.package_id"] = packageID

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find package bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode package bookings: %w", err)
	}

	return bookings, nil
}

// activeOnDateFilter matches active bookings starting on the calendar day of
// date, optionally excluding one booking.
func (r *mongoBookingRepository) activeOnDateFilter(date time.Time, excludeID string) bson.M {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	filter := bson.M{
		"status":     bson.M{"$in": model.ActiveBookingStatuses},
		"start_time": bson.M{"$gte": dayStart, "$lt": dayEnd},
	}

	if excludeID != "" {
		if objectID, err := primitive.ObjectIDFromHex(excludeID); err == nil {
			filter["_id"] = bson.M{"$ne": objectID}
		}
	}

	return filter
}

func (r *mongoBookingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
