package repository

import (
	"context"
	"time"
	bookingserrors "tripdesk/internal/bookings/errors"
	"tripdesk/pkg/config"
	"tripdesk/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const LockCollectionName = "Reschedule_locks"

// RescheduleLockRepository provides operations for advisory locks
type RescheduleLockRepository interface {
	Acquire(ctx context.Context, bookingID string) (*model.RescheduleLock, error)
	Release(ctx context.Context, lockID string) error
}

type mongoRescheduleLockRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewRescheduleLockRepository(cfg *config.Config) RescheduleLockRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoRescheduleLockRepository{
		cfg:        cfg,
		collection: db.Collection(LockCollectionName),
	}
}

// Acquire inserts the advisory lock document for a booking. A duplicate key
// error means another reschedule holds the lock.
func (r *mongoRescheduleLockRepository) Acquire(ctx context.Context, bookingID string) (*model.RescheduleLock, error) {
	now := time.Now()
	lock := &model.RescheduleLock{
		ID:        "reschedule_lock_" + bookingID,
		ExpiresAt: now.Add(r.cfg.RescheduleLockTTL),
		CreatedAt: now,
	}

	_, err := r.collection.InsertOne(ctx, lock)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, bookingserrors.ErrLockHeld
		}
		return nil, err
	}

	return lock, nil
}

// Release removes an advisory lock
func (r *mongoRescheduleLockRepository) Release(ctx context.Context, lockID string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": lockID})
	return err
}
