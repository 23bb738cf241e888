package repository

import (
	"context"
	"errors"
	"fmt"
	"time"
	ruleserrors "tripdesk/internal/rules/errors"
	"tripdesk/pkg/config"
	"tripdesk/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const GlobalConfigCollectionName = "Global_config"

type GlobalConfigRepository interface {
	Get(ctx context.Context, key string) (*model.GlobalConfigEntry, error)
	Upsert(ctx context.Context, entry *model.GlobalConfigEntry) error
	List(ctx context.Context) ([]*model.GlobalConfigEntry, error)
}

type mongoGlobalConfigRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoGlobalConfigRepository(cfg *config.Config) GlobalConfigRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoGlobalConfigRepository{
		cfg:        cfg,
		collection: db.Collection(GlobalConfigCollectionName),
	}
}

func (r *mongoGlobalConfigRepository) Get(ctx context.Context, key string) (*model.GlobalConfigEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var entry model.GlobalConfigEntry
	err := r.collection.FindOne(ctx, bson.M{"_id": key, "active": true}).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ruleserrors.ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to get config entry: %w", err)
	}

	return &entry, nil
}

func (r *mongoGlobalConfigRepository) Upsert(ctx context.Context, entry *model.GlobalConfigEntry) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	entry.UpdatedAt = now

	update := bson.M{
		"$set": bson.M{
			"value":       entry.Value,
			"description": entry.Description,
			"value_type":  entry.ValueType,
			"active":      entry.Active,
			"updated_at":  now,
		},
		"$setOnInsert": bson.M{
			"created_at": now,
		},
	}

	opts := options.Update().SetUpsert(true)
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": entry.Key}, update, opts)
	if err != nil {
		return fmt.Errorf("failed to upsert config entry: %w", err)
	}

	return nil
}

func (r *mongoGlobalConfigRepository) List(ctx context.Context) ([]*model.GlobalConfigEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list config entries: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*model.GlobalConfigEntry
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode config entries: %w", err)
	}

	return entries, nil
}
