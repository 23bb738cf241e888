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
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Rules"
)

// RuleFilter narrows admin listings.
type RuleFilter struct {
	RuleType       string
	ApplicableRole string
	Active         *bool
}

type RuleRepository interface {
	Create(ctx context.Context, rule *model.Rule) error
	FindByID(ctx context.Context, id string) (*model.Rule, error)
	FindAll(ctx context.Context, filter RuleFilter, limit int, offset int64) ([]*model.Rule, error)
	Count(ctx context.Context, filter RuleFilter) (int64, error)
	ListActiveByType(ctx context.Context, ruleType string) ([]*model.Rule, error)
	ListActive(ctx context.Context) ([]*model.Rule, error)
	Update(ctx context.Context, id string, rule *model.Rule) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}

type mongoRuleRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoRuleRepository(cfg *config.Config) RuleRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoRuleRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoRuleRepository) Create(ctx context.Context, rule *model.Rule) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if rule.Active {
		if err := r.checkDuplicateActive(ctx, rule.RuleType, rule.ApplicableRole, ""); err != nil {
			return err
		}
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	rule.CreatedAt = now
	rule.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, rule)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ruleserrors.ErrDuplicateActive
		}
		return fmt.Errorf("failed to create rule: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		rule.ID = oid.Hex()
	}
	return nil
}

func (r *mongoRuleRepository) FindByID(ctx context.Context, id string) (*model.Rule, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ruleserrors.ErrInvalidID, id)
	}

	var rule model.Rule
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&rule)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ruleserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find rule: %w", err)
	}

	return &rule, nil
}

func (r *mongoRuleRepository) FindAll(ctx context.Context, filter RuleFilter, limit int, offset int64) ([]*model.Rule, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "rule_type", Value: 1}, {Key: "priority", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, buildRuleFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find rules: %w", err)
	}
	defer cursor.Close(ctx)

	var rules []*model.Rule
	if err = cursor.All(ctx, &rules); err != nil {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}

	return rules, nil
}

func (r *mongoRuleRepository) Count(ctx context.Context, filter RuleFilter) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, buildRuleFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count rules: %w", err)
	}
	return count, nil
}

// ListActiveByType returns the active rules of one type sorted by priority,
// lowest first. The resolver depends on this ordering.
func (r *mongoRuleRepository) ListActiveByType(ctx context.Context, ruleType string) ([]*model.Rule, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{"rule_type": ruleType, "active": true}
	opts := options.Find().SetSort(bson.D{{Key: "priority", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rules: %w", err)
	}
	defer cursor.Close(ctx)

	var rules []*model.Rule
	if err = cursor.All(ctx, &rules); err != nil {
		return nil, fmt.Errorf("failed to decode active rules: %w", err)
	}

	return rules, nil
}

func (r *mongoRuleRepository) ListActive(ctx context.Context) ([]*model.Rule, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "rule_type", Value: 1}, {Key: "priority", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{"active": true}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rules: %w", err)
	}
	defer cursor.Close(ctx)

	var rules []*model.Rule
	if err = cursor.All(ctx, &rules); err != nil {
		return nil, fmt.Errorf("failed to decode active rules: %w", err)
	}

	return rules, nil
}

func (r *mongoRuleRepository) Update(ctx context.Context, id string, rule *model.Rule) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", ruleserrors.ErrInvalidID, id)
	}

	if rule.Active {
		if err := r.checkDuplicateActive(ctx, rule.RuleType, rule.ApplicableRole, id); err != nil {
			return err
		}
	}

	update := bson.M{
		"$set": bson.M{
			"name":             rule.Name,
			"rule_type":        rule.RuleType,
			"applicable_role":  rule.ApplicableRole,
			"int_value":        rule.IntValue,
			"decimal_value":    rule.DecimalValue,
			"text_value":       rule.TextValue,
			"bool_value":       rule.BoolValue,
			"valid_from":       rule.ValidFrom,
			"valid_until":      rule.ValidUntil,
			"active":           rule.Active,
			"priority":         rule.Priority,
			"error_message":    rule.ErrorMessage,
			"extra_conditions": rule.ExtraConditions,
			"updated_at":       time.Now().UTC().Truncate(time.Millisecond),
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID}, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ruleserrors.ErrDuplicateActive
		}
		return fmt.Errorf("failed to update rule: %w", err)
	}

	if result.MatchedCount == 0 {
		return ruleserrors.ErrNotFound
	}

	return nil
}

func (r *mongoRuleRepository) SetActive(ctx context.Context, id string, active bool) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", ruleserrors.ErrInvalidID, id)
	}

	if active {
		existing, err := r.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := r.checkDuplicateActive(ctx, existing.RuleType, existing.ApplicableRole, id); err != nil {
			return err
		}
	}

	update := bson.M{"$set": bson.M{
		"active":     active,
		"updated_at": time.Now().UTC().Truncate(time.Millisecond),
	}}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID}, update)
	if err != nil {
		return fmt.Errorf("failed to set rule active state: %w", err)
	}

	if result.MatchedCount == 0 {
		return ruleserrors.ErrNotFound
	}

	return nil
}

func (r *mongoRuleRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", ruleserrors.ErrInvalidID, id)
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	if result.DeletedCount == 0 {
		return ruleserrors.ErrNotFound
	}

	return nil
}

// checkDuplicateActive enforces one active rule per (type, role) pair. A
// partial unique index backs this at the database level; the read here gives
// a friendly error before the write.
func (r *mongoRuleRepository) checkDuplicateActive(ctx context.Context, ruleType, role, excludeID string) error {
	filter := bson.M{
		"rule_type":       ruleType,
		"applicable_role": role,
		"active":          true,
	}
	if excludeID != "" {
		if objectID, err := primitive.ObjectIDFromHex(excludeID); err == nil {
			filter["_id"] = bson.M{"$ne": objectID}
		}
	}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to check for duplicate active rule: %w", err)
	}
	if count > 0 {
		return ruleserrors.ErrDuplicateActive
	}
	return nil
}

func buildRuleFilter(filter RuleFilter) bson.M {
	query := bson.M{}
	if filter.RuleType != "" {
		query["rule_type"] = filter.RuleType
	}
	if filter.ApplicableRole != "" {
		query["applicable_role"] = filter.ApplicableRole
	}
	if filter.Active != nil {
		query["active"] = *filter.Active
	}
	return query
}
