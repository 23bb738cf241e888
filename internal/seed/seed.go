package seed

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	bookingsrepo "tripdesk/internal/bookings/repository"
	"tripdesk/internal/notify"
	rulesrepo "tripdesk/internal/rules/repository"
)

// Options controls a seed run. Reset drops the policy collections before
// seeding; DryRun reports what would change without writing.
type Options struct {
	Profile string
	Reset   bool
	DryRun  bool
}

var (
	rulesIndexes = []mongo.IndexModel{
		// One active rule per (type, role) pair. Inactive rules may pile up
		// freely; only the active one is constrained.
		{
			Keys: bson.D{
				{Key: "rule_type", Value: 1},
				{Key: "applicable_role", Value: 1},
			},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"active": true}),
		},
		{Keys: bson.D{
			{Key: "active", Value: 1},
			{Key: "rule_type", Value: 1},
			{Key: "priority", Value: 1},
		}},
	}

	bookingsIndexes = []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "status", Value: 1},
			{Key: "start_time", Value: 1},
		}},
		{Keys: bson.D{
			{Key: "customer_id", Value: 1},
			{Key: "start_time", Value: 1},
		}},
		{Keys: bson.D{
			{Key: "service_lines.package_id", Value: 1},
			{Key: "start_time", Value: 1},
		}},
	}

	historyIndexes = []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "booking_id", Value: 1},
			{Key: "created_at", Value: -1},
		}},
		{Keys: bson.D{
			{Key: "actor_id", Value: 1},
			{Key: "created_at", Value: 1},
		}},
	}

	lockIndexes = []mongo.IndexModel{
		// Mongo reaps expired locks itself; abandoned locks from crashed
		// requests never block a booking for long.
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}

	ticketIndexes = []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "booking_id", Value: 1},
			{Key: "created_at", Value: -1},
		}},
		{Keys: bson.D{
			{Key: "priority", Value: 1},
			{Key: "created_at", Value: -1},
		}},
	}
)

// Run ensures indexes and loads the selected rule profile plus the default
// global configuration. Existing active (rule_type, applicable_role) pairs
// are never overwritten, so a re-run is safe against a tuned installation.
func Run(ctx context.Context, db *mongo.Database, opts Options) error {
	profile, ok := Profiles[opts.Profile]
	if !ok {
		return fmt.Errorf("unknown profile %q, want one of basic, strict, flexible", opts.Profile)
	}

	fmt.Printf("Seeding database %s with profile %q\n", db.Name(), opts.Profile)

	if opts.Reset {
		if err := reset(ctx, db, opts.DryRun); err != nil {
			return err
		}
	}

	if err := ensureIndexes(ctx, db, opts.DryRun); err != nil {
		return err
	}

	inserted, skipped, err := seedRules(ctx, db, profile, opts.DryRun)
	if err != nil {
		return err
	}

	configWritten, err := seedGlobalConfig(ctx, db, opts.DryRun)
	if err != nil {
		return err
	}

	fmt.Printf("Done: %d rules inserted, %d skipped (already configured), %d config entries ensured\n",
		inserted, skipped, configWritten)
	return nil
}

func reset(ctx context.Context, db *mongo.Database, dryRun bool) error {
	for _, name := range []string{rulesrepo.CollectionName, rulesrepo.GlobalConfigCollectionName} {
		if dryRun {
			fmt.Printf("[dry-run] would drop collection %s\n", name)
			continue
		}
		if err := db.Collection(name).Drop(ctx); err != nil {
			return fmt.Errorf("failed to drop %s: %w", name, err)
		}
		fmt.Printf("Dropped collection %s\n", name)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, dryRun bool) error {
	collections := map[string][]mongo.IndexModel{
		rulesrepo.CollectionName:           rulesIndexes,
		bookingsrepo.CollectionName:        bookingsIndexes,
		bookingsrepo.HistoryCollectionName: historyIndexes,
		bookingsrepo.LockCollectionName:    lockIndexes,
		notify.TicketCollectionName:        ticketIndexes,
	}

	for name, models := range collections {
		if dryRun {
			fmt.Printf("[dry-run] would ensure %d indexes on %s\n", len(models), name)
			continue
		}
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
		fmt.Printf("Ensured indexes for %s\n", name)
	}
	return nil
}

func seedRules(ctx context.Context, db *mongo.Database, profile Profile, dryRun bool) (inserted, skipped int, err error) {
	coll := db.Collection(rulesrepo.CollectionName)

	for _, rule := range profile.Rules {
		filter := bson.M{
			"rule_type":       rule.RuleType,
			"applicable_role": rule.ApplicableRole,
			"active":          true,
		}

		count, err := coll.CountDocuments(ctx, filter)
		if err != nil {
			return inserted, skipped, fmt.Errorf("failed to check rule %s/%s: %w", rule.RuleType, rule.ApplicableRole, err)
		}
		if count > 0 {
			skipped++
			fmt.Printf("Keeping existing %s for %s\n", rule.RuleType, rule.ApplicableRole)
			continue
		}

		if dryRun {
			inserted++
			fmt.Printf("[dry-run] would insert %s for %s\n", rule.RuleType, rule.ApplicableRole)
			continue
		}

		if _, err := coll.InsertOne(ctx, rule); err != nil {
			return inserted, skipped, fmt.Errorf("failed to insert rule %s: %w", rule.Name, err)
		}
		inserted++
		fmt.Printf("Inserted %s for %s\n", rule.RuleType, rule.ApplicableRole)
	}

	return inserted, skipped, nil
}

func seedGlobalConfig(ctx context.Context, db *mongo.Database, dryRun bool) (int, error) {
	coll := db.Collection(rulesrepo.GlobalConfigCollectionName)
	written := 0

	for _, entry := range DefaultGlobalConfig {
		count, err := coll.CountDocuments(ctx, bson.M{"_id": entry.Key})
		if err != nil {
			return written, fmt.Errorf("failed to check config %s: %w", entry.Key, err)
		}
		if count > 0 {
			continue
		}

		if dryRun {
			written++
			fmt.Printf("[dry-run] would insert config %s\n", entry.Key)
			continue
		}

		entry.CreatedAt = time.Now().UTC()
		entry.UpdatedAt = entry.CreatedAt
		if _, err := coll.InsertOne(ctx, entry); err != nil {
			return written, fmt.Errorf("failed to insert config %s: %w", entry.Key, err)
		}
		written++
		fmt.Printf("Inserted config %s\n", entry.Key)
	}

	return written, nil
}
