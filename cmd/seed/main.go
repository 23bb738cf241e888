package main

import (
	"context"
	"flag"
	"log"
	"time"

	"tripdesk/internal/seed"
	"tripdesk/pkg/config"
)

const JobName = "seed"

func main() {
	profile := flag.String("profile", "basic", "rule profile to load: basic, strict or flexible")
	reset := flag.Bool("reset", false, "drop the rule and config collections before seeding")
	dryRun := flag.Bool("dry-run", false, "report what would change without writing")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	cfg := config.Load(JobName)
	cfg.SetMongo()
	cfg.Log.Info("Starting seed job", "profile", *profile, "reset", *reset, "dry_run", *dryRun)
	defer cfg.GracefulShutdown()

	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	if err := seed.Run(ctx, db, seed.Options{
		Profile: *profile,
		Reset:   *reset,
		DryRun:  *dryRun,
	}); err != nil {
		log.Fatalf("Seed failed: %v", err)
	}
}
