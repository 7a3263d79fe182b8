package main

import (
	"context"
	"flag"
	"fmt"
	"slotkeeper/internal/availability/repository"
	"slotkeeper/internal/availability/service"
	"slotkeeper/internal/availability/templates"
	"slotkeeper/internal/availability/validator"
	mongoMigration "slotkeeper/internal/migrations/mongo"
	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/config"
	"time"
)

const JobName = "mongo-migration"

func main() {
	templatesPath := flag.String("templates", "", "YAML file of rule templates to seed after migrating")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()
	cfg := config.Load(JobName)
	cfg.SetMongo()
	cfg.Log.Info("Starting Mongo migration job")
	defer cfg.GracefulShutdown()

	if err := mongoMigration.RunMigration(ctx, cfg.Client.Mongo.Database(cfg.MongoDatabaseName), cfg.Log); err != nil {
		cfg.Log.Fatal("Migration failed", "error", err)
	}
	if *templatesPath != "" {
		seedTemplates(ctx, cfg, *templatesPath)
	}
	fmt.Println("Migration completed successfully.")
}

func seedTemplates(ctx context.Context, cfg *config.Config, path string) {
	tpls, err := templates.LoadFile(path)
	if err != nil {
		cfg.Log.Fatal("Failed to load rule templates", "path", path, "error", err)
	}

	calendarRepo := repository.NewMongoCalendarRepository(cfg)
	ruleRepo := repository.NewMongoRuleRepository(cfg)
	dependencyRepo := repository.NewMongoDependencyRepository(cfg)
	store := service.NewRuleStore(
		calendarRepo,
		ruleRepo,
		dependencyRepo,
		service.NewDependencyChecker(dependencyRepo, calendarRepo, cfg.Log),
		validator.NewAvailabilityValidator(cfg.Log),
		clock.Real(),
		cfg,
	)

	created, err := templates.Seed(ctx, store, ruleRepo, tpls, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Template seeding failed", "created", created, "error", err)
	}
	cfg.Log.Info("Rule templates seeded", "path", path, "parsed", len(tpls), "created", created)
}
