package repository

import (
	"context"
	"fmt"
	"slotkeeper/pkg/config"
	mongotx "slotkeeper/pkg/db/mongo"
	"slotkeeper/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const DependencyRulesCollection = "Dependency_rules"

type DependencyRepository interface {
	Create(ctx context.Context, rule *model.DependencyRule) error
	ListActiveByCalendar(ctx context.Context, tenantID, calendarID string) ([]*model.DependencyRule, error)
	// ListActive returns the tenant's whole active dependency graph.
	ListActive(ctx context.Context, tenantID string) ([]*model.DependencyRule, error)
}

type mongoDependencyRepository struct {
	cfg   *config.Config
	rules *mongo.Collection
}

func NewMongoDependencyRepository(cfg *config.Config) DependencyRepository {
	return &mongoDependencyRepository{
		cfg:   cfg,
		rules: cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(DependencyRulesCollection),
	}
}

func (r *mongoDependencyRepository) Create(ctx context.Context, rule *model.DependencyRule) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.rules.InsertOne(ctx, rule); err != nil {
		return fmt.Errorf("failed to create dependency rule: %w", err)
	}
	return nil
}

func (r *mongoDependencyRepository) ListActiveByCalendar(ctx context.Context, tenantID, calendarID string) ([]*model.DependencyRule, error) {
	return r.find(ctx, bson.M{"tenant_id": tenantID, "dependent_calendar_id": calendarID, "is_active": true})
}

func (r *mongoDependencyRepository) ListActive(ctx context.Context, tenantID string) ([]*model.DependencyRule, error) {
	return r.find(ctx, bson.M{"tenant_id": tenantID, "is_active": true})
}

func (r *mongoDependencyRepository) find(ctx context.Context, filter bson.M) ([]*model.DependencyRule, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := r.rules.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find dependency rules: %w", err)
	}
	defer cursor.Close(ctx)

	var rules []*model.DependencyRule
	if err = cursor.All(ctx, &rules); err != nil {
		return nil, fmt.Errorf("failed to decode dependency rules: %w", err)
	}
	return rules, nil
}
