package mongo

import (
	"context"
	"fmt"
	alertrepository "slotkeeper/internal/alerts/repository"
	availabilityrepository "slotkeeper/internal/availability/repository"
	capacityrepository "slotkeeper/internal/capacity/repository"
	holdrepository "slotkeeper/internal/holds/repository"
	"slotkeeper/internal/migrations/mongo/validators"
	tracerepository "slotkeeper/internal/traces/repository"
	"slotkeeper/pkg/lock"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionDef is the schema and index set a collection is migrated to.
type CollectionDef struct {
	Name      string
	Validator bson.M
	Indexes   []mongo.IndexModel
}

func unique(name string, keys bson.D, partial bson.M) mongo.IndexModel {
	opts := options.Index().SetName(name).SetUnique(true)
	if partial != nil {
		opts.SetPartialFilterExpression(partial)
	}
	return mongo.IndexModel{Keys: keys, Options: opts}
}

// Collections lists every collection the services read or write.
func Collections() []CollectionDef {
	return []CollectionDef{
		{
			Name:      availabilityrepository.CalendarsCollection,
			Validator: validators.CalendarValidator,
			Indexes: []mongo.IndexModel{
				{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "status", Value: 1}}},
			},
		},
		{
			Name: availabilityrepository.CalendarBindingsCollection,
			Indexes: []mongo.IndexModel{
				unique("uniq_active_primary_binding",
					bson.D{{Key: "tenant_id", Value: 1}, {Key: "owner_ref_key", Value: 1}},
					bson.M{"is_primary": true, "is_active": true}),
				{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "owner_ref_key", Value: 1}, {Key: "is_active", Value: 1}}},
				{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "calendar_id", Value: 1}}},
			},
		},
		{
			Name: availabilityrepository.CalendarRevisionCollection,
			Indexes: []mongo.IndexModel{
				unique("uniq_calendar_revision",
					bson.D{{Key: "tenant_id", Value: 1}, {Key: "calendar_id", Value: 1}, {Key: "revision", Value: 1}},
					nil),
			},
		},
		{
			Name: availabilityrepository.OverlaysCollection,
			Indexes: []mongo.IndexModel{
				{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "calendar_id", Value: 1}, {Key: "priority", Value: -1}}},
			},
		},
		{
			Name:      availabilityrepository.RulesCollection,
			Validator: validators.AvailabilityRuleValidator,
			Indexes: []mongo.IndexModel{
				{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "calendar_id", Value: 1}, {Key: "is_active", Value: 1}}},
				{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "overlay_id", Value: 1}}},
			},
		},
		{
			Name: availabilityrepository.ExclusionsCollection,
			Indexes: []mongo.IndexModel{
				{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "calendar_id", Value: 1}, {Key: "date", Value: 1}}},
			},
		},
		{
			Name: availabilityrepository.TemplatesCollection,
			Indexes: []mongo.IndexModel{
				{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "name", Value: 1}}},
			},
		},
		{
			Name: availabilityrepository.TemplateBindingsCollection,
			Indexes: []mongo.IndexModel{
				{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "calendar_id", Value: 1}, {Key: "priority", Value: 1}}},
			},
		},
		{
			Name: availabilityrepository.DependencyRulesCollection,
			Indexes: []mongo.IndexModel{
				{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "dependent_calendar_id", Value: 1}, {Key: "is_active", Value: 1}}},
				{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "targets.id", Value: 1}}},
			},
		},
		{
			Name:      capacityrepository.CapacityPoolsCollection,
			Validator: validators.CapacityPoolValidator,
			Indexes: []mongo.IndexModel{
				{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "is_active", Value: 1}}},
			},
		},
		{
			Name: capacityrepository.CapacityPoolMembersCollection,
			Indexes: []mongo.IndexModel{
				unique("uniq_pool_member", bson.D{{Key: "pool_id", Value: 1}, {Key: "member_key", Value: 1}}, nil),
				{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "member_key", Value: 1}, {Key: "is_active", Value: 1}}},
			},
		},
		{
			Name:      capacityrepository.CapacityAllocationsCollection,
			Validator: validators.CapacityAllocationValidator,
			Indexes: []mongo.IndexModel{
				{Keys: bson.D{{Key: "pool_id", Value: 1}, {Key: "status", Value: 1}, {Key: "starts_at", Value: 1}, {Key: "ends_at", Value: 1}}},
				{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "hold_id", Value: 1}}},
			},
		},
		{
			Name:      holdrepository.HoldPoliciesCollection,
			Validator: validators.HoldPolicyValidator,
			Indexes: []mongo.IndexModel{
				unique("uniq_active_policy_scope",
					bson.D{{Key: "tenant_id", Value: 1}, {Key: "scope_key", Value: 1}},
					bson.M{"status": model.PolicyActive}),
				{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "scope_key", Value: 1}, {Key: "status", Value: 1}}},
			},
		},
		{
			Name:      holdrepository.CapacityHoldsCollection,
			Validator: validators.CapacityHoldValidator,
			Indexes: []mongo.IndexModel{
				unique("uniq_hold_request_key",
					bson.D{{Key: "tenant_id", Value: 1}, {Key: "request_key", Value: 1}},
					bson.M{"request_key": bson.M{"$exists": true}}),
				{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expires_at", Value: 1}}},
				{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "target_key", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
				{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "owner_key", Value: 1}, {Key: "status", Value: 1}}},
			},
		},
		{
			Name:      holdrepository.CapacityHoldEventsCollection,
			Validator: validators.CapacityHoldEventValidator,
			Indexes: []mongo.IndexModel{
				{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "hold_id", Value: 1}, {Key: "created_at", Value: 1}}},
			},
		},
		{
			Name:      alertrepository.DemandAlertsCollection,
			Validator: validators.DemandAlertValidator,
			Indexes: []mongo.IndexModel{
				{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "target_key", Value: 1}, {Key: "status", Value: 1}}},
				{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: 1}}},
			},
		},
		{
			Name:      tracerepository.ResolutionRunsCollection,
			Validator: validators.ResolutionRunValidator,
			Indexes: []mongo.IndexModel{
				{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "calendar_id", Value: 1}, {Key: "created_at", Value: -1}}},
			},
		},
		{
			Name: lock.LockCollectionName,
			Indexes: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "expires_at", Value: 1}},
					Options: options.Index().SetName("ttl_expires_at").SetExpireAfterSeconds(0),
				},
			},
		},
	}
}

func RunMigration(ctx context.Context, db *mongo.Database, log *logger.Logger) error {
	log.Info("Running Mongo migrations", "database", db.Name())

	for _, def := range Collections() {
		if err := ensureCollection(ctx, db, def.Name, def.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", def.Name, err)
		}
		if err := ensureIndexes(ctx, db, def.Name, def.Indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", def.Name, err)
		}
	}

	log.Info("All migrations applied successfully")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection()
		if validator != nil {
			opts.SetValidator(validator)
		}
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	if validator == nil {
		return nil
	}
	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed updating validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel, log *logger.Logger) error {
	if len(models) == 0 {
		return nil
	}
	if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
		return err
	}
	log.Info("Ensured indexes", "collection", name, "count", len(models))
	return nil
}
