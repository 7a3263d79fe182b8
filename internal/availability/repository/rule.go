package repository

import (
	"context"
	"errors"
	"fmt"
	availabilityerrors "slotkeeper/internal/availability/errors"
	"slotkeeper/pkg/config"
	mongotx "slotkeeper/pkg/db/mongo"
	"slotkeeper/pkg/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	OverlaysCollection         = "Overlays"
	RulesCollection            = "Availability_rules"
	ExclusionsCollection       = "Rule_exclusions"
	TemplatesCollection        = "Rule_templates"
	TemplateBindingsCollection = "Template_bindings"
)

// RuleRepository stores everything the compositor layers into a calendar's rule set.
type RuleRepository interface {
	CreateOverlay(ctx context.Context, o *model.Overlay) error
	ListOverlays(ctx context.Context, tenantID, calendarID string) ([]*model.Overlay, error)

	CreateRule(ctx context.Context, rule *model.AvailabilityRule) error
	FindRule(ctx context.Context, tenantID, id string) (*model.AvailabilityRule, error)
	SetRuleActive(ctx context.Context, tenantID, id string, active bool) error
	ListActiveRules(ctx context.Context, tenantID, calendarID string) ([]*model.AvailabilityRule, error)

	CreateExclusion(ctx context.Context, ex *model.RuleExclusion) error
	ListExclusions(ctx context.Context, tenantID, calendarID string) ([]*model.RuleExclusion, error)

	CreateTemplate(ctx context.Context, tpl *model.RuleTemplate) error
	FindTemplate(ctx context.Context, tenantID, id string) (*model.RuleTemplate, error)
	CreateTemplateBinding(ctx context.Context, b *model.TemplateBinding) error
	ListActiveTemplateBindings(ctx context.Context, tenantID, calendarID string) ([]*model.TemplateBinding, error)
}

type mongoRuleRepository struct {
	cfg              *config.Config
	overlays         *mongo.Collection
	rules            *mongo.Collection
	exclusions       *mongo.Collection
	templates        *mongo.Collection
	templateBindings *mongo.Collection
}

func NewMongoRuleRepository(cfg *config.Config) RuleRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoRuleRepository{
		cfg:              cfg,
		overlays:         db.Collection(OverlaysCollection),
		rules:            db.Collection(RulesCollection),
		exclusions:       db.Collection(ExclusionsCollection),
		templates:        db.Collection(TemplatesCollection),
		templateBindings: db.Collection(TemplateBindingsCollection),
	}
}

func (r *mongoRuleRepository) insert(ctx context.Context, coll *mongo.Collection, doc any, what string) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create %s: %w", what, err)
	}
	return nil
}

func findAll[T any](ctx context.Context, r *mongoRuleRepository, coll *mongo.Collection, filter bson.M, sort bson.D, what string) ([]*T, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := coll.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, fmt.Errorf("failed to find %s: %w", what, err)
	}
	defer cursor.Close(ctx)

	var out []*T
	if err = cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", what, err)
	}
	return out, nil
}

var byID = bson.D{{Key: "_id", Value: 1}}

func (r *mongoRuleRepository) CreateOverlay(ctx context.Context, o *model.Overlay) error {
	return r.insert(ctx, r.overlays, o, "overlay")
}

func (r *mongoRuleRepository) ListOverlays(ctx context.Context, tenantID, calendarID string) ([]*model.Overlay, error) {
	return findAll[model.Overlay](ctx, r, r.overlays, bson.M{"tenant_id": tenantID, "calendar_id": calendarID}, byID, "overlays")
}

func (r *mongoRuleRepository) CreateRule(ctx context.Context, rule *model.AvailabilityRule) error {
	return r.insert(ctx, r.rules, rule, "availability rule")
}

func (r *mongoRuleRepository) FindRule(ctx context.Context, tenantID, id string) (*model.AvailabilityRule, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var rule model.AvailabilityRule
	if err := r.rules.FindOne(ctx, bson.M{"_id": id, "tenant_id": tenantID}).Decode(&rule); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, availabilityerrors.ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to find availability rule: %w", err)
	}
	return &rule, nil
}

func (r *mongoRuleRepository) SetRuleActive(ctx context.Context, tenantID, id string, active bool) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	update := bson.M{"$set": bson.M{"is_active": active, "updated_at": time.Now().UTC()}}
	result, err := r.rules.UpdateOne(ctx, bson.M{"_id": id, "tenant_id": tenantID}, update)
	if err != nil {
		return fmt.Errorf("failed to update availability rule: %w", err)
	}
	if result.MatchedCount == 0 {
		return availabilityerrors.ErrRuleNotFound
	}
	return nil
}

func (r *mongoRuleRepository) ListActiveRules(ctx context.Context, tenantID, calendarID string) ([]*model.AvailabilityRule, error) {
	filter := bson.M{"tenant_id": tenantID, "calendar_id": calendarID, "is_active": true}
	return findAll[model.AvailabilityRule](ctx, r, r.rules, filter, byID, "availability rules")
}

func (r *mongoRuleRepository) CreateExclusion(ctx context.Context, ex *model.RuleExclusion) error {
	return r.insert(ctx, r.exclusions, ex, "rule exclusion")
}

func (r *mongoRuleRepository) ListExclusions(ctx context.Context, tenantID, calendarID string) ([]*model.RuleExclusion, error) {
	return findAll[model.RuleExclusion](ctx, r, r.exclusions, bson.M{"tenant_id": tenantID, "calendar_id": calendarID}, byID, "rule exclusions")
}

func (r *mongoRuleRepository) CreateTemplate(ctx context.Context, tpl *model.RuleTemplate) error {
	return r.insert(ctx, r.templates, tpl, "rule template")
}

func (r *mongoRuleRepository) FindTemplate(ctx context.Context, tenantID, id string) (*model.RuleTemplate, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var tpl model.RuleTemplate
	if err := r.templates.FindOne(ctx, bson.M{"_id": id, "tenant_id": tenantID}).Decode(&tpl); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, availabilityerrors.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to find rule template: %w", err)
	}
	return &tpl, nil
}

func (r *mongoRuleRepository) CreateTemplateBinding(ctx context.Context, b *model.TemplateBinding) error {
	return r.insert(ctx, r.templateBindings, b, "template binding")
}

func (r *mongoRuleRepository) ListActiveTemplateBindings(ctx context.Context, tenantID, calendarID string) ([]*model.TemplateBinding, error) {
	filter := bson.M{"tenant_id": tenantID, "calendar_id": calendarID, "is_active": true}
	return findAll[model.TemplateBinding](ctx, r, r.templateBindings, filter, byID, "template bindings")
}
