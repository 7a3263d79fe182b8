package repository

import (
	"context"
	"errors"
	"fmt"
	holderrors "slotkeeper/internal/holds/errors"
	"slotkeeper/pkg/config"
	mongotx "slotkeeper/pkg/db/mongo"
	"slotkeeper/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const HoldPoliciesCollection = "Hold_policies"

type PolicyRepository interface {
	// Create and Update rely on the partial unique index on active (tenant_id, scope_key).
	Create(ctx context.Context, p *model.CapacityHoldPolicy) error
	Update(ctx context.Context, p *model.CapacityHoldPolicy) error
	FindByID(ctx context.Context, tenantID, id string) (*model.CapacityHoldPolicy, error)
	FindActiveByScopeKey(ctx context.Context, tenantID, scopeKey string) (*model.CapacityHoldPolicy, error)
	// FindActiveByScopeKeys returns the active policies of any of scopeKeys, sorted by id.
	FindActiveByScopeKeys(ctx context.Context, tenantID string, scopeKeys []string) ([]*model.CapacityHoldPolicy, error)
	List(ctx context.Context, tenantID string, limit int, offset int64) ([]*model.CapacityHoldPolicy, int64, error)

	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoPolicyRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoPolicyRepository(cfg *config.Config) PolicyRepository {
	return &mongoPolicyRepository{
		cfg:        cfg,
		collection: cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(HoldPoliciesCollection),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoPolicyRepository) Create(ctx context.Context, p *model.CapacityHoldPolicy) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, p); err != nil {
		if mongotx.IsDuplicateKey(err) {
			return holderrors.ErrActivePolicyExists
		}
		return fmt.Errorf("failed to create hold policy: %w", err)
	}
	return nil
}

func (r *mongoPolicyRepository) Update(ctx context.Context, p *model.CapacityHoldPolicy) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": p.ID, "tenant_id": p.TenantID}, p)
	if err != nil {
		if mongotx.IsDuplicateKey(err) {
			return holderrors.ErrActivePolicyExists
		}
		return fmt.Errorf("failed to update hold policy: %w", err)
	}
	if result.MatchedCount == 0 {
		return holderrors.ErrPolicyNotFound
	}
	return nil
}

func (r *mongoPolicyRepository) FindByID(ctx context.Context, tenantID, id string) (*model.CapacityHoldPolicy, error) {
	return r.findOne(ctx, bson.M{"_id": id, "tenant_id": tenantID})
}

func (r *mongoPolicyRepository) FindActiveByScopeKey(ctx context.Context, tenantID, scopeKey string) (*model.CapacityHoldPolicy, error) {
	return r.findOne(ctx, bson.M{"tenant_id": tenantID, "scope_key": scopeKey, "status": model.PolicyActive})
}

func (r *mongoPolicyRepository) findOne(ctx context.Context, filter bson.M) (*model.CapacityHoldPolicy, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var p model.CapacityHoldPolicy
	if err := r.collection.FindOne(ctx, filter).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, holderrors.ErrPolicyNotFound
		}
		return nil, fmt.Errorf("failed to find hold policy: %w", err)
	}
	return &p, nil
}

func (r *mongoPolicyRepository) FindActiveByScopeKeys(ctx context.Context, tenantID string, scopeKeys []string) ([]*model.CapacityHoldPolicy, error) {
	if len(scopeKeys) == 0 {
		return nil, nil
	}
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"tenant_id": tenantID,
		"scope_key": bson.M{"$in": scopeKeys},
		"status":    model.PolicyActive,
	}
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find hold policies: %w", err)
	}
	defer cursor.Close(ctx)

	var policies []*model.CapacityHoldPolicy
	if err = cursor.All(ctx, &policies); err != nil {
		return nil, fmt.Errorf("failed to decode hold policies: %w", err)
	}
	return policies, nil
}

func (r *mongoPolicyRepository) List(ctx context.Context, tenantID string, limit int, offset int64) ([]*model.CapacityHoldPolicy, int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{"tenant_id": tenantID}
	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count hold policies: %w", err)
	}

	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(offset).
		SetSort(bson.D{{Key: "scope_key", Value: 1}, {Key: "priority", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list hold policies: %w", err)
	}
	defer cursor.Close(ctx)

	var policies []*model.CapacityHoldPolicy
	if err = cursor.All(ctx, &policies); err != nil {
		return nil, 0, fmt.Errorf("failed to decode hold policies: %w", err)
	}
	return policies, total, nil
}

func (r *mongoPolicyRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
