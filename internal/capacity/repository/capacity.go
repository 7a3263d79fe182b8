package repository

import (
	"context"
	"errors"
	"fmt"
	capacityerrors "slotkeeper/internal/capacity/errors"
	"slotkeeper/pkg/config"
	mongotx "slotkeeper/pkg/db/mongo"
	"slotkeeper/pkg/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CapacityPoolsCollection       = "Capacity_pools"
	CapacityPoolMembersCollection = "Capacity_pool_members"
	CapacityAllocationsCollection = "Capacity_allocations"
)

type CapacityRepository interface {
	CreatePool(ctx context.Context, pool *model.CapacityPool) error
	FindPool(ctx context.Context, tenantID, id string) (*model.CapacityPool, error)
	AddMember(ctx context.Context, m *model.CapacityPoolMember) error
	ListMembers(ctx context.Context, tenantID, poolID string) ([]*model.CapacityPoolMember, error)
	// FindMemberships returns every active membership of memberKey across the tenant's pools.
	FindMemberships(ctx context.Context, tenantID, memberKey string) ([]*model.CapacityPoolMember, error)

	InsertAllocations(ctx context.Context, allocs []*model.CapacityAllocation) error
	// ListActiveOverlapping returns active allocations of the pool whose interval intersects w.
	ListActiveOverlapping(ctx context.Context, tenantID, poolID string, w model.Window) ([]*model.CapacityAllocation, error)
	// CloseByHold moves the hold's active allocations to status and reports how many changed.
	CloseByHold(ctx context.Context, tenantID, holdID string, status model.AllocationStatus, at time.Time) (int64, error)

	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoCapacityRepository struct {
	cfg         *config.Config
	pools       *mongo.Collection
	members     *mongo.Collection
	allocations *mongo.Collection
	txManager   mongotx.TransactionManager
}

func NewMongoCapacityRepository(cfg *config.Config) CapacityRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoCapacityRepository{
		cfg:         cfg,
		pools:       db.Collection(CapacityPoolsCollection),
		members:     db.Collection(CapacityPoolMembersCollection),
		allocations: db.Collection(CapacityAllocationsCollection),
		txManager:   mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoCapacityRepository) CreatePool(ctx context.Context, pool *model.CapacityPool) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.pools.InsertOne(ctx, pool); err != nil {
		return fmt.Errorf("failed to create capacity pool: %w", err)
	}
	return nil
}

func (r *mongoCapacityRepository) FindPool(ctx context.Context, tenantID, id string) (*model.CapacityPool, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var pool model.CapacityPool
	if err := r.pools.FindOne(ctx, bson.M{"_id": id, "tenant_id": tenantID}).Decode(&pool); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, capacityerrors.ErrPoolNotFound
		}
		return nil, fmt.Errorf("failed to find capacity pool: %w", err)
	}
	return &pool, nil
}

// AddMember relies on the unique (pool_id, member_key) index.
func (r *mongoCapacityRepository) AddMember(ctx context.Context, m *model.CapacityPoolMember) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.members.InsertOne(ctx, m); err != nil {
		if mongotx.IsDuplicateKey(err) {
			return capacityerrors.ErrDuplicateMember
		}
		return fmt.Errorf("failed to add pool member: %w", err)
	}
	return nil
}

func (r *mongoCapacityRepository) ListMembers(ctx context.Context, tenantID, poolID string) ([]*model.CapacityPoolMember, error) {
	return r.findMembers(ctx, bson.M{"tenant_id": tenantID, "pool_id": poolID, "is_active": true})
}

func (r *mongoCapacityRepository) FindMemberships(ctx context.Context, tenantID, memberKey string) ([]*model.CapacityPoolMember, error) {
	return r.findMembers(ctx, bson.M{"tenant_id": tenantID, "member_key": memberKey, "is_active": true})
}

func (r *mongoCapacityRepository) findMembers(ctx context.Context, filter bson.M) ([]*model.CapacityPoolMember, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "pool_id", Value: 1}, {Key: "member_key", Value: 1}})
	cursor, err := r.members.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find pool members: %w", err)
	}
	defer cursor.Close(ctx)

	var members []*model.CapacityPoolMember
	if err = cursor.All(ctx, &members); err != nil {
		return nil, fmt.Errorf("failed to decode pool members: %w", err)
	}
	return members, nil
}

func (r *mongoCapacityRepository) InsertAllocations(ctx context.Context, allocs []*model.CapacityAllocation) error {
	if len(allocs) == 0 {
		return nil
	}
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	docs := make([]any, len(allocs))
	for i, a := range allocs {
		docs[i] = a
	}
	if _, err := r.allocations.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert capacity allocations: %w", err)
	}
	return nil
}

func (r *mongoCapacityRepository) ListActiveOverlapping(ctx context.Context, tenantID, poolID string, w model.Window) ([]*model.CapacityAllocation, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"tenant_id": tenantID,
		"pool_id":   poolID,
		"status":    model.AllocationActive,
		"starts_at": bson.M{"$lt": w.End},
		"ends_at":   bson.M{"$gt": w.Start},
	}
	cursor, err := r.allocations.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find capacity allocations: %w", err)
	}
	defer cursor.Close(ctx)

	var allocs []*model.CapacityAllocation
	if err = cursor.All(ctx, &allocs); err != nil {
		return nil, fmt.Errorf("failed to decode capacity allocations: %w", err)
	}
	return allocs, nil
}

func (r *mongoCapacityRepository) CloseByHold(ctx context.Context, tenantID, holdID string, status model.AllocationStatus, at time.Time) (int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"tenant_id": tenantID, "hold_id": holdID, "status": model.AllocationActive}
	update := bson.M{"$set": bson.M{"status": status, "closed_at": at}}
	result, err := r.allocations.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to close capacity allocations: %w", err)
	}
	return result.ModifiedCount, nil
}

func (r *mongoCapacityRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
