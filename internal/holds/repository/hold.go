package repository

import (
	"context"
	"errors"
	"fmt"
	holderrors "slotkeeper/internal/holds/errors"
	"slotkeeper/pkg/config"
	mongotx "slotkeeper/pkg/db/mongo"
	"slotkeeper/pkg/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CapacityHoldsCollection      = "Capacity_holds"
	CapacityHoldEventsCollection = "Capacity_hold_events"
)

// HoldFilter narrows hold listings. Empty fields match everything.
type HoldFilter struct {
	TargetKey string
	OwnerKey  string
	Status    model.HoldStatus
}

type HoldRepository interface {
	// Create relies on the unique (tenant_id, request_key) index for idempotent creation.
	Create(ctx context.Context, hold *model.CapacityHold) error
	FindByID(ctx context.Context, tenantID, id string) (*model.CapacityHold, error)
	FindByRequestKey(ctx context.Context, tenantID, requestKey string) (*model.CapacityHold, error)
	List(ctx context.Context, tenantID string, filter HoldFilter, limit int, offset int64) ([]*model.CapacityHold, int64, error)

	// UpdateActive replaces the stored hold only while it is still active at expectedVersion.
	// A lost race returns ErrVersionConflict.
	UpdateActive(ctx context.Context, hold *model.CapacityHold, expectedVersion int) error

	// CountActiveByOwner counts unexpired active holds of one owner per effect mode.
	CountActiveByOwner(ctx context.Context, tenantID, ownerKey string, now time.Time) (map[model.EffectMode]int, error)
	// Pressure summarizes unexpired active blocking and non-blocking holds on one target
	// created at or after since. Advisory holds are left out.
	Pressure(ctx context.Context, tenantID, targetKey string, since, now time.Time) (*model.HoldPressure, error)
	// CountOverlappingBlocking counts unexpired active blocking holds on one target whose
	// [StartsAt, EndsAt) intersects w.
	CountOverlappingBlocking(ctx context.Context, tenantID, targetKey string, w model.Window, now time.Time) (int, error)
	// ListExpired returns active holds of every tenant whose expiry is at or before now, oldest first.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*model.CapacityHold, error)

	AppendEvent(ctx context.Context, evt *model.CapacityHoldEvent) error
	ListEvents(ctx context.Context, tenantID, holdID string) ([]*model.CapacityHoldEvent, error)

	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoHoldRepository struct {
	cfg       *config.Config
	holds     *mongo.Collection
	events    *mongo.Collection
	txManager mongotx.TransactionManager
}

func NewMongoHoldRepository(cfg *config.Config) HoldRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoHoldRepository{
		cfg:       cfg,
		holds:     db.Collection(CapacityHoldsCollection),
		events:    db.Collection(CapacityHoldEventsCollection),
		txManager: mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoHoldRepository) Create(ctx context.Context, hold *model.CapacityHold) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.holds.InsertOne(ctx, hold); err != nil {
		if mongotx.IsDuplicateKey(err) {
			return holderrors.ErrDuplicateRequestKey
		}
		return fmt.Errorf("failed to create capacity hold: %w", err)
	}
	return nil
}

func (r *mongoHoldRepository) FindByID(ctx context.Context, tenantID, id string) (*model.CapacityHold, error) {
	return r.findOne(ctx, bson.M{"_id": id, "tenant_id": tenantID})
}

func (r *mongoHoldRepository) FindByRequestKey(ctx context.Context, tenantID, requestKey string) (*model.CapacityHold, error) {
	return r.findOne(ctx, bson.M{"tenant_id": tenantID, "request_key": requestKey})
}

func (r *mongoHoldRepository) findOne(ctx context.Context, filter bson.M) (*model.CapacityHold, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var hold model.CapacityHold
	if err := r.holds.FindOne(ctx, filter).Decode(&hold); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, holderrors.ErrHoldNotFound
		}
		return nil, fmt.Errorf("failed to find capacity hold: %w", err)
	}
	return &hold, nil
}

func (r *mongoHoldRepository) List(ctx context.Context, tenantID string, f HoldFilter, limit int, offset int64) ([]*model.CapacityHold, int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{"tenant_id": tenantID}
	if f.TargetKey != "" {
		filter["target_key"] = f.TargetKey
	}
	if f.OwnerKey != "" {
		filter["owner_key"] = f.OwnerKey
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}

	total, err := r.holds.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count capacity holds: %w", err)
	}

	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(offset).
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := r.holds.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list capacity holds: %w", err)
	}
	defer cursor.Close(ctx)

	var holds []*model.CapacityHold
	if err = cursor.All(ctx, &holds); err != nil {
		return nil, 0, fmt.Errorf("failed to decode capacity holds: %w", err)
	}
	return holds, total, nil
}

func (r *mongoHoldRepository) UpdateActive(ctx context.Context, hold *model.CapacityHold, expectedVersion int) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"_id":       hold.ID,
		"tenant_id": hold.TenantID,
		"status":    model.HoldActive,
		"version":   expectedVersion,
	}
	result, err := r.holds.ReplaceOne(ctx, filter, hold)
	if err != nil {
		return fmt.Errorf("failed to update capacity hold: %w", err)
	}
	if result.MatchedCount == 0 {
		return holderrors.ErrVersionConflict
	}
	return nil
}

func (r *mongoHoldRepository) CountActiveByOwner(ctx context.Context, tenantID, ownerKey string, now time.Time) (map[model.EffectMode]int, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"tenant_id":  tenantID,
			"owner_key":  ownerKey,
			"status":     model.HoldActive,
			"expires_at": bson.M{"$gt": now},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$effect_mode",
			"count": bson.M{"$sum": 1},
		}}},
	}
	cursor, err := r.holds.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to count active holds: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Mode  model.EffectMode `bson:"_id"`
		Count int              `bson:"count"`
	}
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode active hold counts: %w", err)
	}

	counts := make(map[model.EffectMode]int, len(rows))
	for _, row := range rows {
		counts[row.Mode] = row.Count
	}
	return counts, nil
}

func (r *mongoHoldRepository) Pressure(ctx context.Context, tenantID, targetKey string, since, now time.Time) (*model.HoldPressure, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"tenant_id":   tenantID,
			"target_key":  targetKey,
			"status":      model.HoldActive,
			"effect_mode": bson.M{"$ne": model.EffectAdvisory},
			"expires_at":  bson.M{"$gt": now},
			"created_at":  bson.M{"$gte": since},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":          nil,
			"blocking":     bson.M{"$sum": bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$effect_mode", model.EffectBlocking}}, 1, 0}}},
			"non_blocking": bson.M{"$sum": bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$effect_mode", model.EffectNonBlocking}}, 1, 0}}},
			"owners":       bson.M{"$addToSet": "$owner_key"},
		}}},
	}
	cursor, err := r.holds.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate hold pressure: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Blocking    int      `bson:"blocking"`
		NonBlocking int      `bson:"non_blocking"`
		Owners      []string `bson:"owners"`
	}
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode hold pressure: %w", err)
	}

	pressure := &model.HoldPressure{TargetKey: targetKey}
	if len(rows) == 0 {
		return pressure, nil
	}
	pressure.BlockingCount = rows[0].Blocking
	pressure.NonBlockingCount = rows[0].NonBlocking
	for _, owner := range rows[0].Owners {
		// anonymous holds have no owner key
		if owner != "" {
			pressure.UniqueOwnerCount++
		}
	}
	return pressure, nil
}

func (r *mongoHoldRepository) CountOverlappingBlocking(ctx context.Context, tenantID, targetKey string, w model.Window, now time.Time) (int, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"tenant_id":   tenantID,
		"target_key":  targetKey,
		"status":      model.HoldActive,
		"effect_mode": model.EffectBlocking,
		"expires_at":  bson.M{"$gt": now},
		"starts_at":   bson.M{"$lt": w.End},
		"ends_at":     bson.M{"$gt": w.Start},
	}
	count, err := r.holds.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count overlapping holds: %w", err)
	}
	return int(count), nil
}

func (r *mongoHoldRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*model.CapacityHold, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"status":     model.HoldActive,
		"expires_at": bson.M{"$lte": now},
	}
	opts := options.Find().
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "expires_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.holds.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired holds: %w", err)
	}
	defer cursor.Close(ctx)

	var holds []*model.CapacityHold
	if err = cursor.All(ctx, &holds); err != nil {
		return nil, fmt.Errorf("failed to decode expired holds: %w", err)
	}
	return holds, nil
}

func (r *mongoHoldRepository) AppendEvent(ctx context.Context, evt *model.CapacityHoldEvent) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.events.InsertOne(ctx, evt); err != nil {
		return fmt.Errorf("failed to append hold event: %w", err)
	}
	return nil
}

func (r *mongoHoldRepository) ListEvents(ctx context.Context, tenantID, holdID string) ([]*model.CapacityHoldEvent, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.events.Find(ctx, bson.M{"tenant_id": tenantID, "hold_id": holdID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find hold events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*model.CapacityHoldEvent
	if err = cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode hold events: %w", err)
	}
	return events, nil
}

func (r *mongoHoldRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
