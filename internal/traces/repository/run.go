package repository

import (
	"context"
	"errors"
	"fmt"
	traceerrors "slotkeeper/internal/traces/errors"
	"slotkeeper/pkg/config"
	mongotx "slotkeeper/pkg/db/mongo"
	"slotkeeper/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const ResolutionRunsCollection = "Resolution_runs"

// RunRepository is append-only. Runs are never updated.
type RunRepository interface {
	Insert(ctx context.Context, run *model.AvailabilityResolutionRun) error
	FindByID(ctx context.Context, tenantID, id string) (*model.AvailabilityResolutionRun, error)
	ListByCalendar(ctx context.Context, tenantID, calendarID string, limit int, offset int64) ([]*model.AvailabilityResolutionRun, int64, error)
}

type mongoRunRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoRunRepository(cfg *config.Config) RunRepository {
	return &mongoRunRepository{
		cfg:        cfg,
		collection: cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(ResolutionRunsCollection),
	}
}

func (r *mongoRunRepository) Insert(ctx context.Context, run *model.AvailabilityResolutionRun) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, run); err != nil {
		if mongotx.IsDuplicateKey(err) {
			// a retried write already landed
			return nil
		}
		return fmt.Errorf("failed to insert resolution run: %w", err)
	}
	return nil
}

func (r *mongoRunRepository) FindByID(ctx context.Context, tenantID, id string) (*model.AvailabilityResolutionRun, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var run model.AvailabilityResolutionRun
	err := r.collection.FindOne(ctx, bson.M{"_id": id, "tenant_id": tenantID}).Decode(&run)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, traceerrors.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to find resolution run: %w", err)
	}
	return &run, nil
}

func (r *mongoRunRepository) ListByCalendar(ctx context.Context, tenantID, calendarID string, limit int, offset int64) ([]*model.AvailabilityResolutionRun, int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{"tenant_id": tenantID, "calendar_id": calendarID}
	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count resolution runs: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list resolution runs: %w", err)
	}
	defer cursor.Close(ctx)

	var runs []*model.AvailabilityResolutionRun
	if err := cursor.All(ctx, &runs); err != nil {
		return nil, 0, fmt.Errorf("failed to decode resolution runs: %w", err)
	}
	return runs, total, nil
}
