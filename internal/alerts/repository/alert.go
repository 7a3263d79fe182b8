package repository

import (
	"context"
	"errors"
	"fmt"
	alerterrors "slotkeeper/internal/alerts/errors"
	"slotkeeper/pkg/config"
	mongotx "slotkeeper/pkg/db/mongo"
	"slotkeeper/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const DemandAlertsCollection = "Demand_alerts"

var liveStatuses = bson.A{model.AlertOpen, model.AlertAcknowledged}

type AlertRepository interface {
	Create(ctx context.Context, alert *model.DemandAlert) error
	Update(ctx context.Context, alert *model.DemandAlert) error
	FindByID(ctx context.Context, tenantID, id string) (*model.DemandAlert, error)
	// FindLive returns the open or acknowledged alert of a target.
	FindLive(ctx context.Context, tenantID, targetKey string) (*model.DemandAlert, error)
	List(ctx context.Context, tenantID string, status model.AlertStatus, limit int, offset int64) ([]*model.DemandAlert, int64, error)
	// ListLive returns live alerts of every tenant, least recently updated first.
	ListLive(ctx context.Context, limit int) ([]*model.DemandAlert, error)
}

type mongoAlertRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoAlertRepository(cfg *config.Config) AlertRepository {
	return &mongoAlertRepository{
		cfg:        cfg,
		collection: cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(DemandAlertsCollection),
	}
}

func (r *mongoAlertRepository) Create(ctx context.Context, alert *model.DemandAlert) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, alert); err != nil {
		return fmt.Errorf("failed to create demand alert: %w", err)
	}
	return nil
}

func (r *mongoAlertRepository) Update(ctx context.Context, alert *model.DemandAlert) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": alert.ID, "tenant_id": alert.TenantID}, alert)
	if err != nil {
		return fmt.Errorf("failed to update demand alert: %w", err)
	}
	if result.MatchedCount == 0 {
		return alerterrors.ErrAlertNotFound
	}
	return nil
}

func (r *mongoAlertRepository) FindByID(ctx context.Context, tenantID, id string) (*model.DemandAlert, error) {
	return r.findOne(ctx, bson.M{"_id": id, "tenant_id": tenantID})
}

func (r *mongoAlertRepository) FindLive(ctx context.Context, tenantID, targetKey string) (*model.DemandAlert, error) {
	filter := bson.M{
		"tenant_id":  tenantID,
		"target_key": targetKey,
		"status":     bson.M{"$in": liveStatuses},
	}
	return r.findOne(ctx, filter, options.FindOne().SetSort(bson.D{{Key: "opened_at", Value: -1}}))
}

func (r *mongoAlertRepository) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*model.DemandAlert, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var alert model.DemandAlert
	if err := r.collection.FindOne(ctx, filter, opts...).Decode(&alert); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, alerterrors.ErrAlertNotFound
		}
		return nil, fmt.Errorf("failed to find demand alert: %w", err)
	}
	return &alert, nil
}

func (r *mongoAlertRepository) List(ctx context.Context, tenantID string, status model.AlertStatus, limit int, offset int64) ([]*model.DemandAlert, int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{"tenant_id": tenantID}
	if status != "" {
		filter["status"] = status
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count demand alerts: %w", err)
	}

	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(offset).
		SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list demand alerts: %w", err)
	}
	defer cursor.Close(ctx)

	var alerts []*model.DemandAlert
	if err = cursor.All(ctx, &alerts); err != nil {
		return nil, 0, fmt.Errorf("failed to decode demand alerts: %w", err)
	}
	return alerts, total, nil
}

func (r *mongoAlertRepository) ListLive(ctx context.Context, limit int) ([]*model.DemandAlert, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "updated_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"status": bson.M{"$in": liveStatuses}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list live demand alerts: %w", err)
	}
	defer cursor.Close(ctx)

	var alerts []*model.DemandAlert
	if err = cursor.All(ctx, &alerts); err != nil {
		return nil, fmt.Errorf("failed to decode live demand alerts: %w", err)
	}
	return alerts, nil
}
