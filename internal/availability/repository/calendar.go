package repository

import (
	"context"
	"errors"
	"fmt"
	availabilityerrors "slotkeeper/internal/availability/errors"
	"slotkeeper/pkg/config"
	mongotx "slotkeeper/pkg/db/mongo"
	"slotkeeper/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CalendarsCollection        = "Calendars"
	CalendarBindingsCollection = "Calendar_bindings"
	CalendarRevisionCollection = "Calendar_revisions"
)

type CalendarRepository interface {
	Create(ctx context.Context, cal *model.Calendar) error
	FindByID(ctx context.Context, tenantID, id string) (*model.Calendar, error)
	// Update replaces the calendar if its stored version still equals expectedVersion.
	Update(ctx context.Context, cal *model.Calendar, expectedVersion int) error
	AppendRevision(ctx context.Context, rev *model.CalendarRevision) error
	ListRevisions(ctx context.Context, tenantID, calendarID string, limit int, offset int64) ([]*model.CalendarRevision, error)
	CreateBinding(ctx context.Context, b *model.CalendarBinding) error
	FindPrimaryBinding(ctx context.Context, tenantID, ownerKey string) (*model.CalendarBinding, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoCalendarRepository struct {
	cfg       *config.Config
	calendars *mongo.Collection
	bindings  *mongo.Collection
	revisions *mongo.Collection
	txManager mongotx.TransactionManager
}

func NewMongoCalendarRepository(cfg *config.Config) CalendarRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoCalendarRepository{
		cfg:       cfg,
		calendars: db.Collection(CalendarsCollection),
		bindings:  db.Collection(CalendarBindingsCollection),
		revisions: db.Collection(CalendarRevisionCollection),
		txManager: mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoCalendarRepository) Create(ctx context.Context, cal *model.Calendar) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.calendars.InsertOne(ctx, cal); err != nil {
		return fmt.Errorf("failed to create calendar: %w", err)
	}
	return nil
}

func (r *mongoCalendarRepository) FindByID(ctx context.Context, tenantID, id string) (*model.Calendar, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var cal model.Calendar
	err := r.calendars.FindOne(ctx, bson.M{"_id": id, "tenant_id": tenantID}).Decode(&cal)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, availabilityerrors.ErrCalendarNotFound
		}
		return nil, fmt.Errorf("failed to find calendar: %w", err)
	}
	return &cal, nil
}

func (r *mongoCalendarRepository) Update(ctx context.Context, cal *model.Calendar, expectedVersion int) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"_id": cal.ID, "tenant_id": cal.TenantID, "version": expectedVersion}
	result, err := r.calendars.ReplaceOne(ctx, filter, cal)
	if err != nil {
		return fmt.Errorf("failed to update calendar: %w", err)
	}
	if result.MatchedCount == 0 {
		return availabilityerrors.ErrVersionConflict
	}
	return nil
}

func (r *mongoCalendarRepository) AppendRevision(ctx context.Context, rev *model.CalendarRevision) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.revisions.InsertOne(ctx, rev); err != nil {
		if mongotx.IsDuplicateKey(err) {
			return availabilityerrors.ErrVersionConflict
		}
		return fmt.Errorf("failed to append calendar revision: %w", err)
	}
	return nil
}

func (r *mongoCalendarRepository) ListRevisions(ctx context.Context, tenantID, calendarID string, limit int, offset int64) ([]*model.CalendarRevision, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "revision", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.revisions.Find(ctx, bson.M{"tenant_id": tenantID, "calendar_id": calendarID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find calendar revisions: %w", err)
	}
	defer cursor.Close(ctx)

	var revisions []*model.CalendarRevision
	if err = cursor.All(ctx, &revisions); err != nil {
		return nil, fmt.Errorf("failed to decode calendar revisions: %w", err)
	}
	return revisions, nil
}

// CreateBinding relies on the partial unique index over active primary bindings.
func (r *mongoCalendarRepository) CreateBinding(ctx context.Context, b *model.CalendarBinding) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.bindings.InsertOne(ctx, b); err != nil {
		if mongotx.IsDuplicateKey(err) {
			return availabilityerrors.ErrDuplicatePrimaryBinding
		}
		return fmt.Errorf("failed to create calendar binding: %w", err)
	}
	return nil
}

func (r *mongoCalendarRepository) FindPrimaryBinding(ctx context.Context, tenantID, ownerKey string) (*model.CalendarBinding, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"tenant_id":     tenantID,
		"owner_ref_key": ownerKey,
		"is_primary":    true,
		"is_active":     true,
	}

	var b model.CalendarBinding
	if err := r.bindings.FindOne(ctx, filter).Decode(&b); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, availabilityerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find calendar binding: %w", err)
	}
	return &b, nil
}

func (r *mongoCalendarRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}

