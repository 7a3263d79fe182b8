package lock

import (
	"context"
	"fmt"
	mongotx "slotkeeper/pkg/db/mongo"
	"slotkeeper/pkg/logger"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const LockCollectionName = "Advisory_locks"

type advisoryLock struct {
	ID        string    `bson:"_id"`
	Token     string    `bson:"token"`
	ExpiresAt time.Time `bson:"expires_at"`
	CreatedAt time.Time `bson:"created_at"`
}

// MongoLocker uses a collection keyed by lock name; a duplicate key means the lock is held.
// Stale locks are taken over once expires_at has passed, and the TTL index cleans up the rest.
type MongoLocker struct {
	collection *mongo.Collection
	opts       Options
	log        *logger.Logger
}

func NewMongoLocker(db *mongo.Database, opts Options, log *logger.Logger) *MongoLocker {
	return &MongoLocker{
		collection: db.Collection(LockCollectionName),
		opts:       opts,
		log:        log,
	}
}

func (l *MongoLocker) Acquire(ctx context.Context, key string) (Unlock, error) {
	token := uuid.NewString()
	if err := acquireWithRetry(ctx, l, key, token, l.opts); err != nil {
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := l.release(releaseCtx, key, token); err != nil {
				l.log.Warn("Failed to release advisory lock", "lock_key", key, "error", err)
			}
		})
	}, nil
}

func (l *MongoLocker) tryAcquire(ctx context.Context, key, token string) (bool, error) {
	now := time.Now().UTC()

	if _, err := l.collection.DeleteOne(ctx, bson.M{"_id": key, "expires_at": bson.M{"$lte": now}}); err != nil {
		return false, fmt.Errorf("failed to clear stale lock: %w", err)
	}

	_, err := l.collection.InsertOne(ctx, advisoryLock{
		ID:        key,
		Token:     token,
		ExpiresAt: now.Add(l.opts.TTL),
		CreatedAt: now,
	})
	if err != nil {
		if mongotx.IsDuplicateKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert advisory lock: %w", err)
	}
	return true, nil
}

func (l *MongoLocker) release(ctx context.Context, key, token string) error {
	_, err := l.collection.DeleteOne(ctx, bson.M{"_id": key, "token": token})
	return err
}
