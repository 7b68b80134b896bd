package repository

import (
	"context"
	"fmt"
	"time"

	"spotbook/pkg/config"
	"spotbook/pkg/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const LockCollectionName = "Booking_locks"

type mongoSpotLocker struct {
	collection *mongo.Collection
	lockCfg    LockConfig
	now        func() time.Time
}

func NewMongoSpotLocker(cfg *config.Config) SpotLocker {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSpotLocker{
		collection: db.Collection(LockCollectionName),
		lockCfg:    lockConfigFrom(cfg),
		now:        time.Now,
	}
}

func lockConfigFrom(cfg *config.Config) LockConfig {
	return LockConfig{
		TTL:           cfg.LockTTL,
		WaitTimeout:   cfg.LockWaitTimeout,
		RetryInterval: cfg.LockRetryInterval,
	}
}

func (l *mongoSpotLocker) Acquire(ctx context.Context, spotID string) (string, error) {
	token := uuid.NewString()

	err := waitForLock(ctx, l.lockCfg, spotID, func(ctx context.Context) (bool, error) {
		return l.tryAcquire(ctx, spotID, token)
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// tryAcquire inserts the lock document, or takes it over when the current holder's
// lease has expired. The TTL index on expires_at cleans up eventually but runs only
// once a minute, so expiry is checked here too.
func (l *mongoSpotLocker) tryAcquire(ctx context.Context, spotID, token string) (bool, error) {
	now := l.now().UTC()
	lock := &model.SpotLock{
		ID:        spotID,
		Owner:     token,
		ExpiresAt: now.Add(l.lockCfg.TTL),
		CreatedAt: now,
	}

	_, err := l.collection.InsertOne(ctx, lock)
	if err == nil {
		return true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return false, fmt.Errorf("failed to insert spot lock: %w", err)
	}

	result, err := l.collection.UpdateOne(ctx,
		bson.M{"_id": spotID, "expires_at": bson.M{"$lte": now}},
		bson.M{"$set": bson.M{
			"owner":      token,
			"expires_at": lock.ExpiresAt,
			"created_at": now,
		}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to take over expired spot lock: %w", err)
	}
	return result.ModifiedCount == 1, nil
}

func (l *mongoSpotLocker) Release(ctx context.Context, spotID, token string) error {
	_, err := l.collection.DeleteOne(ctx, bson.M{"_id": spotID, "owner": token})
	if err != nil {
		return fmt.Errorf("failed to release spot lock: %w", err)
	}
	return nil
}
