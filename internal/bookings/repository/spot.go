package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "spotbook/internal/bookings/errors"
	"spotbook/pkg/config"
	mongotx "spotbook/pkg/db/mongo"
	"spotbook/pkg/model"

	"github.com/karlseguin/ccache/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const SpotCollectionName = "Spots"

type mongoSpotDirectory struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoSpotDirectory(cfg *config.Config) SpotDirectory {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSpotDirectory{
		cfg:        cfg,
		collection: db.Collection(SpotCollectionName),
	}
}

// GetOwner accepts both ObjectID and plain string spot ids.
func (d *mongoSpotDirectory) GetOwner(ctx context.Context, spotID string) (string, error) {
	ctx, cancel := withTimeout(ctx, d.cfg.ReadTimeout, mongotx.InSession(ctx))
	defer cancel()

	ids := []any{spotID}
	if oid, err := primitive.ObjectIDFromHex(spotID); err == nil {
		ids = append(ids, oid)
	}

	opts := options.FindOne().SetProjection(bson.M{"owner_id": 1})

	var spot model.Spot
	err := d.collection.FindOne(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts).Decode(&spot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", bookingserrors.ErrSpotNotFound
		}
		return "", fmt.Errorf("failed to find spot: %w", err)
	}
	return spot.OwnerID, nil
}

// CachedSpotDirectory is a read-through cache of spot owners. Misses are not cached,
// so a spot created after a failed lookup is visible immediately.
type CachedSpotDirectory struct {
	next  SpotDirectory
	cache *ccache.Cache[string]
	ttl   time.Duration
}

func NewCachedSpotDirectory(next SpotDirectory, size int, ttl time.Duration) *CachedSpotDirectory {
	return &CachedSpotDirectory{
		next:  next,
		cache: ccache.New(ccache.Configure[string]().MaxSize(int64(size))),
		ttl:   ttl,
	}
}

func (d *CachedSpotDirectory) GetOwner(ctx context.Context, spotID string) (string, error) {
	item, err := d.cache.Fetch(spotID, d.ttl, func() (string, error) {
		return d.next.GetOwner(ctx, spotID)
	})
	if err != nil {
		return "", err
	}
	return item.Value(), nil
}

// Refresh reads spotID past the cache and stores the result. A missing spot
// drops the cached owner.
func (d *CachedSpotDirectory) Refresh(ctx context.Context, spotID string) (string, error) {
	owner, err := d.next.GetOwner(ctx, spotID)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrSpotNotFound) {
			d.cache.Delete(spotID)
		}
		return "", err
	}
	d.cache.Set(spotID, owner, d.ttl)
	return owner, nil
}

func (d *CachedSpotDirectory) Invalidate(spotID string) {
	d.cache.Delete(spotID)
}

func (d *CachedSpotDirectory) Stop() {
	d.cache.Stop()
}

func (d *CachedSpotDirectory) Close() error {
	d.Stop()
	return nil
}
