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

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "Bookings"

// byStart is the order every listing is returned in.
var byStart = bson.D{{Key: "start_date", Value: 1}, {Key: "_id", Value: 1}}

type mongoBookingRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	return &mongoBookingRepository{
		cfg:        cfg,
		collection: cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoBookingRepository) read(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, r.cfg.ReadTimeout, mongotx.InSession(ctx))
}

func (r *mongoBookingRepository) write(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, r.cfg.WriteTimeout, mongotx.InSession(ctx))
}

func (r *mongoBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := r.write(ctx)
	defer cancel()

	if booking.ID == "" {
		booking.ID = newBookingID()
	}
	if _, err := r.collection.InsertOne(ctx, booking); err != nil {
		return fmt.Errorf("insert booking %s: %w", booking.ID, err)
	}
	return nil
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	if err := checkBookingID(id); err != nil {
		return nil, err
	}

	ctx, cancel := r.read(ctx)
	defer cancel()

	var booking model.Booking
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&booking); err != nil {
		return nil, notFoundOr(err, "find booking "+id)
	}
	return &booking, nil
}

func (r *mongoBookingRepository) ListBySpot(ctx context.Context, spotID string) ([]*model.Booking, error) {
	return r.list(ctx, bson.M{"spot_id": spotID})
}

func (r *mongoBookingRepository) ListByUser(ctx context.Context, userID string) ([]*model.Booking, error) {
	return r.list(ctx, bson.M{"user_id": userID})
}

func (r *mongoBookingRepository) list(ctx context.Context, filter bson.M) ([]*model.Booking, error) {
	ctx, cancel := r.read(ctx)
	defer cancel()

	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(byStart))
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer cursor.Close(ctx)

	bookings := []*model.Booking{}
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("decode bookings: %w", err)
	}
	return bookings, nil
}

func (r *mongoBookingRepository) UpdateDates(ctx context.Context, id string, start, end, updatedAt time.Time) (*model.Booking, error) {
	if err := checkBookingID(id); err != nil {
		return nil, err
	}

	ctx, cancel := r.write(ctx)
	defer cancel()

	update := bson.M{"$set": bson.M{
		"start_date": start,
		"end_date":   end,
		"updated_at": updatedAt,
	}}

	var booking model.Booking
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&booking)
	if err != nil {
		return nil, notFoundOr(err, "update booking "+id)
	}
	return &booking, nil
}

func (r *mongoBookingRepository) Delete(ctx context.Context, id string) error {
	if err := checkBookingID(id); err != nil {
		return err
	}

	ctx, cancel := r.write(ctx)
	defer cancel()

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete booking %s: %w", id, err)
	}
	if result.DeletedCount == 0 {
		return bookingserrors.ErrNotFound
	}
	return nil
}

func (r *mongoBookingRepository) DeleteBySpot(ctx context.Context, spotID string) (int64, error) {
	ctx, cancel := r.write(ctx)
	defer cancel()

	result, err := r.collection.DeleteMany(ctx, bson.M{"spot_id": spotID})
	if err != nil {
		return 0, fmt.Errorf("delete bookings of spot %s: %w", spotID, err)
	}
	return result.DeletedCount, nil
}

func (r *mongoBookingRepository) ExecuteTransaction(ctx context.Context, fn TxFunc) error {
	return r.txManager.ExecuteTransaction(ctx, mongotx.TransactionFunc(fn))
}

func notFoundOr(err error, op string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return bookingserrors.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
