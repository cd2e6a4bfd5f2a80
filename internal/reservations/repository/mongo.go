package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	reservationerrors "bookly/internal/reservations/errors"
	"bookly/pkg/config"
	mongotx "bookly/pkg/db/mongo"
	"bookly/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	BookingsCollection       = "Bookings"
	ResourcesCollection      = "Resources"
	ResourceFencesCollection = "Resource_fences"
)

type mongoBookingRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
	fences     *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	db := cfg.Client.Mongo.Client.Database(cfg.MongoDatabaseName)
	return &mongoBookingRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(BookingsCollection),
		fences:     db.Collection(ResourceFencesCollection),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo.Client),
	}
}

// withTimeout leaves a SessionContext untouched; wrapping it would detach
// the operation from its transaction.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

func (r *mongoBookingRepository) SaveAll(ctx context.Context, writes []BookingWrite) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	return r.txManager.ExecuteTransaction(ctx, func(sc mongo.SessionContext) error {
		// Every writer of a resource touches its fence document, so two
		// transactions on the same resource always write-conflict and the
		// overlap count below never races another commit.
		for _, resourceID := range writesByResource(writes) {
			_, err := r.fences.UpdateOne(sc,
				bson.M{"_id": resourceID},
				bson.M{"$inc": bson.M{"seq": 1}, "$set": bson.M{"updated_at": time.Now().UTC()}},
				options.Update().SetUpsert(true),
			)
			if err != nil {
				return fmt.Errorf("failed to fence resource %s: %w", resourceID, err)
			}
		}

		for _, w := range writes {
			if err := r.applyWrite(sc, w); err != nil {
				return err
			}
		}

		for _, w := range writes {
			b := w.Booking
			if b.Status != model.BookingStatusConfirmed {
				continue
			}
			count, err := r.collection.CountDocuments(sc, bson.M{
				"resource_id": b.ResourceID,
				"status":      model.BookingStatusConfirmed,
				"_id":         bson.M{"$ne": b.ID},
				"range.start": bson.M{"$lt": b.Range.End},
				"range.end":   bson.M{"$gt": b.Range.Start},
			})
			if err != nil {
				return fmt.Errorf("failed to check overlap: %w", err)
			}
			if count > 0 {
				return fmt.Errorf("%w: booking %s on resource %s overlaps %d confirmed bookings",
					reservationerrors.ErrOverlap, b.ID, b.ResourceID, count)
			}
		}
		return nil
	})
}

func (r *mongoBookingRepository) applyWrite(sc mongo.SessionContext, w BookingWrite) error {
	if w.ExpectedVersion == 0 {
		if _, err := r.collection.InsertOne(sc, w.Booking); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return fmt.Errorf("%w: booking %s or its idempotency key already exists", reservationerrors.ErrVersionConflict, w.Booking.ID)
			}
			return fmt.Errorf("failed to insert booking: %w", err)
		}
		return nil
	}

	result, err := r.collection.ReplaceOne(sc, bson.M{"_id": w.Booking.ID, "version": w.ExpectedVersion}, w.Booking)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if result.MatchedCount == 0 {
		n, err := r.collection.CountDocuments(sc, bson.M{"_id": w.Booking.ID})
		if err != nil {
			return fmt.Errorf("failed to look up booking: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", reservationerrors.ErrNotFound, w.Booking.ID)
		}
		return fmt.Errorf("%w: booking %s expected version %d", reservationerrors.ErrVersionConflict, w.Booking.ID, w.ExpectedVersion)
	}
	return nil
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *mongoBookingRepository) FindByIdempotencyKey(ctx context.Context, resourceID, key string) (*model.Booking, error) {
	return r.findOne(ctx, bson.M{"resource_id": resourceID, "idempotency_key": key})
}

func (r *mongoBookingRepository) findOne(ctx context.Context, filter bson.M) (*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var booking model.Booking
	err := r.collection.FindOne(ctx, filter).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, reservationerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return normalizeBooking(&booking), nil
}

func (r *mongoBookingRepository) FindActiveByResource(ctx context.Context, resourceID string) ([]*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"resource_id": resourceID,
		"status":      bson.M{"$in": []model.BookingStatus{model.BookingStatusPending, model.BookingStatusConfirmed}},
	}
	opts := options.Find().SetSort(bson.D{{Key: "arrival_seq", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	return r.find(ctx, filter, opts)
}

func (r *mongoBookingRepository) Search(ctx context.Context, filter model.BookingFilter, limit int, offset int64) ([]*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "range.start", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(offset)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, buildSearchFilter(filter), opts)
}

func (r *mongoBookingRepository) Count(ctx context.Context, filter model.BookingFilter) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, buildSearchFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

func (r *mongoBookingRepository) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()
	return r.db.Client().Ping(ctx, nil)
}

func (r *mongoBookingRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*model.Booking, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}
	for _, b := range bookings {
		normalizeBooking(b)
	}
	return bookings, nil
}

func buildSearchFilter(f model.BookingFilter) bson.M {
	filter := bson.M{}
	if f.ResourceID != "" {
		filter["resource_id"] = f.ResourceID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.Window != nil {
		filter["range.start"] = bson.M{"$lt": f.Window.End}
		filter["range.end"] = bson.M{"$gt": f.Window.Start}
	}
	return filter
}

// normalizeBooking restores UTC locations; the driver decodes dates in local time.
func normalizeBooking(b *model.Booking) *model.Booking {
	b.Range.Start = b.Range.Start.UTC()
	b.Range.End = b.Range.End.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return b
}

type mongoResourceRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoResourceRepository(cfg *config.Config) ResourceRepository {
	db := cfg.Client.Mongo.Client.Database(cfg.MongoDatabaseName)
	return &mongoResourceRepository{
		cfg:        cfg,
		collection: db.Collection(ResourcesCollection),
	}
}

func (r *mongoResourceRepository) Create(ctx context.Context, resource *model.Resource) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, resource); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", reservationerrors.ErrResourceExists, resource.ID)
		}
		return fmt.Errorf("failed to create resource: %w", err)
	}
	return nil
}

func (r *mongoResourceRepository) FindByID(ctx context.Context, id string) (*model.Resource, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var resource model.Resource
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&resource); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, reservationerrors.ErrResourceNotFound
		}
		return nil, fmt.Errorf("failed to find resource: %w", err)
	}
	resource.CreatedAt = resource.CreatedAt.UTC()
	return &resource, nil
}

func (r *mongoResourceRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Resource, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetSkip(offset)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find resources: %w", err)
	}
	defer cursor.Close(ctx)

	var resources []*model.Resource
	if err = cursor.All(ctx, &resources); err != nil {
		return nil, fmt.Errorf("failed to decode resources: %w", err)
	}
	return resources, nil
}

func (r *mongoResourceRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count resources: %w", err)
	}
	return count, nil
}

func (r *mongoResourceRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	if result.DeletedCount == 0 {
		return reservationerrors.ErrResourceNotFound
	}
	return nil
}
