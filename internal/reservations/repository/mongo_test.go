package repository

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"bookly/pkg/client"
	"bookly/pkg/config"
	"bookly/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// newMongoBackend needs a replica set (transactions) at TEST_MONGO_URI.
// Every test gets its own database, dropped on cleanup.
func newMongoBackend(t *testing.T) backend {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mc, err := mongo.Connect(ctx, options.Client().ApplyURI(os.Getenv("TEST_MONGO_URI")))
	require.NoError(t, err)
	if err := mc.Ping(ctx, nil); err != nil {
		t.Skipf("mongo unreachable: %v", err)
	}

	name := fmt.Sprintf("bookly_test_%s", uuid.NewString()[:8])
	db := mc.Database(name)
	for _, coll := range []string{BookingsCollection, ResourcesCollection, ResourceFencesCollection} {
		require.NoError(t, db.CreateCollection(ctx, coll))
	}
	_, err = db.Collection(BookingsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "resource_id", Value: 1}, {Key: "idempotency_key", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"idempotency_key": bson.M{"$type": "string"}}),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
		_ = mc.Disconnect(ctx)
	})

	cfg := &config.Config{
		MongoDatabaseName: name,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		Log:               logger.Discard(),
		Client:            &client.Client{Mongo: &client.MongoClient{Client: mc}},
	}
	return backend{bookings: NewMongoBookingRepository(cfg), resources: NewMongoResourceRepository(cfg)}
}
