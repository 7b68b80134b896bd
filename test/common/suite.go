package common

import (
	"context"
	"os"
	"testing"
	"time"

	"spotbook/internal/bookings/repository"
	"spotbook/pkg/client"
	"spotbook/pkg/config"
	"spotbook/pkg/middleware"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	EnvIntegrationTest = "INTEGRATION_TEST"
	EnvServerURL       = "TEST_SERVER_URL"

	DefaultServerURL     = "http://localhost:8080"
	DefaultHealthTimeout = 30 * time.Second
)

// IntegrationTestSuite talks to a running bookings service and seeds spots
// straight into its Mongo database.
type IntegrationTestSuite struct {
	Config   *config.Config
	Bookings *client.BookingClient
	mongo    *mongo.Client
}

// NewIntegrationTestSuite skips the test unless INTEGRATION_TEST=true.
func NewIntegrationTestSuite(t *testing.T, serviceName string) *IntegrationTestSuite {
	t.Helper()

	if os.Getenv(EnvIntegrationTest) != "true" {
		t.Skip("set INTEGRATION_TEST=true to run integration tests")
	}

	cfg := config.Load(serviceName)

	serverURL := os.Getenv(EnvServerURL)
	if serverURL == "" {
		serverURL = DefaultServerURL
	}

	if err := client.NewHttpClient(serverURL).WaitForHealthy(DefaultHealthTimeout); err != nil {
		t.Fatalf("service not healthy: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.MongoConnTimeout)
	defer cancel()
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		t.Fatalf("failed to connect to MongoDB: %v", err)
	}

	suite := &IntegrationTestSuite{
		Config:   cfg,
		Bookings: client.NewBookingClient(serverURL),
		mongo:    mongoClient,
	}
	t.Cleanup(suite.teardown)
	return suite
}

// As returns a booking client authenticated as userID.
func (s *IntegrationTestSuite) As(t *testing.T, userID string) *client.BookingClient {
	t.Helper()
	token, err := middleware.SignToken(s.Config.JWTSecret, userID, time.Hour)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return s.Bookings.As(token)
}

// NewSpot inserts a spot owned by ownerID and removes it with its bookings on cleanup.
func (s *IntegrationTestSuite) NewSpot(t *testing.T, ownerID string) string {
	t.Helper()

	spotID := "it-" + uuid.NewString()
	_, err := s.collection(repository.SpotCollectionName).InsertOne(context.Background(), bson.M{
		"_id":      spotID,
		"owner_id": ownerID,
	})
	if err != nil {
		t.Fatalf("failed to insert spot: %v", err)
	}

	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = s.collection(repository.CollectionName).DeleteMany(ctx, bson.M{"spot_id": spotID})
		_, _ = s.collection(repository.SpotCollectionName).DeleteOne(ctx, bson.M{"_id": spotID})
	})
	return spotID
}

func (s *IntegrationTestSuite) collection(name string) *mongo.Collection {
	return s.mongo.Database(s.Config.MongoDatabaseName).Collection(name)
}

func (s *IntegrationTestSuite) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.mongo.Disconnect(ctx)
}
