package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// ConnectMongo connects to MongoDB using the provided URI and pings the primary.
func ConnectMongo(ctx context.Context, mongoURL string) (*mongo.Client, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(mongoURL)

	client, err := mongo.Connect(timeoutCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(timeoutCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

// CloseMongo disconnects from MongoDB
func CloseMongo(client *mongo.Client, logger *zap.Logger) error {
	disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer disconnectCancel()

	if err := client.Disconnect(disconnectCtx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}

	logger.Info("Disconnected from MongoDB")
	return nil
}

// EnsureOrderIndexes creates the unique orderId index and the trackingNumber
// lookup index. The unique index is what keeps concurrent registrations from
// persisting the same order ID.
func EnsureOrderIndexes(ctx context.Context, coll *mongo.Collection) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "orderId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("orderId_unique"),
		},
		{
			Keys:    bson.D{{Key: "trackingNumber", Value: 1}},
			Options: options.Index().SetName("trackingNumber_idx"),
		},
	}
	if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("failed to create order indexes: %w", err)
	}
	return nil
}
