package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/kompetch-n/archikoo-shirt-backend/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrDuplicateOrderID = errors.New("order id already exists")
)

// OrderRepository defines the storage operations used by the order service.
// It uses plain Go types so the service and its tests never see driver types.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	FindByOrderID(ctx context.Context, orderID string) (*models.Order, error)
	FindByTrackingNumber(ctx context.Context, trackingNumber string) (*models.Order, error)
	SetTracking(ctx context.Context, orderID, trackingNumber string) (*models.Order, error)
	FindAll(ctx context.Context) ([]models.Order, error)
	SearchByName(ctx context.Context, name string) ([]models.Order, error)
	Ping(ctx context.Context) error
}

type MongoOrderRepository struct {
	collection *mongo.Collection
}

func NewMongoOrderRepository(collection *mongo.Collection) *MongoOrderRepository {
	return &MongoOrderRepository{collection: collection}
}

// Create inserts order and sets order.ID from the generated _id. A clash on
// the unique orderId index returns ErrDuplicateOrderID.
func (r *MongoOrderRepository) Create(ctx context.Context, order *models.Order) error {
	res, err := r.collection.InsertOne(ctx, order)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert order %s: %w", order.OrderID, ErrDuplicateOrderID)
		}
		return fmt.Errorf("insert order %s: %w", order.OrderID, err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		order.ID = oid
	}
	return nil
}

func (r *MongoOrderRepository) FindByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	return r.findOne(ctx, bson.M{"orderId": orderID}, nil)
}

// FindByTrackingNumber returns the most recent order carrying trackingNumber.
// Tracking numbers are not unique, so the newest order wins.
func (r *MongoOrderRepository) FindByTrackingNumber(ctx context.Context, trackingNumber string) (*models.Order, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "orderDate", Value: -1}})
	return r.findOne(ctx, bson.M{"trackingNumber": trackingNumber}, opts)
}

// SetTracking stores trackingNumber, marks the order shipped and returns the
// document after the update. Re-applying the same value is not an error.
func (r *MongoOrderRepository) SetTracking(ctx context.Context, orderID, trackingNumber string) (*models.Order, error) {
	filter := bson.M{"orderId": orderID}
	update := bson.M{"$set": bson.M{
		"trackingNumber": trackingNumber,
		"status":         models.StatusShipped,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var order models.Order
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&order)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("update tracking for %s: %w", orderID, err)
	}
	return &order, nil
}

func (r *MongoOrderRepository) FindAll(ctx context.Context) ([]models.Order, error) {
	return r.find(ctx, bson.M{})
}

// SearchByName matches name as a literal, case-insensitive substring of fullName.
func (r *MongoOrderRepository) SearchByName(ctx context.Context, name string) ([]models.Order, error) {
	return r.find(ctx, nameFilter(name))
}

func nameFilter(name string) bson.M {
	return bson.M{"fullName": primitive.Regex{Pattern: regexp.QuoteMeta(name), Options: "i"}}
}

func (r *MongoOrderRepository) Ping(ctx context.Context) error {
	return r.collection.Database().Client().Ping(ctx, readpref.Primary())
}

func (r *MongoOrderRepository) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (*models.Order, error) {
	var order models.Order
	var err error
	if opts != nil {
		err = r.collection.FindOne(ctx, filter, opts).Decode(&order)
	} else {
		err = r.collection.FindOne(ctx, filter).Decode(&order)
	}
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *MongoOrderRepository) find(ctx context.Context, filter bson.M) ([]models.Order, error) {
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	orders := make([]models.Order, 0)
	if err = cursor.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}
