package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vitrine/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const orderCollection = "orders"

// MongoOrderRepository is a MongoDB implementation of OrderRepository.
type MongoOrderRepository struct {
	collection *mongo.Collection
}

// NewMongoOrderRepository creates the repository and ensures the unique
// order-number index.
func NewMongoOrderRepository(db *mongo.Database) (*MongoOrderRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	coll := db.Collection(orderCollection)
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "order_number", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure order indexes: %w", err)
	}
	return &MongoOrderRepository{collection: coll}, nil
}

// Create inserts a new order.
func (r *MongoOrderRepository) Create(ctx context.Context, order *models.Order) error {
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	if _, err := r.collection.InsertOne(ctx, order); err != nil {
		if isDuplicateKey(err, "order_number") {
			return ErrDuplicateOrderNumber
		}
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// GetByID finds an order by its hex object ID.
func (r *MongoOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var order models.Order
	err = r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&order)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order by ID %s: %w", id, err)
	}
	return &order, nil
}

// GetAll returns every order, newest first.
func (r *MongoOrderRepository) GetAll(ctx context.Context) ([]models.Order, error) {
	return r.find(ctx, bson.M{})
}

// GetByUserID returns all orders owned by the given user, newest first.
func (r *MongoOrderRepository) GetByUserID(ctx context.Context, userID string) ([]models.Order, error) {
	return r.find(ctx, bson.M{"user_id": userID})
}

func (r *MongoOrderRepository) find(ctx context.Context, filter bson.M) ([]models.Order, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer cursor.Close(ctx)

	var orders []models.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return orders, nil
}

// Update replaces the stored document with the given order.
func (r *MongoOrderRepository) Update(ctx context.Context, order *models.Order) error {
	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": order.ID}, order)
	if err != nil {
		return fmt.Errorf("failed to update order %s: %w", order.ID.Hex(), err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// CountSince counts orders created at or after the given time.
func (r *MongoOrderRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"created_at": bson.M{"$gte": since}})
	if err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return count, nil
}

// AnonymizeByUserID clears the owner reference and masks the contact
// email on every order of the user. Order history itself is retained.
func (r *MongoOrderRepository) AnonymizeByUserID(ctx context.Context, userID string) (int64, error) {
	update := bson.M{
		"$unset": bson.M{"user_id": ""},
		"$set": bson.M{
			"email":      "deleted@anonymized.invalid",
			"updated_at": time.Now().UTC(),
		},
	}
	result, err := r.collection.UpdateMany(ctx, bson.M{"user_id": userID}, update)
	if err != nil {
		return 0, fmt.Errorf("failed to anonymize orders for user %s: %w", userID, err)
	}
	return result.ModifiedCount, nil
}
