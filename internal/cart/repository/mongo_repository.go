package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	d "github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetMinPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

// cartDocument keeps money as strings; BSON has no codec for decimal.Decimal.
type cartDocument struct {
	CartID    string         `bson:"cart_id,omitempty"`
	UserID    string         `bson:"user_id"`
	Items     []itemDocument `bson:"items"`
	CreatedAt time.Time      `bson:"created_at"`
	UpdatedAt time.Time      `bson:"updated_at"`
}

type itemDocument struct {
	ProductID         int64     `bson:"product_id"`
	ProductName       string    `bson:"product_name"`
	UnitPrice         string    `bson:"unit_price"`
	Quantity          int       `bson:"quantity"`
	ReservationExpiry time.Time `bson:"reservation_expiry"`
	AddedAt           time.Time `bson:"added_at"`
}

type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		collection: db.Collection("carts"),
	}
}

func (m *MongoRepository) GetCart(ctx context.Context, userID string) (*d.Cart, error) {
	var doc cartDocument

	err := m.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return fromDocument(doc)
}

func (m *MongoRepository) SaveCart(ctx context.Context, cart *d.Cart) error {
	doc := toDocument(cart)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}

	filter := bson.M{"user_id": cart.UserID}
	update := bson.M{"$set": doc}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}
	return nil
}

func (m *MongoRepository) DeleteCart(ctx context.Context, userID string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // 90 days TTL
		},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func toDocument(cart *d.Cart) cartDocument {
	doc := cartDocument{
		CartID:    cart.ID,
		UserID:    cart.UserID,
		Items:     make([]itemDocument, 0, len(cart.Items)),
		CreatedAt: cart.CreatedAt,
		UpdatedAt: cart.UpdatedAt,
	}
	for _, item := range cart.Items {
		doc.Items = append(doc.Items, itemDocument{
			ProductID:         item.ProductID,
			ProductName:       item.ProductName,
			UnitPrice:         item.UnitPrice.String(),
			Quantity:          item.Quantity,
			ReservationExpiry: item.ReservationExpiry,
			AddedAt:           item.AddedAt,
		})
	}
	return doc
}

func fromDocument(doc cartDocument) (*d.Cart, error) {
	cart := &d.Cart{
		ID:        doc.CartID,
		UserID:    doc.UserID,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	for _, item := range doc.Items {
		price, err := decimal.NewFromString(item.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("invalid unit price %q for product %d: %w", item.UnitPrice, item.ProductID, err)
		}
		cart.Items = append(cart.Items, d.LineItem{
			ProductID:         item.ProductID,
			ProductName:       item.ProductName,
			UnitPrice:         price,
			Quantity:          item.Quantity,
			ReservationExpiry: item.ReservationExpiry,
			AddedAt:           item.AddedAt,
		})
	}
	return cart, nil
}
