package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/agrilink/agrilink-gobackend/internal/models"
)

type OrderService struct {
	db *mongo.Database
}

func NewOrderService(db *mongo.Database) *OrderService {
	return &OrderService{db: db}
}

// CreateOrder prices the cart lines against the product collection and inserts
// the order as UNPAID.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, items []models.OrderItem) (*models.Order, error) {
	if len(items) == 0 {
		return nil, errors.New("order must contain at least one item")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	total := 0.0
	for i, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("invalid quantity for product %s", item.ProductID)
		}
		objID, err := primitive.ObjectIDFromHex(item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("invalid product id %s: %v", item.ProductID, err)
		}

		var product models.Product
		if err := s.db.Collection("product").FindOne(ctx, bson.M{"_id": objID}).Decode(&product); err != nil {
			if err == mongo.ErrNoDocuments {
				return nil, fmt.Errorf("product %s not found", item.ProductID)
			}
			return nil, fmt.Errorf("failed to fetch product %s: %v", item.ProductID, err)
		}
		if product.Stock < item.Quantity {
			return nil, fmt.Errorf("insufficient stock for %s", product.Name)
		}

		items[i].Name = product.Name
		items[i].Price = product.Price
		total += product.Price * float64(item.Quantity)
	}

	order := models.Order{
		ID:            primitive.NewObjectID(),
		UserID:        userID,
		Items:         items,
		Total:         total,
		Status:        "PLACED",
		PaymentStatus: "UNPAID",
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	if _, err := s.db.Collection("order").InsertOne(ctx, order); err != nil {
		return nil, err
	}

	return &order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid order id: %v", err)
	}

	var order models.Order
	if err := s.db.Collection("order").FindOne(ctx, bson.M{"_id": objID}).Decode(&order); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("order not found")
		}
		return nil, err
	}

	return &order, nil
}

func (s *OrderService) OrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	cur, err := s.db.Collection("order").Find(
		ctx,
		bson.M{"user_id": userID},
		options.Find().SetSort(bson.M{"created_at": -1}),
	)
	if err != nil {
		return nil, err
	}

	var orders []models.Order
	defer cur.Close(ctx)

	if err := cur.All(ctx, &orders); err != nil {
		return nil, err
	}

	return orders, nil
}

// MarkOrdersPaid flips payment_status for the given orders when a collection
// settles, stamping the payment reference for traceability.
func (s *OrderService) MarkOrdersPaid(ctx context.Context, orderIDs []string, referenceID string) error {
	objIDs := make([]primitive.ObjectID, 0, len(orderIDs))
	for _, id := range orderIDs {
		objID, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			log.Printf("Skipping invalid order id %s: %v", id, err)
			continue
		}
		objIDs = append(objIDs, objID)
	}
	if len(objIDs) == 0 {
		return nil
	}

	_, err := s.db.Collection("order").UpdateMany(
		ctx,
		bson.M{"_id": bson.M{"$in": objIDs}},
		bson.M{"$set": bson.M{
			"payment_status": "PAID",
			"payment_ref":    referenceID,
			"updated_at":     time.Now(),
		}},
	)
	return err
}
