package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/agrilink/agrilink-gobackend/internal/models"
)

type ProductService struct {
	collection *mongo.Collection
}

func NewProductService(db *mongo.Database) *ProductService {
	return &ProductService{collection: db.Collection("product")}
}

func (s *ProductService) CreateProduct(ctx context.Context, product *models.Product) (string, error) {
	product.ID = primitive.NewObjectID()
	product.CreatedAt = time.Now()
	product.UpdatedAt = time.Now()

	result, err := s.collection.InsertOne(ctx, product)
	if err != nil {
		return "", err
	}

	return result.InsertedID.(primitive.ObjectID).Hex(), nil
}

// ProductList returns listings, optionally filtered by category.
func (s *ProductService) ProductList(ctx context.Context, category string) ([]models.Product, error) {
	query := bson.M{}
	if category != "" {
		query["category"] = category
	}

	cur, err := s.collection.Find(ctx, query, options.Find().SetSort(bson.M{"created_at": -1}))
	if err != nil {
		return nil, err
	}

	var products []models.Product
	defer cur.Close(ctx)

	if err := cur.All(ctx, &products); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *ProductService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid product id: %v", err)
	}

	var product models.Product
	if err := s.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&product); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("product not found")
		}
		return nil, err
	}

	return &product, nil
}

func (s *ProductService) UpdateProduct(ctx context.Context, id string, update bson.M) (*models.Product, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid product id: %v", err)
	}

	update["updated_at"] = time.Now()
	after := options.After
	var product models.Product
	err = s.collection.FindOneAndUpdate(
		ctx,
		bson.M{"_id": objID},
		bson.M{"$set": update},
		options.FindOneAndUpdate().SetReturnDocument(after),
	).Decode(&product)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("product not found")
		}
		return nil, err
	}

	return &product, nil
}

func (s *ProductService) DeleteProduct(ctx context.Context, id string) (string, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return "", fmt.Errorf("invalid product id: %v", err)
	}

	_, err = s.collection.DeleteOne(ctx, bson.M{"_id": objID})
	if err != nil {
		return "", err
	}

	return id, nil
}
