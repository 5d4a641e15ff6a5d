package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/agrilink/agrilink-gobackend/internal/models"
)

type FavoriteService struct {
	collection *mongo.Collection
}

func NewFavoriteService(db *mongo.Database) *FavoriteService {
	return &FavoriteService{collection: db.Collection("favorite")}
}

// AddFavorite is idempotent: re-favoriting an already favorited product keeps
// the existing document.
func (s *FavoriteService) AddFavorite(ctx context.Context, userID, productID string) (string, error) {
	var existing models.Favorite
	err := s.collection.FindOne(ctx, bson.M{"user_id": userID, "product_id": productID}).Decode(&existing)
	if err == nil {
		return existing.ID.Hex(), nil
	}
	if err != mongo.ErrNoDocuments {
		return "", err
	}

	favorite := models.Favorite{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		ProductID: productID,
		CreatedAt: time.Now(),
	}
	if _, err := s.collection.InsertOne(ctx, favorite); err != nil {
		return "", err
	}

	return favorite.ID.Hex(), nil
}

func (s *FavoriteService) RemoveFavorite(ctx context.Context, userID, productID string) error {
	_, err := s.collection.DeleteOne(ctx, bson.M{"user_id": userID, "product_id": productID})
	return err
}

func (s *FavoriteService) FavoritesByUser(ctx context.Context, userID string) ([]models.Favorite, error) {
	cur, err := s.collection.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}

	var favorites []models.Favorite
	defer cur.Close(ctx)

	if err := cur.All(ctx, &favorites); err != nil {
		return nil, err
	}

	return favorites, nil
}
