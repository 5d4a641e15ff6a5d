package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Product represents a produce listing in the MongoDB database
type Product struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FarmerID    string             `bson:"farmer_id" json:"farmer_id"`
	Name        string             `bson:"name" json:"name"`
	Category    string             `bson:"category" json:"category"`
	Description string             `bson:"description" json:"description"`
	Price       float64            `bson:"price" json:"price"`
	Unit        string             `bson:"unit" json:"unit"` // e.g. "kg", "bunch", "crate"
	Stock       int                `bson:"stock" json:"stock"`
	ImageURL    string             `bson:"image_url" json:"image_url"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}
