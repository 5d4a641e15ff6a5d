package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User model
type User struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FullName    string             `bson:"fullname" json:"fullname"`
	Email       string             `bson:"email" json:"email"`
	PhoneNumber string             `bson:"phone_number" json:"phone_number"`
	Role        string             `bson:"role" json:"role"` // "customer" or "farmer"
	HPassword   string             `bson:"password" json:"-"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
}
