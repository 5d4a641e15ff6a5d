package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Payment is the bookkeeping record for one collection attempt.
type Payment struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ReferenceID string             `bson:"reference_id" json:"reference_id"`
	ExternalID  string             `bson:"external_id" json:"external_id"`
	OrderIDs    []string           `bson:"order_ids" json:"order_ids"`
	PayerNumber string             `bson:"payer_number" json:"payer_number"`
	Amount      float64            `bson:"amount" json:"amount"`
	Currency    string             `bson:"currency" json:"currency"`
	Status      string             `bson:"status" json:"status"` // e.g. "PENDING", "SUCCESSFUL", "FAILED"
	Reason      string             `bson:"reason" json:"reason"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}
