package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/agrilink/agrilink-gobackend/internal/models"
	"github.com/agrilink/agrilink-gobackend/internal/payment"
)

// PaymentService persists payment bookkeeping records and keeps linked orders
// in sync with settlement outcomes. It implements payment.Recorder.
type PaymentService struct {
	db       *mongo.Database
	currency string
}

func NewPaymentService(db *mongo.Database, currency string) *PaymentService {
	return &PaymentService{db: db, currency: currency}
}

// EnsureIndexes creates necessary indexes for the payments collection
func (s *PaymentService) EnsureIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{Keys: bson.M{"reference_id": 1}},
		{Keys: bson.M{"external_id": 1}},
		{Keys: bson.M{"status": 1, "created_at": -1}},
	}
	_, err := s.db.Collection("payments").Indexes().CreateMany(ctx, indexModels)
	if err != nil {
		log.Printf("Failed to create indexes: %v", err)
		return fmt.Errorf("failed to create indexes: %v", err)
	}
	return nil
}

// RecordInitiated inserts one PENDING payment document per initiated
// collection.
func (s *PaymentService) RecordInitiated(ctx context.Context, rec payment.PaymentRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	doc := models.Payment{
		ID:          primitive.NewObjectID(),
		ReferenceID: rec.ReferenceID,
		ExternalID:  rec.ExternalID,
		OrderIDs:    rec.OrderIDs,
		PayerNumber: rec.PayerNumber,
		Amount:      rec.Amount,
		Currency:    s.currency,
		Status:      "PENDING",
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	_, err := s.db.Collection("payments").InsertOne(ctx, doc)
	return err
}

// RecordStatus updates the payment document for the reference and reports
// whether the stored status changed. On the transition to a successful
// settlement it also marks the linked orders paid.
func (s *PaymentService) RecordStatus(ctx context.Context, referenceID, status, reason string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var prior models.Payment
	err := s.db.Collection("payments").FindOneAndUpdate(
		ctx,
		bson.M{"reference_id": referenceID},
		bson.M{"$set": bson.M{
			"status":     status,
			"reason":     reason,
			"updated_at": time.Now(),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&prior)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			log.Printf("No payment record for reference %s", referenceID)
			return false, nil
		}
		return false, err
	}

	changed := prior.Status != status
	if changed && status == "SUCCESSFUL" && len(prior.OrderIDs) > 0 {
		orders := NewOrderService(s.db)
		if err := orders.MarkOrdersPaid(ctx, prior.OrderIDs, referenceID); err != nil {
			log.Printf("Failed to mark orders paid for %s: %v", referenceID, err)
			return changed, err
		}
	}

	return changed, nil
}

// GetPaymentByReference retrieves a payment record by its collection reference.
func (s *PaymentService) GetPaymentByReference(ctx context.Context, referenceID string) (*models.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var doc models.Payment
	if err := s.db.Collection("payments").FindOne(ctx, bson.M{"reference_id": referenceID}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("payment not found")
		}
		return nil, fmt.Errorf("failed to fetch payment: %v", err)
	}

	return &doc, nil
}

// GetPayments retrieves payment records with optional status filtering.
func (s *PaymentService) GetPayments(ctx context.Context, statusFilter *string) ([]models.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := bson.M{}
	if statusFilter != nil && *statusFilter != "" {
		query["status"] = *statusFilter
	}

	cur, err := s.db.Collection("payments").Find(ctx, query, options.Find().SetSort(bson.M{"created_at": -1}))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payments: %v", err)
	}

	var payments []models.Payment
	defer cur.Close(ctx)
	if err := cur.All(ctx, &payments); err != nil {
		return nil, fmt.Errorf("failed to decode payments: %v", err)
	}

	return payments, nil
}
