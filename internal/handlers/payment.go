package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/agrilink/agrilink-gobackend/internal/payment"
	"github.com/agrilink/agrilink-gobackend/internal/services"
)

// PaymentOrchestrator is the application-facing payment surface the handler
// exposes over HTTP.
type PaymentOrchestrator interface {
	Initiate(ctx context.Context, phoneNumber string, amount float64, orderIDs []string) (*payment.InitiateResult, error)
	CheckStatus(ctx context.Context, referenceID string) (*payment.StatusResult, error)
	HandleCallback(ctx context.Context, payload map[string]any) error
}

type PaymentHandler struct {
	orchestrator PaymentOrchestrator
}

func NewPaymentHandler(orchestrator PaymentOrchestrator) *PaymentHandler {
	return &PaymentHandler{orchestrator: orchestrator}
}

// InitiatePayment handles POST /api/payment/initiate
func (h *PaymentHandler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string   `json:"phoneNumber"`
		Amount      float64  `json:"amount"`
		OrderIDs    []string `json:"orderIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writePaymentError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.orchestrator.Initiate(r.Context(), req.PhoneNumber, req.Amount, req.OrderIDs)
	if err != nil {
		log.Printf("Failed to initiate payment: %v", err)
		writePaymentError(w, payment.HTTPStatus(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":     true,
		"message":     "Payment initiated. Approve the request on your phone.",
		"referenceId": res.ReferenceID,
		"externalId":  res.ExternalID,
		"orderIds":    res.OrderIDs,
	})
}

// GetPaymentStatus handles GET /api/payment/status/{referenceId}
func (h *PaymentHandler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	referenceID := mux.Vars(r)["referenceId"]

	res, err := h.orchestrator.CheckStatus(r.Context(), referenceID)
	if err != nil {
		log.Printf("Failed to check payment status for %s: %v", referenceID, err)
		writePaymentError(w, payment.HTTPStatus(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":       true,
		"referenceId":   res.ReferenceID,
		"paymentStatus": res.PaymentStatus,
		"amount":        res.Amount,
		"currency":      res.Currency,
		"reason":        res.Reason,
	})
}

// PaymentCallback handles POST /api/payment/callback (provider webhook, no auth)
func (h *PaymentHandler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		// Acknowledge regardless; the poll loop is the source of truth.
		payload = map[string]any{}
	}

	if err := h.orchestrator.HandleCallback(r.Context(), payload); err != nil {
		log.Printf("Callback processing failed: %v", err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}

// PaymentRecordsHandler exposes the persisted bookkeeping records.
type PaymentRecordsHandler struct {
	service *services.PaymentService
}

func NewPaymentRecordsHandler(service *services.PaymentService) *PaymentRecordsHandler {
	return &PaymentRecordsHandler{service: service}
}

// GetPayments handles GET /api/payments?status=SUCCESSFUL
func (h *PaymentRecordsHandler) GetPayments(w http.ResponseWriter, r *http.Request) {
	var statusFilter *string
	if v := r.URL.Query().Get("status"); v != "" {
		statusFilter = &v
	}

	payments, err := h.service.GetPayments(r.Context(), statusFilter)
	if err != nil {
		log.Printf("Failed to fetch payments: %v", err)
		http.Error(w, `{"error":"Failed to fetch payments"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payments)
}

// GetPayment handles GET /api/payments/{referenceId}
func (h *PaymentRecordsHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	referenceID := mux.Vars(r)["referenceId"]

	doc, err := h.service.GetPaymentByReference(r.Context(), referenceID)
	if err != nil {
		http.Error(w, `{"error":"Payment not found"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

func writePaymentError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": message,
	})
}
