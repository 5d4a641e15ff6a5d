package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/agrilink/agrilink-gobackend/internal/models"
	"github.com/agrilink/agrilink-gobackend/internal/services"
)

type OrderHandler struct {
	orderService *services.OrderService
}

func NewOrderHandler(orderService *services.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

// CreateOrder handles POST /api/order
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []models.OrderItem `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"Invalid request body"}`, http.StatusBadRequest)
		return
	}

	order, err := h.orderService.CreateOrder(r.Context(), UserIDFrom(r), req.Items)
	if err != nil {
		if strings.Contains(err.Error(), "not found") ||
			strings.Contains(err.Error(), "invalid") ||
			strings.Contains(err.Error(), "at least one item") ||
			strings.Contains(err.Error(), "insufficient stock") {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
			return
		}
		log.Printf("Failed to create order: %v", err)
		http.Error(w, `{"error":"Failed to create order"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(order)
}

// GetOrders handles GET /api/orders (orders of the authenticated user)
func (h *OrderHandler) GetOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orderService.OrdersByUser(r.Context(), UserIDFrom(r))
	if err != nil {
		log.Printf("Failed to fetch orders: %v", err)
		http.Error(w, `{"error":"Failed to fetch orders"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(&orders); err != nil {
		http.Error(w, `{"error":"Failed to encode response"}`, http.StatusInternalServerError)
	}
}

// GetOrder handles GET /api/order/{orderID}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["orderID"]

	order, err := h.orderService.GetOrder(r.Context(), orderID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") || strings.Contains(err.Error(), "invalid") {
			http.Error(w, `{"error":"order not found"}`, http.StatusNotFound)
			return
		}
		log.Printf("Failed to fetch order %s: %v", orderID, err)
		http.Error(w, `{"error":"Failed to fetch order"}`, http.StatusInternalServerError)
		return
	}

	if order.UserID != UserIDFrom(r) {
		http.Error(w, `{"error":"Unauthorized to view this order"}`, http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(order)
}
