package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/agrilink/agrilink-gobackend/internal/models"
	"github.com/agrilink/agrilink-gobackend/internal/services"
)

// ProductHandler handles HTTP requests for produce listings
type ProductHandler struct {
	productService *services.ProductService
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(productService *services.ProductService) *ProductHandler {
	return &ProductHandler{productService: productService}
}

// CreateProduct handles POST /api/product
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var product models.Product
	if err := json.NewDecoder(r.Body).Decode(&product); err != nil {
		http.Error(w, `{"error":"Invalid request body"}`, http.StatusBadRequest)
		return
	}
	if product.Name == "" || product.Price <= 0 {
		http.Error(w, `{"error":"name and a positive price are required"}`, http.StatusBadRequest)
		return
	}

	product.FarmerID = UserIDFrom(r)
	id, err := h.productService.CreateProduct(r.Context(), &product)
	if err != nil {
		log.Printf("Failed to create product: %v", err)
		http.Error(w, `{"error":"Failed to create product"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"id": id})
}

// GetProducts handles GET /api/products
func (h *ProductHandler) GetProducts(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")

	products, err := h.productService.ProductList(r.Context(), category)
	if err != nil {
		log.Printf("Failed to fetch products: %v", err)
		http.Error(w, `{"error":"Failed to fetch products"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(&products); err != nil {
		http.Error(w, `{"error":"Failed to encode response"}`, http.StatusInternalServerError)
	}
}

// GetProduct handles GET /api/product/{productID}
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	productID := mux.Vars(r)["productID"]

	product, err := h.productService.GetProduct(r.Context(), productID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") || strings.Contains(err.Error(), "invalid") {
			http.Error(w, `{"error":"product not found"}`, http.StatusNotFound)
			return
		}
		log.Printf("Failed to fetch product %s: %v", productID, err)
		http.Error(w, `{"error":"Failed to fetch product"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(product)
}

// UpdateProduct handles PATCH /api/product/{productID}
func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	productID := mux.Vars(r)["productID"]

	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"Invalid request body"}`, http.StatusBadRequest)
		return
	}

	update := bson.M{}
	for _, field := range []string{"name", "category", "description", "price", "unit", "stock", "image_url"} {
		if v, ok := req[field]; ok {
			update[field] = v
		}
	}
	if len(update) == 0 {
		http.Error(w, `{"error":"no updatable fields supplied"}`, http.StatusBadRequest)
		return
	}

	product, err := h.productService.UpdateProduct(r.Context(), productID, update)
	if err != nil {
		if strings.Contains(err.Error(), "not found") || strings.Contains(err.Error(), "invalid") {
			http.Error(w, `{"error":"product not found"}`, http.StatusNotFound)
			return
		}
		log.Printf("Failed to update product %s: %v", productID, err)
		http.Error(w, `{"error":"Failed to update product"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(product)
}

// DeleteProduct handles DELETE /api/product/{productID}
func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	productID := mux.Vars(r)["productID"]

	id, err := h.productService.DeleteProduct(r.Context(), productID)
	if err != nil {
		log.Printf("Failed to delete product %s: %v", productID, err)
		http.Error(w, `{"error":"Failed to delete product"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"deleted": id})
}
