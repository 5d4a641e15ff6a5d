package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/agrilink/agrilink-gobackend/internal/services"
)

type FavoriteHandler struct {
	favoriteService *services.FavoriteService
}

func NewFavoriteHandler(favoriteService *services.FavoriteService) *FavoriteHandler {
	return &FavoriteHandler{favoriteService: favoriteService}
}

// AddFavorite handles POST /api/favorite
func (h *FavoriteHandler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"product_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"Invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.ProductID == "" {
		http.Error(w, `{"error":"product_id is required"}`, http.StatusBadRequest)
		return
	}

	id, err := h.favoriteService.AddFavorite(r.Context(), UserIDFrom(r), req.ProductID)
	if err != nil {
		log.Printf("Failed to add favorite: %v", err)
		http.Error(w, `{"error":"Failed to add favorite"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"id": id})
}

// RemoveFavorite handles DELETE /api/favorite/{productID}
func (h *FavoriteHandler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	productID := mux.Vars(r)["productID"]

	if err := h.favoriteService.RemoveFavorite(r.Context(), UserIDFrom(r), productID); err != nil {
		log.Printf("Failed to remove favorite %s: %v", productID, err)
		http.Error(w, `{"error":"Failed to remove favorite"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"removed": productID})
}

// GetFavorites handles GET /api/favorites
func (h *FavoriteHandler) GetFavorites(w http.ResponseWriter, r *http.Request) {
	favorites, err := h.favoriteService.FavoritesByUser(r.Context(), UserIDFrom(r))
	if err != nil {
		log.Printf("Failed to fetch favorites: %v", err)
		http.Error(w, `{"error":"Failed to fetch favorites"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(&favorites); err != nil {
		http.Error(w, `{"error":"Failed to encode response"}`, http.StatusInternalServerError)
	}
}
