package inventory

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the reservation capability over HTTP.
type Handler struct {
	Service *Service
}

// Register mounts the inventory routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/inventory/reserve", h.reserve)
	r.Post("/inventory/release", h.release)
	r.Post("/inventory/ship", h.ship)
	r.Get("/inventory/availability/{productID}", h.availability)
	r.Post("/inventory/stock", h.setStock)
	r.Post("/inventory/seed", h.seed)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type reserveRequest struct {
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	IdempotencyKey string `json:"idempotency_key"`
	OrderID        string `json:"order_id"`
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid json"})
		return
	}
	if req.ProductID == "" || req.IdempotencyKey == "" || req.Quantity <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "product_id, quantity and idempotency_key are required"})
		return
	}

	granted, err := h.Service.Reserve(r.Context(), ReserveRequest{
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
		IdempotencyKey: req.IdempotencyKey,
		OrderID:        req.OrderID,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": err.Error()})
		return
	}
	if !granted {
		writeJSON(w, http.StatusConflict, map[string]string{"reason": "insufficient stock"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"granted":         true,
		"idempotency_key": req.IdempotencyKey,
		"order_id":        req.OrderID,
	})
}

type releaseRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	OrderID        string `json:"order_id"`
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid json"})
		return
	}
	if req.IdempotencyKey == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "idempotency_key is required"})
		return
	}

	status, err := h.Service.Release(r.Context(), req.IdempotencyKey)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (h *Handler) ship(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid json"})
		return
	}
	if req.IdempotencyKey == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "idempotency_key is required"})
		return
	}

	status, err := h.Service.Ship(r.Context(), req.IdempotencyKey)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	available, err := h.Service.Availability(r.Context(), productID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"product_id": productID,
		"available":  available,
	})
}

type stockRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) setStock(w http.ResponseWriter, r *http.Request) {
	var req stockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid json"})
		return
	}
	if req.ProductID == "" || req.Quantity < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "product_id and a non-negative quantity are required"})
		return
	}

	if err := h.Service.SetStock(r.Context(), req.ProductID, req.Quantity); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"product_id": req.ProductID,
		"available":  req.Quantity,
	})
}

func (h *Handler) seed(w http.ResponseWriter, r *http.Request) {
	loaded, err := h.Service.SeedCSV(r.Context(), r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"loaded": loaded})
}
