package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"orderflow/internal/observability"
	"orderflow/internal/orders"
)

type ordersHandler struct {
	coordinator *orders.Coordinator
	metrics     *observability.Metrics
	logf        func(format string, args ...any)
}

type placeOrderItem struct {
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
}

type placeOrderBody struct {
	CustomerID     string           `json:"customer_id"`
	Items          []placeOrderItem `json:"items"`
	IdempotencyKey string           `json:"idempotency_key"`
}

type orderLineReply struct {
	ProductID string  `json:"product_id"`
	SKU       string  `json:"sku"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type orderReply struct {
	OrderID         string           `json:"order_id"`
	CustomerID      string           `json:"customer_id"`
	Status          string           `json:"status"`
	PaymentStatus   string           `json:"payment_status"`
	Subtotal        float64          `json:"subtotal"`
	Tax             float64          `json:"tax"`
	Shipping        float64          `json:"shipping"`
	Total           float64          `json:"total"`
	TotalsSignature string           `json:"totals_signature"`
	IdempotencyKey  string           `json:"idempotency_key"`
	CreatedAt       time.Time        `json:"created_at"`
	Items           []orderLineReply `json:"items,omitempty"`
	AlreadyExists   bool             `json:"already_exists,omitempty"`
}

type errorReply struct {
	Error string `json:"error"`
}

func toOrderReply(order orders.Order, lines []orders.OrderLine, alreadyExists bool) orderReply {
	reply := orderReply{
		OrderID:         order.ID,
		CustomerID:      order.CustomerID,
		Status:          string(order.Status),
		PaymentStatus:   string(order.PaymentStatus),
		Subtotal:        order.Subtotal,
		Tax:             order.Tax,
		Shipping:        order.Shipping,
		Total:           order.Total,
		TotalsSignature: order.TotalsSignature,
		IdempotencyKey:  order.IdempotencyKey,
		CreatedAt:       order.CreatedAt,
		AlreadyExists:   alreadyExists,
	}
	for _, line := range lines {
		reply.Items = append(reply.Items, orderLineReply{
			ProductID: line.ProductID,
			SKU:       line.SKU,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}
	return reply
}

func (h *ordersHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	span := h.metrics.Start("PlaceOrder")

	var body placeOrderBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		span.End(err)
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// The header wins over the body field when both are present.
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		key = body.IdempotencyKey
	}

	req := orders.PlaceOrderRequest{
		CustomerID:     body.CustomerID,
		IdempotencyKey: key,
	}
	for _, item := range body.Items {
		req.Items = append(req.Items, orders.ItemInput{
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Quantity:  item.Quantity,
		})
	}

	placed, err := h.coordinator.PlaceOrder(r.Context(), req)
	span.End(err)
	if err != nil {
		h.metrics.CountOutcome(outcomeFor(err))
		h.logf("http: place order for customer %s: %v", body.CustomerID, err)
		writeError(w, statusFor(err), err.Error())
		return
	}

	status := http.StatusCreated
	if placed.AlreadyExists {
		status = http.StatusOK
		h.metrics.CountOutcome("duplicate")
	} else {
		h.metrics.CountOutcome("confirmed")
	}
	writeJSON(w, status, toOrderReply(placed.Order, placed.Lines, placed.AlreadyExists))
}

func (h *ordersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	span := h.metrics.Start("GetOrder")
	orderID := chi.URLParam(r, "orderID")

	order, lines, err := h.coordinator.GetOrder(r.Context(), orderID)
	span.End(err)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toOrderReply(order, lines, false))
}

func (h *ordersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	span := h.metrics.Start("ListOrders")

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			span.End(err)
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	list, err := h.coordinator.ListRecent(r.Context(), limit)
	span.End(err)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	replies := make([]orderReply, 0, len(list))
	for _, order := range list {
		replies = append(replies, toOrderReply(order, nil, false))
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": replies})
}

func (h *ordersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	span := h.metrics.Start("CancelOrder")
	orderID := chi.URLParam(r, "orderID")

	order, err := h.coordinator.CancelOrder(r.Context(), orderID)
	span.End(err)
	if err != nil {
		h.logf("http: cancel order %s: %v", orderID, err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	h.metrics.CountOutcome("cancelled")
	writeJSON(w, http.StatusOK, toOrderReply(order, nil, false))
}

func (h *ordersHandler) shipOrder(w http.ResponseWriter, r *http.Request) {
	span := h.metrics.Start("ShipOrder")
	orderID := chi.URLParam(r, "orderID")

	order, err := h.coordinator.MarkShipped(r.Context(), orderID)
	span.End(err)
	if err != nil {
		h.logf("http: ship order %s: %v", orderID, err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	h.metrics.CountOutcome("shipped")
	writeJSON(w, http.StatusOK, toOrderReply(order, nil, false))
}

// statusFor maps saga errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, orders.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, orders.ErrCapacityConflict):
		return http.StatusConflict
	case errors.Is(err, orders.ErrPaymentDeclined):
		return http.StatusPaymentRequired
	case errors.Is(err, orders.ErrCollaboratorUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, orders.ErrCancellationNotAllowed),
		errors.Is(err, orders.ErrShipmentNotAllowed):
		return http.StatusConflict
	case errors.Is(err, orders.ErrOrderNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, orders.ErrValidation):
		return "validation_rejected"
	case errors.Is(err, orders.ErrCapacityConflict):
		return "capacity_conflict"
	case errors.Is(err, orders.ErrPaymentDeclined):
		return "payment_declined"
	case errors.Is(err, orders.ErrCollaboratorUnavailable):
		return "collaborator_unavailable"
	case errors.Is(err, orders.ErrPersistenceFailure):
		return "persistence_failure"
	default:
		return "error"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorReply{Error: msg})
}
