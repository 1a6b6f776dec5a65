// Package dispatch holds the non-critical post-commit side effects of the
// order saga: notification and shipment requests, event publication, and
// realtime fanout. Every implementation swallows and logs its own failures;
// none of them can alter a saga outcome.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"orderflow/internal/orders"
	"orderflow/internal/realtime"
)

// Event types published on the order events topic.
const (
	EventOrderConfirmed    = "OrderConfirmed"
	EventShipmentRequested = "ShipmentRequested"
)

// TopicOrderEvents carries all order lifecycle events, partitioned by order
// id so per-order ordering is preserved.
const TopicOrderEvents = "order.events"

// Envelope is the versioned wrapper around every published event.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type eventLine struct {
	ProductID string  `json:"product_id"`
	SKU       string  `json:"sku"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// OrderEventPayload is the payload for both order event types.
type OrderEventPayload struct {
	OrderID    string      `json:"order_id"`
	CustomerID string      `json:"customer_id"`
	Status     string      `json:"status"`
	Total      float64     `json:"total"`
	Items      []eventLine `json:"items"`
}

func toPayload(ev orders.OrderEvent) OrderEventPayload {
	items := make([]eventLine, 0, len(ev.Lines))
	for _, line := range ev.Lines {
		items = append(items, eventLine{
			ProductID: line.ProductID,
			SKU:       line.SKU,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}
	return OrderEventPayload{
		OrderID:    ev.OrderID,
		CustomerID: ev.CustomerID,
		Status:     string(ev.Status),
		Total:      ev.Total,
		Items:      items,
	}
}

// HTTPDispatcher posts notifications and shipment requests to their
// services. Both calls are single-attempt with a short timeout.
type HTTPDispatcher struct {
	NotificationURL string
	ShipmentURL     string
	Client          *http.Client
	Logf            func(format string, args ...any)
}

type notificationBody struct {
	Type       string `json:"type"`
	CustomerID string `json:"customer_id"`
	OrderID    string `json:"order_id"`
	Message    string `json:"message"`
}

type shipmentBody struct {
	OrderID    string      `json:"order_id"`
	CustomerID string      `json:"customer_id"`
	Items      []eventLine `json:"items"`
}

func (d *HTTPDispatcher) OrderConfirmed(ctx context.Context, ev orders.OrderEvent) {
	if d.NotificationURL == "" {
		return
	}
	body := notificationBody{
		Type:       "ORDER_CONFIRMED",
		CustomerID: ev.CustomerID,
		OrderID:    ev.OrderID,
		Message:    fmt.Sprintf("Your order %s has been confirmed and payment processed successfully.", ev.OrderID),
	}
	d.post(ctx, d.NotificationURL+"/notifications", body, ev.OrderID)
}

func (d *HTTPDispatcher) ShipmentRequested(ctx context.Context, ev orders.OrderEvent) {
	if d.ShipmentURL == "" {
		return
	}
	body := shipmentBody{
		OrderID:    ev.OrderID,
		CustomerID: ev.CustomerID,
		Items:      toPayload(ev).Items,
	}
	d.post(ctx, d.ShipmentURL+"/shipments", body, ev.OrderID)
}

func (d *HTTPDispatcher) post(ctx context.Context, url string, body any, orderID string) {
	logf := d.Logf
	if logf == nil {
		logf = log.Printf
	}
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}

	payload, err := json.Marshal(body)
	if err != nil {
		logf("dispatch: marshal for order %s: %v", orderID, err)
		return
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		logf("dispatch: build request for order %s: %v", orderID, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		logf("dispatch: post %s for order %s: %v", url, orderID, err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		logf("dispatch: post %s for order %s: status %d", url, orderID, resp.StatusCode)
	}
}

// Publisher is the queue surface KafkaDispatcher writes to.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// KafkaDispatcher publishes order events on the events topic.
type KafkaDispatcher struct {
	Producer Publisher
	Service  string
	Logf     func(format string, args ...any)
}

func (d *KafkaDispatcher) OrderConfirmed(ctx context.Context, ev orders.OrderEvent) {
	d.publish(EventOrderConfirmed, ev)
}

func (d *KafkaDispatcher) ShipmentRequested(ctx context.Context, ev orders.OrderEvent) {
	d.publish(EventShipmentRequested, ev)
}

func (d *KafkaDispatcher) publish(eventType string, ev orders.OrderEvent) {
	logf := d.Logf
	if logf == nil {
		logf = log.Printf
	}

	payload, err := json.Marshal(toPayload(ev))
	if err != nil {
		logf("dispatch: marshal %s payload: %v", eventType, err)
		return
	}
	value, err := json.Marshal(Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      d.Service,
		CorrelationID: ev.OrderID,
		Payload:       payload,
	})
	if err != nil {
		logf("dispatch: marshal %s envelope: %v", eventType, err)
		return
	}

	d.Producer.Publish([]byte(ev.OrderID), value,
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

// HubDispatcher mirrors order events onto the websocket hub.
type HubDispatcher struct {
	Hub *realtime.Hub
}

func (d *HubDispatcher) OrderConfirmed(ctx context.Context, ev orders.OrderEvent) {
	d.Hub.BroadcastOrder(ev)
}

func (d *HubDispatcher) ShipmentRequested(ctx context.Context, ev orders.OrderEvent) {
	// Shipment requests are internal; subscribers only see status changes.
}

// MultiDispatcher fans each event out to every configured sink.
type MultiDispatcher []orders.Dispatcher

func (m MultiDispatcher) OrderConfirmed(ctx context.Context, ev orders.OrderEvent) {
	for _, d := range m {
		d.OrderConfirmed(ctx, ev)
	}
}

func (m MultiDispatcher) ShipmentRequested(ctx context.Context, ev orders.OrderEvent) {
	for _, d := range m {
		d.ShipmentRequested(ctx, ev)
	}
}
