package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	kafkago "github.com/segmentio/kafka-go"

	"orderflow/internal/orders"
)

func sampleEvent() orders.OrderEvent {
	return orders.OrderEvent{
		OrderID:    "o1",
		CustomerID: "cust-1",
		Status:     orders.StatusConfirmed,
		Total:      104.4685,
		Lines: []orders.OrderLine{
			{OrderID: "o1", ProductID: "p1", SKU: "SKU-1", Quantity: 3, UnitPrice: 29.99},
		},
	}
}

func TestHTTPDispatcher_OrderConfirmed(t *testing.T) {
	var got notificationBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/notifications" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := &HTTPDispatcher{
		NotificationURL: srv.URL,
		Client:          srv.Client(),
		Logf:            func(string, ...any) {},
	}
	d.OrderConfirmed(context.Background(), sampleEvent())

	if got.Type != "ORDER_CONFIRMED" || got.OrderID != "o1" || got.CustomerID != "cust-1" {
		t.Fatalf("unexpected notification: %+v", got)
	}
}

func TestHTTPDispatcher_ShipmentRequested(t *testing.T) {
	var got shipmentBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/shipments" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := &HTTPDispatcher{
		ShipmentURL: srv.URL,
		Client:      srv.Client(),
		Logf:        func(string, ...any) {},
	}
	d.ShipmentRequested(context.Background(), sampleEvent())

	if got.OrderID != "o1" || len(got.Items) != 1 || got.Items[0].ProductID != "p1" {
		t.Fatalf("unexpected shipment request: %+v", got)
	}
}

func TestHTTPDispatcher_SwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	logged := 0
	d := &HTTPDispatcher{
		NotificationURL: srv.URL,
		Client:          srv.Client(),
		Logf:            func(string, ...any) { logged++ },
	}

	// Neither the error response nor an unreachable target may panic or
	// propagate; both only log.
	d.OrderConfirmed(context.Background(), sampleEvent())
	d.NotificationURL = "http://127.0.0.1:1"
	d.OrderConfirmed(context.Background(), sampleEvent())

	if logged != 2 {
		t.Fatalf("expected 2 logged failures, got %d", logged)
	}
}

func TestHTTPDispatcher_SkipsUnconfiguredTargets(t *testing.T) {
	d := &HTTPDispatcher{Logf: func(string, ...any) { t.Fatalf("nothing should be logged") }}
	d.OrderConfirmed(context.Background(), sampleEvent())
	d.ShipmentRequested(context.Background(), sampleEvent())
}

type capturingPublisher struct {
	mu      sync.Mutex
	keys    []string
	values  [][]byte
	headers [][]kafkago.Header
}

func (p *capturingPublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, string(key))
	p.values = append(p.values, value)
	p.headers = append(p.headers, headers)
}

func TestKafkaDispatcher_PublishesEnvelopedEvents(t *testing.T) {
	pub := &capturingPublisher{}
	d := &KafkaDispatcher{
		Producer: pub,
		Service:  "orderflow-test",
		Logf:     func(string, ...any) {},
	}

	d.OrderConfirmed(context.Background(), sampleEvent())
	d.ShipmentRequested(context.Background(), sampleEvent())

	if len(pub.values) != 2 {
		t.Fatalf("expected 2 published events, got %d", len(pub.values))
	}
	if pub.keys[0] != "o1" {
		t.Fatalf("events must be keyed by order id, got %q", pub.keys[0])
	}

	var env Envelope
	if err := json.Unmarshal(pub.values[0], &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.EventType != EventOrderConfirmed || env.EventVersion != 1 {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if env.Producer != "orderflow-test" || env.CorrelationID != "o1" {
		t.Fatalf("unexpected envelope metadata: %+v", env)
	}
	if env.EventID == "" {
		t.Fatalf("expected a generated event id")
	}

	var payload OrderEventPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderID != "o1" || payload.Total != 104.4685 || len(payload.Items) != 1 {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	foundType := false
	for _, h := range pub.headers[1] {
		if h.Key == "x-event-type" && string(h.Value) == EventShipmentRequested {
			foundType = true
		}
	}
	if !foundType {
		t.Fatalf("expected event type header on shipment event")
	}
}

type countingDispatcher struct {
	confirmed int
	shipments int
}

func (d *countingDispatcher) OrderConfirmed(ctx context.Context, ev orders.OrderEvent) { d.confirmed++ }
func (d *countingDispatcher) ShipmentRequested(ctx context.Context, ev orders.OrderEvent) {
	d.shipments++
}

func TestMultiDispatcher_FansOut(t *testing.T) {
	first := &countingDispatcher{}
	second := &countingDispatcher{}
	multi := MultiDispatcher{first, second}

	multi.OrderConfirmed(context.Background(), sampleEvent())
	multi.ShipmentRequested(context.Background(), sampleEvent())

	for i, d := range []*countingDispatcher{first, second} {
		if d.confirmed != 1 || d.shipments != 1 {
			t.Fatalf("sink %d missed events: %+v", i, d)
		}
	}
}
