package orders

import "context"

// ReserveRequest asks the reservation capability to hold stock for one line.
// IdempotencyKey is derived per item; a repeated Reserve with the same key
// must return the original outcome without double-decrementing stock.
type ReserveRequest struct {
	ProductID      string
	SKU            string
	Quantity       int
	IdempotencyKey string
	OrderID        string
}

// ReserveResult distinguishes a grant from a stock denial. Transport and
// timeout failures travel on the error return instead.
type ReserveResult struct {
	Granted bool
	Reason  string
}

// ReservationClient is the consumed interface of the reservation capability.
// All three operations are idempotent per key.
type ReservationClient interface {
	Reserve(ctx context.Context, req ReserveRequest) (ReserveResult, error)
	Release(ctx context.Context, idempotencyKey, orderID string) error
	Ship(ctx context.Context, idempotencyKey, orderID string) error
}

// ChargeRequest is the single aggregate charge for an order.
type ChargeRequest struct {
	OrderID        string
	Amount         float64
	CustomerID     string
	IdempotencyKey string
}

// ChargeResult carries the gateway decision. Declines are results, not errors.
type ChargeResult struct {
	Approved  bool
	PaymentID string
	Reason    string
}

// PaymentClient is the consumed interface of the payment capability,
// idempotent per key: a retried charge returns the original outcome.
type PaymentClient interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

// Pricer resolves the unit price for an order line.
type Pricer interface {
	UnitPrice(ctx context.Context, productID, sku string) (float64, error)
}

// FixedPricer prices every product at the same unit price.
type FixedPricer struct {
	Price float64
}

func (p FixedPricer) UnitPrice(ctx context.Context, productID, sku string) (float64, error) {
	return p.Price, nil
}

// OrderEvent is the payload handed to non-critical dispatchers after commit.
type OrderEvent struct {
	OrderID    string
	CustomerID string
	Status     OrderStatus
	Total      float64
	Lines      []OrderLine
}

// Dispatcher receives best-effort post-commit side effects. The methods have
// no error return: dispatch failures are logged by implementations and can
// never reach the saga result.
type Dispatcher interface {
	OrderConfirmed(ctx context.Context, ev OrderEvent)
	ShipmentRequested(ctx context.Context, ev OrderEvent)
}

// NopDispatcher discards every event.
type NopDispatcher struct{}

func (NopDispatcher) OrderConfirmed(ctx context.Context, ev OrderEvent)    {}
func (NopDispatcher) ShipmentRequested(ctx context.Context, ev OrderEvent) {}
