package orders

import (
	"context"
	"sync"
)

type memReservation struct {
	productID string
	orderID   string
	quantity  int
	status    string
	granted   bool
}

// NewInMemoryReservationClient constructs an in-memory reservation client.
// Stock is unlimited until SetStock is called for a product.
func NewInMemoryReservationClient() *InMemoryReservationClient {
	return &InMemoryReservationClient{
		stock:        make(map[string]int),
		limited:      make(map[string]bool),
		reservations: make(map[string]*memReservation),
		releaseCalls: make(map[string]int),
	}
}

// InMemoryReservationClient tracks reservations in memory with per-key
// idempotency, matching the contract of the real capability.
type InMemoryReservationClient struct {
	mu           sync.Mutex
	stock        map[string]int
	limited      map[string]bool
	reservations map[string]*memReservation
	releaseCalls map[string]int
}

// SetStock makes a product stock-limited with the given quantity.
func (c *InMemoryReservationClient) SetStock(productID string, quantity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stock[productID] = quantity
	c.limited[productID] = true
}

func (c *InMemoryReservationClient) Reserve(ctx context.Context, req ReserveRequest) (ReserveResult, error) {
	if err := ctx.Err(); err != nil {
		return ReserveResult{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Idempotent replay: a repeated key returns the original outcome.
	if rec, ok := c.reservations[req.IdempotencyKey]; ok {
		if rec.granted {
			return ReserveResult{Granted: true}, nil
		}
		return ReserveResult{Granted: false, Reason: "insufficient stock"}, nil
	}

	if c.limited[req.ProductID] && c.stock[req.ProductID] < req.Quantity {
		c.reservations[req.IdempotencyKey] = &memReservation{
			productID: req.ProductID,
			orderID:   req.OrderID,
			quantity:  req.Quantity,
			status:    "REJECTED",
		}
		return ReserveResult{Granted: false, Reason: "insufficient stock"}, nil
	}

	if c.limited[req.ProductID] {
		c.stock[req.ProductID] -= req.Quantity
	}
	c.reservations[req.IdempotencyKey] = &memReservation{
		productID: req.ProductID,
		orderID:   req.OrderID,
		quantity:  req.Quantity,
		status:    "RESERVED",
		granted:   true,
	}
	return ReserveResult{Granted: true}, nil
}

func (c *InMemoryReservationClient) Release(ctx context.Context, idempotencyKey, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.releaseCalls[idempotencyKey]++

	rec, ok := c.reservations[idempotencyKey]
	if !ok || rec.status != "RESERVED" {
		// Releasing an unknown or already-released reservation is a no-op.
		return nil
	}
	rec.status = "RELEASED"
	if c.limited[rec.productID] {
		c.stock[rec.productID] += rec.quantity
	}
	return nil
}

func (c *InMemoryReservationClient) Ship(ctx context.Context, idempotencyKey, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.reservations[idempotencyKey]
	if !ok || rec.status != "RESERVED" {
		return nil
	}
	rec.status = "SHIPPED"
	return nil
}

// Stock returns the remaining stock for a product (for testing/inspection).
func (c *InMemoryReservationClient) Stock(productID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stock[productID]
}

// Status returns the reservation status for a key (for testing/inspection).
func (c *InMemoryReservationClient) Status(idempotencyKey string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.reservations[idempotencyKey]
	if !ok {
		return "", false
	}
	return rec.status, true
}

// ReleaseCalls returns how many Release calls a key has received.
func (c *InMemoryReservationClient) ReleaseCalls(idempotencyKey string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releaseCalls[idempotencyKey]
}

// ReservationCount returns the number of reservation records ever created.
func (c *InMemoryReservationClient) ReservationCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reservations)
}

// NewInMemoryPaymentClient constructs an in-memory payment client that
// approves every charge and replays outcomes per idempotency key.
func NewInMemoryPaymentClient() *InMemoryPaymentClient {
	return &InMemoryPaymentClient{
		charges: make(map[string]ChargeResult),
	}
}

// InMemoryPaymentClient tracks charges in memory.
type InMemoryPaymentClient struct {
	mu      sync.Mutex
	charges map[string]ChargeResult
}

func (c *InMemoryPaymentClient) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return ChargeResult{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if res, ok := c.charges[req.IdempotencyKey]; ok {
		return res, nil
	}

	res := ChargeResult{
		Approved:  true,
		PaymentID: "pay-" + req.OrderID,
	}
	c.charges[req.IdempotencyKey] = res
	return res, nil
}

// ChargeCount returns the number of distinct charges (for testing/inspection).
func (c *InMemoryPaymentClient) ChargeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.charges)
}

// WasCharged reports whether a charge exists for the key.
func (c *InMemoryPaymentClient) WasCharged(idempotencyKey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.charges[idempotencyKey]
	return ok
}
