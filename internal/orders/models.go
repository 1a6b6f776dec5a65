package orders

import (
	"context"
	"time"
)

// OrderStatus is the lifecycle state of a persisted order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusConfirmed OrderStatus = "CONFIRMED"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusShipped   OrderStatus = "SHIPPED"
	StatusDelivered OrderStatus = "DELIVERED"
)

// PaymentStatus records the outcome of the charge step.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "UNPAID"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentDeclined PaymentStatus = "DECLINED"
)

// Order is the durable record of a confirmed purchase. Immutable once
// CONFIRMED except for the status transitions allowed by CanTransition.
type Order struct {
	ID              string
	CustomerID      string
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	Subtotal        float64
	Tax             float64
	Shipping        float64
	Total           float64
	TotalsSignature string
	IdempotencyKey  string
	CreatedAt       time.Time
}

// OrderLine belongs to exactly one order and is created atomically with it.
type OrderLine struct {
	OrderID   string
	ProductID string
	SKU       string
	Quantity  int
	UnitPrice float64
}

// OrderStore persists orders and enforces the idempotency-key uniqueness
// constraint that makes duplicate submissions race-safe.
type OrderStore interface {
	// FindByIdempotencyKey returns the order owning the key, if any.
	FindByIdempotencyKey(ctx context.Context, key string) (Order, []OrderLine, bool, error)

	// CreateConfirmed atomically inserts the order and its lines. When the
	// idempotency key already belongs to another order, the stored winner is
	// returned instead and created is false.
	CreateConfirmed(ctx context.Context, order Order, lines []OrderLine) (Order, []OrderLine, bool, error)

	GetOrder(ctx context.Context, orderID string) (Order, []OrderLine, error)
	ListRecent(ctx context.Context, limit int) ([]Order, error)
	UpdateStatus(ctx context.Context, orderID string, status OrderStatus) error
}
