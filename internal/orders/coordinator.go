package orders

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// ItemInput is one requested order line.
type ItemInput struct {
	ProductID string
	SKU       string
	Quantity  int
}

// PlaceOrderRequest is one logical order submission. An empty IdempotencyKey
// is replaced by a generated one, making the request its own dedup scope.
type PlaceOrderRequest struct {
	CustomerID     string
	Items          []ItemInput
	IdempotencyKey string
}

// PlacedOrder is the saga outcome. AlreadyExists marks a duplicate
// submission that was answered from the store without re-running any step.
type PlacedOrder struct {
	Order         Order
	Lines         []OrderLine
	AlreadyExists bool
}

// CoordinatorConfig wires the coordinator's collaborators. Store,
// Reservations, and Payments are required; the rest default sensibly.
type CoordinatorConfig struct {
	Store        OrderStore
	Reservations ReservationClient
	Payments     PaymentClient
	Pricer       Pricer
	Dispatcher   Dispatcher

	// CallTimeout bounds every collaborator call. A timeout is treated the
	// same as a hard collaborator error.
	CallTimeout time.Duration

	NewOrderID        func() string
	NewIdempotencyKey func() string
	Now               func() time.Time
	Logf              func(format string, args ...any)
}

// Coordinator drives the order-placement saga: dedup, per-item reservation,
// totals, payment, atomic commit, best-effort dispatch, and compensation on
// any pre-commit failure.
type Coordinator struct {
	store        OrderStore
	reservations ReservationClient
	payments     PaymentClient
	pricer       Pricer
	dispatcher   Dispatcher
	callTimeout  time.Duration
	newOrderID   func() string
	newIdemKey   func() string
	now          func() time.Time
	logf         func(format string, args ...any)
}

// NewCoordinator constructs a Coordinator from its config.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("coordinator: store is required")
	}
	if cfg.Reservations == nil {
		return nil, fmt.Errorf("coordinator: reservation client is required")
	}
	if cfg.Payments == nil {
		return nil, fmt.Errorf("coordinator: payment client is required")
	}

	c := &Coordinator{
		store:        cfg.Store,
		reservations: cfg.Reservations,
		payments:     cfg.Payments,
		pricer:       cfg.Pricer,
		dispatcher:   cfg.Dispatcher,
		callTimeout:  cfg.CallTimeout,
		newOrderID:   cfg.NewOrderID,
		newIdemKey:   cfg.NewIdempotencyKey,
		now:          cfg.Now,
		logf:         cfg.Logf,
	}
	if c.pricer == nil {
		c.pricer = FixedPricer{Price: 29.99}
	}
	if c.dispatcher == nil {
		c.dispatcher = NopDispatcher{}
	}
	if c.callTimeout <= 0 {
		c.callTimeout = 10 * time.Second
	}
	if c.newOrderID == nil {
		c.newOrderID = uuid.NewString
	}
	if c.newIdemKey == nil {
		c.newIdemKey = uuid.NewString
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logf == nil {
		c.logf = log.Printf
	}
	return c, nil
}

// reservationKey derives the per-item idempotency key.
func reservationKey(idempotencyKey, productID string) string {
	return idempotencyKey + "_" + productID
}

// paymentKey derives the charge idempotency key.
func paymentKey(idempotencyKey string) string {
	return "payment_" + idempotencyKey
}

type grantedReservation struct {
	key     string
	orderID string
}

// PlaceOrder executes the saga for one logical request.
func (c *Coordinator) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (PlacedOrder, error) {
	if err := validatePlaceOrder(req); err != nil {
		return PlacedOrder{}, err
	}

	key := req.IdempotencyKey
	if key == "" {
		key = c.newIdemKey()
	}

	// Dedup before doing any work. The store's uniqueness constraint at
	// commit time closes the race this read alone would leave open.
	if existing, lines, found, err := c.store.FindByIdempotencyKey(ctx, key); err != nil {
		return PlacedOrder{}, fmt.Errorf("idempotency lookup: %w: %w", ErrPersistenceFailure, err)
	} else if found {
		return PlacedOrder{Order: existing, Lines: lines, AlreadyExists: true}, nil
	}

	state := SagaInit
	orderID := c.newOrderID()

	// Reservation phase: sequential, single attempt per item, fail-fast to
	// compensation so items past the first failure are never reserved.
	c.advance(&state, SagaReserving)
	var granted []grantedReservation
	lines := make([]OrderLine, 0, len(req.Items))
	for _, item := range req.Items {
		itemKey := reservationKey(key, item.ProductID)

		res, err := c.reserveOne(ctx, item, itemKey, orderID)
		if err != nil {
			c.compensate(ctx, &state, granted)
			return PlacedOrder{}, fmt.Errorf("reserve product %s: %w: %w", item.ProductID, ErrCollaboratorUnavailable, err)
		}
		if !res.Granted {
			c.compensate(ctx, &state, granted)
			return PlacedOrder{}, fmt.Errorf("product %s: %w", item.ProductID, ErrCapacityConflict)
		}
		granted = append(granted, grantedReservation{key: itemKey, orderID: orderID})

		price, err := c.pricer.UnitPrice(ctx, item.ProductID, item.SKU)
		if err != nil {
			c.compensate(ctx, &state, granted)
			return PlacedOrder{}, fmt.Errorf("price product %s: %w: %w", item.ProductID, ErrCollaboratorUnavailable, err)
		}
		lines = append(lines, OrderLine{
			OrderID:   orderID,
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Quantity:  item.Quantity,
			UnitPrice: price,
		})
	}
	c.advance(&state, SagaReserved)

	totals := ComputeTotals(lines)

	// Payment phase: one aggregate charge, idempotent per derived key.
	c.advance(&state, SagaPaying)
	charge, err := c.chargeOnce(ctx, ChargeRequest{
		OrderID:        orderID,
		Amount:         totals.Total,
		CustomerID:     req.CustomerID,
		IdempotencyKey: paymentKey(key),
	})
	if err != nil {
		c.compensate(ctx, &state, granted)
		return PlacedOrder{}, fmt.Errorf("charge order %s: %w: %w", orderID, ErrCollaboratorUnavailable, err)
	}
	if !charge.Approved {
		c.compensate(ctx, &state, granted)
		return PlacedOrder{}, fmt.Errorf("order %s: %s: %w", orderID, charge.Reason, ErrPaymentDeclined)
	}
	c.advance(&state, SagaPaid)

	order := Order{
		ID:              orderID,
		CustomerID:      req.CustomerID,
		Status:          StatusConfirmed,
		PaymentStatus:   PaymentPaid,
		Subtotal:        totals.Subtotal,
		Tax:             totals.Tax,
		Shipping:        totals.Shipping,
		Total:           totals.Total,
		TotalsSignature: totals.Signature(),
		IdempotencyKey:  key,
		CreatedAt:       c.now(),
	}

	// Commit phase: the single point past which the request is durable.
	// Payment is deliberately not reversed if this write fails; the charge
	// stays dangling for out-of-band reconciliation.
	c.advance(&state, SagaCommitting)
	persisted, persistedLines, created, err := c.store.CreateConfirmed(ctx, order, lines)
	if err != nil {
		c.logf("orders: commit failed after payment %s for order %s, charge needs reconciliation: %v", charge.PaymentID, orderID, err)
		return PlacedOrder{}, fmt.Errorf("commit order %s: %w: %w", orderID, ErrPersistenceFailure, err)
	}
	if !created {
		// A concurrent duplicate won the uniqueness constraint. Our
		// reservations and charge used the same derived keys, so the
		// winner already owns those side effects.
		c.logf("orders: duplicate submission for key %s resolved to order %s", key, persisted.ID)
		return PlacedOrder{Order: persisted, Lines: persistedLines, AlreadyExists: true}, nil
	}
	c.advance(&state, SagaConfirmed)

	// Post-commit side effects are best-effort by construction: the
	// dispatcher interface cannot return an error.
	ev := OrderEvent{
		OrderID:    persisted.ID,
		CustomerID: persisted.CustomerID,
		Status:     persisted.Status,
		Total:      persisted.Total,
		Lines:      persistedLines,
	}
	c.dispatcher.OrderConfirmed(ctx, ev)
	c.dispatcher.ShipmentRequested(ctx, ev)

	return PlacedOrder{Order: persisted, Lines: persistedLines}, nil
}

// GetOrder looks an order up by id.
func (c *Coordinator) GetOrder(ctx context.Context, orderID string) (Order, []OrderLine, error) {
	return c.store.GetOrder(ctx, orderID)
}

// ListRecent returns the newest orders, capped at limit.
func (c *Coordinator) ListRecent(ctx context.Context, limit int) ([]Order, error) {
	return c.store.ListRecent(ctx, limit)
}

// CancelOrder releases the order's reservations and marks it CANCELLED.
// Terminal and shipped orders cannot be cancelled.
func (c *Coordinator) CancelOrder(ctx context.Context, orderID string) (Order, error) {
	order, lines, err := c.store.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}

	switch order.Status {
	case StatusCancelled, StatusShipped, StatusDelivered:
		return Order{}, fmt.Errorf("order %s has status %s: %w", orderID, order.Status, ErrCancellationNotAllowed)
	}

	// Best-effort release; the capability's TTL is the backstop for any
	// failure we swallow here.
	for _, line := range lines {
		itemKey := reservationKey(order.IdempotencyKey, line.ProductID)
		if err := c.releaseOne(ctx, itemKey, orderID); err != nil {
			c.logf("orders: release %s during cancel of %s: %v", itemKey, orderID, err)
		}
	}

	if err := c.store.UpdateStatus(ctx, orderID, StatusCancelled); err != nil {
		return Order{}, fmt.Errorf("cancel order %s: %w: %w", orderID, ErrPersistenceFailure, err)
	}
	order.Status = StatusCancelled
	return order, nil
}

// MarkShipped is the fulfillment trigger: it ships every reservation of a
// confirmed order and moves it to SHIPPED.
func (c *Coordinator) MarkShipped(ctx context.Context, orderID string) (Order, error) {
	order, lines, err := c.store.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}

	if !CanTransition(order.Status, StatusShipped) {
		return Order{}, fmt.Errorf("order %s has status %s: %w", orderID, order.Status, ErrShipmentNotAllowed)
	}

	for _, line := range lines {
		itemKey := reservationKey(order.IdempotencyKey, line.ProductID)
		if err := c.shipOne(ctx, itemKey, orderID); err != nil {
			c.logf("orders: ship %s for order %s: %v", itemKey, orderID, err)
		}
	}

	if err := c.store.UpdateStatus(ctx, orderID, StatusShipped); err != nil {
		return Order{}, fmt.Errorf("ship order %s: %w: %w", orderID, ErrPersistenceFailure, err)
	}
	order.Status = StatusShipped
	return order, nil
}

func (c *Coordinator) reserveOne(ctx context.Context, item ItemInput, itemKey, orderID string) (ReserveResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	return c.reservations.Reserve(callCtx, ReserveRequest{
		ProductID:      item.ProductID,
		SKU:            item.SKU,
		Quantity:       item.Quantity,
		IdempotencyKey: itemKey,
		OrderID:        orderID,
	})
}

func (c *Coordinator) chargeOnce(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	return c.payments.Charge(callCtx, req)
}

func (c *Coordinator) releaseOne(ctx context.Context, itemKey, orderID string) error {
	// Release must still run when the request context is already dead
	// (e.g. the failure being compensated was a timeout).
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.callTimeout)
	defer cancel()
	return c.reservations.Release(callCtx, itemKey, orderID)
}

func (c *Coordinator) shipOne(ctx context.Context, itemKey, orderID string) error {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	return c.reservations.Ship(callCtx, itemKey, orderID)
}

// compensate releases every reservation granted so far. Failures are logged,
// never raised; the reservation TTL covers anything we leak here.
func (c *Coordinator) compensate(ctx context.Context, state *SagaState, granted []grantedReservation) {
	c.advance(state, SagaCompensating)
	for _, g := range granted {
		if err := c.releaseOne(ctx, g.key, g.orderID); err != nil {
			c.logf("orders: release %s during compensation: %v", g.key, err)
		}
	}
	c.advance(state, SagaAborted)
}

// advance moves the saga state, logging any table violation. The table is
// the contract; a violation is a coordinator bug, not a runtime condition.
func (c *Coordinator) advance(state *SagaState, to SagaState) {
	if !CanAdvance(*state, to) {
		c.logf("orders: invalid saga transition %s -> %s", *state, to)
	}
	*state = to
}

func validatePlaceOrder(req PlaceOrderRequest) error {
	if req.CustomerID == "" {
		return fmt.Errorf("customer id is required: %w", ErrValidation)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("at least one item is required: %w", ErrValidation)
	}
	for i, item := range req.Items {
		if item.ProductID == "" {
			return fmt.Errorf("item %d: product id is required: %w", i, ErrValidation)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("item %d: quantity must be positive: %w", i, ErrValidation)
		}
	}
	return nil
}
