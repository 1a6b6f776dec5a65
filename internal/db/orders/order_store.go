package ordersdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"orderflow/internal/orders"
)

// OrderStore persists orders and lines in Postgres. The UNIQUE constraint on
// idempotency_key is the concurrency-control primitive: concurrent duplicate
// submissions have exactly one winning writer, and losers read the winner
// back.
type OrderStore struct {
	db *sql.DB
}

// NewOrderStore constructs an OrderStore backed by Postgres.
func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

// NewOrderStoreWithSchema initializes the schema then returns the store.
func NewOrderStoreWithSchema(ctx context.Context, db *sql.DB) (*OrderStore, error) {
	store := NewOrderStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the order tables if they do not exist.
func (s *OrderStore) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			order_id TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL,
			status TEXT NOT NULL,
			payment_status TEXT NOT NULL,
			subtotal DOUBLE PRECISION NOT NULL,
			tax DOUBLE PRECISION NOT NULL,
			shipping DOUBLE PRECISION NOT NULL,
			total DOUBLE PRECISION NOT NULL,
			totals_signature TEXT NOT NULL,
			idempotency_key TEXT UNIQUE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS order_lines (
			id BIGSERIAL PRIMARY KEY,
			order_id TEXT NOT NULL,
			product_id TEXT NOT NULL,
			sku TEXT NOT NULL,
			quantity INT NOT NULL,
			unit_price DOUBLE PRECISION NOT NULL,
			FOREIGN KEY (order_id) REFERENCES orders(order_id) ON DELETE CASCADE
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

const orderColumns = `order_id, customer_id, status, payment_status, subtotal, tax, shipping, total, totals_signature, idempotency_key, created_at`

// FindByIdempotencyKey returns the order owning the key, if any.
func (s *OrderStore) FindByIdempotencyKey(ctx context.Context, key string) (orders.Order, []orders.OrderLine, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE idempotency_key = $1`,
		key,
	)

	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return orders.Order{}, nil, false, nil
	}
	if err != nil {
		return orders.Order{}, nil, false, err
	}

	lines, err := s.linesFor(ctx, order.ID)
	if err != nil {
		return orders.Order{}, nil, false, err
	}
	return order, lines, true, nil
}

// CreateConfirmed atomically inserts the order and its lines. When the
// idempotency key already belongs to another order, the insert affects zero
// rows and the stored winner is returned with created=false.
func (s *OrderStore) CreateConfirmed(ctx context.Context, order orders.Order, lines []orders.OrderLine) (orders.Order, []orders.OrderLine, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return orders.Order{}, nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		order.ID, order.CustomerID, order.Status, order.PaymentStatus,
		order.Subtotal, order.Tax, order.Shipping, order.Total,
		order.TotalsSignature, order.IdempotencyKey, order.CreatedAt,
	)
	if err != nil {
		return orders.Order{}, nil, false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return orders.Order{}, nil, false, err
	}
	if affected == 0 {
		// Lost the uniqueness race; hand back the winner.
		winner, winnerLines, found, err := s.FindByIdempotencyKey(ctx, order.IdempotencyKey)
		if err != nil {
			return orders.Order{}, nil, false, err
		}
		if !found {
			return orders.Order{}, nil, false, fmt.Errorf("order not found after idempotency conflict")
		}
		return winner, winnerLines, false, nil
	}

	for _, line := range lines {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, product_id, sku, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)`,
			order.ID, line.ProductID, line.SKU, line.Quantity, line.UnitPrice,
		); err != nil {
			return orders.Order{}, nil, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return orders.Order{}, nil, false, err
	}
	return order, lines, true, nil
}

// GetOrder loads one order with its lines.
func (s *OrderStore) GetOrder(ctx context.Context, orderID string) (orders.Order, []orders.OrderLine, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE order_id = $1`,
		orderID,
	)

	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return orders.Order{}, nil, orders.ErrOrderNotFound
	}
	if err != nil {
		return orders.Order{}, nil, err
	}

	lines, err := s.linesFor(ctx, order.ID)
	if err != nil {
		return orders.Order{}, nil, err
	}
	return order, lines, nil
}

// ListRecent returns the newest orders, newest first.
func (s *OrderStore) ListRecent(ctx context.Context, limit int) ([]orders.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		ORDER BY created_at DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, order)
	}
	return out, rows.Err()
}

// UpdateStatus changes the order status.
func (s *OrderStore) UpdateStatus(ctx context.Context, orderID string, status orders.OrderStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2
		WHERE order_id = $1`,
		orderID, status,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return orders.ErrOrderNotFound
	}
	return nil
}

func (s *OrderStore) linesFor(ctx context.Context, orderID string) ([]orders.OrderLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, product_id, sku, quantity, unit_price
		FROM order_lines
		WHERE order_id = $1
		ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []orders.OrderLine
	for rows.Next() {
		var line orders.OrderLine
		if err := rows.Scan(&line.OrderID, &line.ProductID, &line.SKU, &line.Quantity, &line.UnitPrice); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (orders.Order, error) {
	var order orders.Order
	var status, paymentStatus string
	err := row.Scan(
		&order.ID, &order.CustomerID, &status, &paymentStatus,
		&order.Subtotal, &order.Tax, &order.Shipping, &order.Total,
		&order.TotalsSignature, &order.IdempotencyKey, &order.CreatedAt,
	)
	if err != nil {
		return orders.Order{}, err
	}
	order.Status = orders.OrderStatus(status)
	order.PaymentStatus = orders.PaymentStatus(paymentStatus)
	return order, nil
}
