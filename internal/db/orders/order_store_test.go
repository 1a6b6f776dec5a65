package ordersdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"orderflow/internal/orders"
)

func newMockStore(t *testing.T) (*OrderStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewOrderStore(db), mock
}

func orderRows(order orders.Order) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"order_id", "customer_id", "status", "payment_status",
		"subtotal", "tax", "shipping", "total",
		"totals_signature", "idempotency_key", "created_at",
	}).AddRow(
		order.ID, order.CustomerID, string(order.Status), string(order.PaymentStatus),
		order.Subtotal, order.Tax, order.Shipping, order.Total,
		order.TotalsSignature, order.IdempotencyKey, order.CreatedAt,
	)
}

func lineRows(lines []orders.OrderLine) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"order_id", "product_id", "sku", "quantity", "unit_price"})
	for _, line := range lines {
		rows.AddRow(line.OrderID, line.ProductID, line.SKU, line.Quantity, line.UnitPrice)
	}
	return rows
}

func testOrder() (orders.Order, []orders.OrderLine) {
	order := orders.Order{
		ID:              "o1",
		CustomerID:      "cust-1",
		Status:          orders.StatusConfirmed,
		PaymentStatus:   orders.PaymentPaid,
		Subtotal:        89.97,
		Tax:             4.4985,
		Shipping:        10.00,
		Total:           104.4685,
		TotalsSignature: "sig",
		IdempotencyKey:  "k1",
		CreatedAt:       time.Now(),
	}
	lines := []orders.OrderLine{{OrderID: "o1", ProductID: "p1", SKU: "SKU-1", Quantity: 3, UnitPrice: 29.99}}
	return order, lines
}

func TestInitSchema(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS orders").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS order_lines").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFindByIdempotencyKey(t *testing.T) {
	store, mock := newMockStore(t)
	order, lines := testOrder()

	mock.ExpectQuery("SELECT (.+) FROM orders").
		WithArgs("k1").
		WillReturnRows(orderRows(order))
	mock.ExpectQuery("SELECT (.+) FROM order_lines").
		WithArgs("o1").
		WillReturnRows(lineRows(lines))

	got, gotLines, found, err := store.FindByIdempotencyKey(context.Background(), "k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Fatalf("expected hit")
	}
	if got.ID != "o1" || got.Status != orders.StatusConfirmed {
		t.Fatalf("unexpected order: %+v", got)
	}
	if len(gotLines) != 1 || gotLines[0].ProductID != "p1" {
		t.Fatalf("unexpected lines: %+v", gotLines)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFindByIdempotencyKey_Miss(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM orders").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"order_id"}))

	_, _, found, err := store.FindByIdempotencyKey(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatalf("expected miss")
	}
}

func TestCreateConfirmed(t *testing.T) {
	store, mock := newMockStore(t)
	order, lines := testOrder()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WithArgs(
			order.ID, order.CustomerID, order.Status, order.PaymentStatus,
			order.Subtotal, order.Tax, order.Shipping, order.Total,
			order.TotalsSignature, order.IdempotencyKey, order.CreatedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_lines").
		WithArgs(order.ID, "p1", "SKU-1", 3, 29.99).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	got, gotLines, created, err := store.CreateConfirmed(context.Background(), order, lines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatalf("expected creation")
	}
	if got.ID != order.ID || len(gotLines) != 1 {
		t.Fatalf("unexpected result: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateConfirmed_ConflictReadsWinnerBack(t *testing.T) {
	store, mock := newMockStore(t)
	order, lines := testOrder()

	winner := order
	winner.ID = "o-winner"

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM orders").
		WithArgs("k1").
		WillReturnRows(orderRows(winner))
	mock.ExpectQuery("SELECT (.+) FROM order_lines").
		WithArgs("o-winner").
		WillReturnRows(lineRows(nil))
	mock.ExpectRollback()

	got, _, created, err := store.CreateConfirmed(context.Background(), order, lines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Fatalf("conflicted insert must not report creation")
	}
	if got.ID != "o-winner" {
		t.Fatalf("expected the winner back, got %s", got.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateConfirmed_InsertError(t *testing.T) {
	store, mock := newMockStore(t)
	order, lines := testOrder()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if _, _, _, err := store.CreateConfirmed(context.Background(), order, lines); err == nil {
		t.Fatalf("expected insert error")
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM orders").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"order_id"}))

	if _, _, err := store.GetOrder(context.Background(), "missing"); !errors.Is(err, orders.ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListRecent(t *testing.T) {
	store, mock := newMockStore(t)
	order, _ := testOrder()

	mock.ExpectQuery("SELECT (.+) FROM orders").
		WithArgs(5).
		WillReturnRows(orderRows(order))

	list, err := store.ListRecent(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 || list[0].ID != "o1" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestUpdateStatus(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE orders").
		WithArgs("o1", orders.StatusCancelled).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.UpdateStatus(context.Background(), "o1", orders.StatusCancelled); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpdateStatus_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE orders").
		WithArgs("missing", orders.StatusCancelled).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.UpdateStatus(context.Background(), "missing", orders.StatusCancelled); !errors.Is(err, orders.ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
