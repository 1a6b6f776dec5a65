package inventory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestService(t *testing.T, cfg Config) (*Service, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	if cfg.Logf == nil {
		cfg.Logf = func(string, ...any) {}
	}
	return NewService(rdb, cfg), mr
}

func TestReserve(t *testing.T) {
	s, _ := newTestService(t, Config{})
	ctx := context.Background()

	if err := s.SetStock(ctx, "p1", 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	granted, err := s.Reserve(ctx, ReserveRequest{
		ProductID:      "p1",
		Quantity:       4,
		IdempotencyKey: "k1",
		OrderID:        "o1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !granted {
		t.Fatalf("expected grant")
	}

	available, err := s.Availability(ctx, "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if available != 6 {
		t.Fatalf("unexpected availability: %d", available)
	}

	status, err := s.Status(ctx, "k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != statusReserved {
		t.Fatalf("unexpected status: %q", status)
	}
}

func TestReserve_ReplaysOutcome(t *testing.T) {
	s, _ := newTestService(t, Config{})
	ctx := context.Background()

	if err := s.SetStock(ctx, "p1", 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := ReserveRequest{ProductID: "p1", Quantity: 4, IdempotencyKey: "k1", OrderID: "o1"}
	for i := 0; i < 3; i++ {
		granted, err := s.Reserve(ctx, req)
		if err != nil || !granted {
			t.Fatalf("attempt %d: granted=%v err=%v", i, granted, err)
		}
	}

	available, _ := s.Availability(ctx, "p1")
	if available != 6 {
		t.Fatalf("replays must not re-decrement stock, got %d", available)
	}
}

func TestReserve_Insufficient(t *testing.T) {
	s, _ := newTestService(t, Config{})
	ctx := context.Background()

	if err := s.SetStock(ctx, "p1", 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	granted, err := s.Reserve(ctx, ReserveRequest{ProductID: "p1", Quantity: 3, IdempotencyKey: "k1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if granted {
		t.Fatalf("expected denial")
	}

	available, _ := s.Availability(ctx, "p1")
	if available != 2 {
		t.Fatalf("denial must not touch stock, got %d", available)
	}

	// The denial replays even after a restock.
	if err := s.SetStock(ctx, "p1", 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	granted, err = s.Reserve(ctx, ReserveRequest{ProductID: "p1", Quantity: 3, IdempotencyKey: "k1"})
	if err != nil || granted {
		t.Fatalf("expected replayed denial, granted=%v err=%v", granted, err)
	}
}

func TestReserve_UnknownProductHasZeroStock(t *testing.T) {
	s, _ := newTestService(t, Config{})

	granted, err := s.Reserve(context.Background(), ReserveRequest{ProductID: "ghost", Quantity: 1, IdempotencyKey: "k1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if granted {
		t.Fatalf("unknown product must be denied")
	}
}

func TestReserve_Validation(t *testing.T) {
	s, _ := newTestService(t, Config{})
	ctx := context.Background()

	if _, err := s.Reserve(ctx, ReserveRequest{Quantity: 1, IdempotencyKey: "k"}); err == nil {
		t.Fatalf("expected error for missing product id")
	}
	if _, err := s.Reserve(ctx, ReserveRequest{ProductID: "p1", Quantity: 1}); err == nil {
		t.Fatalf("expected error for missing key")
	}
	if _, err := s.Reserve(ctx, ReserveRequest{ProductID: "p1", Quantity: 0, IdempotencyKey: "k"}); err == nil {
		t.Fatalf("expected error for non-positive quantity")
	}
}

func TestRelease(t *testing.T) {
	s, _ := newTestService(t, Config{})
	ctx := context.Background()

	_ = s.SetStock(ctx, "p1", 10)
	if _, err := s.Reserve(ctx, ReserveRequest{ProductID: "p1", Quantity: 4, IdempotencyKey: "k1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status, err := s.Release(ctx, "k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != statusReleased {
		t.Fatalf("unexpected status: %q", status)
	}
	if available, _ := s.Availability(ctx, "p1"); available != 10 {
		t.Fatalf("expected stock restored, got %d", available)
	}

	// Releasing again is a no-op that reports the current status.
	status, err = s.Release(ctx, "k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != statusReleased {
		t.Fatalf("unexpected status: %q", status)
	}
	if available, _ := s.Availability(ctx, "p1"); available != 10 {
		t.Fatalf("second release must not re-credit stock, got %d", available)
	}
}

func TestRelease_UnknownKey(t *testing.T) {
	s, _ := newTestService(t, Config{})

	status, err := s.Release(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != "NONE" {
		t.Fatalf("unexpected status: %q", status)
	}
}

func TestShip(t *testing.T) {
	s, _ := newTestService(t, Config{})
	ctx := context.Background()

	_ = s.SetStock(ctx, "p1", 10)
	if _, err := s.Reserve(ctx, ReserveRequest{ProductID: "p1", Quantity: 4, IdempotencyKey: "k1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status, err := s.Ship(ctx, "k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != statusShipped {
		t.Fatalf("unexpected status: %q", status)
	}

	// Shipping keeps the stock consumed; a later release does not refund.
	if status, _ := s.Release(ctx, "k1"); status != statusShipped {
		t.Fatalf("release after ship must report SHIPPED, got %q", status)
	}
	if available, _ := s.Availability(ctx, "p1"); available != 6 {
		t.Fatalf("shipped stock must stay consumed, got %d", available)
	}
}

func TestSweepExpired(t *testing.T) {
	now := time.Now()
	s, _ := newTestService(t, Config{
		TTL: time.Minute,
		Now: func() time.Time { return now },
	})
	ctx := context.Background()

	_ = s.SetStock(ctx, "p1", 10)
	if _, err := s.Reserve(ctx, ReserveRequest{ProductID: "p1", Quantity: 4, IdempotencyKey: "k-old"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Nothing is expired yet.
	expired, err := s.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expired != 0 {
		t.Fatalf("expected no expiries, got %d", expired)
	}

	// Move past the TTL; the sweep returns the stock.
	now = now.Add(2 * time.Minute)
	expired, err = s.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected one expiry, got %d", expired)
	}
	if status, _ := s.Status(ctx, "k-old"); status != statusExpired {
		t.Fatalf("unexpected status: %q", status)
	}
	if available, _ := s.Availability(ctx, "p1"); available != 10 {
		t.Fatalf("expected stock restored, got %d", available)
	}

	// A second sweep finds nothing.
	expired, err = s.SweepExpired(ctx)
	if err != nil || expired != 0 {
		t.Fatalf("expected idle sweep, got %d err %v", expired, err)
	}
}

func TestSweepExpired_SkipsShipped(t *testing.T) {
	now := time.Now()
	s, _ := newTestService(t, Config{
		TTL: time.Minute,
		Now: func() time.Time { return now },
	})
	ctx := context.Background()

	_ = s.SetStock(ctx, "p1", 10)
	if _, err := s.Reserve(ctx, ReserveRequest{ProductID: "p1", Quantity: 4, IdempotencyKey: "k1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Ship(ctx, "k1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	now = now.Add(2 * time.Minute)
	expired, err := s.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expired != 0 {
		t.Fatalf("shipped reservations must not expire, got %d", expired)
	}
	if available, _ := s.Availability(ctx, "p1"); available != 6 {
		t.Fatalf("shipped stock must stay consumed, got %d", available)
	}
}

func TestSeedCSV(t *testing.T) {
	s, _ := newTestService(t, Config{})
	ctx := context.Background()

	csvData := strings.NewReader("product_id,on_hand\np1,25\np2,0\n,10\np3,notanumber\n")
	loaded, err := s.SeedCSV(ctx, csvData)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded != 2 {
		t.Fatalf("expected 2 products loaded, got %d", loaded)
	}

	if available, _ := s.Availability(ctx, "p1"); available != 25 {
		t.Fatalf("unexpected p1 availability: %d", available)
	}
	if available, _ := s.Availability(ctx, "p2"); available != 0 {
		t.Fatalf("unexpected p2 availability: %d", available)
	}
}

func TestSeedCSV_MissingColumns(t *testing.T) {
	s, _ := newTestService(t, Config{})

	if _, err := s.SeedCSV(context.Background(), strings.NewReader("sku,count\na,1\n")); err == nil {
		t.Fatalf("expected error for missing columns")
	}
	if _, err := s.SeedCSV(context.Background(), strings.NewReader("product_id,on_hand\n")); err == nil {
		t.Fatalf("expected error for empty data")
	}
}
