package orders

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"
)

// BuildConfig is the wiring input for BuildCoordinator. Empty URLs and DSN
// select in-memory fallbacks so the binary stays runnable without
// collaborators (useful in development and demos).
type BuildConfig struct {
	PostgresDSN  string
	InventoryURL string
	PaymentURL   string
	CallTimeout  time.Duration
	Dispatcher   Dispatcher
	Logf         func(format string, args ...any)

	// OpenStore lets callers swap the Postgres store constructor; tests use
	// it to inject sqlmock-backed stores.
	OpenStore func(ctx context.Context, db *sql.DB) (OrderStore, error)
}

// BuildCoordinator wires a Coordinator from config. The returned cleanup
// closes any external resources (e.g. the DB connection).
func BuildCoordinator(ctx context.Context, cfg BuildConfig) (*Coordinator, func(), error) {
	logf := cfg.Logf
	if logf == nil {
		logf = log.Printf
	}

	cleanup := func() {}
	var store OrderStore = NewInMemoryOrderStore()

	if cfg.PostgresDSN != "" && cfg.OpenStore != nil {
		sqlDB, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			logf("orders: postgres open failed, falling back to in-memory store: %v", err)
		} else {
			setupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			pgStore, err := cfg.OpenStore(setupCtx, sqlDB)
			cancel()
			if err != nil {
				logf("orders: postgres init failed, falling back to in-memory store: %v", err)
				_ = sqlDB.Close()
			} else {
				logf("orders: postgres store enabled")
				store = pgStore
				cleanup = func() {
					if err := sqlDB.Close(); err != nil {
						logf("orders: close postgres: %v", err)
					}
				}
			}
		}
	}

	var reservations ReservationClient = NewInMemoryReservationClient()
	if cfg.InventoryURL != "" {
		reservations = NewHTTPReservationClient(cfg.InventoryURL, http.DefaultClient)
	} else {
		logf("orders: no inventory URL, using in-memory reservations")
	}

	var payments PaymentClient = NewInMemoryPaymentClient()
	if cfg.PaymentURL != "" {
		payments = NewHTTPPaymentClient(cfg.PaymentURL, http.DefaultClient)
	} else {
		logf("orders: no payment URL, using in-memory payments")
	}

	coordinator, err := NewCoordinator(CoordinatorConfig{
		Store:        store,
		Reservations: reservations,
		Payments:     payments,
		Dispatcher:   cfg.Dispatcher,
		CallTimeout:  cfg.CallTimeout,
		Logf:         logf,
	})
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	return coordinator, cleanup, nil
}
