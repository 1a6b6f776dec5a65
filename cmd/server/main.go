package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	_ "github.com/jackc/pgx/v5/stdlib"

	"orderflow/cmd/server/config"
	ordersdb "orderflow/internal/db/orders"
	"orderflow/internal/dispatch"
	"orderflow/internal/httpx"
	"orderflow/internal/kafka"
	"orderflow/internal/observability"
	"orderflow/internal/orders"
	"orderflow/internal/realtime"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("load .env: %v", err)
	}

	if err := run(); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func run() error {
	httpCfg, err := config.LoadHTTP()
	if err != nil {
		return err
	}
	sagaCfg, err := config.LoadSaga()
	if err != nil {
		return err
	}
	kafkaCfg, err := config.LoadKafka()
	if err != nil {
		return err
	}
	obsCfg, err := config.LoadObservability()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	hub := realtime.NewHub(log.Printf)
	go hub.Run()

	var sinks dispatch.MultiDispatcher
	sinks = append(sinks, &dispatch.HubDispatcher{Hub: hub})
	if sagaCfg.NotificationURL != "" || sagaCfg.ShipmentURL != "" {
		sinks = append(sinks, &dispatch.HTTPDispatcher{
			NotificationURL: sagaCfg.NotificationURL,
			ShipmentURL:     sagaCfg.ShipmentURL,
		})
	}

	var producer *kafka.Producer
	if len(kafkaCfg.Brokers) > 0 {
		producer = kafka.NewProducer(kafkaCfg.Brokers, kafkaCfg.Topic, kafkaCfg.Buffer, log.Printf)
		producer.Start(ctx)
		sinks = append(sinks, &dispatch.KafkaDispatcher{
			Producer: producer,
			Service:  "orderflow",
		})
		log.Printf("kafka publication enabled on topic %s", kafkaCfg.Topic)
	}

	coordinator, cleanup, err := orders.BuildCoordinator(ctx, orders.BuildConfig{
		PostgresDSN:  sagaCfg.DatabaseURL,
		InventoryURL: sagaCfg.InventoryURL,
		PaymentURL:   sagaCfg.PaymentURL,
		CallTimeout:  sagaCfg.CallTimeout,
		Dispatcher:   sinks,
		OpenStore: func(ctx context.Context, db *sql.DB) (orders.OrderStore, error) {
			return ordersdb.NewOrderStoreWithSchema(ctx, db)
		},
	})
	if err != nil {
		return err
	}
	defer cleanup()

	server := httpx.NewServer(httpx.ServerConfig{
		Coordinator:       coordinator,
		Hub:               hub,
		Metrics:           metrics,
		RateLimitInterval: httpCfg.RateLimitInterval,
		RateLimitBurst:    httpCfg.RateLimitBurst,
	})

	httpServer := &http.Server{
		Addr:         httpCfg.Addr,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	var obsServer *http.Server
	if obsCfg.Addr != "" {
		obsMux := http.NewServeMux()
		obsMux.Handle("/metrics", observability.Handler(metrics))
		obsServer = &http.Server{Addr: obsCfg.Addr, Handler: obsMux}
		go func() {
			log.Printf("metrics listening on %s", obsCfg.Addr)
			if err := obsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("metrics server: %v", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("orders API listening on %s", httpCfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Printf("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	if obsServer != nil {
		if err := obsServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("metrics shutdown: %v", err)
		}
	}
	if producer != nil {
		producer.WaitClosed()
	}
	return nil
}
