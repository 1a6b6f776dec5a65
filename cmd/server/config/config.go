package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// HTTPConfig holds the public listener and ingress rate limit settings.
type HTTPConfig struct {
	Addr              string
	RateLimitInterval time.Duration
	RateLimitBurst    int
}

// SagaConfig holds the coordinator's collaborator endpoints and timeouts.
// Empty URLs select the in-memory fallbacks.
type SagaConfig struct {
	DatabaseURL     string
	InventoryURL    string
	PaymentURL      string
	NotificationURL string
	ShipmentURL     string
	CallTimeout     time.Duration
}

// KafkaConfig holds event publication settings. No brokers disables
// publication.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Buffer  int
}

// ObservabilityConfig holds the HTTP address for the metrics endpoint.
// An empty address disables the metrics listener.
type ObservabilityConfig struct {
	Addr string
}

// InventoryConfig holds the inventory service settings.
type InventoryConfig struct {
	Addr           string
	RedisAddr      string
	ReservationTTL time.Duration
	SweepInterval  time.Duration
	SeedFile       string
}

// LoadHTTP reads public listener settings from env.
func LoadHTTP() (HTTPConfig, error) {
	cfg := HTTPConfig{
		Addr: optionalString("HTTP_ADDR", ":8080"),
	}

	interval, err := optionalDuration("RATE_LIMIT_INTERVAL")
	if err != nil {
		return cfg, err
	}
	if interval != nil {
		cfg.RateLimitInterval = *interval
	}

	burst, err := optionalInt("RATE_LIMIT_BURST")
	if err != nil {
		return cfg, err
	}
	if burst != nil {
		cfg.RateLimitBurst = *burst
	}

	if (cfg.RateLimitInterval > 0) != (cfg.RateLimitBurst > 0) {
		return cfg, fmt.Errorf("RATE_LIMIT_INTERVAL and RATE_LIMIT_BURST must be set together")
	}
	return cfg, nil
}

// LoadSaga reads coordinator settings from env.
func LoadSaga() (SagaConfig, error) {
	cfg := SagaConfig{
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		InventoryURL:    strings.TrimSpace(os.Getenv("INVENTORY_URL")),
		PaymentURL:      strings.TrimSpace(os.Getenv("PAYMENT_URL")),
		NotificationURL: strings.TrimSpace(os.Getenv("NOTIFICATION_URL")),
		ShipmentURL:     strings.TrimSpace(os.Getenv("SHIPMENT_URL")),
		CallTimeout:     10 * time.Second,
	}

	timeout, err := optionalDuration("CALL_TIMEOUT")
	if err != nil {
		return cfg, err
	}
	if timeout != nil {
		cfg.CallTimeout = *timeout
	}
	return cfg, nil
}

// LoadKafka reads event publication settings from env.
func LoadKafka() (KafkaConfig, error) {
	cfg := KafkaConfig{
		Topic:  optionalString("KAFKA_TOPIC", "order.events"),
		Buffer: 256,
	}

	raw := strings.TrimSpace(os.Getenv("KAFKA_BROKERS"))
	if raw != "" {
		for _, broker := range strings.Split(raw, ",") {
			broker = strings.TrimSpace(broker)
			if broker != "" {
				cfg.Brokers = append(cfg.Brokers, broker)
			}
		}
	}

	buf, err := optionalInt("KAFKA_BUFFER")
	if err != nil {
		return cfg, err
	}
	if buf != nil && *buf > 0 {
		cfg.Buffer = *buf
	}
	return cfg, nil
}

// LoadObservability reads metrics HTTP server address from env.
func LoadObservability() (ObservabilityConfig, error) {
	return ObservabilityConfig{
		Addr: strings.TrimSpace(os.Getenv("OBS_ADDR")),
	}, nil
}

// LoadInventory reads inventory service settings from env.
func LoadInventory() (InventoryConfig, error) {
	cfg := InventoryConfig{
		Addr:           optionalString("INVENTORY_ADDR", ":8081"),
		SeedFile:       strings.TrimSpace(os.Getenv("INVENTORY_SEED_FILE")),
		ReservationTTL: 15 * time.Minute,
		SweepInterval:  time.Minute,
	}

	redisAddr, err := requiredString("REDIS_ADDR")
	if err != nil {
		return cfg, err
	}
	cfg.RedisAddr = redisAddr

	ttl, err := optionalDuration("RESERVATION_TTL")
	if err != nil {
		return cfg, err
	}
	if ttl != nil {
		cfg.ReservationTTL = *ttl
	}

	sweep, err := optionalDuration("SWEEP_INTERVAL")
	if err != nil {
		return cfg, err
	}
	if sweep != nil {
		cfg.SweepInterval = *sweep
	}
	return cfg, nil
}

func optionalString(name, fallback string) string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	return raw
}

func optionalDuration(name string) (*time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}

func optionalInt(name string) (*int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}

func requiredString(name string) (string, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return raw, nil
}
