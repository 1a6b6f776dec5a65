package inventory

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	stockKeyPrefix = "stock:"
	resvKeyPrefix  = "resv:"

	statusReserved = "RESERVED"
	statusReleased = "RELEASED"
	statusShipped  = "SHIPPED"
	statusExpired  = "EXPIRED"
	statusRejected = "REJECTED"

	outcomeGranted      = "GRANTED"
	outcomeInsufficient = "INSUFFICIENT"
)

// reserveScript atomically replays a duplicate key, denies on short stock,
// or decrements stock and records the reservation.
var reserveScript = redis.NewScript(`
local resv = KEYS[1]
local stock = KEYS[2]
local qty = tonumber(ARGV[1])
local orderID = ARGV[2]
local productID = ARGV[3]
local expiresAt = ARGV[4]
local rejectTTL = tonumber(ARGV[5])

local existing = redis.call('HGET', resv, 'outcome')
if existing then
	return existing
end

local current = tonumber(redis.call('GET', stock) or '0')
if current < qty then
	redis.call('HSET', resv,
		'product_id', productID, 'order_id', orderID, 'quantity', qty,
		'status', '`+statusRejected+`', 'outcome', '`+outcomeInsufficient+`',
		'expires_at', expiresAt)
	redis.call('EXPIRE', resv, rejectTTL)
	return '`+outcomeInsufficient+`'
end

redis.call('DECRBY', stock, qty)
redis.call('HSET', resv,
	'product_id', productID, 'order_id', orderID, 'quantity', qty,
	'status', '`+statusReserved+`', 'outcome', '`+outcomeGranted+`',
	'expires_at', expiresAt)
return '`+outcomeGranted+`'
`)

// releaseScript returns stock for a RESERVED record and marks it with the
// given terminal status. Any other state is left untouched, which makes
// repeated Release calls no-ops.
var releaseScript = redis.NewScript(`
local resv = KEYS[1]
local newStatus = ARGV[1]

local status = redis.call('HGET', resv, 'status')
if not status then
	return 'NONE'
end
if status ~= '`+statusReserved+`' then
	return status
end

local qty = tonumber(redis.call('HGET', resv, 'quantity'))
local productID = redis.call('HGET', resv, 'product_id')
redis.call('INCRBY', '`+stockKeyPrefix+`' .. productID, qty)
redis.call('HSET', resv, 'status', newStatus)
return newStatus
`)

// shipScript moves a RESERVED record to SHIPPED without returning stock.
var shipScript = redis.NewScript(`
local resv = KEYS[1]

local status = redis.call('HGET', resv, 'status')
if not status then
	return 'NONE'
end
if status ~= '`+statusReserved+`' then
	return status
end

redis.call('HSET', resv, 'status', '`+statusShipped+`')
return '`+statusShipped+`'
`)

// ReserveRequest holds stock for one order line, idempotent per key.
type ReserveRequest struct {
	ProductID      string
	Quantity       int
	IdempotencyKey string
	OrderID        string
}

// Config wires the reservation service.
type Config struct {
	// TTL is the reservation lifetime; an unshipped reservation past it is
	// expired by the sweeper and its stock returned.
	TTL  time.Duration
	Now  func() time.Time
	Logf func(format string, args ...any)
}

// Service is the reservation capability: per-product stock counters and
// per-key reservation records in Redis, with a TTL expiry sweep as the
// backstop against leaked reservations.
type Service struct {
	rdb  redis.UniversalClient
	ttl  time.Duration
	now  func() time.Time
	logf func(format string, args ...any)
}

// NewService constructs a reservation service on the given Redis client.
func NewService(rdb redis.UniversalClient, cfg Config) *Service {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logf := cfg.Logf
	if logf == nil {
		logf = log.Printf
	}
	return &Service{rdb: rdb, ttl: ttl, now: now, logf: logf}
}

// SetStock sets the available quantity for a product.
func (s *Service) SetStock(ctx context.Context, productID string, quantity int) error {
	return s.rdb.Set(ctx, stockKeyPrefix+productID, quantity, 0).Err()
}

// Availability returns the current available quantity for a product.
func (s *Service) Availability(ctx context.Context, productID string) (int, error) {
	val, err := s.rdb.Get(ctx, stockKeyPrefix+productID).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}

// Reserve holds stock for the request. A repeated call with the same key
// replays the original outcome without touching stock again.
func (s *Service) Reserve(ctx context.Context, req ReserveRequest) (bool, error) {
	if req.ProductID == "" || req.IdempotencyKey == "" {
		return false, fmt.Errorf("inventory: product id and idempotency key are required")
	}
	if req.Quantity <= 0 {
		return false, fmt.Errorf("inventory: quantity must be positive")
	}

	expiresAt := s.now().Add(s.ttl).Unix()
	outcome, err := reserveScript.Run(ctx, s.rdb,
		[]string{resvKeyPrefix + req.IdempotencyKey, stockKeyPrefix + req.ProductID},
		req.Quantity, req.OrderID, req.ProductID, expiresAt, int(s.ttl.Seconds()),
	).Text()
	if err != nil {
		return false, err
	}
	return outcome == outcomeGranted, nil
}

// Release returns the reserved stock. Repeated calls are no-ops; the
// resulting reservation status is returned.
func (s *Service) Release(ctx context.Context, idempotencyKey string) (string, error) {
	return releaseScript.Run(ctx, s.rdb,
		[]string{resvKeyPrefix + idempotencyKey}, statusReleased,
	).Text()
}

// Ship marks the reservation as fulfilled; the stock stays decremented.
func (s *Service) Ship(ctx context.Context, idempotencyKey string) (string, error) {
	return shipScript.Run(ctx, s.rdb,
		[]string{resvKeyPrefix + idempotencyKey},
	).Text()
}

// Status returns the stored reservation status for a key.
func (s *Service) Status(ctx context.Context, idempotencyKey string) (string, error) {
	status, err := s.rdb.HGet(ctx, resvKeyPrefix+idempotencyKey, "status").Result()
	if err == redis.Nil {
		return "", nil
	}
	return status, err
}

// SweepExpired expires RESERVED records past their deadline and returns
// their stock. It reports how many reservations were expired.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	deadline := s.now().Unix()
	expired := 0

	iter := s.rdb.Scan(ctx, 0, resvKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		fields, err := s.rdb.HMGet(ctx, key, "status", "expires_at").Result()
		if err != nil {
			return expired, err
		}
		status, _ := fields[0].(string)
		expiresRaw, _ := fields[1].(string)
		if status != statusReserved || expiresRaw == "" {
			continue
		}
		expiresAt, err := strconv.ParseInt(expiresRaw, 10, 64)
		if err != nil || expiresAt > deadline {
			continue
		}

		// The script rechecks status, so a racing Release or Ship wins.
		result, err := releaseScript.Run(ctx, s.rdb, []string{key}, statusExpired).Text()
		if err != nil {
			return expired, err
		}
		if result == statusExpired {
			expired++
			s.logf("inventory: expired reservation %s", strings.TrimPrefix(key, resvKeyPrefix))
		}
	}
	if err := iter.Err(); err != nil {
		return expired, err
	}
	return expired, nil
}

// RunSweeper expires reservations on the given interval until the context
// ends.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.SweepExpired(ctx); err != nil {
				s.logf("inventory: sweep: %v", err)
			} else if n > 0 {
				s.logf("inventory: expired %d reservations", n)
			}
		}
	}
}

// SeedCSV loads stock levels from CSV data with product_id and on_hand
// columns. It returns the number of products loaded.
func (s *Service) SeedCSV(ctx context.Context, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("inventory: read seed csv: %w", err)
	}
	if len(records) < 2 {
		return 0, fmt.Errorf("inventory: seed csv contains no data")
	}

	idx := make(map[string]int)
	for i, h := range records[0] {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	productCol, ok := idx["product_id"]
	if !ok {
		return 0, fmt.Errorf("inventory: seed csv missing product_id column")
	}
	stockCol, ok := idx["on_hand"]
	if !ok {
		return 0, fmt.Errorf("inventory: seed csv missing on_hand column")
	}

	loaded := 0
	for ri := 1; ri < len(records); ri++ {
		row := records[ri]
		if productCol >= len(row) || stockCol >= len(row) {
			continue
		}
		productID := strings.TrimSpace(row[productCol])
		quantity, err := strconv.Atoi(strings.TrimSpace(row[stockCol]))
		if productID == "" || err != nil {
			s.logf("inventory: skipping seed row %d", ri+1)
			continue
		}
		if err := s.SetStock(ctx, productID, quantity); err != nil {
			return loaded, err
		}
		loaded++
	}
	return loaded, nil
}
