package orders

import (
	"context"
	"sync"
)

// NewInMemoryOrderStore constructs an in-memory OrderStore.
func NewInMemoryOrderStore() *InMemoryOrderStore {
	return &InMemoryOrderStore{
		byKey: make(map[string]*storedOrder),
		byID:  make(map[string]*storedOrder),
	}
}

type storedOrder struct {
	order Order
	lines []OrderLine
}

// InMemoryOrderStore keeps orders under a mutex with the same
// winner-takes-all idempotency semantics as the Postgres store.
type InMemoryOrderStore struct {
	mu     sync.Mutex
	byKey  map[string]*storedOrder
	byID   map[string]*storedOrder
	recent []string
}

func (s *InMemoryOrderStore) FindByIdempotencyKey(ctx context.Context, key string) (Order, []OrderLine, bool, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byKey[key]
	if !ok {
		return Order{}, nil, false, nil
	}
	return rec.order, copyLines(rec.lines), true, nil
}

func (s *InMemoryOrderStore) CreateConfirmed(ctx context.Context, order Order, lines []OrderLine) (Order, []OrderLine, bool, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Exactly one writer wins per idempotency key; everyone else reads the
	// winner back.
	if existing, ok := s.byKey[order.IdempotencyKey]; ok {
		return existing.order, copyLines(existing.lines), false, nil
	}

	rec := &storedOrder{order: order, lines: copyLines(lines)}
	s.byKey[order.IdempotencyKey] = rec
	s.byID[order.ID] = rec
	s.recent = append(s.recent, order.ID)
	return rec.order, copyLines(rec.lines), true, nil
}

func (s *InMemoryOrderStore) GetOrder(ctx context.Context, orderID string) (Order, []OrderLine, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[orderID]
	if !ok {
		return Order{}, nil, ErrOrderNotFound
	}
	return rec.order, copyLines(rec.lines), nil
}

func (s *InMemoryOrderStore) ListRecent(ctx context.Context, limit int) ([]Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Order, 0, limit)
	for i := len(s.recent) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.byID[s.recent[i]].order)
	}
	return out, nil
}

func (s *InMemoryOrderStore) UpdateStatus(ctx context.Context, orderID string, status OrderStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	rec.order.Status = status
	return nil
}

func copyLines(lines []OrderLine) []OrderLine {
	out := make([]OrderLine, len(lines))
	copy(out, lines)
	return out
}
