package observability

import (
	"sync"
	"time"
)

// OperationSnapshot summarizes one API operation.
type OperationSnapshot struct {
	Count         int64   `json:"count"`
	Errors        int64   `json:"errors"`
	InFlight      int64   `json:"in_flight"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms"`
	LastLatencyMs float64 `json:"last_latency_ms"`
}

// Snapshot is the full metrics export.
type Snapshot struct {
	UptimeSec       int64                        `json:"uptime_sec"`
	TotalRequests   int64                        `json:"total_requests"`
	TotalErrors     int64                        `json:"total_errors"`
	InFlight        int64                        `json:"in_flight"`
	RateLimitWaits  int64                        `json:"rate_limit_waits"`
	RateLimitWaitMs int64                        `json:"rate_limit_wait_ms"`
	Operations      map[string]OperationSnapshot `json:"operations"`
	Outcomes        map[string]int64             `json:"outcomes"`
}

type operationStats struct {
	count        int64
	errors       int64
	inFlight     int64
	totalLatency time.Duration
	maxLatency   time.Duration
	lastLatency  time.Duration
}

// Metrics collects per-operation call stats and saga outcome counts.
type Metrics struct {
	mu             sync.Mutex
	start          time.Time
	operations     map[string]*operationStats
	outcomes       map[string]int64
	rateLimitWaits int64
	rateLimitWait  time.Duration
}

// CallSpan measures one in-flight call.
type CallSpan struct {
	metrics   *Metrics
	operation string
	start     time.Time
}

// NewMetrics constructs an empty collector.
func NewMetrics() *Metrics {
	return &Metrics{
		start:      time.Now(),
		operations: make(map[string]*operationStats),
		outcomes:   make(map[string]int64),
	}
}

// Start begins a span for the operation.
func (m *Metrics) Start(operation string) *CallSpan {
	if m == nil {
		return &CallSpan{}
	}
	m.mu.Lock()
	stats := m.ensureOperation(operation)
	stats.inFlight++
	m.mu.Unlock()
	return &CallSpan{
		metrics:   m,
		operation: operation,
		start:     time.Now(),
	}
}

// End completes the span; a non-nil error counts as a failure.
func (s *CallSpan) End(err error) {
	if s == nil || s.metrics == nil {
		return
	}
	dur := time.Since(s.start)
	s.metrics.finish(s.operation, dur, err != nil)
}

// CountOutcome increments a named saga outcome (confirmed, duplicate,
// capacity_conflict, payment_declined, ...).
func (m *Metrics) CountOutcome(outcome string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.outcomes[outcome]++
	m.mu.Unlock()
}

// AddRateLimitWait records time spent waiting on the ingress limiter.
func (m *Metrics) AddRateLimitWait(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.mu.Lock()
	m.rateLimitWaits++
	m.rateLimitWait += d
	m.mu.Unlock()
}

// Snapshot copies the current state for export.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	snap := Snapshot{
		UptimeSec:       int64(now.Sub(m.start).Seconds()),
		Operations:      make(map[string]OperationSnapshot),
		Outcomes:        make(map[string]int64, len(m.outcomes)),
		RateLimitWaits:  m.rateLimitWaits,
		RateLimitWaitMs: int64(m.rateLimitWait / time.Millisecond),
	}

	for operation, stats := range m.operations {
		avg := 0.0
		if stats.count > 0 {
			avg = float64(stats.totalLatency.Milliseconds()) / float64(stats.count)
		}
		snap.Operations[operation] = OperationSnapshot{
			Count:         stats.count,
			Errors:        stats.errors,
			InFlight:      stats.inFlight,
			AvgLatencyMs:  avg,
			MaxLatencyMs:  float64(stats.maxLatency.Milliseconds()),
			LastLatencyMs: float64(stats.lastLatency.Milliseconds()),
		}
		snap.TotalRequests += stats.count
		snap.TotalErrors += stats.errors
		snap.InFlight += stats.inFlight
	}

	for outcome, count := range m.outcomes {
		snap.Outcomes[outcome] = count
	}

	return snap
}

func (m *Metrics) ensureOperation(operation string) *operationStats {
	stats, ok := m.operations[operation]
	if !ok {
		stats = &operationStats{}
		m.operations[operation] = stats
	}
	return stats
}

func (m *Metrics) finish(operation string, dur time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	stats := m.ensureOperation(operation)
	stats.inFlight--
	stats.count++
	if failed {
		stats.errors++
	}
	stats.totalLatency += dur
	if dur > stats.maxLatency {
		stats.maxLatency = dur
	}
	stats.lastLatency = dur
	m.mu.Unlock()
}
