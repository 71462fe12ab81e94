package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcdev12/roomsync/go/internal/rpc"
)

// MetricsCollector defines the interface for collecting session anomaly and traffic metrics
type MetricsCollector interface {
	RecordMessage(kind rpc.Kind, unreliable bool)
	RecordStaleMutation(kind rpc.Kind)
	RecordDuplicateJoin()
	RecordDroppedSnapshot()
	RecordAuthorityAmbiguity()
	RecordTick(duration time.Duration)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordMessage(kind rpc.Kind, unreliable bool) {}
func (n *NoOpMetricsCollector) RecordStaleMutation(kind rpc.Kind)           {}
func (n *NoOpMetricsCollector) RecordDuplicateJoin()                        {}
func (n *NoOpMetricsCollector) RecordDroppedSnapshot()                      {}
func (n *NoOpMetricsCollector) RecordAuthorityAmbiguity()                   {}
func (n *NoOpMetricsCollector) RecordTick(duration time.Duration)           {}

// Stats is a point-in-time copy of the counters.
type Stats struct {
	Ticks              uint64              `json:"ticks"`
	LastTick           time.Duration       `json:"last_tick_ns"`
	Messages           map[rpc.Kind]uint64 `json:"messages"`
	StaleMutations     uint64              `json:"stale_mutations"`
	DuplicateJoins     uint64              `json:"duplicate_joins"`
	DroppedSnapshots   uint64              `json:"dropped_snapshots"`
	AuthorityAmbiguity uint64              `json:"authority_ambiguity"`
}

// CounterMetrics keeps in-memory counters. Safe for concurrent readers.
type CounterMetrics struct {
	ticks     atomic.Uint64
	lastTick  atomic.Int64
	stale     atomic.Uint64
	dupJoins  atomic.Uint64
	dropped   atomic.Uint64
	ambiguity atomic.Uint64

	mu       sync.Mutex
	messages map[rpc.Kind]uint64
}

// NewCounterMetrics creates an empty counter set.
func NewCounterMetrics() *CounterMetrics {
	return &CounterMetrics{messages: make(map[rpc.Kind]uint64)}
}

func (m *CounterMetrics) RecordMessage(kind rpc.Kind, unreliable bool) {
	m.mu.Lock()
	m.messages[kind]++
	m.mu.Unlock()
}

func (m *CounterMetrics) RecordStaleMutation(kind rpc.Kind) { m.stale.Add(1) }
func (m *CounterMetrics) RecordDuplicateJoin()              { m.dupJoins.Add(1) }
func (m *CounterMetrics) RecordDroppedSnapshot()            { m.dropped.Add(1) }
func (m *CounterMetrics) RecordAuthorityAmbiguity()         { m.ambiguity.Add(1) }

func (m *CounterMetrics) RecordTick(duration time.Duration) {
	m.ticks.Add(1)
	m.lastTick.Store(int64(duration))
}

// Stats returns a copy of the counters.
func (m *CounterMetrics) Stats() Stats {
	m.mu.Lock()
	messages := make(map[rpc.Kind]uint64, len(m.messages))
	for k, v := range m.messages {
		messages[k] = v
	}
	m.mu.Unlock()

	return Stats{
		Ticks:              m.ticks.Load(),
		LastTick:           time.Duration(m.lastTick.Load()),
		Messages:           messages,
		StaleMutations:     m.stale.Load(),
		DuplicateJoins:     m.dupJoins.Load(),
		DroppedSnapshots:   m.dropped.Load(),
		AuthorityAmbiguity: m.ambiguity.Load(),
	}
}
