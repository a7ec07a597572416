package obs

import (
	"sync/atomic"
	"time"

	"cryptofutures/internal/adapter/enum"
)

const maxEventKind = int(enum.EventKindLifecycle)

// Metrics collects lightweight counters and latency stats.
type Metrics struct {
	eventCounts       [maxEventKind + 1]uint64
	correlationErrors uint64
	dispatchFailures  uint64
	projections       uint64
	streamDrops       uint64

	submitLatency LatencyStats
	cancelLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64        `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Avg   time.Duration `json:"avg"`
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	EventCounts       map[string]uint64 `json:"event_counts"`
	CorrelationErrors uint64            `json:"correlation_errors"`
	DispatchFailures  uint64            `json:"dispatch_failures"`
	Projections       uint64            `json:"projections"`
	StreamDrops       uint64            `json:"stream_drops"`
	SubmitLatency     LatencySnapshot   `json:"submit_latency"`
	CancelLatency     LatencySnapshot   `json:"cancel_latency"`
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveEvent counts a raw user stream event by kind.
func (m *Metrics) ObserveEvent(kind enum.EventKind) {
	if m == nil {
		return
	}
	idx := int(kind)
	if idx >= 0 && idx < len(m.eventCounts) {
		atomic.AddUint64(&m.eventCounts[idx], 1)
	}
}

// IncCorrelationError records an update that contradicted stored state.
func (m *Metrics) IncCorrelationError() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.correlationErrors, 1)
}

// IncDispatchFailure records a subscriber callback that panicked.
func (m *Metrics) IncDispatchFailure() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.dispatchFailures, 1)
}

// IncProjection records an optimistic projection.
func (m *Metrics) IncProjection() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.projections, 1)
}

// IncStreamDrop records a raw event that could not be reconciled.
func (m *Metrics) IncStreamDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.streamDrops, 1)
}

// ObserveSubmit measures a submit round trip.
func (m *Metrics) ObserveSubmit(d time.Duration) {
	if m == nil {
		return
	}
	m.submitLatency.Observe(d)
}

// ObserveCancel measures a cancel round trip.
func (m *Metrics) ObserveCancel(d time.Duration) {
	if m == nil {
		return
	}
	m.cancelLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	eventCounts := make(map[string]uint64)
	for i := range m.eventCounts {
		if v := atomic.LoadUint64(&m.eventCounts[i]); v > 0 {
			eventCounts[enum.EventKind(i).String()] = v
		}
	}
	return Snapshot{
		EventCounts:       eventCounts,
		CorrelationErrors: atomic.LoadUint64(&m.correlationErrors),
		DispatchFailures:  atomic.LoadUint64(&m.dispatchFailures),
		Projections:       atomic.LoadUint64(&m.projections),
		StreamDrops:       atomic.LoadUint64(&m.streamDrops),
		SubmitLatency:     m.submitLatency.Snapshot(),
		CancelLatency:     m.cancelLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
