// Package metrics provides in-memory timing statistics for the operations a
// single paperfinder invocation performs.
package metrics

import (
	"math"
	"sync"
	"time"
)

// Operation names for the collector.
const (
	OpPageFetch = "page_fetch"
	OpRank      = "llm_rank"
)

// OperationMetrics holds aggregated raw timings for one operation type.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64
	TotalTimeMs int64
	AvgTimeMs   float64
	MinTimeMs   int64
	MaxTimeMs   int64
}

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe and safe on a nil receiver.
type Collector struct {
	mu  sync.RWMutex
	ops map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{ops: make(map[string]*OperationMetrics)}
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	m.Count++
	m.TotalTime += duration
	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// Snapshot returns computed stats per operation at this point in time.
func (c *Collector) Snapshot() map[string]OperationSnapshot {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]OperationSnapshot, len(c.ops))
	for op, m := range c.ops {
		snap := OperationSnapshot{
			Count:       m.Count,
			TotalTimeMs: m.TotalTime.Milliseconds(),
			MinTimeMs:   m.MinTime.Milliseconds(),
			MaxTimeMs:   m.MaxTime.Milliseconds(),
		}
		if m.Count > 0 {
			snap.AvgTimeMs = float64(m.TotalTime.Milliseconds()) / float64(m.Count)
		}
		out[op] = snap
	}
	return out
}
