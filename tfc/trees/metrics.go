package trees

import (
	"maps"
	"sync"
	"time"
)

// TreeMetrics holds statistical information about a change tree
type TreeMetrics struct {
	TotalEntities   int64
	MaxDepth        int
	LastUpdated     time.Time
	ProcessingTime  time.Duration
	Uptime          time.Duration
	OperationCounts map[string]int64
}

// MetricsCollector accumulates operation counters for a change tree
type MetricsCollector struct {
	mu      sync.Mutex
	metrics TreeMetrics
	started time.Time
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		started: time.Now(),
		metrics: TreeMetrics{
			OperationCounts: make(map[string]int64),
		},
	}
}

// IncrementOperation increments the counter for op
func (mc *MetricsCollector) IncrementOperation(op string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.metrics.OperationCounts[op]++
}

// Observe records the shape of the tree after an operation that took elapsed
func (mc *MetricsCollector) Observe(entities int64, depth int, elapsed time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.metrics.TotalEntities = entities
	mc.metrics.MaxDepth = max(mc.metrics.MaxDepth, depth)
	mc.metrics.ProcessingTime += elapsed
	mc.metrics.LastUpdated = time.Now()
}

// ResetShape clears the per-tree shape figures; operation counters survive
func (mc *MetricsCollector) ResetShape() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.metrics.TotalEntities = 0
	mc.metrics.MaxDepth = 0
}

// Snapshot returns a copy of the collected metrics
func (mc *MetricsCollector) Snapshot() TreeMetrics {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	out := mc.metrics
	out.OperationCounts = maps.Clone(mc.metrics.OperationCounts)
	out.Uptime = time.Since(mc.started)
	return out
}
