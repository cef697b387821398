package jsonrpc

import (
	"context"
	"expvar"
	"sync"
)

var (
	endpointMetrics = new(expvar.Map)

	endpointsActiveGauge = new(expvar.Int)
	rpcRequestsCount     = new(expvar.Int)
	rpcErrorsCount       = new(expvar.Int)
	bytesReadCount       = new(expvar.Int)
	bytesWrittenCount    = new(expvar.Int)
)

func init() {
	endpointMetrics.Set("endpoints_active", endpointsActiveGauge)
	endpointMetrics.Set("rpc_requests", rpcRequestsCount)
	endpointMetrics.Set("rpc_errors", rpcErrorsCount)
	endpointMetrics.Set("bytes_read", bytesReadCount)
	endpointMetrics.Set("bytes_written", bytesWrittenCount)
}

// EndpointMetrics returns a map of exported endpoint metrics for use with the
// expvar package. This map is shared among every Endpoint created by
// NewEndpoint. The caller is responsible for publishing the metrics to an
// exporter via expvar.Publish or similar.
func EndpointMetrics() *expvar.Map { return endpointMetrics }

// A Metrics value collects counters and maximum-value trackers local to a
// single Endpoint. A nil *Metrics is valid and discards everything; a
// non-nil *Metrics is safe for concurrent use.
type Metrics struct {
	mu      sync.Mutex
	counter map[string]int64
	maxVal  map[string]int64
}

// NewMetrics creates a new, empty metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{counter: make(map[string]int64), maxVal: make(map[string]int64)}
}

// Count adds n to the counter named name, defining it if necessary.
func (m *Metrics) Count(name string, n int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter[name] += n
}

// SetMaxValue sets the maximum-value tracker named name to the greater of n
// and its current value.
func (m *Metrics) SetMaxValue(name string, n int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > m.maxVal[name] {
		m.maxVal[name] = n
	}
}

// Snapshot copies the current counters and maximum values into the given
// non-nil maps.
func (m *Metrics) Snapshot(counters, maxValues map[string]int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.counter {
		counters[k] = v
	}
	for k, v := range m.maxVal {
		maxValues[k] = v
	}
}

type metricsKey struct{}

// MetricsFromContext returns the *Metrics attached to ctx by the owning
// Endpoint, or nil if none is attached.
func MetricsFromContext(ctx context.Context) *Metrics {
	if v := ctx.Value(metricsKey{}); v != nil {
		return v.(*Metrics)
	}
	return nil
}
