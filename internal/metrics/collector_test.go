package metrics

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollectorWithRegisterer(nextTestNamespace(), prometheus.NewRegistry(), zap.NewNop())
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), nil)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.sessionsActive)
	assert.NotNil(t, collector.eventsTotal)
	assert.NotNil(t, collector.checkpointOpsTotal)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordHTTPRequest("GET", "/health", 200, 10*time.Millisecond)
	collector.RecordHTTPRequest("GET", "/health", 204, 5*time.Millisecond)
	collector.RecordHTTPRequest("GET", "/health", 503, 5*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/health", "2xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/health", "5xx")))
}

func TestCollector_Sessions(t *testing.T) {
	collector := newTestCollector(t)

	collector.SetActiveSessions(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(collector.sessionsActive))
	collector.SetActiveSessions(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(collector.sessionsActive))

	collector.RecordSessionCompleted("success", time.Second)
	collector.RecordSessionCompleted("error", time.Second)
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.sessionsTotal.WithLabelValues("success")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.sessionDuration))
}

func TestCollector_Events(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordEvent("status_update", nil, time.Millisecond)
	collector.RecordEvent("status_update", errors.New("boom"), time.Millisecond)
	collector.RecordTaskTransition("submitted", "working")

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.eventsTotal.WithLabelValues("status_update", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.eventsTotal.WithLabelValues("status_update", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.taskTransitions.WithLabelValues("submitted", "working")))
}

func TestCollector_Notifications(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordNotification(nil, 20*time.Millisecond)
	collector.RecordNotification(errors.New("503"), 20*time.Millisecond)
	collector.RecordNotification(errors.New("503"), 20*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.notificationsSent.WithLabelValues("success")))
	assert.Equal(t, float64(2), testutil.ToFloat64(collector.notificationsSent.WithLabelValues("error")))
}

func TestCollector_Checkpoints(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordCheckpointOp("sql", "save", nil, time.Millisecond)
	collector.RecordCheckpointOp("sql", "save", errors.New("conflict"), time.Millisecond)
	collector.RecordCheckpointCleanup(4, nil)
	collector.RecordCheckpointCleanup(0, errors.New("locked"))
	collector.RecordCheckpointSkipped(2)
	collector.RecordCheckpointSkipped(0)

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.checkpointOpsTotal.WithLabelValues("sql", "save", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.checkpointCleanups.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.checkpointCleanups.WithLabelValues("error")))
	assert.Equal(t, float64(4), testutil.ToFloat64(collector.checkpointRowsExpired))
	assert.Equal(t, float64(2), testutil.ToFloat64(collector.checkpointRowsSkipped))
}

func TestCollector_UpdateConnectionPool(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordDBConnections("sqlite", 10, 5)

	assert.Equal(t, float64(10), testutil.ToFloat64(collector.dbConnectionsOpen.WithLabelValues("sqlite")))
	assert.Equal(t, float64(5), testutil.ToFloat64(collector.dbConnectionsIdle.WithLabelValues("sqlite")))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var collector *Collector

	assert.NotPanics(t, func() {
		collector.RecordHTTPRequest("GET", "/", 200, 0)
		collector.SetActiveSessions(1)
		collector.RecordSessionCompleted("success", 0)
		collector.RecordEvent("task", nil, 0)
		collector.RecordTaskTransition("a", "b")
		collector.RecordNotification(nil, 0)
		collector.RecordCheckpointOp("memory", "get", nil, 0)
		collector.RecordCheckpointCleanup(1, nil)
		collector.RecordCheckpointSkipped(1)
		collector.RecordDBConnections("x", 1, 1)
	})
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := newTestCollector(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordHTTPRequest("GET", "/metrics", 200, time.Millisecond)
			collector.RecordEvent("message", nil, time.Millisecond)
			collector.RecordNotification(nil, time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(10), testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/metrics", "2xx")))
	assert.Equal(t, float64(10), testutil.ToFloat64(collector.eventsTotal.WithLabelValues("message", "success")))
}

func TestCollector_MetricsRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	namespace := nextTestNamespace()

	collector := NewCollectorWithRegisterer(namespace, registry, zap.NewNop())
	collector.RecordHTTPRequest("GET", "/test", 200, 100*time.Millisecond)

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, namespace+"_http_requests_total")

	// 同一注册表重复注册同名指标会 panic
	assert.Panics(t, func() {
		NewCollectorWithRegisterer(namespace, registry, zap.NewNop())
	})
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(200))
	assert.Equal(t, "3xx", statusCode(302))
	assert.Equal(t, "4xx", statusCode(404))
	assert.Equal(t, "5xx", statusCode(500))
	assert.Equal(t, "unknown", statusCode(0))
}
