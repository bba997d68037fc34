// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
// nil *Collector 的所有 Record 方法均为空操作，调用方无需判空。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 会话指标
	sessionsActive    prometheus.Gauge
	sessionsTotal     *prometheus.CounterVec
	sessionDuration   prometheus.Histogram
	eventsTotal       *prometheus.CounterVec
	eventDuration     *prometheus.HistogramVec
	taskTransitions   *prometheus.CounterVec
	notificationsSent *prometheus.CounterVec
	notifyDuration    prometheus.Histogram

	// 检查点指标
	checkpointOpsTotal    *prometheus.CounterVec
	checkpointOpDuration  *prometheus.HistogramVec
	checkpointCleanups    *prometheus.CounterVec
	checkpointRowsExpired prometheus.Counter
	checkpointRowsSkipped prometheus.Counter

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器，注册到 prometheus 默认注册表
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegisterer(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegisterer 创建指标收集器，注册到指定注册表
func NewCollectorWithRegisterer(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 会话指标
	c.sessionsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions currently tracked by the session manager",
		},
	)

	c.sessionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of completed sessions",
		},
		[]string{"status"}, // status: success, error, canceled
	)

	c.sessionDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Session run time in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	c.eventsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of processed session events",
		},
		[]string{"kind", "status"}, // kind: task, status_update, artifact_update, message
	)

	c.eventDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_duration_seconds",
			Help:      "Time spent persisting a session event, including lock wait",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	c.taskTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_state_transitions_total",
			Help:      "Total number of task status transitions",
		},
		[]string{"from_state", "to_state"},
	)

	c.notificationsSent = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_notifications_total",
			Help:      "Total number of push notification attempts",
		},
		[]string{"status"},
	)

	c.notifyDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "push_notification_duration_seconds",
			Help:      "Push notification delivery time in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
	)

	// 检查点指标
	c.checkpointOpsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_operations_total",
			Help:      "Total number of checkpoint store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	c.checkpointOpDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkpoint_operation_duration_seconds",
			Help:      "Checkpoint store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	c.checkpointCleanups = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_cleanups_total",
			Help:      "Total number of checkpoint TTL sweeps",
		},
		[]string{"status"},
	)

	c.checkpointRowsExpired = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_rows_expired_total",
			Help:      "Total number of checkpoints removed by TTL sweeps",
		},
	)

	c.checkpointRowsSkipped = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_rows_skipped_total",
			Help:      "Total number of checkpoint rows skipped because they could not be decoded",
		},
	)

	// 数据库指标
	c.dbConnectionsOpen = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🎭 会话指标记录
// =============================================================================

// SetActiveSessions 设置当前活跃会话数
func (c *Collector) SetActiveSessions(n int) {
	if c == nil {
		return
	}
	c.sessionsActive.Set(float64(n))
}

// RecordSessionCompleted 记录会话结束
func (c *Collector) RecordSessionCompleted(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.sessionsTotal.WithLabelValues(status).Inc()
	c.sessionDuration.Observe(duration.Seconds())
}

// RecordEvent 记录一次事件处理
func (c *Collector) RecordEvent(kind string, err error, duration time.Duration) {
	if c == nil {
		return
	}
	c.eventsTotal.WithLabelValues(kind, outcome(err)).Inc()
	c.eventDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordTaskTransition 记录任务状态转换
func (c *Collector) RecordTaskTransition(fromState, toState string) {
	if c == nil {
		return
	}
	c.taskTransitions.WithLabelValues(fromState, toState).Inc()
}

// RecordNotification 记录一次推送通知
func (c *Collector) RecordNotification(err error, duration time.Duration) {
	if c == nil {
		return
	}
	c.notificationsSent.WithLabelValues(outcome(err)).Inc()
	c.notifyDuration.Observe(duration.Seconds())
}

// =============================================================================
// 💾 检查点指标记录
// =============================================================================

// RecordCheckpointOp 记录检查点存储操作
func (c *Collector) RecordCheckpointOp(backend, operation string, err error, duration time.Duration) {
	if c == nil {
		return
	}
	c.checkpointOpsTotal.WithLabelValues(backend, operation, outcome(err)).Inc()
	c.checkpointOpDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordCheckpointCleanup 记录一次 TTL 清理
func (c *Collector) RecordCheckpointCleanup(removed int64, err error) {
	if c == nil {
		return
	}
	c.checkpointCleanups.WithLabelValues(outcome(err)).Inc()
	if err == nil && removed > 0 {
		c.checkpointRowsExpired.Add(float64(removed))
	}
}

// RecordCheckpointSkipped 记录无法解码而被跳过的检查点行
func (c *Collector) RecordCheckpointSkipped(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.checkpointRowsSkipped.Add(float64(n))
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	if c == nil {
		return
	}
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
