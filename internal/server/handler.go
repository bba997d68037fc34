package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/a2aengine/internal/metrics"
)

// =============================================================================
// 🏥 健康检查与指标端点
// =============================================================================

// HealthCheck 单项健康检查
type HealthCheck func(ctx context.Context) error

// HandlerOptions 运维端点配置
type HandlerOptions struct {
	// 健康检查项，键为检查名
	Checks map[string]HealthCheck

	// 单项检查超时
	CheckTimeout time.Duration

	// 运行时信息，附加到 /health 响应
	Details func() map[string]any

	// 指标来源，为空时不注册 /metrics
	Gatherer prometheus.Gatherer

	// 记录 HTTP 请求指标
	Metrics *metrics.Collector

	Version string
}

// HealthResponse /health 响应体
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
	Details map[string]any    `json:"details,omitempty"`
}

// NewHandler 创建 /health 与 /metrics 路由
func NewHandler(opts HandlerOptions, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = 2 * time.Second
	}
	logger = logger.With(zap.String("component", "ops_handler"))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler(opts, logger))
	if opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{
			ErrorLog: zap.NewStdLog(logger),
		}))
	}
	return withMetrics(mux, opts.Metrics)
}

func healthHandler(opts HandlerOptions, logger *zap.Logger) http.HandlerFunc {
	names := make([]string, 0, len(opts.Checks))
	for name := range opts.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:  "healthy",
			Version: opts.Version,
		}
		code := http.StatusOK

		if len(names) > 0 {
			resp.Checks = make(map[string]string, len(names))
		}
		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), opts.CheckTimeout)
			err := opts.Checks[name](ctx)
			cancel()

			if err != nil {
				logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
				resp.Checks[name] = err.Error()
				resp.Status = "unhealthy"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		if opts.Details != nil {
			resp.Details = opts.Details()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Debug("failed to write health response", zap.Error(err))
		}
	}
}

// statusRecorder 记录响应状态码
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func withMetrics(next http.Handler, collector *metrics.Collector) http.Handler {
	if collector == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// 使用路由模式作为 label，避免任意路径撑爆基数
		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		collector.RecordHTTPRequest(r.Method, path, rec.status, time.Since(start))
	})
}
