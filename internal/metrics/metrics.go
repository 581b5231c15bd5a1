package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var (
	// API 请求计数器
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	// API 请求响应时间
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 编辑操作数
	editsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "editor_edits_total",
			Help: "Total number of editor mutations by intent and result",
		},
		[]string{"intent", "result"}, // result: ok, not_found, rejected
	)

	// 撤销/重做次数
	historyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "editor_history_total",
			Help: "Total number of undo/redo calls",
		},
		[]string{"action", "applied"},
	)

	// 保存/发布次数
	savesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "editor_saves_total",
			Help: "Total number of template saves",
		},
		[]string{"kind", "result"}, // kind: draft, publish
	)

	// 打开的编辑会话数
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "editor_sessions_active",
			Help: "Number of open editor sessions",
		},
	)

	// WebSocket 订阅者数
	wsClientsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "editor_ws_clients_active",
			Help: "Number of connected websocket subscribers",
		},
	)

	// 数据库连接数
	databaseConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_active",
			Help: "Number of active database connections",
		},
	)

	databaseConnectionsIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)

var (
	once sync.Once
)

func init() {
	// 注册指标
	prometheus.MustRegister(apiRequestsTotal)
	prometheus.MustRegister(apiRequestDuration)
	prometheus.MustRegister(editsTotal)
	prometheus.MustRegister(historyTotal)
	prometheus.MustRegister(savesTotal)
	prometheus.MustRegister(sessionsActive)
	prometheus.MustRegister(wsClientsActive)
	prometheus.MustRegister(databaseConnectionsActive)
	prometheus.MustRegister(databaseConnectionsIdle)

	// 注册 Go 运行时指标（只注册一次）
	once.Do(func() {
		_ = prometheus.Register(prometheus.NewGoCollector())
		_ = prometheus.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	})
}

// Handler 返回 Prometheus 指标处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAPIRequest 记录 API 请求
func RecordAPIRequest(method, path string, status int, duration float64) {
	statusText := http.StatusText(status)
	if statusText == "" {
		statusText = fmt.Sprintf("%d", status)
	}
	apiRequestsTotal.WithLabelValues(method, path, statusText).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// SetActiveSessions 更新打开的会话数
func SetActiveSessions(n int) {
	sessionsActive.Set(float64(n))
}

// SetWebSocketClients 更新 WebSocket 订阅者数
func SetWebSocketClients(n int) {
	wsClientsActive.Set(float64(n))
}

// UpdateDatabaseConnections 更新数据库连接数指标
func UpdateDatabaseConnections(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	stats := sqlDB.Stats()
	databaseConnectionsActive.Set(float64(stats.OpenConnections - stats.Idle))
	databaseConnectionsIdle.Set(float64(stats.Idle))

	return nil
}
