// Package metrics 提供基于Prometheus的指标收集框架
//
// 指标覆盖三块：
// 1. HTTP请求（QPS、耗时、并发数）
// 2. 流通业务（借出/归还/预约、事务重试次数）
// 3. 对账任务（处理量、失败量）与通知发布
//
// 使用方式：启动时调用InitMetrics()，然后通过包级变量打点，
// /metrics端点由promhttp.Handler()暴露。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// initialized 标记是否已初始化（防止重复注册）
	initialized bool

	// HTTP请求相关指标

	// HTTPRequestsTotal HTTP请求总数（Counter）
	// 标签：method（GET/POST）、path（/api/v1/loans）、status（200/500）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDuration HTTP请求耗时（Histogram）
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestsInProgress 正在处理的HTTP请求数（Gauge）
	HTTPRequestsInProgress prometheus.Gauge

	// 流通业务指标

	// CheckoutsTotal 借出总数（Counter）
	// 标签：result（success/failure）、path（direct/request_approval）
	CheckoutsTotal *prometheus.CounterVec

	// ReturnsTotal 归还总数（Counter）
	ReturnsTotal prometheus.Counter

	// RenewalsTotal 续借总数（Counter）
	// 标签：result（success/failure）
	RenewalsTotal *prometheus.CounterVec

	// ReservationsActive 当前有效预约数（Gauge，粗粒度观测）
	ReservationsActive prometheus.Gauge

	// TxRetriesTotal 事务并发冲突自动重试次数（Counter）
	// 标签：op（checkout/return/approve等）
	TxRetriesTotal *prometheus.CounterVec

	// CheckoutDuration 借出事务耗时（Histogram）
	CheckoutDuration prometheus.Histogram

	// 对账任务指标

	// ReconcileProcessedTotal 对账处理的逾期借阅总数（Counter）
	ReconcileProcessedTotal prometheus.Counter

	// ReconcileFailuresTotal 对账单条处理失败总数（Counter）
	ReconcileFailuresTotal prometheus.Counter

	// ReconcileExpiredReservationsTotal 对账清理的过期预约总数（Counter）
	ReconcileExpiredReservationsTotal prometheus.Counter

	// 通知与熔断器指标

	// NotificationsPublishedTotal 通知事件发布总数（Counter）
	// 标签：kind（overdue/due_soon/reservation_ready/...）
	NotificationsPublishedTotal *prometheus.CounterVec

	// NotificationsDroppedTotal 通知事件丢弃总数（熔断/发布失败）
	NotificationsDroppedTotal prometheus.Counter

	// CircuitBreakerState 熔断器状态（0=CLOSED, 1=OPEN, 2=HALF_OPEN）
	CircuitBreakerState *prometheus.GaugeVec
)

// InitMetrics 初始化所有Prometheus指标
//
// 必须在程序启动时调用一次，用于注册所有指标到全局Registry。
// 1. 使用promauto.New*自动注册到默认Registry
// 2. Counter使用*Vec支持标签（多维度统计）
// 3. Histogram的Buckets根据业务场景定制
func InitMetrics() {
	// 防止重复初始化
	if initialized {
		return
	}
	initialized = true

	// HTTP请求指标
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP请求总数",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP请求耗时（秒）",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_progress",
			Help: "正在处理的HTTP请求数",
		},
	)

	// 流通业务指标
	CheckoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circulation_checkouts_total",
			Help: "借出总数",
		},
		[]string{"result", "path"}, // path区分直接借出与馆员审批
	)

	ReturnsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "circulation_returns_total",
			Help: "归还总数",
		},
	)

	RenewalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circulation_renewals_total",
			Help: "续借总数",
		},
		[]string{"result"},
	)

	ReservationsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "circulation_reservations_active",
			Help: "当前有效预约数（waiting+notified）",
		},
	)

	TxRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circulation_tx_retries_total",
			Help: "事务并发冲突自动重试次数",
		},
		[]string{"op"},
	)

	CheckoutDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "circulation_checkout_duration_seconds",
			Help: "借出事务耗时（秒）",
			// 借出涉及多行锁，耗时区间比普通查询宽
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
	)

	// 对账任务指标
	ReconcileProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconcile_processed_total",
			Help: "对账处理的逾期借阅总数",
		},
	)

	ReconcileFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconcile_failures_total",
			Help: "对账单条处理失败总数（失败不中断批次）",
		},
	)

	ReconcileExpiredReservationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconcile_expired_reservations_total",
			Help: "对账清理的过期已通知预约总数",
		},
	)

	// 通知与熔断器指标
	NotificationsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "通知事件发布总数",
		},
		[]string{"kind"},
	)

	NotificationsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_dropped_total",
			Help: "通知事件丢弃总数（熔断打开或发布失败）",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "熔断器状态（0=CLOSED, 1=OPEN, 2=HALF_OPEN）",
		},
		[]string{"name"},
	)
}
