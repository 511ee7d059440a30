package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はアプリケーションのメトリクスを管理する
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// ホールド試行の総数（status: granted, conflict, lock_busy, error）
	HoldsTotal *prometheus.CounterVec

	// スイープで回収したホールドの総数
	SweptHoldsTotal prometheus.Counter

	// 決済試行の総数（outcome: succeeded, failed, reconciliation_required）
	PaymentAttemptsTotal *prometheus.CounterVec

	// 分散ロックの操作時間（operation: acquire/release, status: success/failed）
	DistributedLockDuration *prometheus.HistogramVec

	// 有効なホールド数
	ActiveHolds prometheus.Gauge
}

// New は新しいMetricsインスタンスを作成し、デフォルトレジストリに登録する
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HoldsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seat_holds_total",
				Help: "Total number of seat hold attempts",
			},
			[]string{"status"},
		),
		SweptHoldsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "swept_holds_total",
				Help: "Total number of expired holds reclaimed by the sweeper",
			},
		),
		PaymentAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_attempts_total",
				Help: "Total number of payment attempt outcomes",
			},
			[]string{"outcome"},
		),
		DistributedLockDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "distributed_lock_duration_seconds",
				Help:    "Time spent on distributed lock operations",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "status"},
		),
		ActiveHolds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_seat_holds",
				Help: "Current number of active seat holds",
			},
		),
	}

	// レジストリに登録
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HoldsTotal,
		m.SweptHoldsTotal,
		m.PaymentAttemptsTotal,
		m.DistributedLockDuration,
		m.ActiveHolds,
	)

	return m
}

// デフォルトのメトリクスインスタンス
var defaultMetrics *Metrics

// Init はデフォルトのメトリクスインスタンスを初期化する
func Init() *Metrics {
	defaultMetrics = New()
	return defaultMetrics
}

// Get はデフォルトのメトリクスインスタンスを返す
func Get() *Metrics {
	return defaultMetrics
}
