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

	// トランザクション操作の総数（operation: begin/commit/rollback, result: success/failed）
	TransactionsTotal *prometheus.CounterVec

	// BEGIN の試行回数の総数（result: success/failed）
	BeginAttemptsTotal *prometheus.CounterVec

	// プローブトランザクションの所要時間（result: success/failed）
	ProbeDuration *prometheus.HistogramVec

	// プールから貸し出し中の接続数
	CheckedOutConnections prometheus.Gauge
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
		TransactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txguard_transactions_total",
				Help: "Total number of transaction operations issued by guards",
			},
			[]string{"operation", "result"},
		),
		BeginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txguard_begin_attempts_total",
				Help: "Total number of begin-transaction attempts",
			},
			[]string{"result"},
		),
		ProbeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "txguard_probe_duration_seconds",
				Help:    "Time spent on guarded probe transactions",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
			},
			[]string{"result"},
		),
		CheckedOutConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "txguard_checked_out_connections",
				Help: "Current number of connections checked out from the pool",
			},
		),
	}

	// レジストリに登録
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.TransactionsTotal,
		m.BeginAttemptsTotal,
		m.ProbeDuration,
		m.CheckedOutConnections,
	)

	return m
}

// Result は成否をラベル値に変換する
func Result(ok bool) string {
	if ok {
		return "success"
	}
	return "failed"
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
