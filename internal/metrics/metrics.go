// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/myanimebot/internal/model"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 照合エンジン、配信、コマンド処理、サーキットブレーカーから利用する。
type MetricsCollector interface {
	RecordFetch(svc model.Service, result string, d time.Duration)
	RecordParseFailure(svc model.Service)
	RecordFeedsPublished(svc model.Service, count int)
	RecordCycle(svc model.Service, d time.Duration)
	RecordDelivery(result string)
	RecordCommand(command string)
	SetBreakerState(name string, state float64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	fetchTotal     *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
	parseFailures  *prometheus.CounterVec
	feedsPublished *prometheus.CounterVec
	deliveries     *prometheus.CounterVec
	cycleDuration  *prometheus.HistogramVec
	breakerState   *prometheus.GaugeVec
	commands       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "myanimebot_fetch_total",
			Help: "上流サービスへの取得リクエスト数",
		}, []string{"service", "result"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "myanimebot_fetch_duration_seconds",
			Help:    "上流サービスへの取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"service"}),
		parseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "myanimebot_parse_failures_total",
			Help: "アクティビティの解析失敗数",
		}, []string{"service"}),
		feedsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "myanimebot_feeds_published_total",
			Help: "配信したFeedの合計数",
		}, []string{"service"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "myanimebot_deliveries_total",
			Help: "チャンネルへの配信結果別の件数",
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "myanimebot_cycle_duration_seconds",
			Help:    "照合サイクルの所要時間（秒）",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"service"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "myanimebot_circuit_breaker_state",
			Help: "サーキットブレーカーの状態（0: closed, 1: half-open, 2: open）",
		}, []string{"name"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "myanimebot_commands_total",
			Help: "処理したチャットコマンド数",
		}, []string{"command"}),
	}

	reg.MustRegister(
		c.fetchTotal,
		c.fetchDuration,
		c.parseFailures,
		c.feedsPublished,
		c.deliveries,
		c.cycleDuration,
		c.breakerState,
		c.commands,
	)

	return c
}

// RecordFetch は取得結果とレイテンシを記録する。
func (c *Collector) RecordFetch(svc model.Service, result string, d time.Duration) {
	c.fetchTotal.WithLabelValues(string(svc), result).Inc()
	c.fetchDuration.WithLabelValues(string(svc)).Observe(d.Seconds())
}

// RecordParseFailure は解析失敗を記録する。
func (c *Collector) RecordParseFailure(svc model.Service) {
	c.parseFailures.WithLabelValues(string(svc)).Inc()
}

// RecordFeedsPublished は配信したFeed数を記録する。
func (c *Collector) RecordFeedsPublished(svc model.Service, count int) {
	c.feedsPublished.WithLabelValues(string(svc)).Add(float64(count))
}

// RecordCycle は照合サイクルの所要時間を記録する。
func (c *Collector) RecordCycle(svc model.Service, d time.Duration) {
	c.cycleDuration.WithLabelValues(string(svc)).Observe(d.Seconds())
}

// RecordDelivery はチャンネルへの配信結果を記録する。
func (c *Collector) RecordDelivery(result string) {
	c.deliveries.WithLabelValues(result).Inc()
}

// RecordCommand は処理したコマンドを記録する。
func (c *Collector) RecordCommand(command string) {
	c.commands.WithLabelValues(command).Inc()
}

// SetBreakerState はサーキットブレーカーの状態を記録する。
func (c *Collector) SetBreakerState(name string, state float64) {
	c.breakerState.WithLabelValues(name).Set(state)
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
