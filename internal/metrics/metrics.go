// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// セッションストア、ファクト生成、HTTP層から利用する。
type MetricsCollector interface {
	RecordAuthAttempt(operation, outcome string)
	RecordFactRequest(outcome string, duration time.Duration)
	SubscriberAdded()
	SubscriberRemoved()
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authAttempts *prometheus.CounterVec
	factRequests *prometheus.CounterVec
	factLatency  prometheus.Histogram
	subscribers  prometheus.Gauge
	httpStatus   *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qredentials_auth_attempts_total",
			Help: "認証操作の試行数（操作・結果別）",
		}, []string{"operation", "outcome"}),
		factRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qredentials_fact_requests_total",
			Help: "ファクト生成リクエスト数（結果別）",
		}, []string{"outcome"}),
		factLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "qredentials_fact_latency_seconds",
			Help:    "ファクト生成のレイテンシ（秒）",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15},
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "qredentials_session_subscribers",
			Help: "セッション状態を購読中のストリーム数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qredentials_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.authAttempts,
		c.factRequests,
		c.factLatency,
		c.subscribers,
		c.httpStatus,
	)

	return c
}

// RecordAuthAttempt は認証操作の結果を記録する。
// operationはlogin/register/logout、outcomeはsuccessまたはエラー種別。
func (c *Collector) RecordAuthAttempt(operation, outcome string) {
	c.authAttempts.WithLabelValues(operation, outcome).Inc()
}

// RecordFactRequest はファクト生成の結果とレイテンシを記録する。
func (c *Collector) RecordFactRequest(outcome string, duration time.Duration) {
	c.factRequests.WithLabelValues(outcome).Inc()
	c.factLatency.Observe(duration.Seconds())
}

// SubscriberAdded は購読開始を記録する。
func (c *Collector) SubscriberAdded() {
	c.subscribers.Inc()
}

// SubscriberRemoved は購読終了を記録する。
func (c *Collector) SubscriberRemoved() {
	c.subscribers.Dec()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordAuthAttempt(string, string)        {}
func (Nop) RecordFactRequest(string, time.Duration) {}
func (Nop) SubscriberAdded()                        {}
func (Nop) SubscriberRemoved()                      {}
func (Nop) RecordHTTPStatus(int)                    {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
