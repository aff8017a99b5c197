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
// タスク実行層とハンドラー層から利用する。
type MetricsCollector interface {
	RecordSubmission(kind string)
	RecordCacheHit(kind string)
	RecordProviderCall(kind string)
	RecordProviderFailure(kind string, transient bool)
	RecordRetry(kind string)
	RecordProviderLatency(duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	submissions      *prometheus.CounterVec
	cacheHits        *prometheus.CounterVec
	providerCalls    *prometheus.CounterVec
	providerFailures *prometheus.CounterVec
	retries          *prometheus.CounterVec
	providerLatency  prometheus.Histogram
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "textcheck_job_submissions_total",
			Help: "投入されたジョブの合計数（種別別）",
		}, []string{"kind"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "textcheck_cache_hits_total",
			Help: "フィンガープリントキャッシュヒットの合計数（種別別）",
		}, []string{"kind"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "textcheck_provider_calls_total",
			Help: "プロバイダ呼び出しの合計数（種別別）",
		}, []string{"kind"}),
		providerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "textcheck_provider_failures_total",
			Help: "プロバイダ呼び出し失敗の合計数（障害分類別）",
		}, []string{"kind", "classification"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "textcheck_provider_retries_total",
			Help: "プロバイダ呼び出しリトライの合計数（種別別）",
		}, []string{"kind"}),
		providerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "textcheck_provider_latency_seconds",
			Help:    "プロバイダ呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "textcheck_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.submissions,
		c.cacheHits,
		c.providerCalls,
		c.providerFailures,
		c.retries,
		c.providerLatency,
		c.httpStatus,
	)

	return c
}

// RecordSubmission はジョブ投入を記録する。
func (c *Collector) RecordSubmission(kind string) {
	c.submissions.WithLabelValues(kind).Inc()
}

// RecordCacheHit はキャッシュヒットを記録する。
func (c *Collector) RecordCacheHit(kind string) {
	c.cacheHits.WithLabelValues(kind).Inc()
}

// RecordProviderCall はプロバイダ呼び出しを記録する。
func (c *Collector) RecordProviderCall(kind string) {
	c.providerCalls.WithLabelValues(kind).Inc()
}

// RecordProviderFailure はプロバイダ呼び出し失敗を記録する。
func (c *Collector) RecordProviderFailure(kind string, transient bool) {
	classification := "permanent"
	if transient {
		classification = "transient"
	}
	c.providerFailures.WithLabelValues(kind, classification).Inc()
}

// RecordRetry はリトライを記録する。
func (c *Collector) RecordRetry(kind string) {
	c.retries.WithLabelValues(kind).Inc()
}

// RecordProviderLatency はプロバイダ呼び出しのレイテンシを記録する。
func (c *Collector) RecordProviderLatency(duration time.Duration) {
	c.providerLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Noop は何も記録しないMetricsCollector実装。テストおよびメトリクス無効時用。
type Noop struct{}

func (Noop) RecordSubmission(kind string)                      {}
func (Noop) RecordCacheHit(kind string)                        {}
func (Noop) RecordProviderCall(kind string)                    {}
func (Noop) RecordProviderFailure(kind string, transient bool) {}
func (Noop) RecordRetry(kind string)                           {}
func (Noop) RecordProviderLatency(duration time.Duration)      {}
func (Noop) RecordHTTPStatus(statusCode int)                   {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
