// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 検証リクエストの結果ラベル。
const (
	OutcomeCacheHit = "cache_hit"
	OutcomeVerified = "verified"
	OutcomeDegraded = "degraded"
	OutcomeError    = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 検証サービス、AIゲートウェイ、取り込みワーカーから利用する。
type MetricsCollector interface {
	RecordVerify(outcome string)
	RecordCacheLookup(hit bool)
	RecordUpstreamStatus(statusCode int)
	RecordUpstreamLatency(duration time.Duration)

	RecordFetchSuccess(feedURL string)
	RecordFetchFailure(feedURL string, reason string)
	RecordParseFailure(feedURL string)
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordSubjectsImported(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	verifyTotal     *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	upstreamStatus  *prometheus.CounterVec
	upstreamLatency prometheus.Histogram

	fetchSuccess     prometheus.Counter
	fetchFail        *prometheus.CounterVec
	parseFail        prometheus.Counter
	httpStatus       *prometheus.CounterVec
	fetchLatency     prometheus.Histogram
	subjectsImported prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		verifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "factcheck_verify_total",
			Help: "結果別の検証リクエスト数",
		}, []string{"outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "factcheck_cache_lookups_total",
			Help: "判定結果キャッシュの参照数（hit/miss）",
		}, []string{"result"}),
		upstreamStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "factcheck_upstream_status_total",
			Help: "AIプロバイダのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		upstreamLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "factcheck_upstream_latency_seconds",
			Help:    "AIプロバイダ呼び出しのレイテンシ（秒）",
			Buckets: []float64{1, 5, 10, 20, 30, 60, 90, 120, 180},
		}),
		fetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "factcheck_fetch_success_total",
			Help: "フィードフェッチ成功の合計数",
		}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "factcheck_fetch_fail_total",
			Help: "理由別のフィードフェッチ失敗数",
		}, []string{"reason"}),
		parseFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "factcheck_parse_fail_total",
			Help: "フィードパース失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "factcheck_fetch_http_status_total",
			Help: "フィードフェッチのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "factcheck_fetch_latency_seconds",
			Help:    "フィードフェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		subjectsImported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "factcheck_subjects_imported_total",
			Help: "フィードから取り込まれた記事の合計数",
		}),
	}

	reg.MustRegister(
		c.verifyTotal,
		c.cacheLookups,
		c.upstreamStatus,
		c.upstreamLatency,
		c.fetchSuccess,
		c.fetchFail,
		c.parseFail,
		c.httpStatus,
		c.fetchLatency,
		c.subjectsImported,
	)

	return c
}

// RecordVerify は検証リクエストの結果を記録する。
func (c *Collector) RecordVerify(outcome string) {
	c.verifyTotal.WithLabelValues(outcome).Inc()
}

// RecordCacheLookup はキャッシュ参照のヒット/ミスを記録する。
func (c *Collector) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

// RecordUpstreamStatus はAIプロバイダのHTTPステータスコードを記録する。
// 通信エラーの場合は0を渡す。
func (c *Collector) RecordUpstreamStatus(statusCode int) {
	c.upstreamStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordUpstreamLatency はAIプロバイダ呼び出しのレイテンシを記録する。
func (c *Collector) RecordUpstreamLatency(duration time.Duration) {
	c.upstreamLatency.Observe(duration.Seconds())
}

// RecordFetchSuccess はフェッチ成功を記録する。
func (c *Collector) RecordFetchSuccess(feedURL string) {
	c.fetchSuccess.Inc()
}

// RecordFetchFailure はフェッチ失敗を記録する。
func (c *Collector) RecordFetchFailure(feedURL string, reason string) {
	c.fetchFail.WithLabelValues(reason).Inc()
}

// RecordParseFailure はパース失敗を記録する。
func (c *Collector) RecordParseFailure(feedURL string) {
	c.parseFail.Inc()
}

// RecordHTTPStatus はフィードフェッチのHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はフェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordSubjectsImported は取り込まれた記事数を記録する。
func (c *Collector) RecordSubjectsImported(count int) {
	c.subjectsImported.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var _ MetricsCollector = (*Collector)(nil)
