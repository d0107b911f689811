// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// パイプラインやワーカーから利用する。
type MetricsCollector interface {
	RecordTaskDone()
	RecordTaskFailed(kind string)
	RecordMembersUpserted(count int)
	RecordRealEstateRows(count int)
	RecordEnrichmentFailure()
	RecordProcessingLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	taskDone          prometheus.Counter
	taskFailed        *prometheus.CounterVec
	membersUpserted   prometheus.Counter
	realEstateRows    prometheus.Counter
	enrichmentFail    prometheus.Counter
	processingLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		taskDone: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "famestate_task_done_total",
			Help: "処理が完了したタスクの合計数",
		}),
		taskFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "famestate_task_failed_total",
			Help: "エラー分類別のタスク失敗数",
		}, []string{"kind"}),
		membersUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "famestate_members_upserted_total",
			Help: "アップサートされた構成員の合計数",
		}),
		realEstateRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "famestate_real_estate_rows_total",
			Help: "保存された不動産オブジェクトの合計数",
		}),
		enrichmentFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "famestate_enrichment_failure_total",
			Help: "不動産照会失敗の合計数",
		}),
		processingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "famestate_processing_latency_seconds",
			Help:    "タスク処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.taskDone,
		c.taskFailed,
		c.membersUpserted,
		c.realEstateRows,
		c.enrichmentFail,
		c.processingLatency,
	)

	return c
}

// RecordTaskDone はタスク処理成功を記録する。
func (c *Collector) RecordTaskDone() {
	c.taskDone.Inc()
}

// RecordTaskFailed はタスク処理失敗をエラー分類付きで記録する。
func (c *Collector) RecordTaskFailed(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	c.taskFailed.WithLabelValues(kind).Inc()
}

// RecordMembersUpserted はアップサートされた構成員数を記録する。
func (c *Collector) RecordMembersUpserted(count int) {
	c.membersUpserted.Add(float64(count))
}

// RecordRealEstateRows は保存された不動産オブジェクト数を記録する。
func (c *Collector) RecordRealEstateRows(count int) {
	c.realEstateRows.Add(float64(count))
}

// RecordEnrichmentFailure は不動産照会失敗を記録する。
func (c *Collector) RecordEnrichmentFailure() {
	c.enrichmentFail.Inc()
}

// RecordProcessingLatency はタスク処理のレイテンシを記録する。
func (c *Collector) RecordProcessingLatency(duration time.Duration) {
	c.processingLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
