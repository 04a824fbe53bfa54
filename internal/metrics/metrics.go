// Package metrics は監査ログサービスのPrometheusメトリクスを提供する。
//
// テストで複数のサーバーを並行して起動できるよう、レジストリはグローバルではなく
// Metricsのインスタンスごとに保持する。nilのMetricsに対する記録は何もしない。
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nao1215/auditlog/pkg/audit"
)

// namespace は全メトリクス共通の名前空間。
const namespace = "auditlog"

// ストア操作の結果ラベル。
const (
	resultOK              = "ok"
	resultValidationError = "validation_error"
	resultStorageError    = "storage_error"
)

// Metrics はサービスが公開するメトリクス一式。
type Metrics struct {
	// registry はこのインスタンス専用のPrometheusレジストリ。
	registry *prometheus.Registry

	// HTTPRequestsTotal はメソッド・パス・ステータス別のHTTPリクエスト数。
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTPRequestDuration はHTTPリクエストの処理時間（秒）。
	HTTPRequestDuration *prometheus.HistogramVec
	// StoreOperationsTotal は操作・結果別のストア操作数。
	StoreOperationsTotal *prometheus.CounterVec
	// EventsAppendedTotal は追記に成功したイベント数。
	EventsAppendedTotal prometheus.Counter
}

// New は新しいレジストリにメトリクスを登録して返す。
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		StoreOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "Total number of event store operations by result",
			},
			[]string{"op", "result"},
		),
		EventsAppendedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_appended_total",
				Help:      "Total number of audit events appended",
			},
		),
	}
}

// Registry はメトリクスを登録したレジストリを返す。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler は/metrics用のHTTPハンドラを返す。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStore はストア操作の結果を記録する。
func (m *Metrics) ObserveStore(op string, err error) {
	if m == nil {
		return
	}
	m.StoreOperationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
}

// ObserveAppended は追記に成功したイベントを1件記録する。
func (m *Metrics) ObserveAppended() {
	if m == nil {
		return
	}
	m.EventsAppendedTotal.Inc()
}

// resultLabel はエラーの種類からresultラベルを決める。
func resultLabel(err error) string {
	switch {
	case err == nil:
		return resultOK
	case errors.Is(err, audit.ErrValidation):
		return resultValidationError
	default:
		return resultStorageError
	}
}
