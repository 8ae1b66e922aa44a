// Package metrics реализует экспорт метрик в Prometheus
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики
var (
	// RequestsTotal общее количество запросов
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ppms_requests_total",
			Help: "Total number of requests processed",
		},
		[]string{"endpoint", "method", "status"},
	)

	// RequestDuration длительность запросов
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ppms_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"endpoint", "method"},
	)

	// RecordsIngested количество загруженных записей по видам
	RecordsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ppms_records_ingested_total",
			Help: "Total number of records accepted by ingestion endpoints",
		},
		[]string{"kind"},
	)

	// RecordsSkipped количество некорректных записей, отброшенных движками
	RecordsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ppms_records_skipped_total",
			Help: "Total number of malformed records skipped by analytics engines",
		},
		[]string{"engine"},
	)

	// AnomaliesFlagged количество найденных аномалий
	AnomaliesFlagged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ppms_anomalies_flagged_total",
			Help: "Total number of anomaly points returned by the z-score endpoint",
		},
	)

	// ComputationFailures сбои вычислений по движкам
	ComputationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ppms_computation_failures_total",
			Help: "Total number of failed analytics computations",
		},
		[]string{"engine"},
	)

	// EngineLatency время выполнения аналитики
	EngineLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ppms_engine_latency_seconds",
			Help:    "Analytics computation latency in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .5},
		},
		[]string{"engine"},
	)

	// StoreErrors ошибки обращения к хранилищу событий
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ppms_store_errors_total",
			Help: "Total number of event store errors",
		},
		[]string{"operation"},
	)

	// LastRiskScore последний рассчитанный индекс риска оборудования
	LastRiskScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ppms_asset_risk_score",
			Help: "Most recently computed risk score per asset",
		},
		[]string{"asset"},
	)

	// InFlightRequests количество обрабатываемых запросов
	InFlightRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ppms_in_flight_requests",
			Help: "Number of requests currently being served",
		},
	)

	// ActiveGoroutines количество активных горутин
	ActiveGoroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ppms_active_goroutines",
			Help: "Number of active goroutines",
		},
	)
)

// ObserveEngine фиксирует результат вызова движка
func ObserveEngine(engine string, seconds float64, skipped int, err error) {
	EngineLatency.WithLabelValues(engine).Observe(seconds)
	if skipped > 0 {
		RecordsSkipped.WithLabelValues(engine).Add(float64(skipped))
	}
	if err != nil {
		ComputationFailures.WithLabelValues(engine).Inc()
	}
}
