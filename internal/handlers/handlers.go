// Package handlers содержит HTTP обработчики для API
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"ppms-analytics/internal/analytics"
	"ppms-analytics/internal/metrics"
	"ppms-analytics/internal/models"
	"ppms-analytics/internal/store"
)

// Options значения по умолчанию и ограничения сервисного слоя
type Options struct {
	Anomaly        analytics.AnomalyOptions
	Reliability    analytics.ReliabilityOptions
	Forecast       analytics.ForecastOptions
	TrendWeeks     int
	TrendLocation  *time.Location
	Workers        int
	RequestTimeout time.Duration
	SnapshotTTL    time.Duration
}

// DefaultOptions возвращает параметры по умолчанию
func DefaultOptions() Options {
	return Options{
		Anomaly:        analytics.DefaultAnomalyOptions(),
		Reliability:    analytics.DefaultReliabilityOptions(),
		Forecast:       analytics.DefaultForecastOptions(),
		TrendWeeks:     analytics.DefaultTrendWeeks,
		TrendLocation:  time.UTC,
		Workers:        runtime.NumCPU(),
		RequestTimeout: 10 * time.Second,
		SnapshotTTL:    24 * time.Hour,
	}
}

// Handler содержит зависимости для HTTP обработчиков
type Handler struct {
	store     store.EventStore
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
	startTime time.Time
}

// NewHandler создает новый обработчик
func NewHandler(st store.EventStore, opts Options, logger *zap.Logger) *Handler {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.TrendLocation == nil {
		opts.TrendLocation = time.UTC
	}
	if opts.TrendWeeks < 1 {
		opts.TrendWeeks = analytics.DefaultTrendWeeks
	}
	return &Handler{
		store:     st,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
		startTime: time.Now(),
	}
}

// Register регистрирует маршруты API
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/api/telemetry", h.instrument("/api/telemetry", h.IngestTelemetryHandler)).Methods(http.MethodPost)
	r.HandleFunc("/api/maintenance", h.instrument("/api/maintenance", h.IngestMaintenanceHandler)).Methods(http.MethodPost)
	r.HandleFunc("/api/inventory/txns", h.instrument("/api/inventory/txns", h.IngestInventoryTxnsHandler)).Methods(http.MethodPost)
	r.HandleFunc("/api/inventory/items", h.instrument("/api/inventory/items", h.UpsertItemsHandler)).Methods(http.MethodPost)

	r.HandleFunc("/api/anomaly/zscore", h.instrument("/api/anomaly/zscore", h.AnomalyZScoreHandler)).Methods(http.MethodGet)
	r.HandleFunc("/api/anomaly/counts", h.instrument("/api/anomaly/counts", h.AnomalyCountsHandler)).Methods(http.MethodGet)
	r.HandleFunc("/api/equipment/risk", h.instrument("/api/equipment/risk", h.FleetRiskHandler)).Methods(http.MethodGet)
	r.HandleFunc("/api/equipment/{id}/insights", h.instrument("/api/equipment/insights", h.EquipmentInsightsHandler)).Methods(http.MethodGet)
	r.HandleFunc("/api/dashboard/trend/breakdowns", h.instrument("/api/dashboard/trend/breakdowns", h.BreakdownTrendHandler)).Methods(http.MethodGet)
	r.HandleFunc("/api/forecast/inventory", h.instrument("/api/forecast/inventory", h.ForecastInventoryHandler)).Methods(http.MethodGet)
	r.HandleFunc("/api/forecast/inventory/latest", h.instrument("/api/forecast/inventory/latest", h.LatestForecastHandler)).Methods(http.MethodGet)

	r.HandleFunc("/health", h.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/stats", h.instrument("/stats", h.StatsHandler)).Methods(http.MethodGet)
}

// HealthHandler обрабатывает GET /health - проверка здоровья
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := models.HealthStatus{
		Status:    "healthy",
		Timestamp: h.now(),
		Store:     "connected",
		Uptime:    time.Since(h.startTime).String(),
	}
	code := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		status.Status = "degraded"
		status.Store = "disconnected"
		code = http.StatusServiceUnavailable
	}

	h.respondJSON(w, status, code)
}

// StatsHandler обрабатывает GET /stats - статистика загрузки
func (h *Handler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.storeContext(r)
	defer cancel()

	metrics.ActiveGoroutines.Set(float64(runtime.NumGoroutine()))

	counts, err := h.store.IngestCounts(ctx)
	if err != nil {
		h.storeFailure(w, "stats", "STATS_FAILED", err)
		return
	}

	h.respondJSON(w, map[string]interface{}{
		"ok":         true,
		"ingested":   counts,
		"goroutines": runtime.NumGoroutine(),
		"uptime":     time.Since(h.startTime).String(),
	}, http.StatusOK)
}

// storeContext ограничивает время обращения к хранилищу
func (h *Handler) storeContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.opts.RequestTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.opts.RequestTimeout)
}

// statusRecorder запоминает код ответа для метрик
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// instrument оборачивает обработчик метриками длительности и статуса
func (h *Handler) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		metrics.RequestDuration.WithLabelValues(endpoint, r.Method).Observe(time.Since(start).Seconds())
		metrics.RequestsTotal.WithLabelValues(endpoint, r.Method, strconv.Itoa(rec.status)).Inc()
	}
}

// computeFailure отвечает на сбой движка: 500 для ошибок вычисления, 400 для некорректных параметров
func (h *Handler) computeFailure(w http.ResponseWriter, engine, tag string, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, analytics.ErrComputation) {
		status = http.StatusInternalServerError
		h.logger.Error("analytics computation failed", zap.String("engine", engine), zap.Error(err))
	}
	h.respondFailure(w, tag, err, status)
}

// storeFailure отвечает на ошибку хранилища
func (h *Handler) storeFailure(w http.ResponseWriter, operation, tag string, err error) {
	metrics.StoreErrors.WithLabelValues(operation).Inc()
	h.logger.Error("event store failed", zap.String("operation", operation), zap.Error(err))
	h.respondFailure(w, tag, err, http.StatusInternalServerError)
}

func (h *Handler) respondFailure(w http.ResponseWriter, tag string, err error, status int) {
	h.respondJSON(w, map[string]interface{}{
		"ok":      false,
		"error":   tag,
		"details": err.Error(),
	}, status)
}

// respondJSON отправляет JSON ответ
func (h *Handler) respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode response", zap.Error(err))
	}
}

// respondError отправляет ошибку в JSON формате
func (h *Handler) respondError(w http.ResponseWriter, message string, status int) {
	h.respondJSON(w, map[string]interface{}{"ok": false, "error": message}, status)
}

// parseList разбирает список через запятую; пустой результат означает "все"
func parseList(q string) []string {
	out := make([]string, 0)
	for _, s := range strings.Split(q, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// queryFloat возвращает числовой параметр; отсутствующее, нечисловое или нулевое значение заменяется на def
func queryFloat(r *http.Request, key string, def float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(r.URL.Query().Get(key)), 64)
	if err != nil || v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

// queryInt возвращает целый параметр с отбрасыванием дробной части;
// ноль допустим, отсутствующее или нечисловое значение заменяется на def
func queryInt(r *http.Request, key string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	v = math.Trunc(v)
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return int(v)
}

// queryIntNonZero как queryInt, но ноль тоже заменяется на def
func queryIntNonZero(r *http.Request, key string, def int) int {
	if v := queryInt(r, key, def); v != 0 {
		return v
	}
	return def
}
