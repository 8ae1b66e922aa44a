package handlers

import (
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ppms-analytics/internal/analytics"
	"ppms-analytics/internal/metrics"
	"ppms-analytics/internal/models"
	"ppms-analytics/internal/store"
)

// Имя снимка последнего прогноза
const forecastSnapshotKind = "forecast_inventory"

// anomalyOptions собирает параметры детектора из запроса
func (h *Handler) anomalyOptions(r *http.Request) analytics.AnomalyOptions {
	def := h.opts.Anomaly
	return analytics.AnomalyOptions{
		Tags:       parseList(r.URL.Query().Get("tags")),
		HoursBack:  queryIntNonZero(r, "hours", def.HoursBack),
		ZThreshold: queryFloat(r, "threshold", def.ZThreshold),
		Limit:      queryIntNonZero(r, "limit", def.Limit),
	}.Normalize()
}

// loadTelemetry выбирает измерения окна детектора
func (h *Handler) loadTelemetry(w http.ResponseWriter, r *http.Request, opts analytics.AnomalyOptions, now time.Time) ([]models.TelemetrySample, bool) {
	ctx, cancel := h.storeContext(r)
	defer cancel()

	since := now.Add(-time.Duration(opts.HoursBack) * time.Hour)
	samples, err := h.store.Telemetry(ctx, opts.Tags, since)
	if err != nil {
		h.storeFailure(w, "telemetry", "TELEMETRY_READ_FAILED", err)
		return nil, false
	}
	return samples, true
}

// AnomalyZScoreHandler обрабатывает GET /api/anomaly/zscore
func (h *Handler) AnomalyZScoreHandler(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	opts := h.anomalyOptions(r)
	samples, ok := h.loadTelemetry(w, r, opts, now)
	if !ok {
		return
	}

	start := time.Now()
	report, err := analytics.ComputeAnomalies(samples, opts, now)
	metrics.ObserveEngine("anomaly_zscore", time.Since(start).Seconds(), report.Skipped, err)
	if err != nil {
		h.computeFailure(w, "anomaly_zscore", "ANOMALY_ZSCORE_FAILED", err)
		return
	}
	metrics.AnomaliesFlagged.Add(float64(len(report.Points)))

	h.respondJSON(w, map[string]interface{}{
		"ok":        true,
		"hours":     report.HoursBack,
		"threshold": report.ZThreshold,
		"rows":      report.Points,
		"skipped":   report.Skipped,
	}, http.StatusOK)
}

// AnomalyCountsHandler обрабатывает GET /api/anomaly/counts
func (h *Handler) AnomalyCountsHandler(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	opts := h.anomalyOptions(r)
	samples, ok := h.loadTelemetry(w, r, opts, now)
	if !ok {
		return
	}

	start := time.Now()
	report, err := analytics.CountAnomalies(samples, opts, now)
	metrics.ObserveEngine("anomaly_counts", time.Since(start).Seconds(), report.Skipped, err)
	if err != nil {
		h.computeFailure(w, "anomaly_counts", "ANOMALY_COUNTS_FAILED", err)
		return
	}

	h.respondJSON(w, map[string]interface{}{
		"ok":        true,
		"hours":     report.HoursBack,
		"threshold": report.ZThreshold,
		"rows":      report.Rows,
		"skipped":   report.Skipped,
	}, http.StatusOK)
}

// reliabilityOptions собирает параметры анализа надежности из запроса
func (h *Handler) reliabilityOptions(r *http.Request) analytics.ReliabilityOptions {
	def := h.opts.Reliability
	return analytics.ReliabilityOptions{
		WindowDays: queryIntNonZero(r, "windowDays", def.WindowDays),
		FutureDays: queryIntNonZero(r, "futureDays", def.FutureDays),
	}.Normalize()
}

// EquipmentInsightsHandler обрабатывает GET /api/equipment/{id}/insights
func (h *Handler) EquipmentInsightsHandler(w http.ResponseWriter, r *http.Request) {
	assetID := strings.TrimSpace(mux.Vars(r)["id"])
	if assetID == "" {
		h.respondError(w, "asset id is required", http.StatusBadRequest)
		return
	}

	now := h.now()
	opts := h.reliabilityOptions(r)

	ctx, cancel := h.storeContext(r)
	defer cancel()
	events, err := h.store.Maintenance(ctx, assetID, now.AddDate(0, 0, -opts.WindowDays))
	if err != nil {
		h.storeFailure(w, "maintenance", "EQUIPMENT_INSIGHTS_FAILED", err)
		return
	}

	profile, err := h.analyze(assetID, events, opts, now)
	if err != nil {
		h.computeFailure(w, "reliability", "EQUIPMENT_INSIGHTS_FAILED", err)
		return
	}

	h.respondJSON(w, map[string]interface{}{
		"ok":      true,
		"profile": profile,
	}, http.StatusOK)
}

// analyze запускает анализ надежности с учетом метрик
func (h *Handler) analyze(assetID string, events []models.MaintenanceEvent, opts analytics.ReliabilityOptions, now time.Time) (models.ReliabilityProfile, error) {
	start := time.Now()
	profile, err := analytics.AnalyzeReliability(assetID, events, opts, now)
	metrics.ObserveEngine("reliability", time.Since(start).Seconds(), profile.Skipped, err)
	if err == nil {
		metrics.LastRiskScore.WithLabelValues(assetID).Set(float64(profile.RiskScore))
	}
	return profile, err
}

// FleetRiskHandler обрабатывает GET /api/equipment/risk - ранжирование оборудования по риску.
// Без параметра ids анализируются все единицы с событиями в окне.
func (h *Handler) FleetRiskHandler(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	opts := h.reliabilityOptions(r)
	since := now.AddDate(0, 0, -opts.WindowDays)

	ctx, cancel := h.storeContext(r)
	defer cancel()

	events, err := h.store.AllMaintenance(ctx, since)
	if err != nil {
		h.storeFailure(w, "maintenance", "EQUIPMENT_RISK_FAILED", err)
		return
	}

	byAsset := make(map[string][]models.MaintenanceEvent)
	for _, e := range events {
		byAsset[e.AssetID] = append(byAsset[e.AssetID], e)
	}

	ids := parseList(r.URL.Query().Get("ids"))
	if len(ids) == 0 {
		for id := range byAsset {
			if id != "" {
				ids = append(ids, id)
			}
		}
	}

	profiles := make([]models.ReliabilityProfile, len(ids))
	g := new(errgroup.Group)
	g.SetLimit(h.opts.Workers)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			p, err := h.analyze(id, byAsset[id], opts, now)
			if err != nil {
				return err
			}
			profiles[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		h.computeFailure(w, "reliability", "EQUIPMENT_RISK_FAILED", err)
		return
	}

	sort.SliceStable(profiles, func(i, j int) bool {
		if profiles[i].RiskScore != profiles[j].RiskScore {
			return profiles[i].RiskScore > profiles[j].RiskScore
		}
		return profiles[i].AssetID < profiles[j].AssetID
	})

	h.respondJSON(w, map[string]interface{}{
		"ok":    true,
		"count": len(profiles),
		"rows":  profiles,
	}, http.StatusOK)
}

// BreakdownTrendHandler обрабатывает GET /api/dashboard/trend/breakdowns
func (h *Handler) BreakdownTrendHandler(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	opts := analytics.DefaultTrendOptions()
	opts.Weeks = queryIntNonZero(r, "weeks", h.opts.TrendWeeks)
	if opts.Weeks < 1 {
		opts.Weeks = 1
	}
	if q := r.URL.Query(); q.Has("type") {
		opts.Type = strings.TrimSpace(q.Get("type"))
	}

	ctx, cancel := h.storeContext(r)
	defer cancel()
	events, err := h.store.AllMaintenance(ctx, now.AddDate(0, 0, -7*opts.Weeks-7))
	if err != nil {
		h.storeFailure(w, "maintenance", "TREND_FAILED", err)
		return
	}

	start := time.Now()
	trend, err := analytics.BreakdownTrend(events, opts, now, h.opts.TrendLocation)
	metrics.ObserveEngine("trend", time.Since(start).Seconds(), trend.Skipped, err)
	if err != nil {
		h.computeFailure(w, "trend", "TREND_FAILED", err)
		return
	}

	h.respondJSON(w, map[string]interface{}{
		"ok":      true,
		"weeks":   trend.Weeks,
		"counts":  trend.Counts,
		"skipped": trend.Skipped,
	}, http.StatusOK)
}

// forecastOptions собирает параметры прогноза из запроса
func (h *Handler) forecastOptions(r *http.Request) analytics.ForecastOptions {
	def := h.opts.Forecast
	return analytics.ForecastOptions{
		Days:            queryIntNonZero(r, "days", def.Days),
		Alpha:           queryFloat(r, "alpha", def.Alpha),
		ServiceLevel:    queryFloat(r, "service", def.ServiceLevel),
		DefaultLeadDays: queryIntNonZero(r, "lead", def.DefaultLeadDays),
		ReviewDays:      queryInt(r, "review", def.ReviewDays),
		ContinuousZ:     def.ContinuousZ,
	}.Normalize()
}

// ForecastInventoryHandler обрабатывает GET /api/forecast/inventory.
// При persist=1 результат сохраняется как последний снимок прогноза.
func (h *Handler) ForecastInventoryHandler(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	opts := h.forecastOptions(r)
	since := now.AddDate(0, 0, -opts.Days-1)

	ctx, cancel := h.storeContext(r)
	defer cancel()

	var (
		txns  []models.InventoryTxn
		items []models.ItemMaster
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txns, err = h.store.InventoryTxns(gctx, since)
		return err
	})
	g.Go(func() error {
		var err error
		items, err = h.store.Items(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		h.storeFailure(w, "inventory", "FORECAST_FAILED", err)
		return
	}

	start := time.Now()
	report, err := analytics.ForecastDemand(txns, items, opts, now)
	metrics.ObserveEngine("forecast", time.Since(start).Seconds(), report.Skipped, err)
	if err != nil {
		h.computeFailure(w, "forecast", "FORECAST_FAILED", err)
		return
	}

	if r.URL.Query().Get("persist") == "1" {
		if err := h.store.SaveSnapshot(ctx, forecastSnapshotKind, report, h.opts.SnapshotTTL); err != nil {
			metrics.StoreErrors.WithLabelValues("snapshot").Inc()
			h.logger.Warn("failed to persist forecast snapshot", zap.Error(err))
		}
	}

	h.respondJSON(w, map[string]interface{}{
		"ok":      true,
		"days":    report.Days,
		"count":   report.Count,
		"rows":    report.Rows,
		"skipped": report.Skipped,
	}, http.StatusOK)
}

// LatestForecastHandler обрабатывает GET /api/forecast/inventory/latest
func (h *Handler) LatestForecastHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.storeContext(r)
	defer cancel()

	var report models.ForecastReport
	savedAt, err := h.store.LatestSnapshot(ctx, forecastSnapshotKind, &report)
	if errors.Is(err, store.ErrNotFound) {
		h.respondJSON(w, map[string]interface{}{"ok": true, "summary": nil}, http.StatusOK)
		return
	}
	if err != nil {
		h.storeFailure(w, "snapshot", "FORECAST_LATEST_FAILED", err)
		return
	}

	h.respondJSON(w, map[string]interface{}{
		"ok":      true,
		"savedAt": savedAt,
		"summary": report,
	}, http.StatusOK)
}
