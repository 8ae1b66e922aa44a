package analytics

import (
	"math"
	"sort"
	"strings"
	"time"

	"ppms-analytics/internal/models"
)

// maxRunoutDays горизонт, дальше которого дата исчерпания не рассчитывается
const maxRunoutDays = 100 * 365

// consumptionTypes типы транзакций, которые считаются расходом
var consumptionTypes = map[string]struct{}{
	"ISSUE":    {},
	"CONSUME":  {},
	"OUT":      {},
	"WITHDRAW": {},
}

// IsConsumption сообщает, является ли транзакция расходом:
// тип из канонического набора или отрицательное количество
func IsConsumption(txn models.InventoryTxn) bool {
	if _, ok := consumptionTypes[strings.ToUpper(strings.TrimSpace(txn.Type))]; ok {
		return true
	}
	return txn.Qty < 0
}

// AggregateConsumption суммирует расход по позиции и календарному дню (UTC)
// для транзакций не старше since. Возвращает записи и число отброшенных транзакций.
func AggregateConsumption(txns []models.InventoryTxn, since time.Time) ([]models.ConsumptionRecord, int) {
	type dayKey struct {
		item string
		date time.Time
	}
	totals := make(map[dayKey]float64)
	keys := make([]dayKey, 0)
	skipped := 0
	for _, txn := range txns {
		if err := txn.Validate(); err != nil {
			skipped++
			continue
		}
		if txn.At.Before(since) || !IsConsumption(txn) {
			continue
		}
		k := dayKey{item: txn.ItemID, date: dayStart(txn.At)}
		if _, seen := totals[k]; !seen {
			keys = append(keys, k)
		}
		totals[k] += math.Abs(txn.Qty)
	}

	records := make([]models.ConsumptionRecord, 0, len(keys))
	for _, k := range keys {
		records = append(records, models.ConsumptionRecord{ItemID: k.item, Date: k.date, Quantity: totals[k]})
	}
	return records, skipped
}

// ForecastDemand классифицирует транзакции, агрегирует дневной расход и строит прогноз
func ForecastDemand(txns []models.InventoryTxn, items []models.ItemMaster, opts ForecastOptions, now time.Time) (models.ForecastReport, error) {
	opts = opts.Normalize()
	records, skipped := AggregateConsumption(txns, now.AddDate(0, 0, -opts.Days))
	report, err := ForecastFromConsumption(records, items, opts, now)
	if err != nil {
		return models.ForecastReport{}, err
	}
	report.Skipped += skipped
	return report, nil
}

// ForecastFromConsumption строит прогноз по уже агрегированному дневному расходу.
// Строки отсортированы по срочности: onHand - reorderPoint по возрастанию.
func ForecastFromConsumption(records []models.ConsumptionRecord, items []models.ItemMaster, opts ForecastOptions, now time.Time) (report models.ForecastReport, err error) {
	const op = "forecast demand"
	defer recoverCompute(op, &err)

	opts = opts.Normalize()
	since := dayStart(now.AddDate(0, 0, -opts.Days))

	series := make(map[string][]models.ConsumptionRecord)
	skipped := 0
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			skipped++
			continue
		}
		if rec.Date.Before(since) {
			continue
		}
		series[rec.ItemID] = append(series[rec.ItemID], rec)
	}

	masters := make(map[string]models.ItemMaster, len(items))
	for _, it := range items {
		masters[it.ID] = it
	}

	z := opts.zMultiplier()
	rows := make([]models.ForecastRow, 0, len(series))
	for itemID, recs := range series {
		row, err := forecastItem(itemID, recs, masters[itemID], opts, z, now)
		if err != nil {
			return models.ForecastReport{}, err
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].UrgencyPriority != rows[j].UrgencyPriority {
			return rows[i].UrgencyPriority < rows[j].UrgencyPriority
		}
		return rows[i].ItemID < rows[j].ItemID
	})

	return models.ForecastReport{
		Days:    opts.Days,
		Count:   len(rows),
		Rows:    rows,
		Skipped: skipped,
	}, nil
}

func forecastItem(itemID string, recs []models.ConsumptionRecord, item models.ItemMaster, opts ForecastOptions, z float64, now time.Time) (models.ForecastRow, error) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Date.Before(recs[j].Date)
	})
	values := make([]float64, len(recs))
	for i, r := range recs {
		values[i] = r.Quantity
	}

	avgDaily := Mean(values)
	stdDev := PopulationStdDev(values)
	smoothed := avgDaily
	if len(values) > 0 {
		smoothed = ExponentialSmooth(values, opts.Alpha)
	}

	lead := float64(opts.DefaultLeadDays)
	if item.LeadTimeDays != nil && *item.LeadTimeDays >= 0 && !math.IsInf(*item.LeadTimeDays, 0) {
		lead = *item.LeadTimeDays
	}

	safety := z * stdDev * math.Sqrt(lead)
	rop := smoothed*lead + safety
	onHand := item.OnHandQty()
	reorderQty := max(0, ceilQty(rop+smoothed*float64(opts.ReviewDays)-onHand))

	if err := checkFinite("forecast demand", map[string]float64{
		"avgDaily": avgDaily, "stdDev": stdDev, "smoothedDaily": smoothed,
		"safetyStock": safety, "reorderPoint": rop,
	}); err != nil {
		return models.ForecastRow{}, err
	}

	row := models.ForecastRow{
		ItemID:          itemID,
		Code:            item.Code,
		Name:            item.Name,
		OnHand:          onHand,
		AvgDaily:        round2(avgDaily),
		SmoothedDaily:   round2(smoothed),
		StdDev:          round2(stdDev),
		LeadTimeDays:    lead,
		SafetyStock:     ceilQty(safety),
		ReorderPoint:    ceilQty(rop),
		ReorderQty:      reorderQty,
		UrgencyPriority: onHand - rop,
	}

	if smoothed > 0 {
		days := onHand / smoothed
		rounded := round2(days)
		row.RunoutDays = &rounded
		if days >= 0 && days <= maxRunoutDays {
			whole := math.Floor(days)
			at := now.AddDate(0, 0, int(whole)).Add(time.Duration((days - whole) * float64(day)))
			row.RunoutDate = &at
		}
	}
	return row, nil
}

// dayStart полночь календарного дня t в UTC
func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
