package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"ppms-analytics/internal/models"
)

const (
	// RecentEventsLimit количество последних событий в профиле
	RecentEventsLimit = 15
	// UnspecifiedReason причина отказа, если текст не указан
	UnspecifiedReason = "unspecified"

	riskPerBreakdown     = 12
	riskPerSeverityPoint = 5
	day                  = 24 * time.Hour
)

// AnalyzeReliability строит профиль надежности оборудования assetID по событиям
// обслуживания за последние windowDays дней. Для неизвестного оборудования
// или пустой истории возвращается нулевой профиль без ошибки.
func AnalyzeReliability(assetID string, events []models.MaintenanceEvent, opts ReliabilityOptions, now time.Time) (profile models.ReliabilityProfile, err error) {
	const op = "analyze reliability"
	defer recoverCompute(op, &err)

	opts = opts.Normalize()
	since := now.AddDate(0, 0, -opts.WindowDays)

	inWindow := make([]models.MaintenanceEvent, 0, len(events))
	skipped := 0
	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			skipped++
			continue
		}
		if ev.AssetID != assetID || ev.OccurredAt.Before(since) {
			continue
		}
		ev.Type = ev.Type.Canonical()
		inWindow = append(inWindow, ev)
	}
	sortEvents(inWindow)

	breakdowns := make([]models.MaintenanceEvent, 0)
	for _, ev := range inWindow {
		if ev.Type == models.Breakdown {
			breakdowns = append(breakdowns, ev)
		}
	}

	profile = models.ReliabilityProfile{
		AssetID:        assetID,
		WindowDays:     opts.WindowDays,
		FutureDays:     opts.FutureDays,
		BreakdownCount: len(breakdowns),
		WeeklySeries:   weeklySeries(breakdowns),
		RecentEvents:   recentEvents(inWindow, RecentEventsLimit),
		Skipped:        skipped,
	}
	profile.TopReason, profile.TopReasonCount = topReason(breakdowns)

	if mtbf, ok := meanTimeBetweenFailures(breakdowns); ok {
		last := breakdowns[len(breakdowns)-1].OccurredAt
		next := last.Add(time.Duration(mtbf * float64(day)))
		p, _ := PoissonExceedanceProbability(mtbf, float64(opts.FutureDays))
		profile.MTBFDays = &mtbf
		profile.PredictedNextDate = &next
		profile.FailureProbability = &p
	}

	var severity float64
	for _, ev := range inWindow {
		profile.TotalDowntimeMinutes += ev.DowntimeMinutes
		severity += ev.Severity
	}
	raw := float64(len(breakdowns)*riskPerBreakdown) + profile.TotalDowntimeMinutes/60 + severity*riskPerSeverityPoint
	if err := checkFinite(op, map[string]float64{"risk": raw}); err != nil {
		return models.ReliabilityProfile{}, err
	}
	profile.RiskScore = int(math.Min(100, math.Floor(raw+0.5)))

	profile.RecommendedActions = RecommendActions(profile.TopReason)

	if profile.FailureProbability != nil {
		if p := *profile.FailureProbability; p < 0 || p > 1 || math.IsNaN(p) {
			return models.ReliabilityProfile{}, &ComputeError{Op: op, Err: fmt.Errorf("failure probability %v out of range", p)}
		}
	}
	return profile, nil
}

// sortEvents упорядочивает события по времени; при совпадении времени по причине и ID,
// чтобы результат не зависел от порядка входных данных
func sortEvents(events []models.MaintenanceEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.Before(b.OccurredAt)
		}
		if ra, rb := normalizeReason(a.ReasonText()), normalizeReason(b.ReasonText()); ra != rb {
			return ra < rb
		}
		return a.ID < b.ID
	})
}

// weeklySeries группирует отказы по ISO-неделям в порядке возрастания
func weeklySeries(breakdowns []models.MaintenanceEvent) []models.WeeklyCount {
	type weekKey struct{ year, week int }
	counts := make(map[weekKey]int)
	keys := make([]weekKey, 0)
	for _, ev := range breakdowns {
		y, w := ev.OccurredAt.ISOWeek()
		k := weekKey{y, w}
		if _, seen := counts[k]; !seen {
			keys = append(keys, k)
		}
		counts[k]++
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		return keys[i].week < keys[j].week
	})

	series := make([]models.WeeklyCount, 0, len(keys))
	for _, k := range keys {
		series = append(series, models.WeeklyCount{
			Week:  fmt.Sprintf("%d-W%02d", k.year, k.week),
			Count: counts[k],
		})
	}
	return series
}

// topReason выбирает самую частую причину отказа.
// При равенстве побеждает причина, встретившаяся раньше (отказы упорядочены по времени).
func topReason(breakdowns []models.MaintenanceEvent) (string, int) {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, ev := range breakdowns {
		key := normalizeReason(ev.ReasonText())
		if key == "" {
			key = UnspecifiedReason
		}
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}

	best, bestCount := UnspecifiedReason, 0
	for _, key := range order {
		if counts[key] > bestCount {
			best, bestCount = key, counts[key]
		}
	}
	return best, bestCount
}

// meanTimeBetweenFailures среднее положительных интервалов между соседними отказами в днях
func meanTimeBetweenFailures(breakdowns []models.MaintenanceEvent) (float64, bool) {
	if len(breakdowns) < 2 {
		return 0, false
	}
	var sum float64
	n := 0
	for i := 1; i < len(breakdowns); i++ {
		delta := breakdowns[i].OccurredAt.Sub(breakdowns[i-1].OccurredAt)
		if delta <= 0 {
			continue
		}
		sum += float64(delta) / float64(day)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// recentEvents последние limit событий, новые первыми
func recentEvents(events []models.MaintenanceEvent, limit int) []models.RecentEvent {
	recent := make([]models.RecentEvent, 0, min(limit, len(events)))
	for i := len(events) - 1; i >= 0 && len(recent) < limit; i-- {
		ev := events[i]
		recent = append(recent, models.RecentEvent{
			Type:            ev.Type,
			When:            ev.OccurredAt,
			Reason:          ev.ReasonText(),
			DowntimeMinutes: ev.DowntimeMinutes,
			Severity:        ev.Severity,
		})
	}
	return recent
}
