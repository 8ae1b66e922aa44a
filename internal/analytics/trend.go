package analytics

import (
	"fmt"
	"time"

	"ppms-analytics/internal/models"
)

// BreakdownTrend строит непрерывный ряд понедельных счетчиков за последние Weeks недель.
// Недели начинаются с понедельника в часовом поясе loc (nil - UTC), пустые недели
// заполняются нулями, подписи имеют вид "Wk <ISO-неделя>".
func BreakdownTrend(events []models.MaintenanceEvent, opts TrendOptions, now time.Time, loc *time.Location) (trend models.BreakdownTrend, err error) {
	defer recoverCompute("breakdown trend", &err)

	if loc == nil {
		loc = time.UTC
	}
	weeks := max(opts.Weeks, 1)
	wantType := models.MaintenanceType(opts.Type).Canonical()
	if opts.Type != "" && wantType == "" {
		return models.BreakdownTrend{}, fmt.Errorf("unknown maintenance type %q", opts.Type)
	}

	now = now.In(loc)
	since := now.AddDate(0, 0, -7*weeks)
	start := mondayOf(now.AddDate(0, 0, -7*(weeks-1)))

	trend = models.BreakdownTrend{
		Weeks:  make([]string, weeks),
		Counts: make([]int, weeks),
	}
	for i := range trend.Weeks {
		_, w := start.AddDate(0, 0, 7*i).ISOWeek()
		trend.Weeks[i] = fmt.Sprintf("Wk %d", w)
	}

	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			trend.Skipped++
			continue
		}
		if ev.OccurredAt.Before(since) {
			continue
		}
		if wantType != "" && ev.Type.Canonical() != wantType {
			continue
		}
		idx := daysBetween(start, mondayOf(ev.OccurredAt.In(loc))) / 7
		if idx >= 0 && idx < weeks {
			trend.Counts[idx]++
		}
	}
	return trend, nil
}

// mondayOf возвращает полночь понедельника недели, содержащей t, как дату в UTC
func mondayOf(t time.Time) time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// daysBetween число календарных дней между двумя датами в UTC
func daysBetween(from, to time.Time) int {
	d := to.Sub(from) / day
	return int(d)
}
