package analytics

import "math"

// Границы и значения по умолчанию параметров движков.
// Значения вне диапазона молча ограничиваются, а не отклоняются.
const (
	DefaultHoursBack  = 24
	MinHoursBack      = 1
	MaxHoursBack      = 168
	DefaultZThreshold = 3.0
	MinZThreshold     = 0.5
	MaxZThreshold     = 10.0
	DefaultLimit      = 200
	MinLimit          = 1
	MaxLimit          = 2000

	DefaultWindowDays = 180
	MinWindowDays     = 30
	DefaultFutureDays = 30
	MinFutureDays     = 7

	DefaultTrendWeeks = 8

	DefaultForecastDays = 365
	MinForecastDays     = 7
	DefaultAlpha        = 0.35
	DefaultServiceLevel = 0.95
	DefaultLeadDays     = 7
	MinLeadDays         = 1
	DefaultReviewDays   = 7
)

// AnomalyOptions параметры детектора аномалий.
// Пустой Tags означает все теги в окне.
type AnomalyOptions struct {
	Tags       []string
	HoursBack  int
	ZThreshold float64
	Limit      int
}

// DefaultAnomalyOptions возвращает параметры по умолчанию
func DefaultAnomalyOptions() AnomalyOptions {
	return AnomalyOptions{
		HoursBack:  DefaultHoursBack,
		ZThreshold: DefaultZThreshold,
		Limit:      DefaultLimit,
	}
}

// Normalize ограничивает параметры допустимыми диапазонами
func (o AnomalyOptions) Normalize() AnomalyOptions {
	o.HoursBack = clampInt(o.HoursBack, MinHoursBack, MaxHoursBack)
	o.ZThreshold = clampFloat(o.ZThreshold, MinZThreshold, MaxZThreshold, DefaultZThreshold)
	o.Limit = clampInt(o.Limit, MinLimit, MaxLimit)
	return o
}

// ReliabilityOptions параметры анализа надежности
type ReliabilityOptions struct {
	WindowDays int
	FutureDays int
}

// DefaultReliabilityOptions возвращает параметры по умолчанию
func DefaultReliabilityOptions() ReliabilityOptions {
	return ReliabilityOptions{WindowDays: DefaultWindowDays, FutureDays: DefaultFutureDays}
}

// Normalize ограничивает параметры снизу
func (o ReliabilityOptions) Normalize() ReliabilityOptions {
	o.WindowDays = max(o.WindowDays, MinWindowDays)
	o.FutureDays = max(o.FutureDays, MinFutureDays)
	return o
}

// ForecastOptions параметры прогноза складской потребности
type ForecastOptions struct {
	Days            int
	Alpha           float64
	ServiceLevel    float64
	DefaultLeadDays int
	ReviewDays      int
	// ContinuousZ включает непрерывный квантиль нормального распределения
	// вместо ступенчатой таблицы уровней сервиса.
	ContinuousZ bool
}

// DefaultForecastOptions возвращает параметры по умолчанию
func DefaultForecastOptions() ForecastOptions {
	return ForecastOptions{
		Days:            DefaultForecastDays,
		Alpha:           DefaultAlpha,
		ServiceLevel:    DefaultServiceLevel,
		DefaultLeadDays: DefaultLeadDays,
		ReviewDays:      DefaultReviewDays,
	}
}

// Normalize ограничивает параметры допустимыми диапазонами
func (o ForecastOptions) Normalize() ForecastOptions {
	o.Days = max(o.Days, MinForecastDays)
	if math.IsNaN(o.Alpha) || o.Alpha <= 0 {
		o.Alpha = DefaultAlpha
	}
	o.Alpha = math.Min(o.Alpha, 1)
	o.ServiceLevel = clampFloat(o.ServiceLevel, 0, 0.999, DefaultServiceLevel)
	o.DefaultLeadDays = max(o.DefaultLeadDays, MinLeadDays)
	o.ReviewDays = max(o.ReviewDays, 0)
	return o
}

// zMultiplier выбирает z по уровню сервиса
func (o ForecastOptions) zMultiplier() float64 {
	if o.ContinuousZ {
		return ServiceLevelToZContinuous(o.ServiceLevel)
	}
	return ServiceLevelToZ(o.ServiceLevel)
}

// TrendOptions параметры понедельного тренда.
// Type пустой - все типы событий.
type TrendOptions struct {
	Weeks int
	Type  string
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func clampFloat(v, lo, hi, fallback float64) float64 {
	if math.IsNaN(v) {
		return fallback
	}
	return math.Min(math.Max(v, lo), hi)
}

// DefaultTrendOptions возвращает параметры по умолчанию: 8 недель, только отказы
func DefaultTrendOptions() TrendOptions {
	return TrendOptions{Weeks: DefaultTrendWeeks, Type: "BD"}
}
