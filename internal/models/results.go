package models

import "time"

// AnomalyPoint измерение, чей z-score превысил порог
type AnomalyPoint struct {
	Tag       string    `json:"tag"`
	Timestamp time.Time `json:"ts"`
	Value     float64   `json:"value"`
	Z         float64   `json:"z"`
	Mean      float64   `json:"mean"`
	Std       float64   `json:"std"`
}

// AnomalyReport результат поиска аномалий (точечное представление)
type AnomalyReport struct {
	HoursBack  int            `json:"hours"`
	ZThreshold float64        `json:"threshold"`
	Points     []AnomalyPoint `json:"rows"`
	Skipped    int            `json:"skipped"`
}

// TagAnomalyCount количество аномалий по тегу
type TagAnomalyCount struct {
	Tag       string `json:"tag"`
	Anomalies int    `json:"anomalies"`
	Total     int    `json:"total"`
}

// AnomalyCountReport результат подсчета аномалий по тегам
type AnomalyCountReport struct {
	HoursBack  int               `json:"hours"`
	ZThreshold float64           `json:"threshold"`
	Rows       []TagAnomalyCount `json:"rows"`
	Skipped    int               `json:"skipped"`
}

// WeeklyCount количество отказов за ISO-неделю
type WeeklyCount struct {
	Week  string `json:"week"`
	Count int    `json:"count"`
}

// RecentEvent сокращенное представление события обслуживания
type RecentEvent struct {
	Type            MaintenanceType `json:"type"`
	When            time.Time       `json:"when"`
	Reason          string          `json:"reason"`
	DowntimeMinutes float64         `json:"downtimeMins"`
	Severity        float64         `json:"severity"`
}

// ReliabilityProfile показатели надежности оборудования
type ReliabilityProfile struct {
	AssetID              string        `json:"assetId"`
	WindowDays           int           `json:"windowDays"`
	FutureDays           int           `json:"futureDays"`
	BreakdownCount       int           `json:"breakdowns"`
	MTBFDays             *float64      `json:"mtbfDays"`
	TopReason            string        `json:"topReason"`
	TopReasonCount       int           `json:"topReasonCount"`
	FailureProbability   *float64      `json:"failureProbability"`
	PredictedNextDate    *time.Time    `json:"predictedNextDate"`
	TotalDowntimeMinutes float64       `json:"downtimeMins"`
	RiskScore            int           `json:"riskScore"`
	WeeklySeries         []WeeklyCount `json:"series"`
	RecommendedActions   []string      `json:"actions"`
	RecentEvents         []RecentEvent `json:"recent"`
	Skipped              int           `json:"skipped"`
}

// BreakdownTrend понедельный тренд событий обслуживания
type BreakdownTrend struct {
	Weeks   []string `json:"weeks"`
	Counts  []int    `json:"counts"`
	Skipped int      `json:"skipped"`
}

// ForecastRow прогноз потребности по складской позиции
type ForecastRow struct {
	ItemID          string     `json:"itemId"`
	Code            string     `json:"code"`
	Name            string     `json:"name"`
	OnHand          float64    `json:"onHand"`
	AvgDaily        float64    `json:"avgDaily"`
	SmoothedDaily   float64    `json:"smoothedDaily"`
	StdDev          float64    `json:"sd"`
	LeadTimeDays    float64    `json:"leadTimeDays"`
	SafetyStock     int        `json:"safetyStock"`
	ReorderPoint    int        `json:"reorderPoint"`
	ReorderQty      int        `json:"reorderQty"`
	RunoutDays      *float64   `json:"runoutDays"`
	RunoutDate      *time.Time `json:"runoutDate"`
	UrgencyPriority float64    `json:"priority"`
}

// ForecastReport результат прогноза по всем позициям
type ForecastReport struct {
	Days    int           `json:"days"`
	Count   int           `json:"count"`
	Rows    []ForecastRow `json:"rows"`
	Skipped int           `json:"skipped"`
}

// HealthStatus представляет статус здоровья сервиса
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Store     string    `json:"store"`
	Uptime    string    `json:"uptime"`
}
