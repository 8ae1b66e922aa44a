package models

import (
	"math"
	"strings"
	"time"
)

// MaintenanceType тип события обслуживания
type MaintenanceType string

const (
	// Breakdown аварийный отказ
	Breakdown MaintenanceType = "BD"
	// Preventive плановое обслуживание
	Preventive MaintenanceType = "PM"
	// Corrective корректирующий ремонт
	Corrective MaintenanceType = "CM"
)

// Canonical приводит тип к одному из кодов BD/PM/CM.
// Для неизвестных значений возвращается пустая строка.
func (t MaintenanceType) Canonical() MaintenanceType {
	switch strings.ToUpper(strings.TrimSpace(string(t))) {
	case "BD", "BREAKDOWN":
		return Breakdown
	case "PM", "PREVENTIVE":
		return Preventive
	case "CM", "CORRECTIVE":
		return Corrective
	}
	return ""
}

// MaintenanceEvent представляет запись об обслуживании оборудования
type MaintenanceEvent struct {
	ID              string          `json:"id,omitempty"`
	AssetID         string          `json:"assetId"`
	Type            MaintenanceType `json:"type"`
	Reason          string          `json:"reason,omitempty"`
	Cause           string          `json:"cause,omitempty"`
	Fault           string          `json:"fault,omitempty"`
	OccurredAt      time.Time       `json:"occurredAt"`
	DowntimeMinutes float64         `json:"downtimeMins"`
	Severity        float64         `json:"severity"`
}

// ReasonText возвращает первое непустое из полей reason, cause, fault
func (e MaintenanceEvent) ReasonText() string {
	for _, s := range []string{e.Reason, e.Cause, e.Fault} {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// Validate проверяет обязательные поля события
func (e MaintenanceEvent) Validate() error {
	switch {
	case strings.TrimSpace(e.AssetID) == "":
		return invalid("maintenance", "assetId is empty")
	case e.Type.Canonical() == "":
		return invalid("maintenance", "unknown type "+string(e.Type))
	case e.OccurredAt.IsZero():
		return invalid("maintenance", "occurredAt is missing")
	case !nonNegative(e.DowntimeMinutes):
		return invalid("maintenance", "downtime must be a non-negative number")
	case !nonNegative(e.Severity):
		return invalid("maintenance", "severity must be a non-negative number")
	}
	return nil
}

// MaintenanceBatch представляет пакет событий обслуживания
type MaintenanceBatch struct {
	Events []MaintenanceEvent `json:"events"`
}

func nonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
