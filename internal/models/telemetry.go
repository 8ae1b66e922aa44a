// Package models содержит структуры входных записей и производных результатов аналитики
package models

import (
	"errors"
	"math"
	"strings"
	"time"
)

// ErrInvalidRecord возвращается валидацией для некорректных входных записей
var ErrInvalidRecord = errors.New("invalid record")

// TelemetrySample представляет одно измерение телеметрии по тегу
type TelemetrySample struct {
	ID         string    `json:"id,omitempty"`
	Tag        string    `json:"tag"`
	Value      float64   `json:"value"`
	Timestamp  time.Time `json:"ts"`
	Unit       string    `json:"unit,omitempty"`
	Department string    `json:"department,omitempty"`
}

// Validate проверяет обязательные поля измерения
func (s TelemetrySample) Validate() error {
	switch {
	case strings.TrimSpace(s.Tag) == "":
		return invalid("telemetry", "tag is empty")
	case s.Timestamp.IsZero():
		return invalid("telemetry", "timestamp is missing")
	case math.IsNaN(s.Value) || math.IsInf(s.Value, 0):
		return invalid("telemetry", "value is not finite")
	}
	return nil
}

// TelemetryBatch представляет пакет измерений для массовой загрузки
type TelemetryBatch struct {
	Samples []TelemetrySample `json:"samples"`
}

func invalid(kind, reason string) error {
	return &RecordError{Kind: kind, Reason: reason}
}

// RecordError описывает причину отклонения записи
type RecordError struct {
	Kind   string
	Reason string
}

func (e *RecordError) Error() string {
	return e.Kind + ": " + e.Reason
}

// Is позволяет сравнивать с ErrInvalidRecord через errors.Is
func (e *RecordError) Is(target error) bool {
	return target == ErrInvalidRecord
}
