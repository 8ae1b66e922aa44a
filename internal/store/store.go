// Package store реализует хранилище событий, из которого сервисный слой
// выбирает записи для аналитических движков
package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"ppms-analytics/internal/models"
)

// Виды записей, по которым ведутся счетчики загрузки
const (
	KindTelemetry    = "telemetry"
	KindMaintenance  = "maintenance"
	KindInventoryTxn = "inventory_txn"
	KindItem         = "item"
)

// ErrNotFound возвращается, если запрошенный снимок отсутствует
var ErrNotFound = errors.New("not found")

// EventStore упорядоченное по времени хранилище событий с фильтрацией по тегу, оборудованию и интервалу
type EventStore interface {
	AddTelemetry(ctx context.Context, samples []models.TelemetrySample) error
	AddMaintenance(ctx context.Context, events []models.MaintenanceEvent) error
	AddInventoryTxns(ctx context.Context, txns []models.InventoryTxn) error
	UpsertItems(ctx context.Context, items []models.ItemMaster) error

	// Telemetry возвращает измерения не старше since; пустой tags - все теги
	Telemetry(ctx context.Context, tags []string, since time.Time) ([]models.TelemetrySample, error)
	Maintenance(ctx context.Context, assetID string, since time.Time) ([]models.MaintenanceEvent, error)
	AllMaintenance(ctx context.Context, since time.Time) ([]models.MaintenanceEvent, error)
	InventoryTxns(ctx context.Context, since time.Time) ([]models.InventoryTxn, error)
	Items(ctx context.Context) ([]models.ItemMaster, error)

	// SaveSnapshot сохраняет произвольный результат под именем kind
	SaveSnapshot(ctx context.Context, kind string, v any, ttl time.Duration) error
	// LatestSnapshot читает последний снимок kind в dest и возвращает время сохранения
	LatestSnapshot(ctx context.Context, kind string, dest any) (time.Time, error)

	// IngestCounts возвращает количество загруженных записей по видам
	IngestCounts(ctx context.Context) (map[string]int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// ensureID присваивает записи идентификатор, если он не задан
func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

func sortTelemetry(s []models.TelemetrySample) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].Timestamp.Before(s[j].Timestamp) })
}

func sortMaintenance(s []models.MaintenanceEvent) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].OccurredAt.Before(s[j].OccurredAt) })
}

func sortTxns(s []models.InventoryTxn) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].At.Before(s[j].At) })
}
