package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ppms-analytics/internal/models"
)

type snapshot struct {
	data    []byte
	savedAt time.Time
	expires time.Time
}

// MemoryStore хранит события в памяти процесса.
// Используется, когда Redis недоступен, и в тестах.
type MemoryStore struct {
	mu          sync.RWMutex
	telemetry   []models.TelemetrySample
	maintenance []models.MaintenanceEvent
	txns        []models.InventoryTxn
	items       map[string]models.ItemMaster
	snapshots   map[string]snapshot
	counters    map[string]int64
	now         func() time.Time
}

// NewMemoryStore создает пустое хранилище в памяти
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:     make(map[string]models.ItemMaster),
		snapshots: make(map[string]snapshot),
		counters:  make(map[string]int64),
		now:       time.Now,
	}
}

func (s *MemoryStore) AddTelemetry(_ context.Context, samples []models.TelemetrySample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, smp := range samples {
		ensureID(&smp.ID)
		s.telemetry = append(s.telemetry, smp)
	}
	s.counters[KindTelemetry] += int64(len(samples))
	return nil
}

func (s *MemoryStore) AddMaintenance(_ context.Context, events []models.MaintenanceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		ensureID(&ev.ID)
		s.maintenance = append(s.maintenance, ev)
	}
	s.counters[KindMaintenance] += int64(len(events))
	return nil
}

func (s *MemoryStore) AddInventoryTxns(_ context.Context, txns []models.InventoryTxn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, txn := range txns {
		ensureID(&txn.ID)
		s.txns = append(s.txns, txn)
	}
	s.counters[KindInventoryTxn] += int64(len(txns))
	return nil
}

func (s *MemoryStore) UpsertItems(_ context.Context, items []models.ItemMaster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		if it.ID == "" {
			return fmt.Errorf("item without id: %w", models.ErrInvalidRecord)
		}
		s.items[it.ID] = it
	}
	s.counters[KindItem] += int64(len(items))
	return nil
}

func (s *MemoryStore) Telemetry(_ context.Context, tags []string, since time.Time) ([]models.TelemetrySample, error) {
	wanted := make(map[string]bool, len(tags))
	for _, t := range tags {
		wanted[t] = true
	}

	s.mu.RLock()
	out := make([]models.TelemetrySample, 0)
	for _, smp := range s.telemetry {
		if smp.Timestamp.Before(since) || (len(wanted) > 0 && !wanted[smp.Tag]) {
			continue
		}
		out = append(out, smp)
	}
	s.mu.RUnlock()

	sortTelemetry(out)
	return out, nil
}

func (s *MemoryStore) Maintenance(_ context.Context, assetID string, since time.Time) ([]models.MaintenanceEvent, error) {
	return s.maintenanceWhere(func(ev models.MaintenanceEvent) bool {
		return ev.AssetID == assetID && !ev.OccurredAt.Before(since)
	}), nil
}

func (s *MemoryStore) AllMaintenance(_ context.Context, since time.Time) ([]models.MaintenanceEvent, error) {
	return s.maintenanceWhere(func(ev models.MaintenanceEvent) bool {
		return !ev.OccurredAt.Before(since)
	}), nil
}

func (s *MemoryStore) maintenanceWhere(keep func(models.MaintenanceEvent) bool) []models.MaintenanceEvent {
	s.mu.RLock()
	out := make([]models.MaintenanceEvent, 0)
	for _, ev := range s.maintenance {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	s.mu.RUnlock()

	sortMaintenance(out)
	return out
}

func (s *MemoryStore) InventoryTxns(_ context.Context, since time.Time) ([]models.InventoryTxn, error) {
	s.mu.RLock()
	out := make([]models.InventoryTxn, 0)
	for _, txn := range s.txns {
		if !txn.At.Before(since) {
			out = append(out, txn)
		}
	}
	s.mu.RUnlock()

	sortTxns(out)
	return out, nil
}

func (s *MemoryStore) Items(_ context.Context) ([]models.ItemMaster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ItemMaster, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it)
	}
	return out, nil
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, kind string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	snap := snapshot{data: data, savedAt: s.now()}
	if ttl > 0 {
		snap.expires = snap.savedAt.Add(ttl)
	}
	s.mu.Lock()
	s.snapshots[kind] = snap
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) LatestSnapshot(_ context.Context, kind string, dest any) (time.Time, error) {
	s.mu.RLock()
	snap, ok := s.snapshots[kind]
	s.mu.RUnlock()
	if !ok || (!snap.expires.IsZero() && s.now().After(snap.expires)) {
		return time.Time{}, ErrNotFound
	}
	if err := json.Unmarshal(snap.data, dest); err != nil {
		return time.Time{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snap.savedAt, nil
}

func (s *MemoryStore) IngestCounts(context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64, len(s.counters))
	for k, v := range s.counters {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
