package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ppms-analytics/internal/models"
)

var storeNow = time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)

func f(v float64) *float64 { return &v }

// exerciseEventStore проверяет контракт EventStore на любой реализации
func exerciseEventStore(t *testing.T, s EventStore) {
	ctx := context.Background()

	require.NoError(t, s.AddTelemetry(ctx, []models.TelemetrySample{
		{Tag: "T2", Value: 3, Timestamp: storeNow.Add(-time.Minute)},
		{Tag: "T1", Value: 2, Timestamp: storeNow.Add(-2 * time.Minute)},
		{Tag: "T1", Value: 1, Timestamp: storeNow.Add(-3 * time.Minute)},
		{Tag: "T1", Value: 9, Timestamp: storeNow.Add(-48 * time.Hour)},
	}))

	all, err := s.Telemetry(ctx, nil, storeNow.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 1.0, all[0].Value, "ascending by time")
	assert.Equal(t, 3.0, all[2].Value)
	for _, smp := range all {
		assert.NotEmpty(t, smp.ID)
	}

	t1, err := s.Telemetry(ctx, []string{"T1"}, storeNow.Add(-72*time.Hour))
	require.NoError(t, err)
	assert.Len(t, t1, 3)

	require.NoError(t, s.AddMaintenance(ctx, []models.MaintenanceEvent{
		{AssetID: "PUMP-1", Type: models.Breakdown, OccurredAt: storeNow.AddDate(0, 0, -1)},
		{AssetID: "PUMP-1", Type: models.Preventive, OccurredAt: storeNow.AddDate(0, 0, -5)},
		{AssetID: "FAN-2", Type: models.Breakdown, OccurredAt: storeNow.AddDate(0, 0, -2)},
	}))

	pump, err := s.Maintenance(ctx, "PUMP-1", storeNow.AddDate(0, 0, -30))
	require.NoError(t, err)
	require.Len(t, pump, 2)
	assert.Equal(t, models.Preventive, pump[0].Type)

	recent, err := s.AllMaintenance(ctx, storeNow.AddDate(0, 0, -3))
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	unknown, err := s.Maintenance(ctx, "NOPE", storeNow.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Empty(t, unknown)

	require.NoError(t, s.AddInventoryTxns(ctx, []models.InventoryTxn{
		{ItemID: "BRG-1", Type: "issue", Qty: 2, At: storeNow.AddDate(0, 0, -1)},
		{ItemID: "BRG-1", Type: "issue", Qty: 3, At: storeNow.AddDate(0, 0, -400)},
	}))
	txns, err := s.InventoryTxns(ctx, storeNow.AddDate(0, 0, -365))
	require.NoError(t, err)
	assert.Len(t, txns, 1)

	require.NoError(t, s.UpsertItems(ctx, []models.ItemMaster{{ID: "BRG-1", OnHand: f(5)}}))
	require.NoError(t, s.UpsertItems(ctx, []models.ItemMaster{{ID: "BRG-1", OnHand: f(7)}}))
	items, err := s.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 7.0, items[0].OnHandQty())

	err = s.UpsertItems(ctx, []models.ItemMaster{{Name: "no id"}})
	assert.ErrorIs(t, err, models.ErrInvalidRecord)

	var missing []int
	_, err = s.LatestSnapshot(ctx, "forecast", &missing)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.SaveSnapshot(ctx, "forecast", []int{1, 2, 3}, time.Hour))
	var got []int
	_, err = s.LatestSnapshot(ctx, "forecast", &got)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)

	counts, err := s.IngestCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), counts[KindTelemetry])
	assert.Equal(t, int64(3), counts[KindMaintenance])
	assert.Equal(t, int64(2), counts[KindInventoryTxn])
	assert.Equal(t, int64(2), counts[KindItem])

	assert.NoError(t, s.Ping(ctx))
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	exerciseEventStore(t, s)
}

func TestMemoryStore_SnapshotExpires(t *testing.T) {
	s := NewMemoryStore()
	clock := storeNow
	s.now = func() time.Time { return clock }
	ctx := context.Background()

	require.NoError(t, s.SaveSnapshot(ctx, "k", "v", time.Minute))
	clock = clock.Add(2 * time.Minute)

	var v string
	_, err := s.LatestSnapshot(ctx, "k", &v)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SaveSnapshot(ctx, "k", "forever", 0))
	clock = clock.Add(24 * time.Hour)
	saved, err := s.LatestSnapshot(ctx, "k", &v)
	require.NoError(t, err)
	assert.Equal(t, "forever", v)
	assert.True(t, saved.Before(clock))
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := NewRedisStore(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	defer s.Close()

	exerciseEventStore(t, s)

	assert.True(t, mr.Exists(TelemetryKeyPrefix+"T1"))
	assert.True(t, mr.Exists(InventoryItemsKey))
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(context.Background(), addr, "", 0)
	assert.Error(t, err)
}
