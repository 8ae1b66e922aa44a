package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ppms-analytics/internal/models"
	"ppms-analytics/internal/store"
)

var testNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, st store.EventStore) *mux.Router {
	t.Helper()
	h := NewHandler(st, DefaultOptions(), zap.NewNop())
	h.now = func() time.Time { return testNow }
	r := mux.NewRouter()
	h.Register(r)
	return r
}

func do(t *testing.T, r http.Handler, method, target string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func telemetry(tag string, value float64, minutesAgo int) models.TelemetrySample {
	return models.TelemetrySample{
		Tag:       tag,
		Value:     value,
		Timestamp: testNow.Add(-time.Duration(minutesAgo) * time.Minute),
	}
}

func TestIngestTelemetry_ArrayBatchAndRejects(t *testing.T) {
	st := store.NewMemoryStore()
	r := newTestServer(t, st)

	rec, out := do(t, r, http.MethodPost, "/api/telemetry", []models.TelemetrySample{
		telemetry("T1", 10, 3),
		telemetry("T1", 10, 2),
		{Value: 1, Timestamp: testNow},
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, 2.0, out["accepted"])
	assert.Equal(t, 1.0, out["rejected"])

	rec, out = do(t, r, http.MethodPost, "/api/telemetry", models.TelemetryBatch{
		Samples: []models.TelemetrySample{telemetry("T1", 100, 1)},
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1.0, out["accepted"])

	counts, err := st.IngestCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts[store.KindTelemetry])
}

func TestIngest_InvalidJSON(t *testing.T) {
	r := newTestServer(t, store.NewMemoryStore())

	rec, out := do(t, r, http.MethodPost, "/api/maintenance", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, out["ok"])
	assert.Equal(t, "INVALID_JSON", out["error"])
}

func TestIngest_SingleRecordObject(t *testing.T) {
	st := store.NewMemoryStore()
	r := newTestServer(t, st)

	rec, out := do(t, r, http.MethodPost, "/api/inventory/items", models.ItemMaster{ID: "BRG-1", Code: "6205"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1.0, out["accepted"])

	items, err := st.Items(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "6205", items[0].Code)
}

func TestAnomalyZScore_EndToEnd(t *testing.T) {
	r := newTestServer(t, store.NewMemoryStore())
	do(t, r, http.MethodPost, "/api/telemetry", []models.TelemetrySample{
		telemetry("T1", 10, 3),
		telemetry("T1", 10, 2),
		telemetry("T1", 100, 1),
	})

	rec, out := do(t, r, http.MethodGet, "/api/anomaly/zscore", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 24.0, out["hours"])
	assert.Equal(t, 3.0, out["threshold"])
	assert.Contains(t, rec.Body.String(), `"rows":[]`)

	rec, out = do(t, r, http.MethodGet, "/api/anomaly/zscore?tags=T1&threshold=1.4", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rows := out["rows"].([]interface{})
	require.Len(t, rows, 1)
	row := rows[0].(map[string]interface{})
	assert.Equal(t, 100.0, row["value"])
	assert.InDelta(t, 60/math.Sqrt(1800), row["z"], 1e-9)
}

func TestAnomalyZScore_ClampsParameters(t *testing.T) {
	r := newTestServer(t, store.NewMemoryStore())

	_, out := do(t, r, http.MethodGet, "/api/anomaly/zscore?hours=1000&threshold=0.1&limit=0", nil)
	assert.Equal(t, 168.0, out["hours"])
	assert.Equal(t, 0.5, out["threshold"])

	_, out = do(t, r, http.MethodGet, "/api/anomaly/zscore?hours=abc&threshold=0", nil)
	assert.Equal(t, 24.0, out["hours"])
	assert.Equal(t, 3.0, out["threshold"])
}

func TestAnomalyCounts(t *testing.T) {
	r := newTestServer(t, store.NewMemoryStore())
	do(t, r, http.MethodPost, "/api/telemetry", []models.TelemetrySample{
		telemetry("T1", 10, 3),
		telemetry("T1", 10, 2),
		telemetry("T1", 100, 1),
		telemetry("T2", 5, 1),
	})

	rec, out := do(t, r, http.MethodGet, "/api/anomaly/counts?threshold=1.4", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rows := out["rows"].([]interface{})
	require.Len(t, rows, 2)

	first := rows[0].(map[string]interface{})
	assert.Equal(t, "T1", first["tag"])
	assert.Equal(t, 1.0, first["anomalies"])
	assert.Equal(t, 3.0, first["total"])

	second := rows[1].(map[string]interface{})
	assert.Equal(t, "T2", second["tag"])
	assert.Equal(t, 0.0, second["anomalies"])
}

func breakdown(asset string, daysAgo int, reason string) models.MaintenanceEvent {
	return models.MaintenanceEvent{
		AssetID:    asset,
		Type:       models.Breakdown,
		Reason:     reason,
		OccurredAt: testNow.AddDate(0, 0, -daysAgo),
	}
}

func TestEquipmentInsights_Profile(t *testing.T) {
	r := newTestServer(t, store.NewMemoryStore())
	do(t, r, http.MethodPost, "/api/maintenance", []models.MaintenanceEvent{
		breakdown("PUMP-1", 20, "Bearing wear"),
		breakdown("PUMP-1", 10, "Bearing wear"),
	})

	rec, out := do(t, r, http.MethodGet, "/api/equipment/PUMP-1/insights", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	profile := out["profile"].(map[string]interface{})
	assert.Equal(t, 2.0, profile["breakdowns"])
	assert.InDelta(t, 10.0, profile["mtbfDays"], 1e-9)
	assert.InDelta(t, 1-math.Exp(-3), profile["failureProbability"], 1e-9)
	assert.Equal(t, 24.0, profile["riskScore"])
	assert.Equal(t, "bearing wear", profile["topReason"])
	assert.NotEmpty(t, profile["actions"])
}

func TestEquipmentInsights_UnknownAsset(t *testing.T) {
	r := newTestServer(t, store.NewMemoryStore())

	rec, out := do(t, r, http.MethodGet, "/api/equipment/NOPE/insights", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	profile := out["profile"].(map[string]interface{})
	assert.Equal(t, 0.0, profile["breakdowns"])
	assert.Equal(t, 0.0, profile["riskScore"])
	assert.Nil(t, profile["mtbfDays"])
	assert.Nil(t, profile["failureProbability"])
}

func TestFleetRisk_RanksByRiskScore(t *testing.T) {
	r := newTestServer(t, store.NewMemoryStore())
	do(t, r, http.MethodPost, "/api/maintenance", []models.MaintenanceEvent{
		breakdown("FAN-1", 5, "seal leak"),
		breakdown("PUMP-1", 20, "overheat"),
		breakdown("PUMP-1", 10, "overheat"),
		breakdown("PUMP-1", 1, "overheat"),
	})

	rec, out := do(t, r, http.MethodGet, "/api/equipment/risk", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.0, out["count"])

	rows := out["rows"].([]interface{})
	assert.Equal(t, "PUMP-1", rows[0].(map[string]interface{})["assetId"])
	assert.Equal(t, "FAN-1", rows[1].(map[string]interface{})["assetId"])

	_, out = do(t, r, http.MethodGet, "/api/equipment/risk?ids=FAN-1,GHOST", nil)
	rows = out["rows"].([]interface{})
	require.Len(t, rows, 2)
	assert.Equal(t, "FAN-1", rows[0].(map[string]interface{})["assetId"])
	assert.Equal(t, "GHOST", rows[1].(map[string]interface{})["assetId"])
}

func TestBreakdownTrend(t *testing.T) {
	r := newTestServer(t, store.NewMemoryStore())
	do(t, r, http.MethodPost, "/api/maintenance", []models.MaintenanceEvent{
		breakdown("PUMP-1", 0, "overheat"),
		breakdown("PUMP-1", 14, "overheat"),
	})

	rec, out := do(t, r, http.MethodGet, "/api/dashboard/trend/breakdowns?weeks=4", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out["weeks"], 4)
	assert.Equal(t, []interface{}{0.0, 1.0, 0.0, 1.0}, out["counts"])

	rec, out = do(t, r, http.MethodGet, "/api/dashboard/trend/breakdowns?type=XX", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "TREND_FAILED", out["error"])
}

func TestForecast_PersistAndLatest(t *testing.T) {
	r := newTestServer(t, store.NewMemoryStore())

	rec, out := do(t, r, http.MethodGet, "/api/forecast/inventory/latest", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, out["summary"])

	onHand := 50.0
	do(t, r, http.MethodPost, "/api/inventory/items", []models.ItemMaster{{ID: "BRG-1", Code: "6205", OnHand: &onHand}})

	txns := make([]models.InventoryTxn, 0, 10)
	for d := 1; d <= 10; d++ {
		txns = append(txns, models.InventoryTxn{ItemID: "BRG-1", Type: "ISSUE", Qty: 2, At: testNow.AddDate(0, 0, -d)})
	}
	txns = append(txns, models.InventoryTxn{ItemID: "BRG-1", Type: "RECEIPT", Qty: 100, At: testNow.AddDate(0, 0, -3)})
	do(t, r, http.MethodPost, "/api/inventory/txns", models.InventoryTxnBatch{Txns: txns})

	rec, out = do(t, r, http.MethodGet, "/api/forecast/inventory?persist=1&days=30&review=0", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 30.0, out["days"])
	assert.Equal(t, 1.0, out["count"])

	row := out["rows"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "BRG-1", row["itemId"])
	assert.InDelta(t, 2.0, row["avgDaily"], 1e-9)
	assert.InDelta(t, 0.0, row["sd"], 1e-9)
	assert.Equal(t, 14.0, row["reorderPoint"])
	assert.Equal(t, 0.0, row["reorderQty"])
	assert.InDelta(t, 25.0, row["runoutDays"], 1e-9)

	rec, out = do(t, r, http.MethodGet, "/api/forecast/inventory/latest", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	summary := out["summary"].(map[string]interface{})
	assert.Equal(t, 1.0, summary["count"])
	assert.NotEmpty(t, out["savedAt"])
}

type failingStore struct {
	*store.MemoryStore
}

func (failingStore) Telemetry(context.Context, []string, time.Time) ([]models.TelemetrySample, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Ping(context.Context) error {
	return errors.New("connection refused")
}

func TestStoreFailure_ReturnsErrorEnvelope(t *testing.T) {
	r := newTestServer(t, failingStore{store.NewMemoryStore()})

	rec, out := do(t, r, http.MethodGet, "/api/anomaly/zscore", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, false, out["ok"])
	assert.Equal(t, "TELEMETRY_READ_FAILED", out["error"])
	assert.Equal(t, "connection refused", out["details"])

	rec, out = do(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "disconnected", out["store"])
}

func TestHealthAndStats(t *testing.T) {
	r := newTestServer(t, store.NewMemoryStore())

	rec, out := do(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", out["status"])

	do(t, r, http.MethodPost, "/api/telemetry", []models.TelemetrySample{telemetry("T1", 1, 1)})
	rec, out = do(t, r, http.MethodGet, "/stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	ingested := out["ingested"].(map[string]interface{})
	assert.Equal(t, 1.0, ingested[store.KindTelemetry])
}

func TestQueryParsing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?a=12.7&b=abc&c=0&d=-3&f=0.9", nil)

	assert.Equal(t, 12, queryInt(req, "a", 5))
	assert.Equal(t, 5, queryInt(req, "b", 5))
	assert.Equal(t, 0, queryInt(req, "c", 5))
	assert.Equal(t, 5, queryIntNonZero(req, "c", 5))
	assert.Equal(t, -3, queryIntNonZero(req, "d", 5))
	assert.Equal(t, 5, queryInt(req, "missing", 5))

	assert.Equal(t, 0.9, queryFloat(req, "f", 0.95))
	assert.Equal(t, 0.95, queryFloat(req, "c", 0.95))
	assert.Equal(t, 0.95, queryFloat(req, "b", 0.95))

	assert.Equal(t, []string{"T1", "T2"}, parseList(" T1, ,T2,"))
	assert.Empty(t, parseList(""))
}
