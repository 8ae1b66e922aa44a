package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"ppms-analytics/internal/metrics"
	"ppms-analytics/internal/models"
	"ppms-analytics/internal/store"
)

const (
	maxBodyBytes     = 8 << 20
	maxReportedFails = 10
)

var errEmptyBody = errors.New("empty request body")

// decodeRecords разбирает тело запроса: массив записей, объект-пакет с полем field
// или одиночную запись
func decodeRecords[T any](w http.ResponseWriter, r *http.Request, field string) ([]T, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&raw); err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, errEmptyBody
	}

	var records []T
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, err
		}
		return records, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, err
	}
	if batch, ok := wrapper[field]; ok {
		if err := json.Unmarshal(batch, &records); err != nil {
			return nil, err
		}
		return records, nil
	}

	var single T
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, err
	}
	return []T{single}, nil
}

// ingestResult итог загрузки пакета
type ingestResult struct {
	Accepted int      `json:"accepted"`
	Rejected int      `json:"rejected"`
	Errors   []string `json:"errors,omitempty"`
}

// partition отделяет корректные записи от некорректных
func partition[T any](records []T, validate func(T) error) ([]T, ingestResult) {
	valid := make([]T, 0, len(records))
	var res ingestResult
	for i, rec := range records {
		if err := validate(rec); err != nil {
			res.Rejected++
			if len(res.Errors) < maxReportedFails {
				res.Errors = append(res.Errors, fmt.Sprintf("record %d: %v", i, err))
			}
			continue
		}
		valid = append(valid, rec)
	}
	res.Accepted = len(valid)
	return valid, res
}

// ingest общий сценарий загрузки: разбор, проверка, запись в хранилище
func ingest[T any](h *Handler, w http.ResponseWriter, r *http.Request, kind, field string,
	validate func(T) error, save func(context.Context, []T) error) {
	records, err := decodeRecords[T](w, r, field)
	if err != nil {
		h.respondFailure(w, "INVALID_JSON", err, http.StatusBadRequest)
		return
	}

	valid, res := partition(records, validate)
	if len(valid) > 0 {
		ctx, cancel := h.storeContext(r)
		defer cancel()
		if err := save(ctx, valid); err != nil {
			h.storeFailure(w, "ingest_"+kind, "INGEST_FAILED", err)
			return
		}
		metrics.RecordsIngested.WithLabelValues(kind).Add(float64(len(valid)))
	}

	if res.Rejected > 0 {
		h.logger.Debug("rejected malformed records",
			zap.String("kind", kind),
			zap.Int("rejected", res.Rejected),
			zap.Int("accepted", res.Accepted))
	}

	status := http.StatusCreated
	if res.Accepted == 0 {
		status = http.StatusBadRequest
	}
	h.respondJSON(w, map[string]interface{}{
		"ok":       res.Accepted > 0,
		"accepted": res.Accepted,
		"rejected": res.Rejected,
		"errors":   res.Errors,
	}, status)
}

// IngestTelemetryHandler обрабатывает POST /api/telemetry
func (h *Handler) IngestTelemetryHandler(w http.ResponseWriter, r *http.Request) {
	ingest(h, w, r, store.KindTelemetry, "samples",
		models.TelemetrySample.Validate, h.store.AddTelemetry)
}

// IngestMaintenanceHandler обрабатывает POST /api/maintenance
func (h *Handler) IngestMaintenanceHandler(w http.ResponseWriter, r *http.Request) {
	ingest(h, w, r, store.KindMaintenance, "events",
		models.MaintenanceEvent.Validate, h.store.AddMaintenance)
}

// IngestInventoryTxnsHandler обрабатывает POST /api/inventory/txns
func (h *Handler) IngestInventoryTxnsHandler(w http.ResponseWriter, r *http.Request) {
	ingest(h, w, r, store.KindInventoryTxn, "txns",
		models.InventoryTxn.Validate, h.store.AddInventoryTxns)
}

// UpsertItemsHandler обрабатывает POST /api/inventory/items
func (h *Handler) UpsertItemsHandler(w http.ResponseWriter, r *http.Request) {
	ingest(h, w, r, store.KindItem, "items", validateItem, h.store.UpsertItems)
}

func validateItem(it models.ItemMaster) error {
	if it.ID == "" {
		return fmt.Errorf("item: missing id")
	}
	return nil
}
