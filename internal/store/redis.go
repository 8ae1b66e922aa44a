package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"ppms-analytics/internal/models"
)

const (
	// TelemetryKeyPrefix префикс ZSET с измерениями тега (score - unix ms)
	TelemetryKeyPrefix = "telemetry:"
	// TelemetryTagsKey множество известных тегов
	TelemetryTagsKey = "telemetry:tags"
	// MaintenanceKeyPrefix префикс ZSET с событиями оборудования
	MaintenanceKeyPrefix = "maintenance:"
	// MaintenanceAssetsKey множество известного оборудования
	MaintenanceAssetsKey = "maintenance:assets"
	// InventoryTxnsKey ZSET складских транзакций
	InventoryTxnsKey = "inventory:txns"
	// InventoryItemsKey HASH справочника позиций
	InventoryItemsKey = "inventory:items"
	// SnapshotKeyPrefix префикс сохраненных результатов
	SnapshotKeyPrefix = "snapshot:"
	// CounterKeyPrefix префикс счетчиков загрузки
	CounterKeyPrefix = "counter:ingest:"
)

// RedisStore реализует хранилище событий в Redis на отсортированных множествах
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore создает новое подключение к Redis
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     100,
		MinIdleConns: 10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	// Проверяем подключение
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func scoreOf(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func minScore(since time.Time) string {
	return strconv.FormatInt(since.UnixMilli(), 10)
}

// AddTelemetry сохраняет измерения в ZSET своих тегов
func (r *RedisStore) AddTelemetry(ctx context.Context, samples []models.TelemetrySample) error {
	pipe := r.client.Pipeline()
	for _, s := range samples {
		ensureID(&s.ID)
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to marshal sample: %w", err)
		}
		pipe.ZAdd(ctx, TelemetryKeyPrefix+s.Tag, &redis.Z{Score: scoreOf(s.Timestamp), Member: data})
		pipe.SAdd(ctx, TelemetryTagsKey, s.Tag)
	}
	pipe.IncrBy(ctx, CounterKeyPrefix+KindTelemetry, int64(len(samples)))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store telemetry: %w", err)
	}
	return nil
}

// AddMaintenance сохраняет события обслуживания в ZSET оборудования
func (r *RedisStore) AddMaintenance(ctx context.Context, events []models.MaintenanceEvent) error {
	pipe := r.client.Pipeline()
	for _, ev := range events {
		ensureID(&ev.ID)
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal maintenance event: %w", err)
		}
		pipe.ZAdd(ctx, MaintenanceKeyPrefix+ev.AssetID, &redis.Z{Score: scoreOf(ev.OccurredAt), Member: data})
		pipe.SAdd(ctx, MaintenanceAssetsKey, ev.AssetID)
	}
	pipe.IncrBy(ctx, CounterKeyPrefix+KindMaintenance, int64(len(events)))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store maintenance events: %w", err)
	}
	return nil
}

// AddInventoryTxns сохраняет складские транзакции
func (r *RedisStore) AddInventoryTxns(ctx context.Context, txns []models.InventoryTxn) error {
	pipe := r.client.Pipeline()
	for _, txn := range txns {
		ensureID(&txn.ID)
		data, err := json.Marshal(txn)
		if err != nil {
			return fmt.Errorf("failed to marshal inventory txn: %w", err)
		}
		pipe.ZAdd(ctx, InventoryTxnsKey, &redis.Z{Score: scoreOf(txn.At), Member: data})
	}
	pipe.IncrBy(ctx, CounterKeyPrefix+KindInventoryTxn, int64(len(txns)))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store inventory txns: %w", err)
	}
	return nil
}

// UpsertItems сохраняет справочные данные позиций
func (r *RedisStore) UpsertItems(ctx context.Context, items []models.ItemMaster) error {
	if len(items) == 0 {
		return nil
	}
	values := make([]interface{}, 0, 2*len(items))
	for _, it := range items {
		if it.ID == "" {
			return fmt.Errorf("item without id: %w", models.ErrInvalidRecord)
		}
		data, err := json.Marshal(it)
		if err != nil {
			return fmt.Errorf("failed to marshal item: %w", err)
		}
		values = append(values, it.ID, data)
	}

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, InventoryItemsKey, values...)
	pipe.IncrBy(ctx, CounterKeyPrefix+KindItem, int64(len(items)))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store items: %w", err)
	}
	return nil
}

// Telemetry возвращает измерения выбранных тегов начиная с since
func (r *RedisStore) Telemetry(ctx context.Context, tags []string, since time.Time) ([]models.TelemetrySample, error) {
	if len(tags) == 0 {
		all, err := r.client.SMembers(ctx, TelemetryTagsKey).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to list tags: %w", err)
		}
		tags = all
	}

	keys := make([]string, len(tags))
	for i, t := range tags {
		keys[i] = TelemetryKeyPrefix + t
	}
	out := make([]models.TelemetrySample, 0)
	err := r.rangeByScore(ctx, keys, since, func(raw string) {
		var s models.TelemetrySample
		if json.Unmarshal([]byte(raw), &s) == nil {
			out = append(out, s)
		}
	})
	if err != nil {
		return nil, err
	}
	sortTelemetry(out)
	return out, nil
}

// Maintenance возвращает события оборудования начиная с since
func (r *RedisStore) Maintenance(ctx context.Context, assetID string, since time.Time) ([]models.MaintenanceEvent, error) {
	return r.maintenance(ctx, []string{MaintenanceKeyPrefix + assetID}, since)
}

// AllMaintenance возвращает события всего оборудования начиная с since
func (r *RedisStore) AllMaintenance(ctx context.Context, since time.Time) ([]models.MaintenanceEvent, error) {
	assets, err := r.client.SMembers(ctx, MaintenanceAssetsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	keys := make([]string, len(assets))
	for i, a := range assets {
		keys[i] = MaintenanceKeyPrefix + a
	}
	return r.maintenance(ctx, keys, since)
}

func (r *RedisStore) maintenance(ctx context.Context, keys []string, since time.Time) ([]models.MaintenanceEvent, error) {
	out := make([]models.MaintenanceEvent, 0)
	err := r.rangeByScore(ctx, keys, since, func(raw string) {
		var ev models.MaintenanceEvent
		if json.Unmarshal([]byte(raw), &ev) == nil {
			out = append(out, ev)
		}
	})
	if err != nil {
		return nil, err
	}
	sortMaintenance(out)
	return out, nil
}

// InventoryTxns возвращает складские транзакции начиная с since
func (r *RedisStore) InventoryTxns(ctx context.Context, since time.Time) ([]models.InventoryTxn, error) {
	out := make([]models.InventoryTxn, 0)
	err := r.rangeByScore(ctx, []string{InventoryTxnsKey}, since, func(raw string) {
		var txn models.InventoryTxn
		if json.Unmarshal([]byte(raw), &txn) == nil {
			out = append(out, txn)
		}
	})
	if err != nil {
		return nil, err
	}
	sortTxns(out)
	return out, nil
}

// rangeByScore читает несколько ZSET одним конвейером
func (r *RedisStore) rangeByScore(ctx context.Context, keys []string, since time.Time, each func(raw string)) error {
	if len(keys) == 0 {
		return nil
	}
	rng := &redis.ZRangeBy{Min: minScore(since), Max: "+inf"}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringSliceCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.ZRangeByScore(ctx, key, rng)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to read events: %w", err)
	}

	for _, cmd := range cmds {
		for _, raw := range cmd.Val() {
			each(raw)
		}
	}
	return nil
}

// Items возвращает справочник позиций
func (r *RedisStore) Items(ctx context.Context) ([]models.ItemMaster, error) {
	data, err := r.client.HGetAll(ctx, InventoryItemsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get items: %w", err)
	}

	items := make([]models.ItemMaster, 0, len(data))
	for _, d := range data {
		var it models.ItemMaster
		if err := json.Unmarshal([]byte(d), &it); err != nil {
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

type snapshotEnvelope struct {
	SavedAt time.Time       `json:"savedAt"`
	Data    json.RawMessage `json:"data"`
}

// SaveSnapshot сохраняет результат с TTL (0 - без срока)
func (r *RedisStore) SaveSnapshot(ctx context.Context, kind string, v any, ttl time.Duration) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	data, err := json.Marshal(snapshotEnvelope{SavedAt: time.Now().UTC(), Data: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return r.client.Set(ctx, SnapshotKeyPrefix+kind, data, ttl).Err()
}

// LatestSnapshot читает последний сохраненный результат
func (r *RedisStore) LatestSnapshot(ctx context.Context, kind string, dest any) (time.Time, error) {
	data, err := r.client.Get(ctx, SnapshotKeyPrefix+kind).Bytes()
	if err == redis.Nil {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var env snapshotEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return time.Time{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return time.Time{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return env.SavedAt, nil
}

// IngestCounts возвращает счетчики загруженных записей
func (r *RedisStore) IngestCounts(ctx context.Context) (map[string]int64, error) {
	kinds := []string{KindTelemetry, KindMaintenance, KindInventoryTxn, KindItem}
	out := make(map[string]int64, len(kinds))
	for _, kind := range kinds {
		val, err := r.client.Get(ctx, CounterKeyPrefix+kind).Int64()
		if err == redis.Nil {
			out[kind] = 0
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get counter %s: %w", kind, err)
		}
		out[kind] = val
	}
	return out, nil
}

// Ping проверяет соединение с Redis
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close закрывает соединение
func (r *RedisStore) Close() error {
	return r.client.Close()
}
