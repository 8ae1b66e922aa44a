package analytics

import (
	"math"
	"sort"
	"time"

	"ppms-analytics/internal/models"
)

// scoredSample измерение с рассчитанной статистикой расширяющегося окна
type scoredSample struct {
	models.TelemetrySample
	mean float64
	std  float64
	z    float64
}

// ComputeAnomalies возвращает измерения с |z| >= порога, отсортированные по времени
// по убыванию и обрезанные до Limit. Статистика считается отдельно для каждого тега
// по всем точкам от начала окна hoursBack до текущей включительно.
func ComputeAnomalies(samples []models.TelemetrySample, opts AnomalyOptions, now time.Time) (report models.AnomalyReport, err error) {
	const op = "compute anomalies"
	defer recoverCompute(op, &err)

	opts = opts.Normalize()
	partitions, skipped := partitionByTag(samples, opts, now)

	points := make([]models.AnomalyPoint, 0)
	for _, tag := range sortedTags(partitions) {
		for _, s := range scorePartition(partitions[tag]) {
			if err := checkFinite(op, map[string]float64{"z": s.z, "mean": s.mean, "std": s.std}); err != nil {
				return models.AnomalyReport{}, err
			}
			if math.Abs(s.z) >= opts.ZThreshold {
				points = append(points, models.AnomalyPoint{
					Tag:       s.Tag,
					Timestamp: s.Timestamp,
					Value:     s.Value,
					Z:         s.z,
					Mean:      s.mean,
					Std:       s.std,
				})
			}
		}
	}

	sort.SliceStable(points, func(i, j int) bool {
		if !points[i].Timestamp.Equal(points[j].Timestamp) {
			return points[i].Timestamp.After(points[j].Timestamp)
		}
		return points[i].Tag < points[j].Tag
	})
	if len(points) > opts.Limit {
		points = points[:opts.Limit]
	}

	return models.AnomalyReport{
		HoursBack:  opts.HoursBack,
		ZThreshold: opts.ZThreshold,
		Points:     points,
		Skipped:    skipped,
	}, nil
}

// CountAnomalies считает по каждому тегу точки с |z| > порога и общее число точек.
// Результат отсортирован по количеству аномалий по убыванию.
func CountAnomalies(samples []models.TelemetrySample, opts AnomalyOptions, now time.Time) (report models.AnomalyCountReport, err error) {
	const op = "count anomalies"
	defer recoverCompute(op, &err)

	opts = opts.Normalize()
	partitions, skipped := partitionByTag(samples, opts, now)

	rows := make([]models.TagAnomalyCount, 0, len(partitions))
	for _, tag := range sortedTags(partitions) {
		row := models.TagAnomalyCount{Tag: tag}
		for _, s := range scorePartition(partitions[tag]) {
			if err := checkFinite(op, map[string]float64{"z": s.z}); err != nil {
				return models.AnomalyCountReport{}, err
			}
			row.Total++
			if math.Abs(s.z) > opts.ZThreshold {
				row.Anomalies++
			}
		}
		rows = append(rows, row)
	}

	// теги уже упорядочены по имени, стабильная сортировка сохраняет этот порядок при равенстве
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Anomalies > rows[j].Anomalies
	})

	return models.AnomalyCountReport{
		HoursBack:  opts.HoursBack,
		ZThreshold: opts.ZThreshold,
		Rows:       rows,
		Skipped:    skipped,
	}, nil
}

// partitionByTag отбирает корректные измерения внутри окна и группирует их по тегу
func partitionByTag(samples []models.TelemetrySample, opts AnomalyOptions, now time.Time) (map[string][]models.TelemetrySample, int) {
	since := now.Add(-time.Duration(opts.HoursBack) * time.Hour)

	var wanted map[string]struct{}
	if len(opts.Tags) > 0 {
		wanted = make(map[string]struct{}, len(opts.Tags))
		for _, t := range opts.Tags {
			wanted[t] = struct{}{}
		}
	}

	partitions := make(map[string][]models.TelemetrySample)
	skipped := 0
	for _, s := range samples {
		if err := s.Validate(); err != nil {
			skipped++
			continue
		}
		if s.Timestamp.Before(since) {
			continue
		}
		if wanted != nil {
			if _, ok := wanted[s.Tag]; !ok {
				continue
			}
		}
		partitions[s.Tag] = append(partitions[s.Tag], s)
	}
	return partitions, skipped
}

// scorePartition сортирует измерения одного тега по времени и считает z-score
// каждой точки по расширяющемуся окну, включающему саму точку
func scorePartition(samples []models.TelemetrySample) []scoredSample {
	sorted := make([]models.TelemetrySample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var window ExpandingWindow
	scored := make([]scoredSample, 0, len(sorted))
	for _, s := range sorted {
		window.Add(s.Value)
		scored = append(scored, scoredSample{
			TelemetrySample: s,
			mean:            window.Mean(),
			std:             window.StdDev(),
			z:               window.ZScore(s.Value),
		})
	}
	return scored
}

func sortedTags(partitions map[string][]models.TelemetrySample) []string {
	tags := make([]string, 0, len(partitions))
	for tag := range partitions {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
