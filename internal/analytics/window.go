package analytics

import "math"

// ExpandingWindow накапливает статистику от начала запрошенного интервала до текущей точки.
// В отличие от скользящего окна фиксированной длины старые значения не вытесняются,
// каждая следующая точка сравнивается со всей предыдущей историей.
// Среднее и дисперсия считаются по Уэлфорду, поэтому для постоянного ряда отклонение ровно 0.
type ExpandingWindow struct {
	count int
	mean  float64
	m2    float64
}

// Add добавляет новое значение в окно
func (w *ExpandingWindow) Add(value float64) {
	w.count++
	delta := value - w.mean
	w.mean += delta / float64(w.count)
	w.m2 += delta * (value - w.mean)
}

// Mean возвращает среднее по окну
func (w *ExpandingWindow) Mean() float64 {
	if w.count == 0 {
		return 0
	}
	return w.mean
}

// StdDev возвращает стандартное отклонение генеральной совокупности
func (w *ExpandingWindow) StdDev() float64 {
	if w.count < 2 || w.m2 <= 0 {
		return 0
	}
	return math.Sqrt(w.m2 / float64(w.count))
}

// ZScore вычисляет z-score значения относительно текущего окна
func (w *ExpandingWindow) ZScore(value float64) float64 {
	std := w.StdDev()
	if std == 0 {
		return 0
	}
	return (value - w.Mean()) / std
}

// Count возвращает количество значений в окне
func (w *ExpandingWindow) Count() int {
	return w.count
}
