package analytics

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Mean возвращает среднее арифметическое, 0 для пустой выборки
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	if allEqual(xs) {
		return xs[0]
	}
	return stat.Mean(xs, nil)
}

// PopulationStdDev возвращает стандартное отклонение генеральной совокупности (делитель N).
// Для пустой выборки, одного значения или одинаковых значений результат ровно 0.
func PopulationStdDev(xs []float64) float64 {
	if len(xs) < 2 || allEqual(xs) {
		return 0
	}
	std := stat.PopStdDev(xs, nil)
	if math.IsNaN(std) || std < 0 {
		return 0
	}
	return std
}

// ExponentialSmooth возвращает последнее значение экспоненциального сглаживания.
// Затравка - первый элемент ряда; alpha в (0,1].
func ExponentialSmooth(xs []float64, alpha float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := xs[0]
	for _, x := range xs[1:] {
		s = alpha*x + (1-alpha)*s
	}
	return s
}

// PoissonExceedanceProbability возвращает вероятность хотя бы одного события
// за horizonDays при интенсивности 1/meanInterDays.
// ok=false, если средний интервал не положителен.
func PoissonExceedanceProbability(meanInterDays, horizonDays float64) (p float64, ok bool) {
	if math.IsNaN(meanInterDays) || meanInterDays <= 0 {
		return 0, false
	}
	if horizonDays <= 0 {
		return 0, true
	}
	lambda := 1 / meanInterDays
	return 1 - math.Exp(-lambda*horizonDays), true
}

// ServiceLevelToZ ступенчатое соответствие уровня сервиса z-множителю
func ServiceLevelToZ(serviceLevel float64) float64 {
	switch {
	case serviceLevel >= 0.975:
		return 1.96
	case serviceLevel >= 0.95:
		return 1.65
	case serviceLevel >= 0.90:
		return 1.28
	default:
		return 1.00
	}
}

// ServiceLevelToZContinuous обратная функция стандартного нормального распределения.
// Уровень ограничивается диапазоном [0.5, 0.999], поэтому z неотрицателен и конечен.
func ServiceLevelToZContinuous(serviceLevel float64) float64 {
	p := clampFloat(serviceLevel, 0.5, 0.999, 0.5)
	return distuv.UnitNormal.Quantile(p)
}

func allEqual(xs []float64) bool {
	for _, x := range xs[1:] {
		if x != xs[0] {
			return false
		}
	}
	return true
}

// round2 округляет до двух знаков после запятой
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ceilQty округляет количество вверх до целого.
// Погрешность в последних битах (14.000000000000002) не должна давать лишнюю единицу.
func ceilQty(v float64) int {
	const eps = 1e-9
	return int(math.Ceil(v - eps))
}
