// Package analytics реализует предиктивную аналитику по событиям обслуживания:
// детекцию аномалий телеметрии по z-score в расширяющемся окне,
// анализ надежности оборудования (MTBF, вероятность отказа, индекс риска)
// и прогноз складской потребности (страховой запас, точка заказа).
//
// Все функции пакета чистые: текущее время передается явно,
// состояние между вызовами не хранится, поэтому вызовы безопасны для конкурентного использования.
package analytics

import (
	"errors"
	"fmt"
	"math"
)

// ErrComputation сигнализирует о сбое вычисления в рамках одного вызова
var ErrComputation = errors.New("analytics computation failed")

// ComputeError описывает сбой вычисления конкретной операции
type ComputeError struct {
	Op  string
	Err error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ComputeError) Unwrap() error {
	return e.Err
}

// Is позволяет проверять ошибку через errors.Is(err, ErrComputation)
func (e *ComputeError) Is(target error) bool {
	return target == ErrComputation
}

// recoverCompute превращает панику внутри движка в ComputeError
func recoverCompute(op string, err *error) {
	if r := recover(); r != nil {
		*err = &ComputeError{Op: op, Err: fmt.Errorf("panic: %v", r)}
	}
}

// checkFinite возвращает ComputeError, если хотя бы одно значение NaN или Inf
func checkFinite(op string, values map[string]float64) error {
	for name, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ComputeError{Op: op, Err: fmt.Errorf("%s is not finite (%v)", name, v)}
		}
	}
	return nil
}
