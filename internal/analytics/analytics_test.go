package analytics

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ppms-analytics/internal/models"
)

func TestExpandingWindow_Add(t *testing.T) {
	var w ExpandingWindow

	for _, v := range []float64{10, 20, 30, 40, 50} {
		w.Add(v)
	}

	assert.Equal(t, 5, w.Count())
	assert.InDelta(t, 30.0, w.Mean(), 1e-9)
}

func TestExpandingWindow_NeverEvicts(t *testing.T) {
	var w ExpandingWindow
	w.Add(10)
	w.Add(20)
	w.Add(30)
	assert.InDelta(t, 20.0, w.Mean(), 1e-9)

	// A sliding window of 3 would drop 10 here; the expanding one keeps it.
	w.Add(40)
	assert.InDelta(t, 25.0, w.Mean(), 1e-9)
	assert.Equal(t, 4, w.Count())
}

func TestExpandingWindow_StdDev(t *testing.T) {
	var constant ExpandingWindow
	for i := 0; i < 5; i++ {
		constant.Add(0.1)
	}
	assert.Equal(t, 0.0, constant.StdDev(), "identical values must give exactly zero")
	assert.Equal(t, 0.0, constant.ZScore(0.1))

	var w ExpandingWindow
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		w.Add(v)
	}
	// population std of the classic example is exactly 2
	assert.InDelta(t, 2.0, w.StdDev(), 1e-9)
	assert.InDelta(t, 5.0, w.Mean(), 1e-9)
}

func TestExpandingWindow_SingleValue(t *testing.T) {
	var w ExpandingWindow
	w.Add(42)

	assert.Equal(t, 0.0, w.StdDev())
	assert.Equal(t, 0.0, w.ZScore(42))
	assert.Equal(t, 0.0, w.ZScore(1000))
}

func TestComputeError_Is(t *testing.T) {
	err := fmt.Errorf("handler: %w", &ComputeError{Op: "forecast demand", Err: errors.New("boom")})

	assert.True(t, errors.Is(err, ErrComputation))
	var ce *ComputeError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "forecast demand", ce.Op)
	assert.Contains(t, err.Error(), "boom")
}

func TestRecoverCompute(t *testing.T) {
	run := func() (err error) {
		defer recoverCompute("test op", &err)
		var m map[string]int
		m["x"] = 1
		return nil
	}

	err := run()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrComputation)
}

func TestCheckFinite(t *testing.T) {
	assert.NoError(t, checkFinite("op", map[string]float64{"a": 1, "b": 0}))
	assert.ErrorIs(t, checkFinite("op", map[string]float64{"a": math.NaN()}), ErrComputation)
	assert.ErrorIs(t, checkFinite("op", map[string]float64{"a": math.Inf(1)}), ErrComputation)
}

func BenchmarkExpandingWindowAdd(b *testing.B) {
	var w ExpandingWindow

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w.Add(float64(i % 100))
	}
}

func BenchmarkComputeAnomalies(b *testing.B) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	samples := make([]models.TelemetrySample, 0, 5000)
	for i := 0; i < 5000; i++ {
		samples = append(samples, models.TelemetrySample{
			Tag:       fmt.Sprintf("T%d", i%10),
			Value:     50 + float64(i%17),
			Timestamp: now.Add(-time.Duration(i) * time.Second),
		})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ComputeAnomalies(samples, DefaultAnomalyOptions(), now)
	}
}
