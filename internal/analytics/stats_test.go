package analytics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMean(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 0.0, Mean([]float64{}))
	assert.InDelta(t, 2.5, Mean([]float64{1, 2, 3, 4}), 1e-12)
	assert.Equal(t, 0.1, Mean([]float64{0.1, 0.1, 0.1}))
}

func TestPopulationStdDev(t *testing.T) {
	assert.Equal(t, 0.0, PopulationStdDev(nil))
	assert.Equal(t, 0.0, PopulationStdDev([]float64{7}))
	assert.Equal(t, 0.0, PopulationStdDev([]float64{0.1, 0.1, 0.1, 0.1}))

	// divides by N, not N-1
	assert.InDelta(t, 2.0, PopulationStdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-12)
	assert.InDelta(t, 0.5, PopulationStdDev([]float64{1, 2}), 1e-12)
}

func TestExponentialSmooth(t *testing.T) {
	assert.Equal(t, 0.0, ExponentialSmooth(nil, 0.35))
	assert.Equal(t, 5.0, ExponentialSmooth([]float64{5}, 0.35))

	// alpha=1 echoes the latest value
	assert.Equal(t, 9.0, ExponentialSmooth([]float64{1, 4, 2, 9}, 1))

	// 0.5*4 + 0.5*2 = 3
	assert.InDelta(t, 3.0, ExponentialSmooth([]float64{2, 4}, 0.5), 1e-12)

	// constant series stays constant
	assert.InDelta(t, 2.0, ExponentialSmooth([]float64{2, 2, 2, 2, 2, 2, 2}, 0.35), 1e-12)
}

func TestPoissonExceedanceProbability(t *testing.T) {
	_, ok := PoissonExceedanceProbability(0, 30)
	assert.False(t, ok)
	_, ok = PoissonExceedanceProbability(-5, 30)
	assert.False(t, ok)
	_, ok = PoissonExceedanceProbability(math.NaN(), 30)
	assert.False(t, ok)

	p, ok := PoissonExceedanceProbability(10, 30)
	assert.True(t, ok)
	assert.Equal(t, 1-math.Exp(-(1.0/10)*30), p)

	p, ok = PoissonExceedanceProbability(10, 0)
	assert.True(t, ok)
	assert.Equal(t, 0.0, p)
}

func TestServiceLevelToZ(t *testing.T) {
	cases := []struct {
		level float64
		want  float64
	}{
		{0.99, 1.96},
		{0.975, 1.96},
		{0.96, 1.65},
		{0.95, 1.65},
		{0.90, 1.28},
		{0.85, 1.00},
		{0, 1.00},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ServiceLevelToZ(c.level), "level %v", c.level)
	}
}

func TestServiceLevelToZContinuous_Monotonic(t *testing.T) {
	prev := -1.0
	for _, level := range []float64{0.4, 0.5, 0.8, 0.9, 0.95, 0.975, 0.99, 1.0} {
		z := ServiceLevelToZContinuous(level)
		assert.GreaterOrEqual(t, z, prev, "level %v", level)
		assert.False(t, math.IsInf(z, 0))
		prev = z
	}
	assert.InDelta(t, 1.645, ServiceLevelToZContinuous(0.95), 1e-3)
	assert.InDelta(t, 1.960, ServiceLevelToZContinuous(0.975), 1e-3)
}

func TestCeilQty(t *testing.T) {
	assert.Equal(t, 14, ceilQty(14))
	assert.Equal(t, 14, ceilQty(14.000000000000002))
	assert.Equal(t, 15, ceilQty(14.01))
	assert.Equal(t, 0, ceilQty(0))
	assert.Equal(t, -3, ceilQty(-3.5))
}
