package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveEngine(t *testing.T) {
	skippedBefore := testutil.ToFloat64(RecordsSkipped.WithLabelValues("test"))
	failuresBefore := testutil.ToFloat64(ComputationFailures.WithLabelValues("test"))

	ObserveEngine("test", 0.001, 3, nil)
	ObserveEngine("test", 0.002, 0, errors.New("boom"))

	assert.Equal(t, skippedBefore+3, testutil.ToFloat64(RecordsSkipped.WithLabelValues("test")))
	assert.Equal(t, failuresBefore+1, testutil.ToFloat64(ComputationFailures.WithLabelValues("test")))
}
