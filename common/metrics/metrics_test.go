package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestStageAndResolveCounters(t *testing.T) {
	m := New()

	m.Stage("write", nil)
	m.Stage("write", nil)
	m.Stage("write", errors.New("boom"))
	m.StageSkipped("name")
	m.Resolve(nil)
	m.WorkItem(errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.IngestStages.WithLabelValues("write", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestStages.WithLabelValues("write", OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestStages.WithLabelValues("name", OutcomeSkipped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resolves.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkItems.WithLabelValues(OutcomeError)))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Stage("write", nil)
		m.StageSkipped("name")
		m.Resolve(nil)
		m.WorkItem(nil)
	})
}
