package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaic/creator/common/logger"
	"github.com/mosaic/creator/common/metrics"
)

func TestMetricsHandler(t *testing.T) {
	m := metrics.New()
	m.Stage("enqueue", nil)

	rec := httptest.NewRecorder()
	MetricsHandler(m.Registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `mosaic_ingest_stage_total{outcome="ok",stage="enqueue"} 1`)
}

func TestNew_DisabledPorts(t *testing.T) {
	tel := New(0, 0, nil, logger.Discard())
	assert.Empty(t, tel.servers)

	tel = New(6060, 9090, metrics.New().Registry, logger.Discard())
	assert.Len(t, tel.servers, 2)
}
