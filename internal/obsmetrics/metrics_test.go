package obsmetrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	m := New()
	m.ChunksFetched.WithLabelValues("box-1").Inc()
	m.WatermarkAgeSec.WithLabelValues("box-1").Set(12.5)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "sensorplatform_ingest_chunks_fetched_total")
	require.Contains(t, rec.Body.String(), "sensorplatform_ingest_watermark_age_seconds")
}
