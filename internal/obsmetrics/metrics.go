// Package obsmetrics exposes the Prometheus collectors for the ingestion and
// training orchestrators, wired the way the teacher wires its
// PrometheusProvider: one registry, promhttp.Handler for scraping.
package obsmetrics

import (
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the fixed set of collectors this service reports. Unlike the
// teacher's dynamic metric registry (built for an open-ended set of
// pipeline stages), this service has a known, small metric surface, so the
// collectors are declared directly rather than created on demand.
type Metrics struct {
	reg *prom.Registry

	ChunksFetched   *prom.CounterVec
	ChunksFailed    *prom.CounterVec
	RowsSkipped     prom.Counter
	WatermarkAgeSec *prom.GaugeVec
	IngestDuration  prom.Histogram

	TrainingRuns      prom.Counter
	TrainingDuration  *prom.HistogramVec
	TrainingHorizonOK *prom.CounterVec
	ModelVersion      *prom.GaugeVec
}

// New creates a fresh registry with all collectors registered.
func New() *Metrics {
	reg := prom.NewRegistry()
	m := &Metrics{
		reg: reg,
		ChunksFetched: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sensorplatform", Subsystem: "ingest", Name: "chunks_fetched_total",
			Help: "Chunks (sensor, time-window) successfully fetched and persisted.",
		}, []string{"box_id"}),
		ChunksFailed: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sensorplatform", Subsystem: "ingest", Name: "chunks_failed_total",
			Help: "Chunks that exhausted retries or failed permanently.",
		}, []string{"box_id"}),
		RowsSkipped: prom.NewCounter(prom.CounterOpts{
			Namespace: "sensorplatform", Subsystem: "ingest", Name: "rows_skipped_total",
			Help: "Malformed measurement rows skipped during parsing.",
		}),
		WatermarkAgeSec: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "sensorplatform", Subsystem: "ingest", Name: "watermark_age_seconds",
			Help: "Age of last_data_fetched relative to now, per box.",
		}, []string{"box_id"}),
		IngestDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "sensorplatform", Subsystem: "ingest", Name: "run_duration_seconds",
			Help: "Wall-clock duration of one ingestion run.", Buckets: prom.DefBuckets,
		}),
		TrainingRuns: prom.NewCounter(prom.CounterOpts{
			Namespace: "sensorplatform", Subsystem: "train", Name: "runs_total",
			Help: "Training runs started.",
		}),
		TrainingDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "sensorplatform", Subsystem: "train", Name: "horizon_duration_seconds",
			Help: "Per-horizon training duration.", Buckets: prom.DefBuckets,
		}, []string{"horizon"}),
		TrainingHorizonOK: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sensorplatform", Subsystem: "train", Name: "horizon_results_total",
			Help: "Per-horizon training outcomes.",
		}, []string{"horizon", "outcome"}),
		ModelVersion: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "sensorplatform", Subsystem: "train", Name: "model_version_id",
			Help: "Current active version_id per horizon.",
		}, []string{"horizon"}),
	}
	reg.MustRegister(
		m.ChunksFetched, m.ChunksFailed, m.RowsSkipped, m.WatermarkAgeSec, m.IngestDuration,
		m.TrainingRuns, m.TrainingDuration, m.TrainingHorizonOK, m.ModelVersion,
	)
	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
