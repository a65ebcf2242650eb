// Package fetch implements the chunked fetcher contract: for one
// (sensor, [chunk_from, chunk_to)) window, fetch from OpenSenseMap, parse
// and validate, and persist via the store (spec §4.4, component C5).
package fetch

import (
	"context"
	"strconv"
	"time"

	"github.com/Datata1/umweltmonitoring/internal/domain"
	"github.com/Datata1/umweltmonitoring/internal/obslog"
	"github.com/Datata1/umweltmonitoring/internal/obsmetrics"
	"github.com/Datata1/umweltmonitoring/internal/obstrace"
	"github.com/Datata1/umweltmonitoring/internal/osm"
)

// MeasurementClient is the subset of osm.Client that the fetcher needs.
type MeasurementClient interface {
	FetchMeasurements(ctx context.Context, boxID, sensorID string, fromUTC, toUTC time.Time) ([]osm.Measurement, error)
}

// MeasurementStore is the subset of store.Store that the fetcher needs.
type MeasurementStore interface {
	BulkInsertMeasurements(ctx context.Context, rows []domain.Measurement) (domain.InsertOutcome, error)
}

// ChunkOutcome reports the result of one chunk fetch, as returned to the
// ingestion orchestrator (spec §4.4).
type ChunkOutcome struct {
	Success      bool
	PointsStored int
	LastTS       *time.Time
	SkippedRows  int
	Err          error
}

// Fetcher is the C5 chunked fetcher.
type Fetcher struct {
	client  MeasurementClient
	store   MeasurementStore
	log     obslog.Logger
	metrics *obsmetrics.Metrics
}

// New builds a Fetcher.
func New(client MeasurementClient, store MeasurementStore, log obslog.Logger, metrics *obsmetrics.Metrics) *Fetcher {
	return &Fetcher{client: client, store: store, log: log, metrics: metrics}
}

// FetchAndStore implements the C5 contract.
func (f *Fetcher) FetchAndStore(ctx context.Context, sensorID, boxID string, chunkFromUTC, chunkToUTC time.Time) ChunkOutcome {
	ctx, span := obstrace.Start(ctx, "fetch.FetchAndStore")
	defer span.End()

	chunkFromUTC = chunkFromUTC.UTC()
	chunkToUTC = chunkToUTC.UTC()
	if !chunkFromUTC.Before(chunkToUTC) {
		return ChunkOutcome{Success: false, Err: errInvalidChunk(sensorID, chunkFromUTC, chunkToUTC)}
	}

	raw, err := f.client.FetchMeasurements(ctx, boxID, sensorID, chunkFromUTC, chunkToUTC)
	if err != nil {
		if f.metrics != nil {
			f.metrics.ChunksFailed.WithLabelValues(boxID).Inc()
		}
		f.log.ErrorCtx(ctx, "chunk fetch failed", "sensor_id", sensorID, "box_id", boxID, "error", err)
		return ChunkOutcome{Success: false, Err: err}
	}

	rows := make([]domain.Measurement, 0, len(raw))
	var lastTS *time.Time
	skipped := 0
	for _, m := range raw {
		ts, value, ok := parseMeasurement(m)
		if !ok {
			skipped++
			continue
		}
		ts = ts.UTC()
		if ts.Before(chunkFromUTC) || !ts.Before(chunkToUTC) {
			skipped++
			continue
		}
		rows = append(rows, domain.Measurement{SensorID: sensorID, Value: value, MeasurementTimestamp: ts})
		if lastTS == nil || ts.After(*lastTS) {
			lastTS = &ts
		}
	}

	if skipped > 0 {
		f.log.WarnCtx(ctx, "skipped malformed measurement rows", "sensor_id", sensorID, "box_id", boxID, "skipped", skipped)
		if f.metrics != nil {
			f.metrics.RowsSkipped.Add(float64(skipped))
		}
	}

	outcome, err := f.store.BulkInsertMeasurements(ctx, rows)
	if err != nil {
		if f.metrics != nil {
			f.metrics.ChunksFailed.WithLabelValues(boxID).Inc()
		}
		f.log.ErrorCtx(ctx, "chunk persist failed", "sensor_id", sensorID, "box_id", boxID, "error", err)
		return ChunkOutcome{Success: false, SkippedRows: skipped, Err: err}
	}

	if f.metrics != nil {
		f.metrics.ChunksFetched.WithLabelValues(boxID).Inc()
	}
	return ChunkOutcome{Success: true, PointsStored: outcome.Inserted, LastTS: lastTS, SkippedRows: skipped}
}

// parseMeasurement validates and converts one raw API row. It deliberately
// tolerates a malformed single row rather than failing the whole chunk
// (spec §4.4 step 3).
func parseMeasurement(m osm.Measurement) (time.Time, float64, bool) {
	if m.CreatedAtRaw == "" || m.ValueRaw == "" {
		return time.Time{}, 0, false
	}
	ts, err := time.Parse("2006-01-02T15:04:05.000Z", m.CreatedAtRaw)
	if err != nil {
		ts, err = time.Parse(time.RFC3339, m.CreatedAtRaw)
		if err != nil {
			return time.Time{}, 0, false
		}
	}
	value, err := strconv.ParseFloat(m.ValueRaw, 64)
	if err != nil {
		return time.Time{}, 0, false
	}
	return ts, value, true
}

type invalidChunkError struct {
	sensorID string
	from, to time.Time
}

func (e *invalidChunkError) Error() string {
	return "fetch: invalid chunk for sensor " + e.sensorID + ": from must precede to"
}

func errInvalidChunk(sensorID string, from, to time.Time) error {
	return &invalidChunkError{sensorID: sensorID, from: from, to: to}
}
