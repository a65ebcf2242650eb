package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Datata1/umweltmonitoring/internal/clock"
	"github.com/Datata1/umweltmonitoring/internal/domain"
	"github.com/Datata1/umweltmonitoring/internal/fetch"
	"github.com/Datata1/umweltmonitoring/internal/obslog"
	"github.com/Datata1/umweltmonitoring/internal/osm"
	"github.com/Datata1/umweltmonitoring/internal/watermark"
)

type fakeMetaClient struct {
	meta *osm.BoxMeta
	err  error
}

func (f *fakeMetaClient) FetchBoxMetadata(ctx context.Context, boxID string) (*osm.BoxMeta, error) {
	return f.meta, f.err
}

type fakeBoxStore struct {
	box               domain.Box
	isNew             bool
	upsertSensorCalls int
	watermarks        []struct{ lm, ldf *time.Time }
	err               error
}

func (f *fakeBoxStore) UpsertBox(ctx context.Context, boxID, name, exposure, model string, location []byte, lastMeasurementAt *time.Time) (domain.Box, bool, error) {
	if f.err != nil {
		return domain.Box{}, false, f.err
	}
	f.box.BoxID = boxID
	return f.box, f.isNew, nil
}

func (f *fakeBoxStore) UpsertSensor(ctx context.Context, sensor domain.Sensor) error {
	f.upsertSensorCalls++
	return nil
}

func (f *fakeBoxStore) UpdateWatermarks(ctx context.Context, boxID string, lastMeasurementAt, lastDataFetched *time.Time) error {
	f.watermarks = append(f.watermarks, struct{ lm, ldf *time.Time }{lastMeasurementAt, lastDataFetched})
	return nil
}

type fakeMeasurementClient struct {
	fail map[string]bool
}

func (f *fakeMeasurementClient) FetchMeasurements(ctx context.Context, boxID, sensorID string, fromUTC, toUTC time.Time) ([]osm.Measurement, error) {
	if f.fail[sensorID] {
		return nil, errors.New("upstream down")
	}
	return []osm.Measurement{{CreatedAtRaw: fromUTC.Add(time.Hour).Format("2006-01-02T15:04:05.000Z"), ValueRaw: "21.0"}}, nil
}

// fakeFlakyMeasurementClient fails sensorID for any sub-interval starting at
// or after failFrom. Other sensors succeed throughout, but return no rows
// once the window reaches failFrom — simulating a sub-interval that fully
// succeeds (every sensor's fetch call returns without error) yet persists
// nothing new, the §8 scenario 2 edge case.
type fakeFlakyMeasurementClient struct {
	sensorID string
	failFrom time.Time
}

func (f *fakeFlakyMeasurementClient) FetchMeasurements(ctx context.Context, boxID, sensorID string, fromUTC, toUTC time.Time) ([]osm.Measurement, error) {
	if sensorID == f.sensorID && !fromUTC.Before(f.failFrom) {
		return nil, errors.New("upstream down")
	}
	if !fromUTC.Before(f.failFrom) {
		return nil, nil
	}
	return []osm.Measurement{{CreatedAtRaw: fromUTC.Add(time.Minute).Format("2006-01-02T15:04:05.000Z"), ValueRaw: "21.0"}}, nil
}

type fakeMeasurementStore struct{}

func (f *fakeMeasurementStore) BulkInsertMeasurements(ctx context.Context, rows []domain.Measurement) (domain.InsertOutcome, error) {
	return domain.InsertOutcome{Inserted: len(rows)}, nil
}

func newTestOrchestrator(now time.Time, meta *osm.BoxMeta, boxStore *fakeBoxStore, measClient *fakeMeasurementClient, chunkDays int) *Orchestrator {
	return newTestOrchestratorWithClient(now, meta, boxStore, measClient, chunkDays)
}

func newTestOrchestratorWithClient(now time.Time, meta *osm.BoxMeta, boxStore *fakeBoxStore, measClient fetch.MeasurementClient, chunkDays int) *Orchestrator {
	clk := clock.NewFixed(now)
	f := fetch.New(measClient, &fakeMeasurementStore{}, obslog.New(nil), nil)
	wm := watermark.New(clk, 7*24*time.Hour)
	return New(&fakeMetaClient{meta: meta}, boxStore, f, wm, clk, obslog.New(nil), nil, chunkDays, 4)
}

func TestRunNoWorkWhenAlreadyCaughtUp(t *testing.T) {
	now := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	lastFetched := now
	meta := &osm.BoxMeta{ID: "box-1", Sensors: []osm.SensorMeta{{ID: "s1"}}}
	boxStore := &fakeBoxStore{box: domain.Box{LastDataFetched: &lastFetched}}

	o := newTestOrchestrator(now, meta, boxStore, &fakeMeasurementClient{}, 4)
	out, err := o.Run(context.Background(), "box-1")
	require.NoError(t, err)
	assert.True(t, out.NoWork)
}

func TestRunSplitsIntoChunksAndAdvancesWatermark(t *testing.T) {
	now := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	meta := &osm.BoxMeta{ID: "box-1", Sensors: []osm.SensorMeta{{ID: "s1"}, {ID: "s2"}}}
	boxStore := &fakeBoxStore{isNew: true}

	o := newTestOrchestrator(now, meta, boxStore, &fakeMeasurementClient{}, 4)
	out, err := o.Run(context.Background(), "box-1")
	require.NoError(t, err)
	assert.True(t, out.FullySucceeded)
	assert.True(t, out.IsNew)
	assert.Greater(t, out.PointsStored, 0)
	require.Len(t, boxStore.watermarks, 1)
	assert.NotNil(t, boxStore.watermarks[0].ldf)
}

func TestRunStopsAdvancingOnFirstFailedSubInterval(t *testing.T) {
	now := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	meta := &osm.BoxMeta{ID: "box-1", Sensors: []osm.SensorMeta{{ID: "s1"}, {ID: "s2"}}}
	boxStore := &fakeBoxStore{isNew: true}
	measClient := &fakeMeasurementClient{fail: map[string]bool{"s2": true}}

	o := newTestOrchestrator(now, meta, boxStore, measClient, 1)
	out, err := o.Run(context.Background(), "box-1")
	require.NoError(t, err)
	assert.False(t, out.FullySucceeded)
	assert.Equal(t, 1, out.FailedChunks)
}

// TestRunPartialFailureWatermarkNeverBelowFullySucceededSubInterval covers
// spec §8 scenario 2: the first sub-interval fully succeeds for every
// sensor, the second fails for one sensor. The persisted watermark must
// advance at least to the first sub-interval's end, even though the
// second (failing) sub-interval's own successful chunk persisted nothing
// and the latest persisted measurement lies before that boundary.
func TestRunPartialFailureWatermarkNeverBelowFullySucceededSubInterval(t *testing.T) {
	now := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	meta := &osm.BoxMeta{ID: "box-1", Sensors: []osm.SensorMeta{{ID: "s1"}, {ID: "s2"}}}
	boxStore := &fakeBoxStore{isNew: true}

	// 7-day window split into 4-day chunks: first sub-interval is
	// [now-7d, now-3d), second is [now-3d, now). s2 starts failing once the
	// sub-interval reaches the second chunk's start.
	failFrom := now.Add(-7 * 24 * time.Hour).Add(4 * 24 * time.Hour)
	measClient := &fakeFlakyMeasurementClient{sensorID: "s2", failFrom: failFrom}

	o := newTestOrchestratorWithClient(now, meta, boxStore, measClient, 4)
	out, err := o.Run(context.Background(), "box-1")
	require.NoError(t, err)
	assert.False(t, out.FullySucceeded)

	require.Len(t, boxStore.watermarks, 1)
	ldf := boxStore.watermarks[0].ldf
	require.NotNil(t, ldf)
	assert.False(t, ldf.Before(failFrom), "watermark %v must not fall below the first fully-succeeded sub-interval boundary %v", ldf, failFrom)
}

func TestRunPropagatesMetadataFetchError(t *testing.T) {
	now := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(now)
	f := fetch.New(&fakeMeasurementClient{}, &fakeMeasurementStore{}, obslog.New(nil), nil)
	wm := watermark.New(clk, 7*24*time.Hour)
	o := New(&fakeMetaClient{err: errors.New("osm down")}, &fakeBoxStore{}, f, wm, clk, obslog.New(nil), nil, 4, 4)

	_, err := o.Run(context.Background(), "box-1")
	require.Error(t, err)
}
