package train

import (
	"context"
	"math"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Datata1/umweltmonitoring/internal/clock"
	"github.com/Datata1/umweltmonitoring/internal/domain"
	"github.com/Datata1/umweltmonitoring/internal/features"
	"github.com/Datata1/umweltmonitoring/internal/obslog"
	"github.com/Datata1/umweltmonitoring/internal/weather"
)

type fakeSeriesStore struct {
	points  []domain.HourlyPoint
	upserts []domain.TrainedModel
}

func (f *fakeSeriesStore) ReadHourlySeries(ctx context.Context, sensorID string, fromUTC, toUTC time.Time) ([]domain.HourlyPoint, error) {
	return f.points, nil
}

func (f *fakeSeriesStore) UpsertTrainedModel(ctx context.Context, m domain.TrainedModel) (domain.TrainedModel, error) {
	f.upserts = append(f.upserts, m)
	m.VersionID = 1
	return m, nil
}

type fakeWeatherClient struct{}

func (fakeWeatherClient) FetchHourly(ctx context.Context, from, to time.Time) ([]weather.HourlyPoint, error) {
	return nil, nil
}

func syntheticSeries(start time.Time, n int) []domain.HourlyPoint {
	out := make([]domain.HourlyPoint, n)
	for i := 0; i < n; i++ {
		out[i] = domain.HourlyPoint{
			BucketStart: start.Add(time.Duration(i) * time.Hour),
			AvgValue:    15 + 5*math.Sin(2*math.Pi*float64(i%24)/24.0),
		}
	}
	return out
}

func TestRunTrainsEveryHorizonAndWritesSummary(t *testing.T) {
	tmp := t.TempDir()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeSeriesStore{points: syntheticSeries(start, 600)}
	now := start.Add(600 * time.Hour)

	o := New(store, fakeWeatherClient{}, clock.NewFixed(now), obslog.New(nil), nil, Config{
		TargetSensorID: "sensor-1", Horizon: 3, HistoryWeeks: 4,
		BaseArtifactDir: tmp, Location: time.UTC, Geo: features.Geo{Latitude: 52, Longitude: -1.7},
		CVFolds: 2, Workers: 2,
	})

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.HorizonResults, 3)
	for _, r := range result.HorizonResults {
		assert.NoError(t, r.Err)
		assert.FileExists(t, r.ModelPath)
	}
	assert.FileExists(t, result.SummaryPath)
	assert.Len(t, store.upserts, 3)
}

func TestRunFailsWhenSeriesEmpty(t *testing.T) {
	tmp := t.TempDir()
	store := &fakeSeriesStore{points: nil}
	o := New(store, fakeWeatherClient{}, clock.Real(), obslog.New(nil), nil, Config{
		TargetSensorID: "sensor-1", Horizon: 2, HistoryWeeks: 1, BaseArtifactDir: tmp, Location: time.UTC,
	})
	_, err := o.Run(context.Background())
	require.Error(t, err)
}

func TestRunRetrainOnFullDataUsesFullModelForArtifact(t *testing.T) {
	tmp := t.TempDir()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeSeriesStore{points: syntheticSeries(start, 400)}
	now := start.Add(400 * time.Hour)

	o := New(store, fakeWeatherClient{}, clock.NewFixed(now), obslog.New(nil), nil, Config{
		TargetSensorID: "sensor-1", Horizon: 2, HistoryWeeks: 3,
		BaseArtifactDir: tmp, Location: time.UTC, Geo: features.Geo{Latitude: 52, Longitude: -1.7},
		CVFolds: 2, Workers: 2, RetrainOnFullData: true,
	})

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	// The model's intercept is its training-target mean, so an artifact
	// refit on every row carries the mean of the full target column.
	frame, err := features.Build(store.points, nil, time.UTC, features.Geo{Latitude: 52, Longitude: -1.7}, 2)
	require.NoError(t, err)
	nRows, _ := frame.Y.Dims()
	for _, r := range result.HorizonResults {
		require.NoError(t, r.Err)
		_, err := os.Stat(r.ModelPath)
		require.NoError(t, err)

		_, state, err := LoadArtifact(r.ModelPath)
		require.NoError(t, err)
		sum := 0.0
		for i := 0; i < nRows; i++ {
			sum += frame.Y.At(i, r.Horizon-1)
		}
		assert.InDelta(t, sum/float64(nRows), state.Baseline, 1e-9)
	}
}
