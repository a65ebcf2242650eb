package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Datata1/umweltmonitoring/internal/clock"
	"github.com/Datata1/umweltmonitoring/internal/domain"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sdb := sqlx.NewDb(db, "pgx")
	return New(sdb, clock.NewFixed(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))), mock
}

func TestGetBoxNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT box_id").WillReturnRows(sqlmock.NewRows(nil))

	_, err := s.GetBox(context.Background(), "box-1")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBoxFound(t *testing.T) {
	s, mock := newMockStore(t)
	cols := []string{"box_id", "name", "exposure", "model", "location", "created_at", "updated_at", "last_measurement_at", "last_data_fetched"}
	rows := sqlmock.NewRows(cols).AddRow("box-1", "Test Box", "outdoor", "homeV2", []byte(`{}`), time.Now(), time.Now(), nil, nil)
	mock.ExpectQuery("SELECT box_id").WillReturnRows(rows)

	b, err := s.GetBox(context.Background(), "box-1")
	require.NoError(t, err)
	assert.Equal(t, "Test Box", b.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBoxReturnsIsNewWhenAbsent(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT box_id").WillReturnRows(sqlmock.NewRows(nil))

	cols := []string{"box_id", "name", "exposure", "model", "location", "created_at", "updated_at", "last_measurement_at", "last_data_fetched"}
	rows := sqlmock.NewRows(cols).AddRow("box-1", "New Box", "indoor", "homeV2", []byte(`{}`), time.Now(), time.Now(), nil, nil)
	mock.ExpectQuery("INSERT INTO boxes").WillReturnRows(rows)

	box, isNew, err := s.UpsertBox(context.Background(), "box-1", "New Box", "indoor", "homeV2", []byte(`{}`), nil)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, "box-1", box.BoxID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkInsertMeasurementsCountsDuplicates(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO measurements")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	out, err := s.BulkInsertMeasurements(context.Background(), []domain.Measurement{
		{SensorID: "s1", Value: 20.1, MeasurementTimestamp: time.Now()},
		{SensorID: "s1", Value: 20.1, MeasurementTimestamp: time.Now()},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Inserted)
	assert.Equal(t, 1, out.Duplicates)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkInsertMeasurementsEmptyIsNoop(t *testing.T) {
	s, _ := newMockStore(t)
	out, err := s.BulkInsertMeasurements(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.InsertOutcome{}, out)
}

func TestUpsertTrainedModelIncrementsVersion(t *testing.T) {
	s, mock := newMockStore(t)
	cols := []string{"id", "model_name", "forecast_horizon_hours", "model_path", "version_id", "last_trained_at",
		"training_duration_seconds", "val_mae", "val_rmse", "val_mape", "val_r2", "naive_val_mae", "naive_val_rmse", "error"}
	rows := sqlmock.NewRows(cols).AddRow(1, "gbm", 1, "/app/models/temp_forecast_h1.bin", 2, time.Now(),
		12.5, 0.5, 0.7, 0.03, 0.91, nil, nil, "")
	mock.ExpectQuery("INSERT INTO trained_models").WillReturnRows(rows)

	row, err := s.UpsertTrainedModel(context.Background(), domain.TrainedModel{
		ModelName: "gbm", ForecastHorizonHours: 1, ModelPath: "/app/models/temp_forecast_h1.bin",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, row.VersionID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReadHourlySeriesOrdersByBucket(t *testing.T) {
	s, mock := newMockStore(t)
	cols := []string{"bucket_start", "avg_value"}
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(cols).AddRow(t0, 20.0).AddRow(t0.Add(time.Hour), 21.0)
	mock.ExpectQuery("SELECT time_bucket").WillReturnRows(rows)

	series, err := s.ReadHourlySeries(context.Background(), "s1", t0, t0.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, 21.0, series[1].AvgValue)
	require.NoError(t, mock.ExpectationsWereMet())
}
