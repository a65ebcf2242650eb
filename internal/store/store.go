// Package store is the Postgres/Timescale-backed repository for boxes,
// sensors, measurements, and the trained-model registry (spec §4.2,
// component C3). It opens a *sqlx.DB over the pgx/v5 stdlib driver so
// queries scan straight into tagged structs, while connection pooling is
// handled by database/sql underneath.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Datata1/umweltmonitoring/internal/clock"
	"github.com/Datata1/umweltmonitoring/internal/domain"
)

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("store: not found")

// Store is the concrete C3 repository.
type Store struct {
	db    *sqlx.DB
	clock clock.Clock
}

// Open connects to Postgres using the pgx/v5 stdlib driver and verifies
// connectivity with a ping.
func Open(ctx context.Context, databaseURL string, clk clock.Clock) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	return &Store{db: db, clock: clk}, nil
}

// New wraps an already-open *sqlx.DB (used by tests against go-sqlmock).
func New(db *sqlx.DB, clk clock.Clock) *Store {
	return &Store{db: db, clock: clk}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// GetBox returns the stored Box for boxID, or ErrNotFound if absent.
func (s *Store) GetBox(ctx context.Context, boxID string) (*domain.Box, error) {
	var row boxRow
	err := s.db.GetContext(ctx, &row, `
		SELECT box_id, name, exposure, model, location, created_at, updated_at,
		       last_measurement_at, last_data_fetched
		FROM boxes WHERE box_id = $1`, boxID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get_box: %w", err)
	}
	b := row.toDomain()
	return &b, nil
}

// BoxExists reports whether boxID already has a row in the store, used by
// the scheduler's initial-ingestion trigger (supplemented is_database_empty
// check, grounded on the store rather than an HTTP probe).
func (s *Store) BoxExists(ctx context.Context, boxID string) (bool, error) {
	_, err := s.GetBox(ctx, boxID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpsertBox creates the box if absent, or idempotently refreshes its
// metadata and last_measurement_at if present. Returns the resulting row
// and whether it was newly created (spec §4.5 step 2).
func (s *Store) UpsertBox(ctx context.Context, boxID, name, exposure, model string, location []byte, lastMeasurementAt *time.Time) (box domain.Box, isNew bool, err error) {
	now := s.clock.Now()

	_, lookupErr := s.GetBox(ctx, boxID)
	isNew = errors.Is(lookupErr, ErrNotFound)

	var row boxRow
	err = s.db.GetContext(ctx, &row, `
		INSERT INTO boxes (box_id, name, exposure, model, location, created_at, updated_at, last_measurement_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $7)
		ON CONFLICT (box_id) DO UPDATE SET
			name = EXCLUDED.name,
			exposure = EXCLUDED.exposure,
			model = EXCLUDED.model,
			location = EXCLUDED.location,
			updated_at = EXCLUDED.updated_at,
			last_measurement_at = GREATEST(COALESCE(boxes.last_measurement_at, EXCLUDED.last_measurement_at), COALESCE(EXCLUDED.last_measurement_at, boxes.last_measurement_at))
		RETURNING box_id, name, exposure, model, location, created_at, updated_at, last_measurement_at, last_data_fetched`,
		boxID, name, exposure, model, location, now, lastMeasurementAt)
	if err != nil {
		return domain.Box{}, false, fmt.Errorf("store: upsert_box: %w", err)
	}
	return row.toDomain(), isNew, nil
}

// ListSensors returns every sensor belonging to boxID.
func (s *Store) ListSensors(ctx context.Context, boxID string) ([]domain.Sensor, error) {
	var rows []sensorRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT sensor_id, box_id, title, sensor_type, unit, icon
		FROM sensors WHERE box_id = $1`, boxID); err != nil {
		return nil, fmt.Errorf("store: list_sensors: %w", err)
	}
	out := make([]domain.Sensor, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// UpsertSensor creates a sensor on first sight or refreshes its descriptor
// fields idempotently.
func (s *Store) UpsertSensor(ctx context.Context, sensor domain.Sensor) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sensors (sensor_id, box_id, title, sensor_type, unit, icon)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (sensor_id) DO UPDATE SET
			title = EXCLUDED.title,
			sensor_type = EXCLUDED.sensor_type,
			unit = EXCLUDED.unit,
			icon = EXCLUDED.icon`,
		sensor.SensorID, sensor.BoxID, sensor.Title, sensor.SensorType, sensor.Unit, sensor.Icon)
	if err != nil {
		return fmt.Errorf("store: upsert_sensor: %w", err)
	}
	return nil
}

// BulkInsertMeasurements inserts all rows in one transaction, executing a
// prepared INSERT once per row and relying on a UNIQUE(sensor_id, measurement_timestamp)
// constraint plus ON CONFLICT DO NOTHING for deduplication (spec §4.2).
func (s *Store) BulkInsertMeasurements(ctx context.Context, rows []domain.Measurement) (domain.InsertOutcome, error) {
	if len(rows) == 0 {
		return domain.InsertOutcome{}, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.InsertOutcome{}, fmt.Errorf("store: bulk_insert_measurements: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	inserted := 0
	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO measurements (sensor_id, value, measurement_timestamp)
		VALUES ($1, $2, $3)
		ON CONFLICT (sensor_id, measurement_timestamp) DO NOTHING`)
	if err != nil {
		return domain.InsertOutcome{}, fmt.Errorf("store: bulk_insert_measurements: prepare: %w", err)
	}
	defer stmt.Close()

	for _, m := range rows {
		res, err := stmt.ExecContext(ctx, m.SensorID, m.Value, m.MeasurementTimestamp.UTC())
		if err != nil {
			return domain.InsertOutcome{}, fmt.Errorf("store: bulk_insert_measurements: exec: %w", err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return domain.InsertOutcome{}, fmt.Errorf("store: bulk_insert_measurements: commit: %w", err)
	}
	return domain.InsertOutcome{Inserted: inserted, Duplicates: len(rows) - inserted}, nil
}

// UpdateWatermarks conditionally advances last_measurement_at and/or
// last_data_fetched: each only moves forward, never backward (spec §4.2,
// §4.3).
func (s *Store) UpdateWatermarks(ctx context.Context, boxID string, lastMeasurementAt, lastDataFetched *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE boxes SET
			last_measurement_at = GREATEST(COALESCE(last_measurement_at, $2::timestamptz), COALESCE($2::timestamptz, last_measurement_at)),
			last_data_fetched   = GREATEST(COALESCE(last_data_fetched, $3::timestamptz), COALESCE($3::timestamptz, last_data_fetched)),
			updated_at = $4
		WHERE box_id = $1`,
		boxID, lastMeasurementAt, lastDataFetched, s.clock.Now())
	if err != nil {
		return fmt.Errorf("store: update_watermarks: %w", err)
	}
	return nil
}

// ReadHourlySeries returns hourly-bucketed averages for sensorID in
// [fromUTC, toUTC), ordered by bucket start (spec §4.2, §4.7 step 1).
func (s *Store) ReadHourlySeries(ctx context.Context, sensorID string, fromUTC, toUTC time.Time) ([]domain.HourlyPoint, error) {
	var rows []hourlyRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT time_bucket('1 hour', measurement_timestamp) AS bucket_start,
		       avg(value) AS avg_value
		FROM measurements
		WHERE sensor_id = $1 AND measurement_timestamp >= $2 AND measurement_timestamp < $3
		GROUP BY bucket_start
		ORDER BY bucket_start ASC`,
		sensorID, fromUTC.UTC(), toUTC.UTC())
	if err != nil {
		return nil, fmt.Errorf("store: read_hourly_series: %w", err)
	}
	out := make([]domain.HourlyPoint, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.HourlyPoint{BucketStart: r.BucketStart.UTC(), AvgValue: r.AvgValue})
	}
	return out, nil
}

// UpsertTrainedModel inserts a new registry row for the horizon, or updates
// the existing one and increments version_id (spec §4.2, §4.7 step 6).
func (s *Store) UpsertTrainedModel(ctx context.Context, m domain.TrainedModel) (domain.TrainedModel, error) {
	var row trainedModelRow
	err := s.db.GetContext(ctx, &row, `
		INSERT INTO trained_models (
			model_name, forecast_horizon_hours, model_path, version_id, last_trained_at,
			training_duration_seconds, val_mae, val_rmse, val_mape, val_r2,
			naive_val_mae, naive_val_rmse, error
		) VALUES ($1, $2, $3, 1, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (forecast_horizon_hours) DO UPDATE SET
			model_name = EXCLUDED.model_name,
			model_path = EXCLUDED.model_path,
			version_id = trained_models.version_id + 1,
			last_trained_at = EXCLUDED.last_trained_at,
			training_duration_seconds = EXCLUDED.training_duration_seconds,
			val_mae = EXCLUDED.val_mae,
			val_rmse = EXCLUDED.val_rmse,
			val_mape = EXCLUDED.val_mape,
			val_r2 = EXCLUDED.val_r2,
			naive_val_mae = EXCLUDED.naive_val_mae,
			naive_val_rmse = EXCLUDED.naive_val_rmse,
			error = EXCLUDED.error
		RETURNING id, model_name, forecast_horizon_hours, model_path, version_id, last_trained_at,
		          training_duration_seconds, val_mae, val_rmse, val_mape, val_r2,
		          naive_val_mae, naive_val_rmse, error`,
		m.ModelName, m.ForecastHorizonHours, m.ModelPath, m.LastTrainedAt, m.TrainingDurationSeconds,
		m.ValMAE, m.ValRMSE, m.ValMAPE, m.ValR2, m.NaiveValMAE, m.NaiveValRMSE, m.Error)
	if err != nil {
		return domain.TrainedModel{}, fmt.Errorf("store: upsert_trained_model: %w", err)
	}
	return row.toDomain(), nil
}

// ListTrainedModels returns up to limit rows ordered by forecast horizon,
// for the registry's benefit (spec §4.9). limit <= 0 means unlimited.
func (s *Store) ListTrainedModels(ctx context.Context, limit int) ([]domain.TrainedModel, error) {
	if limit < 0 {
		limit = 0
	}
	var rows []trainedModelRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, model_name, forecast_horizon_hours, model_path, version_id, last_trained_at,
		       training_duration_seconds, val_mae, val_rmse, val_mape, val_r2,
		       naive_val_mae, naive_val_rmse, error
		FROM trained_models
		ORDER BY forecast_horizon_hours ASC
		LIMIT NULLIF($1, 0)`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list_trained_models: %w", err)
	}
	out := make([]domain.TrainedModel, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}
