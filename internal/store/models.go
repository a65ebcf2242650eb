package store

import (
	"time"

	"github.com/Datata1/umweltmonitoring/internal/domain"
)

// boxRow is the sqlx scan target for the boxes table.
type boxRow struct {
	BoxID             string     `db:"box_id"`
	Name              string     `db:"name"`
	Exposure          string     `db:"exposure"`
	Model             string     `db:"model"`
	Location          []byte     `db:"location"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
	LastMeasurementAt *time.Time `db:"last_measurement_at"`
	LastDataFetched   *time.Time `db:"last_data_fetched"`
}

func (r boxRow) toDomain() domain.Box {
	return domain.Box{
		BoxID: r.BoxID, Name: r.Name, Exposure: r.Exposure, Model: r.Model,
		Location: r.Location, CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
		LastMeasurementAt: utcPtr(r.LastMeasurementAt), LastDataFetched: utcPtr(r.LastDataFetched),
	}
}

// sensorRow is the sqlx scan target for the sensors table.
type sensorRow struct {
	SensorID   string `db:"sensor_id"`
	BoxID      string `db:"box_id"`
	Title      string `db:"title"`
	SensorType string `db:"sensor_type"`
	Unit       string `db:"unit"`
	Icon       string `db:"icon"`
}

func (r sensorRow) toDomain() domain.Sensor {
	return domain.Sensor{SensorID: r.SensorID, BoxID: r.BoxID, Title: r.Title, SensorType: r.SensorType, Unit: r.Unit, Icon: r.Icon}
}

// hourlyRow is the sqlx scan target for a time_bucket aggregation row.
type hourlyRow struct {
	BucketStart time.Time `db:"bucket_start"`
	AvgValue    float64   `db:"avg_value"`
}

// trainedModelRow is the sqlx scan target for the trained_models table.
type trainedModelRow struct {
	ID                      int64     `db:"id"`
	ModelName               string    `db:"model_name"`
	ForecastHorizonHours    int       `db:"forecast_horizon_hours"`
	ModelPath               string    `db:"model_path"`
	VersionID               int       `db:"version_id"`
	LastTrainedAt           time.Time `db:"last_trained_at"`
	TrainingDurationSeconds float64   `db:"training_duration_seconds"`
	ValMAE                  float64   `db:"val_mae"`
	ValRMSE                 float64   `db:"val_rmse"`
	ValMAPE                 float64   `db:"val_mape"`
	ValR2                   float64   `db:"val_r2"`
	NaiveValMAE             *float64  `db:"naive_val_mae"`
	NaiveValRMSE            *float64  `db:"naive_val_rmse"`
	Error                   string    `db:"error"`
}

func (r trainedModelRow) toDomain() domain.TrainedModel {
	return domain.TrainedModel{
		ID: r.ID, ModelName: r.ModelName, ForecastHorizonHours: r.ForecastHorizonHours,
		ModelPath: r.ModelPath, VersionID: r.VersionID, LastTrainedAt: r.LastTrainedAt.UTC(),
		TrainingDurationSeconds: r.TrainingDurationSeconds, ValMAE: r.ValMAE, ValRMSE: r.ValRMSE,
		ValMAPE: r.ValMAPE, ValR2: r.ValR2, NaiveValMAE: r.NaiveValMAE, NaiveValRMSE: r.NaiveValRMSE,
		Error: r.Error,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
