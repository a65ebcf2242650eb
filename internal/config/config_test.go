package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DB_USER", "DB_PASSWORD", "DB_HOST", "DB_PORT", "DB_NAME", "DATABASE_URL",
		"SENSOR_BOX_ID", "TARGET_SENSOR_ID", "INITIAL_TIME_WINDOW_IN_DAYS",
		"FETCH_TIME_WINDOW_DAYS", "MODEL_PATH", "REDIS_HOST", "REDIS_PORT",
		"FORECAST_HORIZON", "TIMEZONE", "TRAINING_CRON", "INGEST_INTERVAL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadMissingRequiredFieldIsFatal(t *testing.T) {
	clearEnv(t)
	_, err := Load()
	require.ErrorIs(t, err, ErrMissingDBUser)
}

func TestLoadDerivesDatabaseURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_USER", "osm")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_NAME", "sensors")
	t.Setenv("SENSOR_BOX_ID", "box-1")
	t.Setenv("TARGET_SENSOR_ID", "sensor-1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Contains(t, cfg.DatabaseURL, "osm:secret@db:5432/sensors")
	assert.Equal(t, 24, cfg.ForecastHorizon)
}

func TestLoadInvalidTimezoneFails(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_USER", "osm")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_NAME", "sensors")
	t.Setenv("SENSOR_BOX_ID", "box-1")
	t.Setenv("TARGET_SENSOR_ID", "sensor-1")
	t.Setenv("TIMEZONE", "Not/AZone")

	_, err := Load()
	require.ErrorIs(t, err, ErrInvalidTimezone)
}
