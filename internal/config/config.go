// Package config loads and validates the environment-variable configuration
// enumerated in spec.md §6, following the fail-fast Validate() pattern the
// teacher applies to its ScraperConfig.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Sentinel errors for missing/invalid configuration (spec §7, kind "Config").
var (
	ErrMissingDBUser      = errors.New("config: DB_USER is required")
	ErrMissingDBPassword  = errors.New("config: DB_PASSWORD is required")
	ErrMissingDBHost      = errors.New("config: DB_HOST is required")
	ErrMissingDBName      = errors.New("config: DB_NAME is required")
	ErrMissingSensorBox   = errors.New("config: SENSOR_BOX_ID is required")
	ErrMissingTargetSenor = errors.New("config: TARGET_SENSOR_ID is required")
	ErrInvalidHorizon     = errors.New("config: FORECAST_HORIZON must be >= 1")
	ErrInvalidTimezone    = errors.New("config: TIMEZONE is not a valid IANA zone")
	ErrMissingModelPath   = errors.New("config: MODEL_PATH is required")
)

// Config is the fully-resolved, validated process configuration.
type Config struct {
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string
	DatabaseURL string

	SensorBoxID    string
	TargetSensorID string

	InitialTimeWindowDays int
	FetchTimeWindowDays   int

	ModelPath string
	RedisHost string
	RedisPort string

	ForecastHorizon int
	Timezone        string
	Location        *time.Location

	SensorLatitude  float64
	SensorLongitude float64

	IngestInterval  time.Duration
	TrainingCron    string
	IngestWorkers   int
	TrainingWorkers int
}

// Load reads configuration from the process environment, applies defaults,
// and validates it. Fatal (exit code 1) per spec §6 on any error.
func Load() (*Config, error) {
	cfg := &Config{
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     getenvDefault("DB_PORT", "5432"),
		DBName:     os.Getenv("DB_NAME"),

		SensorBoxID:    os.Getenv("SENSOR_BOX_ID"),
		TargetSensorID: os.Getenv("TARGET_SENSOR_ID"),

		ModelPath: getenvDefault("MODEL_PATH", "/app/models"),
		RedisHost: os.Getenv("REDIS_HOST"),
		RedisPort: getenvDefault("REDIS_PORT", "6379"),

		Timezone: getenvDefault("TIMEZONE", "UTC"),

		TrainingCron:    getenvDefault("TRAINING_CRON", "0 2 * * *"),
		IngestWorkers:   12,
		TrainingWorkers: 3,
	}

	var err error
	if cfg.InitialTimeWindowDays, err = getenvIntDefault("INITIAL_TIME_WINDOW_IN_DAYS", 7); err != nil {
		return nil, err
	}
	if cfg.FetchTimeWindowDays, err = getenvIntDefault("FETCH_TIME_WINDOW_DAYS", 4); err != nil {
		return nil, err
	}
	if cfg.ForecastHorizon, err = getenvIntDefault("FORECAST_HORIZON", 24); err != nil {
		return nil, err
	}
	if cfg.IngestInterval, err = getenvDurationDefault("INGEST_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	// Defaults match the original deployment's fixed sensor box location
	// (52.02°N, 1.74°W, England), used for solar-position features and the
	// weather join.
	if cfg.SensorLatitude, err = getenvFloatDefault("SENSOR_LATITUDE", 52.019364); err != nil {
		return nil, err
	}
	if cfg.SensorLongitude, err = getenvFloatDefault("SENSOR_LONGITUDE", -1.73893); err != nil {
		return nil, err
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = deriveDatabaseURL(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and resolves the IANA timezone. Mirrors
// the teacher's Validate() in fixing up soft defaults in place.
func (c *Config) Validate() error {
	if c.DBUser == "" {
		return ErrMissingDBUser
	}
	if c.DBPassword == "" {
		return ErrMissingDBPassword
	}
	if c.DBHost == "" {
		return ErrMissingDBHost
	}
	if c.DBName == "" {
		return ErrMissingDBName
	}
	if c.SensorBoxID == "" {
		return ErrMissingSensorBox
	}
	if c.TargetSensorID == "" {
		return ErrMissingTargetSenor
	}
	if c.ForecastHorizon < 1 {
		return ErrInvalidHorizon
	}
	if c.ModelPath == "" {
		return ErrMissingModelPath
	}
	if c.IngestWorkers < 1 {
		c.IngestWorkers = 1
	}
	if c.TrainingWorkers < 1 {
		c.TrainingWorkers = 1
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("%w: %s (%v)", ErrInvalidTimezone, c.Timezone, err)
	}
	c.Location = loc
	return nil
}

func deriveDatabaseURL(user, password, host, port, name string) string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(user, password),
		Host:   fmt.Sprintf("%s:%s", host, port),
		Path:   "/" + name,
	}
	q := url.Values{}
	q.Set("sslmode", "disable")
	u.RawQuery = q.Encode()
	return u.String()
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	return n, nil
}

func getenvFloatDefault(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be a number: %w", key, err)
	}
	return f, nil
}

func getenvDurationDefault(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be a duration: %w", key, err)
	}
	return d, nil
}
