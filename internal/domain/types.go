// Package domain holds the entities shared across the ingestion and
// training pipelines: Box, Sensor, Measurement and TrainedModel (spec §3).
package domain

import "time"

// Box is a physical sensor station. BoxID is opaque and immutable; the rest
// of the fields are mutable metadata refreshed on every ingestion run.
type Box struct {
	BoxID             string
	Name              string
	Exposure          string
	Model             string
	Location          []byte // opaque JSON, as returned by the OpenSenseMap API
	CreatedAt         time.Time
	UpdatedAt         time.Time
	LastMeasurementAt *time.Time
	LastDataFetched   *time.Time
}

// Sensor is one measurement channel attached to a Box. BoxID is carried by
// value, never a pointer back to the owning Box (spec §9, cyclic-relationship
// note) — joins happen at query time via the store.
type Sensor struct {
	SensorID   string
	BoxID      string
	Title      string
	SensorType string
	Unit       string
	Icon       string
}

// Measurement is one (timestamp, value) observation. The composite key is
// (SensorID, MeasurementTimestamp); ID is retained only for compatibility
// with tooling that expects a surrogate key.
type Measurement struct {
	ID                    int64
	SensorID              string
	Value                 float64
	MeasurementTimestamp  time.Time
}

// InsertOutcome reports how many rows a bulk insert actually persisted.
type InsertOutcome struct {
	Inserted   int
	Duplicates int
}

// HourlyPoint is one hourly-bucketed average produced by the store's
// continuous-aggregate read path (or its on-the-fly fallback).
type HourlyPoint struct {
	BucketStart time.Time
	AvgValue    float64
}

// TrainedModel is one registry row: one per (horizon, active version).
type TrainedModel struct {
	ID                      int64
	ModelName               string
	ForecastHorizonHours    int
	ModelPath               string
	VersionID               int
	LastTrainedAt           time.Time
	TrainingDurationSeconds float64
	ValMAE                  float64
	ValRMSE                 float64
	ValMAPE                 float64
	ValR2                   float64
	NaiveValMAE             *float64
	NaiveValRMSE            *float64
	Error                   string // non-empty means this horizon's last run failed; row excluded from servable lists
}

// Servable reports whether this registry row may be surfaced by the read API:
// it must have no recorded error and must point at an artifact (spec §3 inv. 4).
func (m TrainedModel) Servable() bool {
	return m.Error == "" && m.ModelPath != ""
}
