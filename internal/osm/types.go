package osm

import "time"

// BoxMeta is the parsed response of GET /boxes/{box_id}.
type BoxMeta struct {
	ID                string
	Name              string
	Exposure          string
	Model             string
	Location          []byte
	CreatedAt         time.Time
	UpdatedAt         time.Time
	LastMeasurementAt *time.Time
	Sensors           []SensorMeta
}

// SensorMeta is one sensor descriptor embedded in a box's metadata.
type SensorMeta struct {
	ID         string
	Title      string
	SensorType string
	Unit       string
	Icon       string
}

// Measurement is one raw (timestamp, value) observation as returned by the
// measurements endpoint, before validation/UTC normalization. Both fields
// are kept as the raw API strings so a single malformed row can be skipped
// by the caller (spec §4.4 step 3) instead of failing JSON decode of the
// whole chunk.
type Measurement struct {
	CreatedAtRaw string
	ValueRaw     string
}

const dateLayout = "2006-01-02T15:04:05.000Z"

// FormatAPIDate formats t the way OpenSenseMap expects query parameters:
// RFC 3339 with millisecond precision and a trailing Z (spec §4.1).
func FormatAPIDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}
