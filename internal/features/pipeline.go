// Package features implements the deterministic transform from an hourly
// temperature series into a feature matrix X (and, at training time, a
// target matrix Y for horizons 1..H). It is the single source of truth
// shared by the training and prediction call sites (spec §4.6, component
// C7): the same Build call, with the same inputs, must produce bit-
// identical output whether it feeds a training run or a live prediction.
package features

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/Datata1/umweltmonitoring/internal/domain"
	"github.com/Datata1/umweltmonitoring/internal/weather"
)

var (
	targetLags      = []int{1, 2, 3, 24}
	rollingWindows  = []int{3, 6, 24, 48, 72, 168}
	diffPeriods     = []int{1, 3, 6, 12, 24}
	weatherLagCols  = []string{"weather_ghi", "weather_cloud_cover"}
	weatherLagHours = []int{1, 2, 3, 24}
)

// Geo is the fixed station geolocation used for solar-position features.
type Geo struct {
	Latitude, Longitude float64
}

// Frame is the output of Build: a column-major feature matrix X aligned to
// Timestamps, plus (when built for training) a target matrix Y with one
// column per forecast horizon.
type Frame struct {
	Timestamps   []time.Time
	FeatureNames []string
	X            *mat.Dense

	TargetNames []string
	Y           *mat.Dense
}

// Row returns the i-th feature row as a plain slice, for regressors that
// take a single sample (prediction path).
func (f *Frame) Row(i int) []float64 {
	row := make([]float64, len(f.FeatureNames))
	mat.Row(row, i, f.X)
	return row
}

// Build runs the full feature pipeline over raw (an hourly series ordered
// ascending by bucket, UTC) plus joined weather data. When horizon > 0 the
// frame also carries target columns target_temp_plus_{h}h for h in
// [1..horizon] and rows at the tail that lack a full horizon are dropped.
func Build(raw []domain.HourlyPoint, weatherPoints []weather.HourlyPoint, loc *time.Location, geo Geo, horizon int) (*Frame, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("features: empty input series")
	}
	if loc == nil {
		loc = time.UTC
	}

	n := len(raw)
	timestamps := make([]time.Time, n)
	temperature := make([]float64, n)
	for i, p := range raw {
		timestamps[i] = p.BucketStart.UTC()
		temperature[i] = p.AvgValue
	}

	weatherByHour := indexWeatherByHour(weatherPoints)

	cols := newColumnSet(n)

	elevSin := make([]float64, n)
	azSin := make([]float64, n)
	azCos := make([]float64, n)
	hourSin := make([]float64, n)
	hourCos := make([]float64, n)
	humidity := make([]float64, n)
	cloudCover := make([]float64, n)
	windSpeed := make([]float64, n)
	ghi := make([]float64, n)

	for i, ts := range timestamps {
		elevDeg, azDeg := solarPosition(ts, geo.Latitude, geo.Longitude)
		elevSin[i] = math.Sin(deg2rad(elevDeg))
		azSin[i] = math.Sin(deg2rad(azDeg))
		azCos[i] = math.Cos(deg2rad(azDeg))

		localHour := float64(ts.In(loc).Hour())
		hourSin[i] = math.Sin(2 * math.Pi * localHour / 24.0)
		hourCos[i] = math.Cos(2 * math.Pi * localHour / 24.0)

		if w, ok := weatherByHour[ts.Truncate(time.Hour).Unix()]; ok {
			humidity[i] = w.Humidity
			cloudCover[i] = w.CloudCover
			windSpeed[i] = w.WindSpeed
			ghi[i] = w.GHI
		} else {
			humidity[i] = math.NaN()
			cloudCover[i] = math.NaN()
			windSpeed[i] = math.NaN()
			ghi[i] = math.NaN()
		}
	}

	cols.add("solar_elevation_sin", elevSin)
	cols.add("solar_azimuth_sin", azSin)
	cols.add("solar_azimuth_cos", azCos)
	cols.add("weather_humidity", humidity)
	cols.add("weather_cloud_cover", cloudCover)
	cols.add("weather_wind_speed", windSpeed)
	cols.add("weather_ghi", ghi)
	cols.add("hour_sin", hourSin)
	cols.add("hour_cos", hourCos)

	for _, lag := range targetLags {
		cols.add(fmt.Sprintf("temp_lag_%dh", lag), shift(temperature, lag))
	}

	shifted1 := shift(temperature, 1)
	for _, w := range rollingWindows {
		mean, std := rollingMeanStd(shifted1, w)
		cols.add(fmt.Sprintf("temp_roll_mean_%dh", w), mean)
		cols.add(fmt.Sprintf("temp_roll_std_%dh", w), std)
	}

	for _, p := range diffPeriods {
		cols.add(fmt.Sprintf("temp_diff_%dh", p), diff(shifted1, p))
	}

	weatherCols := map[string][]float64{"weather_ghi": ghi, "weather_cloud_cover": cloudCover}
	for _, name := range weatherLagCols {
		series := weatherCols[name]
		for _, lag := range weatherLagHours {
			cols.add(fmt.Sprintf("%s_lag_%dh", name, lag), shift(series, lag))
		}
	}

	cols.forwardFillThenBackfill()

	var targetNames []string
	var targetCols [][]float64
	if horizon > 0 {
		for h := 1; h <= horizon; h++ {
			name := fmt.Sprintf("target_temp_plus_%dh", h)
			targetNames = append(targetNames, name)
			targetCols = append(targetCols, shiftNegative(temperature, h))
		}
	}

	keepRows := make([]bool, n)
	for i := 0; i < n; i++ {
		keepRows[i] = cols.rowIsClean(i)
		if horizon > 0 {
			for _, tc := range targetCols {
				if math.IsNaN(tc[i]) {
					keepRows[i] = false
				}
			}
		}
	}

	return cols.buildFrame(timestamps, keepRows, targetNames, targetCols)
}

func indexWeatherByHour(points []weather.HourlyPoint) map[int64]weather.HourlyPoint {
	out := make(map[int64]weather.HourlyPoint, len(points))
	for _, p := range points {
		out[p.Time.Truncate(time.Hour).Unix()] = p
	}
	return out
}

// shift returns series delayed by lag steps (series[i-lag]), with the
// leading lag entries set to NaN — pandas' Series.shift(lag).
func shift(series []float64, lag int) []float64 {
	out := make([]float64, len(series))
	for i := range out {
		src := i - lag
		if src < 0 || src >= len(series) {
			out[i] = math.NaN()
			continue
		}
		out[i] = series[src]
	}
	return out
}

// shiftNegative returns series advanced by h steps (series[i+h]) — pandas'
// Series.shift(-h), used to build forward-looking targets.
func shiftNegative(series []float64, h int) []float64 {
	out := make([]float64, len(series))
	for i := range out {
		src := i + h
		if src >= len(series) {
			out[i] = math.NaN()
			continue
		}
		out[i] = series[src]
	}
	return out
}

// diff returns the period-step difference of series: series[i] - series[i-period].
func diff(series []float64, period int) []float64 {
	out := make([]float64, len(series))
	for i := range out {
		src := i - period
		if src < 0 || math.IsNaN(series[i]) || math.IsNaN(series[src]) {
			out[i] = math.NaN()
			continue
		}
		out[i] = series[i] - series[src]
	}
	return out
}

// rollingMeanStd computes a trailing rolling mean/std with min_periods=1,
// matching pandas' rolling(window, min_periods=1).{mean,std}.
func rollingMeanStd(series []float64, window int) (mean, std []float64) {
	n := len(series)
	mean = make([]float64, n)
	std = make([]float64, n)
	for i := 0; i < n; i++ {
		lo := i - window + 1
		if lo < 0 {
			lo = 0
		}
		var buf []float64
		for j := lo; j <= i; j++ {
			if !math.IsNaN(series[j]) {
				buf = append(buf, series[j])
			}
		}
		if len(buf) == 0 {
			mean[i] = math.NaN()
			std[i] = math.NaN()
			continue
		}
		mean[i] = stat.Mean(buf, nil)
		if len(buf) < 2 {
			std[i] = math.NaN()
			continue
		}
		std[i] = stat.StdDev(buf, nil)
	}
	return mean, std
}

// columnSet keeps feature columns in insertion order so output column
// ordering (and therefore the fitted model's feature indexing) is stable.
type columnSet struct {
	n       int
	names   []string
	columns map[string][]float64
}

func newColumnSet(n int) *columnSet {
	return &columnSet{n: n, columns: make(map[string][]float64)}
}

func (c *columnSet) add(name string, values []float64) {
	if _, exists := c.columns[name]; !exists {
		c.names = append(c.names, name)
	}
	c.columns[name] = values
}

// forwardFillThenBackfill mirrors pandas' ffill().bfill(): fill forward
// linearly interpolating gaps, then back-fill any still-NaN leading run
// (spec §4.6 step 9).
func (c *columnSet) forwardFillThenBackfill() {
	for _, name := range c.names {
		col := c.columns[name]
		linearInterpolateForward(col)
		backfillLeading(col)
	}
}

func linearInterpolateForward(col []float64) {
	n := len(col)
	i := 0
	for i < n {
		if !math.IsNaN(col[i]) {
			i++
			continue
		}
		// find the previous known value and the next known value.
		prevIdx := i - 1
		for prevIdx >= 0 && math.IsNaN(col[prevIdx]) {
			prevIdx--
		}
		nextIdx := i
		for nextIdx < n && math.IsNaN(col[nextIdx]) {
			nextIdx++
		}
		if prevIdx < 0 {
			// leading NaN run; left to backfillLeading.
			i = nextIdx
			continue
		}
		if nextIdx >= n {
			for j := i; j < n; j++ {
				col[j] = col[prevIdx]
			}
			break
		}
		span := nextIdx - prevIdx
		for j := i; j < nextIdx; j++ {
			frac := float64(j-prevIdx) / float64(span)
			col[j] = col[prevIdx] + frac*(col[nextIdx]-col[prevIdx])
		}
		i = nextIdx
	}
}

func backfillLeading(col []float64) {
	firstKnown := -1
	for i, v := range col {
		if !math.IsNaN(v) {
			firstKnown = i
			break
		}
	}
	if firstKnown < 0 {
		// column has no observed value at all (e.g. no weather data joined
		// for the covered range) — zero it rather than dropping every row.
		for i := range col {
			col[i] = 0
		}
		return
	}
	if firstKnown == 0 {
		return
	}
	for i := 0; i < firstKnown; i++ {
		col[i] = col[firstKnown]
	}
}

func (c *columnSet) rowIsClean(i int) bool {
	for _, name := range c.names {
		if math.IsNaN(c.columns[name][i]) {
			return false
		}
	}
	return true
}

func (c *columnSet) buildFrame(timestamps []time.Time, keep []bool, targetNames []string, targetCols [][]float64) (*Frame, error) {
	var kept []int
	for i, ok := range keep {
		if ok {
			kept = append(kept, i)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("features: no usable rows after dropping NaNs")
	}

	sorted := c.names

	x := mat.NewDense(len(kept), len(sorted), nil)
	for col, name := range sorted {
		src := c.columns[name]
		for row, i := range kept {
			x.Set(row, col, src[i])
		}
	}

	f := &Frame{
		FeatureNames: sorted,
		X:            x,
	}
	f.Timestamps = make([]time.Time, len(kept))
	for row, i := range kept {
		f.Timestamps[row] = timestamps[i]
	}

	if len(targetNames) > 0 {
		y := mat.NewDense(len(kept), len(targetNames), nil)
		for col, series := range targetCols {
			for row, i := range kept {
				y.Set(row, col, series[i])
			}
		}
		f.TargetNames = targetNames
		f.Y = y
	}

	return f, nil
}
