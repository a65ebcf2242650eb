// Package train is the training orchestrator: for each forecast horizon it
// cross-validates a regressor, computes out-of-fold metrics, refits on the
// full training set, persists the artifact, and upserts the registry row
// (spec §4.7, component C8).
package train

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/Datata1/umweltmonitoring/internal/clock"
	"github.com/Datata1/umweltmonitoring/internal/domain"
	"github.com/Datata1/umweltmonitoring/internal/features"
	"github.com/Datata1/umweltmonitoring/internal/metrics"
	"github.com/Datata1/umweltmonitoring/internal/obslog"
	"github.com/Datata1/umweltmonitoring/internal/obsmetrics"
	"github.com/Datata1/umweltmonitoring/internal/obstrace"
	"github.com/Datata1/umweltmonitoring/internal/regress"
	"github.com/Datata1/umweltmonitoring/internal/weather"
	"github.com/Datata1/umweltmonitoring/internal/workerpool"
)

// SeriesStore is the subset of store.Store the trainer needs to read
// history and publish registry rows.
type SeriesStore interface {
	ReadHourlySeries(ctx context.Context, sensorID string, fromUTC, toUTC time.Time) ([]domain.HourlyPoint, error)
	UpsertTrainedModel(ctx context.Context, m domain.TrainedModel) (domain.TrainedModel, error)
}

// WeatherClient is the subset of weather.Client the trainer needs.
type WeatherClient interface {
	FetchHourly(ctx context.Context, from, to time.Time) ([]weather.HourlyPoint, error)
}

// Config configures one training run.
type Config struct {
	TargetSensorID    string
	Horizon           int
	HistoryWeeks      int
	BaseArtifactDir   string
	Location          *time.Location
	Geo               features.Geo
	CVFolds           int
	Workers           int
	RetrainOnFullData bool
}

// HorizonResult is the outcome of fitting one horizon.
type HorizonResult struct {
	Horizon    int
	ModelPath  string
	Metrics    metrics.Set
	NaiveMAE   float64
	NaiveRMSE  float64
	Duration   time.Duration
	Err        error
}

// RunResult is the outcome of one full training run.
type RunResult struct {
	RunID          string
	HorizonResults []HorizonResult
	SummaryPath    string
}

// Orchestrator is the C8 training orchestrator.
type Orchestrator struct {
	store   SeriesStore
	weather WeatherClient
	clock   clock.Clock
	log     obslog.Logger
	metrics *obsmetrics.Metrics
	cfg     Config
}

// New builds an Orchestrator.
func New(store SeriesStore, weatherClient WeatherClient, clk clock.Clock, log obslog.Logger, m *obsmetrics.Metrics, cfg Config) *Orchestrator {
	if cfg.CVFolds < 1 {
		cfg.CVFolds = 3
	}
	if cfg.Workers < 1 {
		cfg.Workers = 3
	}
	return &Orchestrator{store: store, weather: weatherClient, clock: clk, log: log, metrics: m, cfg: cfg}
}

// Run executes one full training pass across all horizons (spec §4.7
// algorithm). Per-horizon failures are isolated: the run is "partially
// successful" if any horizon succeeded.
func (o *Orchestrator) Run(ctx context.Context) (RunResult, error) {
	ctx, span := obstrace.Start(ctx, "train.Run")
	defer span.End()
	runID := uuid.NewString()
	if o.metrics != nil {
		o.metrics.TrainingRuns.Inc()
	}

	now := o.clock.Now()
	from := now.Add(-time.Duration(o.cfg.HistoryWeeks) * 7 * 24 * time.Hour)

	raw, err := o.store.ReadHourlySeries(ctx, o.cfg.TargetSensorID, from, now)
	if err != nil {
		return RunResult{RunID: runID}, fmt.Errorf("train: read_hourly_series: %w", err)
	}
	if len(raw) == 0 {
		return RunResult{RunID: runID}, fmt.Errorf("train: no historical data for sensor %s", o.cfg.TargetSensorID)
	}

	var weatherPoints []weather.HourlyPoint
	if o.weather != nil {
		weatherPoints, err = o.weather.FetchHourly(ctx, raw[0].BucketStart, raw[len(raw)-1].BucketStart)
		if err != nil {
			o.log.WarnCtx(ctx, "weather fetch failed, continuing without weather features", "error", err)
		}
	}

	frame, err := features.Build(raw, weatherPoints, o.cfg.Location, o.cfg.Geo, o.cfg.Horizon)
	if err != nil {
		return RunResult{RunID: runID}, fmt.Errorf("train: feature build: %w", err)
	}

	nRows, _ := frame.X.Dims()
	valStart := nRows - o.cfg.Horizon
	if valStart < 1 {
		valStart = nRows
	}

	horizons := make([]int, o.cfg.Horizon)
	for h := 1; h <= o.cfg.Horizon; h++ {
		horizons[h-1] = h
	}

	results := workerpool.Run(o.cfg.Workers, horizons, func(h int) HorizonResult {
		return o.fitHorizon(ctx, runID, frame, h, valStart)
	})

	for _, r := range results {
		if o.metrics != nil {
			outcome := "ok"
			if r.Err != nil {
				outcome = "error"
			}
			o.metrics.TrainingHorizonOK.WithLabelValues(strconv.Itoa(r.Horizon), outcome).Inc()
			o.metrics.TrainingDuration.WithLabelValues(strconv.Itoa(r.Horizon)).Observe(r.Duration.Seconds())
		}

		row := domain.TrainedModel{
			ModelName: "temp_forecast_gbm", ForecastHorizonHours: r.Horizon,
			ModelPath: r.ModelPath, LastTrainedAt: now, TrainingDurationSeconds: r.Duration.Seconds(),
			ValMAE: r.Metrics.MAE, ValRMSE: r.Metrics.RMSE, ValMAPE: r.Metrics.MAPE, ValR2: r.Metrics.R2,
		}
		if r.Err == nil {
			naiveMAE, naiveRMSE := r.NaiveMAE, r.NaiveRMSE
			row.NaiveValMAE = &naiveMAE
			row.NaiveValRMSE = &naiveRMSE
		} else {
			row.Error = r.Err.Error()
		}
		saved, err := o.store.UpsertTrainedModel(ctx, row)
		if err != nil {
			o.log.ErrorCtx(ctx, "upsert_trained_model failed", "horizon", r.Horizon, "error", err)
		} else if o.metrics != nil {
			o.metrics.ModelVersion.WithLabelValues(strconv.Itoa(r.Horizon)).Set(float64(saved.VersionID))
		}
	}

	summaryPath, err := writeSummary(o.cfg.BaseArtifactDir, runID, results)
	if err != nil {
		o.log.WarnCtx(ctx, "failed to write training summary artifact", "error", err)
	}

	return RunResult{RunID: runID, HorizonResults: results, SummaryPath: summaryPath}, nil
}

func (o *Orchestrator) fitHorizon(ctx context.Context, runID string, frame *features.Frame, h, valStart int) HorizonResult {
	started := o.clock.Now()
	result := HorizonResult{Horizon: h}

	targetCol := h - 1
	nRows, nFeat := frame.X.Dims()
	trainRows := valStart

	yAll := make([]float64, nRows)
	for i := 0; i < nRows; i++ {
		yAll[i] = frame.Y.At(i, targetCol)
	}

	trainX := frame.X.Slice(0, trainRows, 0, nFeat).(*mat.Dense)
	trainY := yAll[:trainRows]

	folds := metrics.TimeSeriesSplit(trainRows, o.folds())
	if len(folds) == 0 {
		result.Err = fmt.Errorf("train: horizon %d has too few rows (%d) for cross-validation", h, trainRows)
		result.Duration = o.clock.Now().Sub(started)
		return result
	}

	bestHP, oofActual, oofPred := selectBestHyperparameters(trainX, trainY, folds)
	result.Metrics = metrics.Compute(oofActual, oofPred)

	finalModel := regress.New(bestHP)
	if err := finalModel.Fit(trainX, trainY); err != nil {
		result.Err = fmt.Errorf("train: refit horizon %d: %w", h, err)
		result.Duration = o.clock.Now().Sub(started)
		return result
	}

	if o.cfg.RetrainOnFullData && valStart < nRows {
		fullModel := regress.New(bestHP)
		fullX := frame.X.Slice(0, nRows, 0, nFeat).(*mat.Dense)
		if err := fullModel.Fit(fullX, yAll); err == nil {
			finalModel = fullModel
		}
	}

	path, err := SaveArtifact(o.cfg.BaseArtifactDir, h, finalModel, frame.FeatureNames)
	if err != nil {
		result.Err = fmt.Errorf("train: save artifact horizon %d: %w", h, err)
		result.Duration = o.clock.Now().Sub(started)
		return result
	}
	result.ModelPath = path

	if valStart < nRows {
		naiveActual := make([]float64, 0, nRows-valStart)
		naivePred := make([]float64, 0, nRows-valStart)
		for i := valStart; i < nRows; i++ {
			if i-24 < 0 {
				continue
			}
			naiveActual = append(naiveActual, frame.Y.At(i, targetCol))
			naivePred = append(naivePred, frame.Y.At(i-24, targetCol))
		}
		naive := metrics.Compute(naiveActual, naivePred)
		result.NaiveMAE = naive.MAE
		result.NaiveRMSE = naive.RMSE
	}

	result.Duration = o.clock.Now().Sub(started)
	return result
}

func (o *Orchestrator) folds() int { return o.cfg.CVFolds }

// selectBestHyperparameters grid-searches regress.DefaultGrid(), scoring
// each candidate by its out-of-fold MAE, and returns the winning
// hyperparameters plus the concatenated OOF actual/predicted pairs used for
// the reported metrics (spec §4.7 step 3c: metrics come from OOF, never
// refit-on-train).
func selectBestHyperparameters(X *mat.Dense, y []float64, folds []metrics.Fold) (regress.Hyperparameters, []float64, []float64) {
	var bestHP regress.Hyperparameters
	var bestActual, bestPred []float64
	bestMAE := -1.0

	for _, hp := range regress.DefaultGrid() {
		actual, pred := crossValidate(X, y, folds, hp)
		m := metrics.Compute(actual, pred)
		if bestMAE < 0 || m.MAE < bestMAE {
			bestMAE = m.MAE
			bestHP = hp
			bestActual = actual
			bestPred = pred
		}
	}
	return bestHP, bestActual, bestPred
}

func crossValidate(X *mat.Dense, y []float64, folds []metrics.Fold, hp regress.Hyperparameters) ([]float64, []float64) {
	_, nFeat := X.Dims()
	var actual, pred []float64
	for _, fold := range folds {
		trainX := mat.NewDense(len(fold.TrainIdx), nFeat, nil)
		trainY := make([]float64, len(fold.TrainIdx))
		for i, idx := range fold.TrainIdx {
			row := mat.Row(nil, idx, X)
			trainX.SetRow(i, row)
			trainY[i] = y[idx]
		}

		model := regress.New(hp)
		if err := model.Fit(trainX, trainY); err != nil {
			continue
		}
		for _, idx := range fold.TestIdx {
			row := mat.Row(nil, idx, X)
			actual = append(actual, y[idx])
			pred = append(pred, model.Predict(row))
		}
	}
	return actual, pred
}
