// Package ingest is the ingestion orchestrator: it learns the next time
// window via the watermark service, splits it into chunk-sized
// sub-intervals, fans chunk tasks out across sensors with bounded
// parallelism, and advances the watermark (spec §4.5, component C6).
package ingest

import (
	"context"
	"time"

	"github.com/Datata1/umweltmonitoring/internal/clock"
	"github.com/Datata1/umweltmonitoring/internal/domain"
	"github.com/Datata1/umweltmonitoring/internal/fetch"
	"github.com/Datata1/umweltmonitoring/internal/obslog"
	"github.com/Datata1/umweltmonitoring/internal/obsmetrics"
	"github.com/Datata1/umweltmonitoring/internal/obstrace"
	"github.com/Datata1/umweltmonitoring/internal/osm"
	"github.com/Datata1/umweltmonitoring/internal/watermark"
	"github.com/Datata1/umweltmonitoring/internal/workerpool"
)

// MetadataClient is the subset of osm.Client the orchestrator needs.
type MetadataClient interface {
	FetchBoxMetadata(ctx context.Context, boxID string) (*osm.BoxMeta, error)
}

// BoxStore is the subset of store.Store the orchestrator needs for box and
// sensor bookkeeping.
type BoxStore interface {
	UpsertBox(ctx context.Context, boxID, name, exposure, model string, location []byte, lastMeasurementAt *time.Time) (domain.Box, bool, error)
	UpsertSensor(ctx context.Context, sensor domain.Sensor) error
	UpdateWatermarks(ctx context.Context, boxID string, lastMeasurementAt, lastDataFetched *time.Time) error
}

// Outcome is returned to C9 so it can gate the one-shot training trigger on
// first-time success (spec §4.5 step 7).
type Outcome struct {
	IsNew        bool
	NoWork       bool
	FullySucceeded bool
	PointsStored int
	SkippedRows  int
	FailedChunks int
}

// Orchestrator is the C6 ingestion orchestrator.
type Orchestrator struct {
	client    MetadataClient
	store     BoxStore
	fetcher   *fetch.Fetcher
	watermark *watermark.Service
	clock     clock.Clock
	log       obslog.Logger
	metrics   *obsmetrics.Metrics

	chunkDays int
	workers   int
}

// New builds an Orchestrator.
func New(client MetadataClient, store BoxStore, fetcher *fetch.Fetcher, wm *watermark.Service, clk clock.Clock, log obslog.Logger, metrics *obsmetrics.Metrics, chunkDays, workers int) *Orchestrator {
	if chunkDays < 1 {
		chunkDays = 4
	}
	if workers < 1 {
		workers = 12
	}
	return &Orchestrator{client: client, store: store, fetcher: fetcher, watermark: wm, clock: clk, log: log, metrics: metrics, chunkDays: chunkDays, workers: workers}
}

// Run executes one full ingestion pass for boxID (spec §4.5 algorithm).
func (o *Orchestrator) Run(ctx context.Context, boxID string) (Outcome, error) {
	ctx, span := obstrace.Start(ctx, "ingest.Run")
	defer span.End()
	started := o.clock.Now()
	if o.metrics != nil {
		defer func() { o.metrics.IngestDuration.Observe(o.clock.Now().Sub(started).Seconds()) }()
	}

	meta, err := o.client.FetchBoxMetadata(ctx, boxID)
	if err != nil {
		o.log.ErrorCtx(ctx, "box metadata fetch failed", "box_id", boxID, "error", err)
		return Outcome{}, err
	}

	box, isNew, err := o.store.UpsertBox(ctx, meta.ID, meta.Name, meta.Exposure, meta.Model, meta.Location, meta.LastMeasurementAt)
	if err != nil {
		return Outcome{}, err
	}
	for _, s := range meta.Sensors {
		if err := o.store.UpsertSensor(ctx, domain.Sensor{SensorID: s.ID, BoxID: box.BoxID, Title: s.Title, SensorType: s.SensorType, Unit: s.Unit, Icon: s.Icon}); err != nil {
			return Outcome{}, err
		}
	}

	window := o.watermark.ComputeWindow(box, meta.LastMeasurementAt, isNew)
	if window.NoWork {
		return Outcome{IsNew: isNew, NoWork: true, FullySucceeded: true}, nil
	}

	subIntervals := splitIntoChunks(window.FromUTC, window.ToUTC, time.Duration(o.chunkDays)*24*time.Hour)

	var maxPersisted *time.Time
	var lastFullySucceededSubIntervalTo *time.Time
	fullySucceeded := true
	totalStored := 0
	totalSkipped := 0
	totalFailed := 0

subIntervalLoop:
	for _, sub := range subIntervals {
		type task struct {
			sensorID string
		}
		tasks := make([]task, 0, len(meta.Sensors))
		for _, s := range meta.Sensors {
			tasks = append(tasks, task{sensorID: s.ID})
		}

		outcomes := workerpool.Run(o.workers, tasks, func(tk task) fetch.ChunkOutcome {
			return o.fetcher.FetchAndStore(ctx, tk.sensorID, box.BoxID, sub.from, sub.to)
		})

		subFailed := false
		for _, oc := range outcomes {
			totalStored += oc.PointsStored
			totalSkipped += oc.SkippedRows
			if !oc.Success {
				subFailed = true
				totalFailed++
				continue
			}
			if oc.LastTS != nil && (maxPersisted == nil || oc.LastTS.After(*maxPersisted)) {
				maxPersisted = oc.LastTS
			}
		}

		if subFailed {
			fullySucceeded = false
			break subIntervalLoop
		}
		// Every sensor succeeded for this sub-interval; its end is a safe
		// lower bound for the watermark even if a later sub-interval fails
		// without itself persisting any in-window rows (spec §8 scenario 2).
		to := sub.to
		lastFullySucceededSubIntervalTo = &to
	}

	finalWatermark := watermark.FinalWatermark(box.LastDataFetched, window.ToUTC, fullySucceeded, maxPersisted, lastFullySucceededSubIntervalTo)
	if err := o.store.UpdateWatermarks(ctx, box.BoxID, maxPersisted, &finalWatermark); err != nil {
		return Outcome{}, err
	}
	if o.metrics != nil {
		o.metrics.WatermarkAgeSec.WithLabelValues(box.BoxID).Set(o.clock.Now().Sub(finalWatermark).Seconds())
	}

	return Outcome{
		IsNew: isNew, FullySucceeded: fullySucceeded,
		PointsStored: totalStored, SkippedRows: totalSkipped, FailedChunks: totalFailed,
	}, nil
}

type subInterval struct {
	from, to time.Time
}

// splitIntoChunks divides [from, to) into consecutive half-open intervals
// of length chunkSize, the last one possibly shorter (spec §4.5 step 4).
func splitIntoChunks(from, to time.Time, chunkSize time.Duration) []subInterval {
	var out []subInterval
	cursor := from
	for cursor.Before(to) {
		next := cursor.Add(chunkSize)
		if next.After(to) {
			next = to
		}
		out = append(out, subInterval{from: cursor, to: next})
		cursor = next
	}
	return out
}
