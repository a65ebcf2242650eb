// Package schedule wires the two recurring triggers (ingestion interval,
// daily training cron), the initial-ingestion-then-train dependency gate,
// and bounded worker-pool fan-out for C6/C8 runs (spec §4.8, component C9).
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Datata1/umweltmonitoring/internal/obslog"
)

// IngestOutcome is the subset of ingest.Outcome the scheduler needs to
// decide whether to trigger the one-shot post-first-sync training run.
type IngestOutcome struct {
	IsNew          bool
	FullySucceeded bool
}

// IngestRunner runs one ingestion pass for a box.
type IngestRunner interface {
	Run(ctx context.Context, boxID string) (IngestOutcome, error)
}

// TrainRunner runs one training pass.
type TrainRunner interface {
	Run(ctx context.Context) error
}

// BoxPresenceChecker reports whether boxID already has a row in the store,
// used by the initial-ingestion trigger (spec's supplemented
// is_database_empty check, grounded on the store rather than an HTTP
// probe).
type BoxPresenceChecker interface {
	BoxExists(ctx context.Context, boxID string) (bool, error)
}

// Scheduler owns the cron runtime and the CANCEL_NEW ingestion ticker.
type Scheduler struct {
	cron   *cron.Cron
	ingest IngestRunner
	train  TrainRunner
	boxes  BoxPresenceChecker
	log    obslog.Logger

	boxID           string
	ingestInterval  time.Duration
	trainingCronExp string

	mu             sync.Mutex
	trainTriggered bool
	ingestInFlight bool
	trainInFlight  bool
}

// New builds a Scheduler. trainingCronExpr follows robfig/cron's standard
// five-field syntax (e.g. "0 2 * * *" for 02:00 local time).
func New(ingest IngestRunner, trainer TrainRunner, boxes BoxPresenceChecker, log obslog.Logger, boxID string, ingestInterval time.Duration, trainingCronExpr string) *Scheduler {
	return &Scheduler{
		cron: cron.New(), ingest: ingest, train: trainer, boxes: boxes, log: log,
		boxID: boxID, ingestInterval: ingestInterval, trainingCronExp: trainingCronExpr,
	}
}

// Start registers both recurring triggers and begins the cron runtime. It
// does not block; call Stop (or cancel ctx) to shut down.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.ingestInterval), func() {
		s.runIngestionCancelNew(ctx)
	}); err != nil {
		return fmt.Errorf("schedule: register ingestion trigger: %w", err)
	}

	if _, err := s.cron.AddFunc(s.trainingCronExp, func() {
		s.runTraining(ctx, "scheduled")
	}); err != nil {
		return fmt.Errorf("schedule: register training trigger: %w", err)
	}

	s.cron.Start()

	exists, err := s.boxes.BoxExists(ctx, s.boxID)
	if err != nil {
		return fmt.Errorf("schedule: initial box presence check: %w", err)
	}
	if !exists {
		go s.runInitialIngestion(ctx)
	}
	return nil
}

// Stop drains in-flight cron jobs and halts the runtime.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// runIngestionCancelNew implements the CANCEL_NEW overlap policy: if a
// previous ingestion run is still in flight, this tick is skipped entirely
// (spec §4.8).
func (s *Scheduler) runIngestionCancelNew(ctx context.Context) {
	s.mu.Lock()
	if s.ingestInFlight {
		s.mu.Unlock()
		s.log.WarnCtx(ctx, "skipping ingestion tick, previous run still in flight", "box_id", s.boxID)
		return
	}
	s.ingestInFlight = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.ingestInFlight = false
		s.mu.Unlock()
	}()

	outcome, err := s.ingest.Run(ctx, s.boxID)
	if err != nil {
		s.log.ErrorCtx(ctx, "ingestion run failed", "box_id", s.boxID, "error", err)
		return
	}
	if outcome.IsNew && outcome.FullySucceeded {
		s.triggerTrainingOnce(ctx)
	}
}

// runInitialIngestion performs the one-shot startup trigger for a box that
// has never been seen before, and kicks training on its success (spec §4.8
// initial-ingestion trigger).
func (s *Scheduler) runInitialIngestion(ctx context.Context) {
	s.runIngestionCancelNew(ctx)
}

// triggerTrainingOnce fires the one-shot post-first-ingestion training run,
// guarded so a box only gets this bonus trigger once per process lifetime.
func (s *Scheduler) triggerTrainingOnce(ctx context.Context) {
	s.mu.Lock()
	if s.trainTriggered {
		s.mu.Unlock()
		return
	}
	s.trainTriggered = true
	s.mu.Unlock()

	s.runTraining(ctx, "first-sync")
}

// runTraining implements the CANCEL_NEW overlap policy for training: at
// most one training run executes at a time, regardless of whether it was
// triggered by the daily cron or the one-shot first-sync hook (spec §5,
// §4.8). A tick or trigger that arrives while a run is still active is
// dropped rather than queued.
func (s *Scheduler) runTraining(ctx context.Context, trigger string) {
	s.mu.Lock()
	if s.trainInFlight {
		s.mu.Unlock()
		s.log.WarnCtx(ctx, "skipping training run, previous run still in flight", "trigger", trigger)
		return
	}
	s.trainInFlight = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.trainInFlight = false
		s.mu.Unlock()
	}()

	s.log.InfoCtx(ctx, "starting training run", "trigger", trigger)
	if err := s.train.Run(ctx); err != nil {
		s.log.ErrorCtx(ctx, "training run failed", "trigger", trigger, "error", err)
	}
}
