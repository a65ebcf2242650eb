package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Datata1/umweltmonitoring/internal/obslog"
)

type fakeIngestRunner struct {
	mu       sync.Mutex
	calls    int
	outcome  IngestOutcome
	err      error
	blockCh  chan struct{} // if non-nil, Run blocks until this is closed
}

func (f *fakeIngestRunner) Run(ctx context.Context, boxID string) (IngestOutcome, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.blockCh != nil {
		<-f.blockCh
	}
	return f.outcome, f.err
}

func (f *fakeIngestRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeTrainRunner struct {
	mu      sync.Mutex
	calls   int
	blockCh chan struct{} // if non-nil, Run blocks until this is closed
}

func (f *fakeTrainRunner) Run(ctx context.Context) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.blockCh != nil {
		<-f.blockCh
	}
	return nil
}

func (f *fakeTrainRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeBoxChecker struct{ exists bool }

func (f fakeBoxChecker) BoxExists(ctx context.Context, boxID string) (bool, error) {
	return f.exists, nil
}

func TestRunIngestionCancelNewSkipsWhileInFlight(t *testing.T) {
	block := make(chan struct{})
	ingest := &fakeIngestRunner{blockCh: block}
	trainer := &fakeTrainRunner{}
	s := New(ingest, trainer, fakeBoxChecker{exists: true}, obslog.New(nil), "box-1", time.Hour, "0 2 * * *")

	ctx := context.Background()
	go s.runIngestionCancelNew(ctx)

	require.Eventually(t, func() bool { return ingest.callCount() == 1 }, time.Second, time.Millisecond)

	// second tick while the first is still in flight should be skipped
	s.runIngestionCancelNew(ctx)
	assert.Equal(t, 1, ingest.callCount())

	close(block)
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return !s.ingestInFlight
	}, time.Second, time.Millisecond)
}

func TestRunIngestionTriggersTrainingOnFirstFullSuccess(t *testing.T) {
	ingest := &fakeIngestRunner{outcome: IngestOutcome{IsNew: true, FullySucceeded: true}}
	trainer := &fakeTrainRunner{}
	s := New(ingest, trainer, fakeBoxChecker{exists: true}, obslog.New(nil), "box-1", time.Hour, "0 2 * * *")

	s.runIngestionCancelNew(context.Background())
	assert.Equal(t, 1, trainer.callCount())

	// a second ingestion run should not trigger training again
	s.runIngestionCancelNew(context.Background())
	assert.Equal(t, 1, trainer.callCount())
}

func TestRunIngestionDoesNotTriggerTrainingOnPartialFailure(t *testing.T) {
	ingest := &fakeIngestRunner{outcome: IngestOutcome{IsNew: true, FullySucceeded: false}}
	trainer := &fakeTrainRunner{}
	s := New(ingest, trainer, fakeBoxChecker{exists: true}, obslog.New(nil), "box-1", time.Hour, "0 2 * * *")

	s.runIngestionCancelNew(context.Background())
	assert.Equal(t, 0, trainer.callCount())
}

func TestRunTrainingSkipsWhileInFlight(t *testing.T) {
	block := make(chan struct{})
	ingest := &fakeIngestRunner{}
	trainer := &fakeTrainRunner{blockCh: block}
	s := New(ingest, trainer, fakeBoxChecker{exists: true}, obslog.New(nil), "box-1", time.Hour, "0 2 * * *")

	ctx := context.Background()
	go s.runTraining(ctx, "first-sync")

	require.Eventually(t, func() bool { return trainer.callCount() == 1 }, time.Second, time.Millisecond)

	// a concurrent "scheduled" tick while the first-sync run is still in
	// flight must be dropped, not queued.
	s.runTraining(ctx, "scheduled")
	assert.Equal(t, 1, trainer.callCount())

	close(block)
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return !s.trainInFlight
	}, time.Second, time.Millisecond)

	// once the in-flight run finishes, a subsequent run proceeds normally.
	s.runTraining(ctx, "scheduled")
	assert.Equal(t, 2, trainer.callCount())
}

func TestStartRunsInitialIngestionWhenBoxAbsent(t *testing.T) {
	ingest := &fakeIngestRunner{outcome: IngestOutcome{IsNew: true, FullySucceeded: true}}
	trainer := &fakeTrainRunner{}
	s := New(ingest, trainer, fakeBoxChecker{exists: false}, obslog.New(nil), "box-1", time.Hour, "0 2 * * *")

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool { return ingest.callCount() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return trainer.callCount() == 1 }, time.Second, time.Millisecond)
}

func TestStartSkipsInitialIngestionWhenBoxPresent(t *testing.T) {
	ingest := &fakeIngestRunner{}
	trainer := &fakeTrainRunner{}
	s := New(ingest, trainer, fakeBoxChecker{exists: true}, obslog.New(nil), "box-1", time.Hour, "0 2 * * *")

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, ingest.callCount())
}
