// Package watermark implements the per-box bookkeeping of last_data_fetched
// and last_measurement_at, and the derivation of the next ingestion window
// (spec §4.3, component C4).
package watermark

import (
	"time"

	"github.com/Datata1/umweltmonitoring/internal/clock"
	"github.com/Datata1/umweltmonitoring/internal/domain"
)

// Service computes ingestion windows and final watermarks. It holds no
// state of its own; all persistence is the caller's responsibility via the
// store (spec §4.3 is pure computation over Box/BoxMeta).
type Service struct {
	clock        clock.Clock
	initialWindow time.Duration
}

// New builds a watermark Service with the configured initial lookback
// window, applied only to boxes seen for the first time.
func New(clk clock.Clock, initialWindow time.Duration) *Service {
	return &Service{clock: clk, initialWindow: initialWindow}
}

// Window is the next ingestion window to fetch, or NoWork=true if the box
// is already caught up (spec §4.3).
type Window struct {
	FromUTC time.Time
	ToUTC   time.Time
	NoWork  bool
}

// ComputeWindow derives [from, to) for the next ingestion run given the
// box's persisted watermark and the freshly fetched metadata's
// last_measurement_at.
func (s *Service) ComputeWindow(box domain.Box, metaLastMeasurementAt *time.Time, isNewBox bool) Window {
	now := s.clock.Now().UTC()

	toUTC := now
	if metaLastMeasurementAt != nil {
		lm := metaLastMeasurementAt.UTC()
		if lm.Before(now) {
			toUTC = lm
		}
	}

	// isNewBox is accepted for symmetry with spec §4.3's case split, but the
	// fallback (no persisted watermark yet) is identical whether or not the
	// box was just created.
	_ = isNewBox
	fromUTC := toUTC.Add(-s.initialWindow)
	if box.LastDataFetched != nil {
		fromUTC = box.LastDataFetched.UTC()
	}

	if !fromUTC.Before(toUTC) {
		return Window{NoWork: true}
	}
	return Window{FromUTC: fromUTC, ToUTC: toUTC}
}

// FinalWatermark computes the last_data_fetched value to persist after an
// ingestion run completes (spec §4.3, §8 scenario 2): advance to the
// targeted window end on full success. On partial failure, advance to the
// greater of (a) the end of the last sub-interval that completed with
// every sensor succeeding, and (b) the latest successfully-persisted
// measurement timestamp in the sub-interval that failed — the lower bound
// must never regress below a boundary the run already fully cleared, even
// if the failing sub-interval itself yielded no in-window rows. It never
// moves backward from the box's previous value either.
func FinalWatermark(previous *time.Time, targetedToUTC time.Time, allChunksSucceeded bool, maxPersistedTimestamp *time.Time, lastFullySucceededSubIntervalTo *time.Time) time.Time {
	candidate := targetedToUTC
	if !allChunksSucceeded {
		candidate = timeZeroOr(nil)
		haveCandidate := false
		if maxPersistedTimestamp != nil {
			candidate = maxPersistedTimestamp.UTC()
			haveCandidate = true
		}
		if lastFullySucceededSubIntervalTo != nil {
			boundary := lastFullySucceededSubIntervalTo.UTC()
			if !haveCandidate || boundary.After(candidate) {
				candidate = boundary
				haveCandidate = true
			}
		}
		if !haveCandidate {
			if previous != nil {
				return previous.UTC()
			}
			return timeZeroOr(previous)
		}
	}
	if previous != nil && previous.After(candidate) {
		return previous.UTC()
	}
	return candidate.UTC()
}

func timeZeroOr(previous *time.Time) time.Time {
	if previous != nil {
		return previous.UTC()
	}
	return time.Time{}
}
