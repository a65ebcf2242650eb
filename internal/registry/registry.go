// Package registry is a thin read facade over the trained-model store and
// the artifact files it points at (spec §4.9, component C10). It is the
// only path the forecast-serving side of the system uses to find and load
// a model, keeping artifact-loading mechanics out of callers.
package registry

import (
	"context"
	"fmt"
	"os"

	"github.com/Datata1/umweltmonitoring/internal/domain"
	"github.com/Datata1/umweltmonitoring/internal/obstrace"
	"github.com/Datata1/umweltmonitoring/internal/regress"
	"github.com/Datata1/umweltmonitoring/internal/train"
)

// ModelStore is the subset of store.Store the registry reads from.
type ModelStore interface {
	ListTrainedModels(ctx context.Context, limit int) ([]domain.TrainedModel, error)
}

// Status classifies a single-horizon lookup outcome.
type Status int

const (
	// StatusFound means a servable model row exists and its artifact loaded.
	StatusFound Status = iota
	// StatusAbsent means no trained row exists for the requested horizon.
	StatusAbsent
	// StatusErrored means a row exists but its last training run failed or
	// its artifact could not be loaded.
	StatusErrored
)

// Lookup is the outcome of resolving one forecast horizon to a model.
type Lookup struct {
	Status Status
	Row    domain.TrainedModel
	Model  *regress.GBM
	State  train.ArtifactState
	Err    error
}

// Registry resolves forecast horizons to trained, loadable models.
type Registry struct {
	store ModelStore
}

// New builds a Registry over store.
func New(store ModelStore) *Registry {
	return &Registry{store: store}
}

// ListActive returns every servable trained-model row, in the store's order
// (ascending forecast horizon), without touching artifact files.
func (r *Registry) ListActive(ctx context.Context) ([]domain.TrainedModel, error) {
	ctx, span := obstrace.Start(ctx, "registry.ListActive")
	defer span.End()

	rows, err := r.store.ListTrainedModels(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("registry: list_trained_models: %w", err)
	}
	active := make([]domain.TrainedModel, 0, len(rows))
	for _, row := range rows {
		if row.Servable() {
			active = append(active, row)
		}
	}
	return active, nil
}

// Resolve finds the trained-model row for horizonHours and loads its
// artifact (spec §4.9: "absent" and "errored" are distinct from "found" so
// callers can tell a never-trained horizon from a broken one).
func (r *Registry) Resolve(ctx context.Context, horizonHours int) Lookup {
	ctx, span := obstrace.Start(ctx, "registry.Resolve")
	defer span.End()

	rows, err := r.store.ListTrainedModels(ctx, 0)
	if err != nil {
		return Lookup{Status: StatusErrored, Err: fmt.Errorf("registry: list_trained_models: %w", err)}
	}

	var row domain.TrainedModel
	found := false
	for _, candidate := range rows {
		if candidate.ForecastHorizonHours == horizonHours {
			row = candidate
			found = true
			break
		}
	}
	if !found {
		return Lookup{Status: StatusAbsent}
	}
	if !row.Servable() {
		return Lookup{Status: StatusErrored, Row: row, Err: fmt.Errorf("registry: horizon %d last run failed: %s", horizonHours, row.Error)}
	}

	if _, err := os.Stat(row.ModelPath); err != nil {
		return Lookup{Status: StatusErrored, Row: row, Err: fmt.Errorf("registry: artifact missing at %s: %w", row.ModelPath, err)}
	}

	model, state, err := train.LoadArtifact(row.ModelPath)
	if err != nil {
		return Lookup{Status: StatusErrored, Row: row, Err: fmt.Errorf("registry: load_artifact: %w", err)}
	}

	return Lookup{Status: StatusFound, Row: row, Model: model, State: state}
}
