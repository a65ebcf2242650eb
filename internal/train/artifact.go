package train

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Datata1/umweltmonitoring/internal/regress"
)

// ArtifactState is the on-disk representation of a fitted horizon model,
// encoded with encoding/gob — the Go-native equivalent of the original
// implementation's pickled estimator (spec §4.7 step 3d).
type ArtifactState struct {
	Hyperparameters regress.Hyperparameters
	FeatureNames    []string
	Baseline        float64
	Trees           []*regress.ExportedNode
}

// SaveArtifact writes m's trained state to {base}/temp_forecast_h{h}.bin.
func SaveArtifact(base string, horizon int, m *regress.GBM, featureNames []string) (string, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("train: mkdir artifact dir: %w", err)
	}
	path := filepath.Join(base, fmt.Sprintf("temp_forecast_h%d.bin", horizon))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("train: create artifact: %w", err)
	}
	defer f.Close()

	state := ArtifactState{
		Hyperparameters: m.Hyperparameters(),
		FeatureNames:    featureNames,
		Baseline:        m.Baseline(),
		Trees:           m.ExportTrees(),
	}
	if err := gob.NewEncoder(f).Encode(state); err != nil {
		return "", fmt.Errorf("train: encode artifact: %w", err)
	}
	return path, nil
}

// LoadArtifact reads back a persisted model (used by internal/registry).
func LoadArtifact(path string) (*regress.GBM, ArtifactState, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ArtifactState{}, fmt.Errorf("train: open artifact: %w", err)
	}
	defer f.Close()

	var state ArtifactState
	if err := gob.NewDecoder(f).Decode(&state); err != nil {
		return nil, ArtifactState{}, fmt.Errorf("train: decode artifact: %w", err)
	}
	return regress.FromExported(state.Hyperparameters, state.Baseline, state.Trees), state, nil
}
