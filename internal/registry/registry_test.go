package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/Datata1/umweltmonitoring/internal/domain"
	"github.com/Datata1/umweltmonitoring/internal/regress"
	"github.com/Datata1/umweltmonitoring/internal/train"
)

type fakeModelStore struct {
	rows []domain.TrainedModel
	err  error
}

func (f fakeModelStore) ListTrainedModels(ctx context.Context, limit int) ([]domain.TrainedModel, error) {
	return f.rows, f.err
}

func TestResolveAbsentWhenNoRowForHorizon(t *testing.T) {
	r := New(fakeModelStore{rows: nil})
	lookup := r.Resolve(context.Background(), 6)
	assert.Equal(t, StatusAbsent, lookup.Status)
}

func TestResolveErroredWhenRowHasRecordedError(t *testing.T) {
	r := New(fakeModelStore{rows: []domain.TrainedModel{
		{ForecastHorizonHours: 6, Error: "fit failed"},
	}})
	lookup := r.Resolve(context.Background(), 6)
	assert.Equal(t, StatusErrored, lookup.Status)
	assert.Error(t, lookup.Err)
}

func TestResolveErroredWhenArtifactMissing(t *testing.T) {
	r := New(fakeModelStore{rows: []domain.TrainedModel{
		{ForecastHorizonHours: 6, ModelPath: "/nonexistent/path/model.bin"},
	}})
	lookup := r.Resolve(context.Background(), 6)
	assert.Equal(t, StatusErrored, lookup.Status)
}

func TestResolveFoundLoadsArtifact(t *testing.T) {
	tmp := t.TempDir()
	model := regress.New(regress.Hyperparameters{NumEstimators: 5, LearningRate: 0.1, MaxDepth: 1})
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	require.NoError(t, model.Fit(X, []float64{1, 2, 3, 4}))
	path, err := train.SaveArtifact(tmp, 6, model, []string{"f0"})
	require.NoError(t, err)

	r := New(fakeModelStore{rows: []domain.TrainedModel{
		{ForecastHorizonHours: 6, ModelPath: path, LastTrainedAt: time.Now()},
	}})
	lookup := r.Resolve(context.Background(), 6)
	require.Equal(t, StatusFound, lookup.Status)
	require.NotNil(t, lookup.Model)
	assert.Equal(t, []string{"f0"}, lookup.State.FeatureNames)
}

func TestListActiveExcludesErroredRows(t *testing.T) {
	r := New(fakeModelStore{rows: []domain.TrainedModel{
		{ForecastHorizonHours: 1, ModelPath: "/a.bin"},
		{ForecastHorizonHours: 2, Error: "boom"},
	}})
	active, err := r.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 1, active[0].ForecastHorizonHours)
}
