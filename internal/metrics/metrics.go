// Package metrics computes the regression metrics the training orchestrator
// reports per horizon: MAE, RMSE, MAPE, R² (spec §4.7 step 3c), always on
// concatenated out-of-fold predictions rather than refit-on-train
// predictions, per the spec's explicit resolution of that bias risk.
package metrics

import "math"

// Set is one bundle of regression metrics.
type Set struct {
	MAE  float64
	RMSE float64
	MAPE float64
	R2   float64
}

// Compute derives Set from paired (actual, predicted) values.
func Compute(actual, predicted []float64) Set {
	n := len(actual)
	if n == 0 {
		return Set{}
	}

	var sumAbs, sumSq, sumAbsPct float64
	var mean float64
	for _, a := range actual {
		mean += a
	}
	mean /= float64(n)

	mapeN := 0
	for i := 0; i < n; i++ {
		diff := actual[i] - predicted[i]
		sumAbs += math.Abs(diff)
		sumSq += diff * diff
		if actual[i] != 0 {
			sumAbsPct += math.Abs(diff / actual[i])
			mapeN++
		}
	}

	var ssRes, ssTot float64
	for i := 0; i < n; i++ {
		d := actual[i] - predicted[i]
		ssRes += d * d
		dm := actual[i] - mean
		ssTot += dm * dm
	}

	r2 := 1.0
	if ssTot != 0 {
		r2 = 1 - ssRes/ssTot
	}

	mape := 0.0
	if mapeN > 0 {
		mape = (sumAbsPct / float64(mapeN)) * 100
	}

	return Set{
		MAE:  sumAbs / float64(n),
		RMSE: math.Sqrt(sumSq / float64(n)),
		MAPE: mape,
		R2:   r2,
	}
}

// Fold is one time-series cross-validation split: Train indices strictly
// precede Test indices, preserving temporal order (spec §4.7 step 3a).
type Fold struct {
	TrainIdx []int
	TestIdx  []int
}

// TimeSeriesSplit partitions [0, n) into k expanding-window folds: fold i's
// training set is every index before its test block, and the k test blocks
// (n/(k+1) rows each) tile the end of the series without overlapping, any
// remainder rows going to the first training set — mirroring
// scikit-learn's TimeSeriesSplit used by the original implementation.
func TimeSeriesSplit(n, k int) []Fold {
	if k < 1 || n < k+1 {
		return nil
	}
	testSize := n / (k + 1)
	if testSize < 1 {
		return nil
	}

	var folds []Fold
	for i := 1; i <= k; i++ {
		trainEnd := n - (k-i+1)*testSize
		testEnd := trainEnd + testSize
		if testEnd > n {
			testEnd = n
		}
		if trainEnd >= testEnd {
			continue
		}
		train := make([]int, trainEnd)
		for j := range train {
			train[j] = j
		}
		test := make([]int, testEnd-trainEnd)
		for j := range test {
			test[j] = trainEnd + j
		}
		folds = append(folds, Fold{TrainIdx: train, TestIdx: test})
	}
	return folds
}
