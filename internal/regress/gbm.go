// Package regress implements the regressor used by the training
// orchestrator (spec §4.7 step 3b: "gradient-boosted trees by default; any
// regressor satisfying the fit/predict contract is acceptable"). It is a
// from-scratch gradient-boosting ensemble of shallow regression trees,
// built on gonum/floats for the vector arithmetic in each boosting round —
// gonum ships no tree ensemble of its own, so the splitting/fitting logic
// here is original, grounded only on the library for its numeric
// primitives.
package regress

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Hyperparameters is one point in the fixed grid searched during
// cross-validation (spec §4.7 step 3b).
type Hyperparameters struct {
	NumEstimators int
	LearningRate  float64
	MaxDepth      int // 1 or 2; a stump or a one-level-deeper split
}

// DefaultGrid is the fixed hyperparameter grid the training orchestrator
// searches over.
func DefaultGrid() []Hyperparameters {
	return []Hyperparameters{
		{NumEstimators: 50, LearningRate: 0.1, MaxDepth: 1},
		{NumEstimators: 100, LearningRate: 0.1, MaxDepth: 1},
		{NumEstimators: 100, LearningRate: 0.05, MaxDepth: 2},
		{NumEstimators: 200, LearningRate: 0.05, MaxDepth: 2},
	}
}

// node is one weak learner: a leaf holding a constant value, or a split
// that routes to a left/right child. MaxDepth controls how many split
// levels a node tree may have before bottoming out in leaves.
type node struct {
	isLeaf      bool
	value       float64
	feature     int
	threshold   float64
	left, right *node
}

func (n *node) predict(x []float64) float64 {
	if n.isLeaf {
		return n.value
	}
	if x[n.feature] <= n.threshold {
		return n.left.predict(x)
	}
	return n.right.predict(x)
}

// GBM is a gradient-boosted ensemble of shallow regression trees minimizing
// squared error. It satisfies the fit/predict contract C8 needs from any
// regressor.
type GBM struct {
	hp       Hyperparameters
	baseline float64
	trees    []*node
}

// New builds an untrained GBM with the given hyperparameters.
func New(hp Hyperparameters) *GBM {
	if hp.NumEstimators <= 0 {
		hp.NumEstimators = 100
	}
	if hp.LearningRate <= 0 {
		hp.LearningRate = 0.1
	}
	if hp.MaxDepth <= 0 {
		hp.MaxDepth = 1
	}
	return &GBM{hp: hp}
}

// Fit trains the ensemble on X (n x p) against target y (length n).
func (g *GBM) Fit(X *mat.Dense, y []float64) error {
	n, p := X.Dims()
	if n == 0 || p == 0 {
		return fmt.Errorf("regress: empty training matrix")
	}
	if len(y) != n {
		return fmt.Errorf("regress: y length %d does not match X rows %d", len(y), n)
	}

	g.baseline = floats.Sum(y) / float64(n)
	residual := make([]float64, n)
	for i := range residual {
		residual[i] = y[i] - g.baseline
	}

	rows := make([][]float64, n)
	idx := make([]int, n)
	for i := 0; i < n; i++ {
		rows[i] = mat.Row(nil, i, X)
		idx[i] = i
	}

	g.trees = make([]*node, 0, g.hp.NumEstimators)
	for t := 0; t < g.hp.NumEstimators; t++ {
		tree := buildNode(rows, residual, idx, p, g.hp.MaxDepth)
		predicted := make([]float64, n)
		for i := 0; i < n; i++ {
			predicted[i] = tree.predict(rows[i])
		}
		g.trees = append(g.trees, tree)
		for i := range residual {
			residual[i] -= g.hp.LearningRate * predicted[i]
		}
	}
	return nil
}

// Predict returns the ensemble's prediction for one sample.
func (g *GBM) Predict(x []float64) float64 {
	out := g.baseline
	for _, t := range g.trees {
		out += g.hp.LearningRate * t.predict(x)
	}
	return out
}

// Hyperparameters returns the hyperparameters this model was built with.
func (g *GBM) Hyperparameters() Hyperparameters { return g.hp }

// Baseline returns the fitted intercept (the training target mean).
func (g *GBM) Baseline() float64 { return g.baseline }

// ExportedNode is the serializable form of one boosting round's tree.
type ExportedNode struct {
	IsLeaf      bool
	Value       float64
	Feature     int
	Threshold   float64
	Left, Right *ExportedNode
}

func exportNode(n *node) *ExportedNode {
	if n == nil {
		return nil
	}
	return &ExportedNode{
		IsLeaf: n.isLeaf, Value: n.value, Feature: n.feature, Threshold: n.threshold,
		Left: exportNode(n.left), Right: exportNode(n.right),
	}
}

func importNode(n *ExportedNode) *node {
	if n == nil {
		return nil
	}
	return &node{
		isLeaf: n.IsLeaf, value: n.Value, feature: n.Feature, threshold: n.Threshold,
		left: importNode(n.Left), right: importNode(n.Right),
	}
}

// ExportTrees returns the fitted ensemble in a form safe to gob-encode.
func (g *GBM) ExportTrees() []*ExportedNode {
	out := make([]*ExportedNode, len(g.trees))
	for i, t := range g.trees {
		out[i] = exportNode(t)
	}
	return out
}

// FromExported reconstructs a fitted GBM from persisted state, without
// re-running Fit (used when loading an artifact for prediction).
func FromExported(hp Hyperparameters, baseline float64, trees []*ExportedNode) *GBM {
	g := New(hp)
	g.baseline = baseline
	g.trees = make([]*node, len(trees))
	for i, t := range trees {
		g.trees[i] = importNode(t)
	}
	return g
}

// buildNode grows a regression tree up to maxDepth split levels,
// minimizing squared error against residual at each split (spec §4.7 step
// 3b: MaxDepth 1 is a plain stump, MaxDepth 2 splits each of the stump's
// two leaves once more).
func buildNode(rows [][]float64, residual []float64, idx []int, numFeatures, maxDepth int) *node {
	if maxDepth <= 0 || len(idx) == 0 {
		return &node{isLeaf: true, value: meanAt(residual, idx)}
	}

	feature, threshold, leftIdx, rightIdx, ok := bestSplit(rows, residual, idx, numFeatures)
	if !ok {
		return &node{isLeaf: true, value: meanAt(residual, idx)}
	}

	return &node{
		feature: feature, threshold: threshold,
		left:  buildNode(rows, residual, leftIdx, numFeatures, maxDepth-1),
		right: buildNode(rows, residual, rightIdx, numFeatures, maxDepth-1),
	}
}

// bestSplit finds the (feature, threshold) split over the rows named by idx
// that best reduces squared error against the current residual, via an
// exhaustive scan over sampled candidate thresholds per feature — adequate
// at the row counts this system trains on (a few thousand hourly
// observations).
func bestSplit(rows [][]float64, residual []float64, idx []int, numFeatures int) (feature int, threshold float64, leftIdx, rightIdx []int, ok bool) {
	bestSSE := math.Inf(1)

	for f := 0; f < numFeatures; f++ {
		for _, thr := range uniqueSorted(rows, idx, f) {
			var leftSum, rightSum float64
			var left, right []int
			for _, i := range idx {
				if rows[i][f] <= thr {
					leftSum += residual[i]
					left = append(left, i)
				} else {
					rightSum += residual[i]
					right = append(right, i)
				}
			}
			if len(left) == 0 || len(right) == 0 {
				continue
			}
			leftMean := leftSum / float64(len(left))
			rightMean := rightSum / float64(len(right))

			sse := 0.0
			for _, i := range left {
				d := residual[i] - leftMean
				sse += d * d
			}
			for _, i := range right {
				d := residual[i] - rightMean
				sse += d * d
			}
			if sse < bestSSE {
				bestSSE = sse
				feature, threshold = f, thr
				leftIdx, rightIdx = left, right
				ok = true
			}
		}
	}
	return
}

func meanAt(values []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	sum := 0.0
	for _, i := range idx {
		sum += values[i]
	}
	return sum / float64(len(idx))
}

// uniqueSorted returns a coarse set of candidate thresholds for feature f
// over the rows named by idx: the midpoints between up to 32 evenly-spaced
// sample quantiles, keeping the split search tractable on wide feature
// sets.
func uniqueSorted(rows [][]float64, idx []int, f int) []float64 {
	vals := make([]float64, len(idx))
	for i, row := range idx {
		vals[i] = rows[row][f]
	}
	floats.Argsort(vals, make([]int, len(vals)))

	const maxCandidates = 32
	step := (len(vals) + maxCandidates - 1) / maxCandidates
	if step < 1 {
		step = 1
	}
	var out []float64
	seen := make(map[float64]bool)
	for i := step; i < len(vals); i += step {
		mid := (vals[i-1] + vals[i]) / 2
		if !seen[mid] {
			seen[mid] = true
			out = append(out, mid)
		}
	}
	return out
}
