package anomaly

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"

	"tourist-safety-engine/internal/domain"
)

// TypeIsolationForest is the isolation forest model type.
const TypeIsolationForest = "isolation_forest"

const eulerGamma = 0.5772156649015329

// IsolationForestParams configures an isolation forest.
type IsolationForestParams struct {
	Trees         int     `yaml:"trees"`         // default: 100
	SampleSize    int     `yaml:"sample_size"`   // subsample per tree, default: 256
	Contamination float64 `yaml:"contamination"` // expected anomaly share in training data, default: 0.1
	Seed          int64   `yaml:"seed"`          // default: 42
}

func (p IsolationForestParams) withDefaults() IsolationForestParams {
	if p.Trees <= 0 {
		p.Trees = 100
	}
	if p.SampleSize <= 0 {
		p.SampleSize = 256
	}
	if p.Contamination <= 0 || p.Contamination >= 0.5 {
		p.Contamination = 0.1
	}
	if p.Seed == 0 {
		p.Seed = 42
	}
	return p
}

type itreeNode struct {
	feature     int
	split       float64
	left, right *itreeNode
	size        int // leaf only
}

type forest struct {
	trees      []*itreeNode
	psi        int     // effective subsample size
	norm       float64 // c(psi)
	threshold  float64 // raw score at the contamination quantile
	samples    int
	fittedAtMs int64
}

// IsolationForest isolates outliers by random axis-aligned partitioning.
// Anomalies need fewer splits to isolate, giving shorter mean path lengths.
type IsolationForest struct {
	params IsolationForestParams
	state  atomic.Pointer[forest]
}

// NewIsolationForest creates an unfitted isolation forest.
func NewIsolationForest(params IsolationForestParams) *IsolationForest {
	return &IsolationForest{params: params.withDefaults()}
}

// Name returns the model type.
func (f *IsolationForest) Name() string { return TypeIsolationForest }

// Ready reports whether the forest has been fitted.
func (f *IsolationForest) Ready() bool { return f.state.Load() != nil }

// Status reports fitted state.
func (f *IsolationForest) Status() Status {
	st := Status{Name: TypeIsolationForest}
	if s := f.state.Load(); s != nil {
		st.Ready = true
		st.Samples = s.samples
		st.FittedAtMs = s.fittedAtMs
	}
	return st
}

// Fit builds the forest. The previous fit stays live until this one completes.
func (f *IsolationForest) Fit(ctx context.Context, data []domain.FeatureVector) error {
	if len(data) < 2 {
		return fmt.Errorf("%w: need at least 2 vectors, got %d", ErrInsufficientData, len(data))
	}

	rows := make([][]float64, len(data))
	for i, fv := range data {
		rows[i] = fv.Values()
	}

	rng := rand.New(rand.NewSource(f.params.Seed))
	psi := f.params.SampleSize
	if psi > len(rows) {
		psi = len(rows)
	}
	maxDepth := int(math.Ceil(math.Log2(float64(psi))))

	fs := &forest{
		trees:   make([]*itreeNode, f.params.Trees),
		psi:     psi,
		norm:    averagePathLength(psi),
		samples: len(rows),
	}

	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	for t := range fs.trees {
		if err := ctx.Err(); err != nil {
			return err
		}
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		sub := make([][]float64, psi)
		for i := 0; i < psi; i++ {
			sub[i] = rows[idx[i]]
		}
		fs.trees[t] = buildTree(sub, 0, maxDepth, rng)
	}

	raw := make([]float64, len(rows))
	for i, r := range rows {
		raw[i] = fs.rawScore(r)
	}
	sort.Float64s(raw)
	fs.threshold = stat.Quantile(1-f.params.Contamination, stat.Empirical, raw, nil)
	fs.fittedAtMs = time.Now().UnixMilli()

	f.state.Store(fs)
	return nil
}

// Score maps the raw isolation score onto [0,1]: at or below the fitted
// contamination threshold is 0, rising linearly to 1 at raw score 1.
func (f *IsolationForest) Score(fv domain.FeatureVector) Result {
	fs := f.state.Load()
	if fs == nil {
		return Result{}
	}

	raw := fs.rawScore(fv.Values())
	t := fs.threshold
	if t >= 1 {
		t = 1 - 1e-9
	}
	score := clamp01((raw - t) / (1 - t))

	margin := math.Max(t, 1-t)
	conf := 0.5 + 0.5*clamp01(math.Abs(raw-t)/margin)
	return Result{Score: score, Confidence: conf}
}

func (fs *forest) rawScore(x []float64) float64 {
	if fs.norm == 0 {
		return 0
	}
	var total float64
	for _, t := range fs.trees {
		total += pathLength(x, t, 0)
	}
	mean := total / float64(len(fs.trees))
	return math.Pow(2, -mean/fs.norm)
}

func buildTree(rows [][]float64, depth, maxDepth int, rng *rand.Rand) *itreeNode {
	if depth >= maxDepth || len(rows) <= 1 {
		return &itreeNode{size: len(rows)}
	}

	// Only features with spread can split.
	dims := len(rows[0])
	candidates := make([]int, 0, dims)
	mins := make([]float64, dims)
	maxs := make([]float64, dims)
	for d := 0; d < dims; d++ {
		lo, hi := rows[0][d], rows[0][d]
		for _, r := range rows[1:] {
			lo = math.Min(lo, r[d])
			hi = math.Max(hi, r[d])
		}
		mins[d], maxs[d] = lo, hi
		if hi > lo {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		return &itreeNode{size: len(rows)}
	}

	feat := candidates[rng.Intn(len(candidates))]
	split := mins[feat] + rng.Float64()*(maxs[feat]-mins[feat])

	var left, right [][]float64
	for _, r := range rows {
		if r[feat] < split {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	return &itreeNode{
		feature: feat,
		split:   split,
		left:    buildTree(left, depth+1, maxDepth, rng),
		right:   buildTree(right, depth+1, maxDepth, rng),
	}
}

func pathLength(x []float64, n *itreeNode, depth int) float64 {
	for n.left != nil {
		if x[n.feature] < n.split {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return float64(depth) + averagePathLength(n.size)
}

// averagePathLength is c(n), the mean unsuccessful-search path length of a
// binary search tree with n nodes.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}
