package anomaly

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"tourist-safety-engine/internal/domain"
)

// TypeMahalanobis is the covariance distance model type.
const TypeMahalanobis = "mahalanobis"

// MahalanobisParams configures a Mahalanobis model.
type MahalanobisParams struct {
	K     float64 `yaml:"k"`     // std multiples above mean distance that map to score 1 (default: 3)
	Ridge float64 `yaml:"ridge"` // relative diagonal regularization (default: 1e-3)
}

func (p MahalanobisParams) withDefaults() MahalanobisParams {
	if p.K <= 0 {
		p.K = 3
	}
	if p.Ridge <= 0 {
		p.Ridge = 1e-3
	}
	return p
}

type mahalanobisState struct {
	mean       *mat.VecDense
	chol       *mat.Cholesky
	distMean   float64
	distStd    float64
	samples    int
	fittedAtMs int64
}

// Mahalanobis scores vectors by their covariance-scaled distance from the
// training mean, normalized against the training distance distribution.
type Mahalanobis struct {
	params MahalanobisParams
	state  atomic.Pointer[mahalanobisState]
}

// NewMahalanobis creates an unfitted model.
func NewMahalanobis(params MahalanobisParams) *Mahalanobis {
	return &Mahalanobis{params: params.withDefaults()}
}

// Name returns the model type.
func (m *Mahalanobis) Name() string { return TypeMahalanobis }

// Ready reports whether the model has been fitted.
func (m *Mahalanobis) Ready() bool { return m.state.Load() != nil }

// Status reports fitted state.
func (m *Mahalanobis) Status() Status {
	st := Status{Name: TypeMahalanobis}
	if s := m.state.Load(); s != nil {
		st.Ready = true
		st.Samples = s.samples
		st.FittedAtMs = s.fittedAtMs
	}
	return st
}

// Fit estimates mean and covariance.
func (m *Mahalanobis) Fit(ctx context.Context, data []domain.FeatureVector) error {
	if len(data) < domain.FeatureDim+1 {
		return fmt.Errorf("%w: need at least %d vectors, got %d",
			ErrInsufficientData, domain.FeatureDim+1, len(data))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	x := mat.NewDense(len(data), domain.FeatureDim, nil)
	for i, fv := range data {
		x.SetRow(i, fv.Values())
	}

	means := make([]float64, domain.FeatureDim)
	for j := range means {
		means[j] = stat.Mean(mat.Col(nil, j, x), nil)
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, x, nil)

	var trace float64
	for i := 0; i < domain.FeatureDim; i++ {
		trace += cov.At(i, i)
	}
	eps := 1e-9 + m.params.Ridge*trace/float64(domain.FeatureDim)
	for i := 0; i < domain.FeatureDim; i++ {
		cov.SetSym(i, i, cov.At(i, i)+eps)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(&cov); !ok {
		return fmt.Errorf("%w: covariance not positive definite", ErrInvalidParameters)
	}

	st := &mahalanobisState{
		mean:    mat.NewVecDense(domain.FeatureDim, means),
		chol:    &chol,
		samples: len(data),
	}

	dists := make([]float64, len(data))
	for i, fv := range data {
		dists[i] = st.distance(fv)
	}
	st.distMean, st.distStd = stat.MeanStdDev(dists, nil)
	st.fittedAtMs = time.Now().UnixMilli()

	m.state.Store(st)
	return nil
}

// Score returns (d - mean) / (K * std) clamped to [0,1].
func (m *Mahalanobis) Score(fv domain.FeatureVector) Result {
	st := m.state.Load()
	if st == nil {
		return Result{}
	}

	d := st.distance(fv)
	excess := d - st.distMean
	scale := m.params.K * st.distStd
	if scale <= 0 {
		if excess > 0 {
			return Result{Score: 1, Confidence: 1}
		}
		return Result{Score: 0, Confidence: 1}
	}

	return Result{
		Score:      clamp01(excess / scale),
		Confidence: 0.5 + 0.5*clamp01(math.Abs(excess)/scale),
	}
}

func (s *mahalanobisState) distance(fv domain.FeatureVector) float64 {
	return stat.Mahalanobis(mat.NewVecDense(domain.FeatureDim, fv.Values()), s.mean, s.chol)
}
