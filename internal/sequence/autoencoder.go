package sequence

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"tourist-safety-engine/internal/anomaly"
	"tourist-safety-engine/internal/domain"
)

// TypePCAAutoencoder is the linear autoencoder model type.
const TypePCAAutoencoder = "pca_autoencoder"

// AutoencoderParams configures a PCAAutoencoder.
type AutoencoderParams struct {
	WindowLength int     `yaml:"window_length"` // encoded window length (default: 10)
	MinLength    int     `yaml:"min_length"`    // default: 5
	Components   int     `yaml:"components"`    // latent size (default: 4)
	K            float64 `yaml:"k"`             // std multiples above mean error that map to score 1 (default: 3)
}

func (p AutoencoderParams) withDefaults() AutoencoderParams {
	if p.WindowLength <= 0 {
		p.WindowLength = 10
	}
	if p.MinLength <= 0 {
		p.MinLength = 5
	}
	if p.MinLength > p.WindowLength {
		p.MinLength = p.WindowLength
	}
	if p.Components <= 0 {
		p.Components = 4
	}
	if p.K <= 0 {
		p.K = 3
	}
	return p
}

type autoencoderState struct {
	featMean   []float64 // per-feature standardization
	featStd    []float64
	center     *mat.VecDense // mean flattened window
	basis      *mat.Dense    // D x k principal directions
	errMean    float64
	errStd     float64
	samples    int
	fittedAtMs int64
}

// PCAAutoencoder encodes a standardized, flattened window onto its top
// principal components and decodes it back. Sustained deviations from the
// training windows reconstruct poorly and score high.
type PCAAutoencoder struct {
	params AutoencoderParams
	state  atomic.Pointer[autoencoderState]
}

// NewPCAAutoencoder creates an unfitted model.
func NewPCAAutoencoder(params AutoencoderParams) *PCAAutoencoder {
	return &PCAAutoencoder{params: params.withDefaults()}
}

// Name returns the model type.
func (a *PCAAutoencoder) Name() string { return TypePCAAutoencoder }

// MinLength returns the shortest scorable window.
func (a *PCAAutoencoder) MinLength() int { return a.params.MinLength }

// Ready reports whether the model has been fitted.
func (a *PCAAutoencoder) Ready() bool { return a.state.Load() != nil }

// Status reports fitted state.
func (a *PCAAutoencoder) Status() anomaly.Status {
	st := anomaly.Status{Name: TypePCAAutoencoder}
	if s := a.state.Load(); s != nil {
		st.Ready = true
		st.Samples = s.samples
		st.FittedAtMs = s.fittedAtMs
	}
	return st
}

// Fit learns the principal subspace of normal windows. Windows shorter than
// MinLength are ignored; the rest are fitted to WindowLength.
func (a *PCAAutoencoder) Fit(ctx context.Context, windows [][]domain.FeatureVector) error {
	n := a.params.WindowLength
	usable := make([][]domain.FeatureVector, 0, len(windows))
	for _, w := range windows {
		if len(w) >= a.params.MinLength {
			usable = append(usable, fitLength(w, n))
		}
	}
	if len(usable) < 2 {
		return fmt.Errorf("%w: need at least 2 windows of length >= %d, got %d",
			ErrInsufficientData, a.params.MinLength, len(usable))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	st := &autoencoderState{samples: len(usable)}
	st.featMean, st.featStd = featureStats(usable)

	dim := n * domain.FeatureDim
	x := mat.NewDense(len(usable), dim, nil)
	for i, w := range usable {
		x.SetRow(i, st.flatten(w))
	}

	centers := make([]float64, dim)
	for j := range centers {
		centers[j] = stat.Mean(mat.Col(nil, j, x), nil)
	}
	st.center = mat.NewVecDense(dim, centers)

	var pc stat.PC
	if ok := pc.PrincipalComponents(x, nil); !ok {
		return fmt.Errorf("%w: principal component decomposition failed", ErrInsufficientData)
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	_, avail := vecs.Dims()
	k := a.params.Components
	if k > avail {
		k = avail
	}
	st.basis = mat.DenseCopyOf(vecs.Slice(0, dim, 0, k))

	if err := ctx.Err(); err != nil {
		return err
	}

	errs := make([]float64, len(usable))
	for i := range usable {
		errs[i] = st.reconstructionError(x.RowView(i))
	}
	st.errMean, st.errStd = stat.MeanStdDev(errs, nil)
	st.fittedAtMs = time.Now().UnixMilli()

	a.state.Store(st)
	return nil
}

// Score returns (err - mean) / (K * std) clamped to [0,1].
func (a *PCAAutoencoder) Score(window []domain.FeatureVector) anomaly.Result {
	st := a.state.Load()
	if st == nil || len(window) < a.params.MinLength {
		return anomaly.Result{}
	}

	flat := st.flatten(fitLength(window, a.params.WindowLength))
	e := st.reconstructionError(mat.NewVecDense(len(flat), flat))

	excess := e - st.errMean
	scale := a.params.K * st.errStd
	if scale <= 0 {
		if excess > 1e-12 {
			return anomaly.Result{Score: 1, Confidence: 1}
		}
		return anomaly.Result{Score: 0, Confidence: 1}
	}
	return anomaly.Result{
		Score:      clamp01(excess / scale),
		Confidence: 0.5 + 0.5*clamp01(math.Abs(excess)/scale),
	}
}

func (s *autoencoderState) flatten(w []domain.FeatureVector) []float64 {
	out := make([]float64, 0, len(w)*domain.FeatureDim)
	for _, fv := range w {
		for j, v := range fv.Values() {
			out = append(out, (v-s.featMean[j])/s.featStd[j])
		}
	}
	return out
}

// reconstructionError is the mean squared residual after projecting x onto
// the principal subspace.
func (s *autoencoderState) reconstructionError(x mat.Vector) float64 {
	dim := x.Len()
	var z mat.VecDense
	z.SubVec(x, s.center)

	_, k := s.basis.Dims()
	var code mat.VecDense
	code.MulVec(s.basis.T(), &z)
	if code.Len() != k {
		return math.Inf(1)
	}

	var recon mat.VecDense
	recon.MulVec(s.basis, &code)

	var resid mat.VecDense
	resid.SubVec(&z, &recon)
	return mat.Dot(&resid, &resid) / float64(dim)
}

func featureStats(windows [][]domain.FeatureVector) (mean, std []float64) {
	cols := make([][]float64, domain.FeatureDim)
	for _, w := range windows {
		for _, fv := range w {
			for j, v := range fv.Values() {
				cols[j] = append(cols[j], v)
			}
		}
	}
	mean = make([]float64, domain.FeatureDim)
	std = make([]float64, domain.FeatureDim)
	for j, c := range cols {
		mean[j], std[j] = stat.MeanStdDev(c, nil)
		if std[j] == 0 || math.IsNaN(std[j]) {
			std[j] = 1
		}
	}
	return mean, std
}
