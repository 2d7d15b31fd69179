package sequence

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"

	"tourist-safety-engine/internal/anomaly"
	"tourist-safety-engine/internal/domain"
)

// TypeDrift is the window-mean drift model type.
const TypeDrift = "drift"

// DriftParams configures a Drift model.
type DriftParams struct {
	MinLength int     `yaml:"min_length"` // default: 5
	Low       float64 `yaml:"low"`        // z-score at which the score starts rising (default: 2)
	High      float64 `yaml:"high"`       // z-score mapped to 1 (default: 5)
}

func (p DriftParams) withDefaults() DriftParams {
	if p.MinLength <= 0 {
		p.MinLength = 5
	}
	if p.Low <= 0 {
		p.Low = 2
	}
	if p.High <= p.Low {
		p.High = p.Low + 3
	}
	return p
}

type driftState struct {
	mean       []float64
	std        []float64
	samples    int
	fittedAtMs int64
}

// Drift compares a window's per-feature means against the distribution of
// window means seen in training. A window whose strongest feature z-score
// reaches High scores 1.
type Drift struct {
	params DriftParams
	state  atomic.Pointer[driftState]
}

// NewDrift creates an unfitted model.
func NewDrift(params DriftParams) *Drift {
	return &Drift{params: params.withDefaults()}
}

// Name returns the model type.
func (d *Drift) Name() string { return TypeDrift }

// MinLength returns the shortest scorable window.
func (d *Drift) MinLength() int { return d.params.MinLength }

// Ready reports whether the model has been fitted.
func (d *Drift) Ready() bool { return d.state.Load() != nil }

// Status reports fitted state.
func (d *Drift) Status() anomaly.Status {
	st := anomaly.Status{Name: TypeDrift}
	if s := d.state.Load(); s != nil {
		st.Ready = true
		st.Samples = s.samples
		st.FittedAtMs = s.fittedAtMs
	}
	return st
}

// Fit estimates the distribution of window means.
func (d *Drift) Fit(ctx context.Context, windows [][]domain.FeatureVector) error {
	cols := make([][]float64, domain.FeatureDim)
	n := 0
	for _, w := range windows {
		if len(w) < d.params.MinLength {
			continue
		}
		for j, m := range windowMean(w) {
			cols[j] = append(cols[j], m)
		}
		n++
	}
	if n < 2 {
		return fmt.Errorf("%w: need at least 2 windows of length >= %d, got %d",
			ErrInsufficientData, d.params.MinLength, n)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	st := &driftState{
		mean:    make([]float64, domain.FeatureDim),
		std:     make([]float64, domain.FeatureDim),
		samples: n,
	}
	for j, c := range cols {
		st.mean[j], st.std[j] = stat.MeanStdDev(c, nil)
	}
	st.fittedAtMs = time.Now().UnixMilli()

	d.state.Store(st)
	return nil
}

// Score maps the largest per-feature z-score from [Low, High] onto [0,1].
func (d *Drift) Score(window []domain.FeatureVector) anomaly.Result {
	st := d.state.Load()
	if st == nil || len(window) < d.params.MinLength {
		return anomaly.Result{}
	}

	var z float64
	for j, m := range windowMean(window) {
		diff := math.Abs(m - st.mean[j])
		switch {
		case st.std[j] > 0:
			z = math.Max(z, diff/st.std[j])
		case diff > 1e-12:
			z = math.Max(z, d.params.High)
		}
	}

	span := d.params.High - d.params.Low
	return anomaly.Result{
		Score:      clamp01((z - d.params.Low) / span),
		Confidence: 0.5 + 0.5*clamp01(math.Abs(z-d.params.Low)/span),
	}
}

func windowMean(w []domain.FeatureVector) []float64 {
	out := make([]float64, domain.FeatureDim)
	for _, fv := range w {
		for j, v := range fv.Values() {
			out[j] += v
		}
	}
	for j := range out {
		out[j] /= float64(len(w))
	}
	return out
}
