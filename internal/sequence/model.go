// Package sequence implements anomaly models over per-entity feature windows.
//
// Scores are in [0,1] with 0 = normal. Windows shorter than a model's minimum
// length always score 0, so a newly seen entity cannot trigger on noise.
package sequence

import (
	"context"
	"errors"

	"tourist-safety-engine/internal/anomaly"
	"tourist-safety-engine/internal/domain"
)

// Model errors
var (
	ErrUnknownModel     = errors.New("unknown sequence model type")
	ErrInsufficientData = errors.New("insufficient training windows")
)

// Model scores a window of feature vectors, oldest first.
//
// Fit may run concurrently with Score; fitted state is swapped in atomically.
type Model interface {
	// Name returns the model type name.
	Name() string

	// Fit trains on windows assumed to be mostly normal.
	Fit(ctx context.Context, windows [][]domain.FeatureVector) error

	// Score evaluates a window. Never errors.
	Score(window []domain.FeatureVector) anomaly.Result

	// Ready reports whether the model has been fitted.
	Ready() bool

	// MinLength is the shortest window that produces a non-neutral score.
	MinLength() int

	// Status reports fitted state.
	Status() anomaly.Status
}

func clamp01(v float64) float64 {
	switch {
	case v != v:
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// fitLength returns the last n entries of w, left-padding with the oldest
// entry when w is shorter than n.
func fitLength(w []domain.FeatureVector, n int) []domain.FeatureVector {
	if len(w) >= n {
		return w[len(w)-n:]
	}
	out := make([]domain.FeatureVector, n)
	pad := n - len(w)
	for i := 0; i < pad; i++ {
		out[i] = w[0]
	}
	copy(out[pad:], w)
	return out
}
