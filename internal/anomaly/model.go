// Package anomaly implements unsupervised point anomaly models over feature vectors.
//
// Scores are in [0,1] with 0 = normal and 1 = maximally anomalous.
package anomaly

import (
	"context"
	"errors"

	"tourist-safety-engine/internal/domain"
)

// Model errors
var (
	ErrUnknownModel      = errors.New("unknown point model type")
	ErrInsufficientData  = errors.New("insufficient training data")
	ErrInvalidParameters = errors.New("invalid model parameters")
)

// Result is a single model evaluation.
type Result struct {
	Score      float64 // [0,1], 0 = normal
	Confidence float64 // [0,1], 0 when the model is not ready
}

// Status describes a model's fitted state.
type Status struct {
	Name       string `json:"name"`
	Ready      bool   `json:"ready"`
	Samples    int    `json:"samples"`
	FittedAtMs int64  `json:"fitted_at_ms,omitempty"`
}

// PointModel scores a single feature vector.
//
// Fit may run concurrently with Score: fitted state is swapped in atomically
// once training completes. Score never errors; an unfitted model returns a
// zero Result.
type PointModel interface {
	// Name returns the model type name.
	Name() string

	// Fit trains on feature vectors assumed to be mostly normal.
	Fit(ctx context.Context, data []domain.FeatureVector) error

	// Score evaluates one feature vector.
	Score(fv domain.FeatureVector) Result

	// Ready reports whether the model has been fitted.
	Ready() bool

	// Status reports fitted state.
	Status() Status
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
