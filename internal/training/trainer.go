// Package training fits fresh anomaly models from recorded feature history
// and swaps them into a running engine.
package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tourist-safety-engine/internal/anomaly"
	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/engine"
	"tourist-safety-engine/internal/features"
	"tourist-safety-engine/internal/observability"
	"tourist-safety-engine/internal/sequence"
	"tourist-safety-engine/internal/storage"
)

// ErrNoData is returned when the feature store has nothing to train on.
var ErrNoData = errors.New("no training data")

// Config holds training parameters.
type Config struct {
	Point      anomaly.Config  `yaml:"point"`
	Sequence   sequence.Config `yaml:"sequence"`
	Lookback   time.Duration   `yaml:"lookback"`    // history window read per run (default: 168h)
	Limit      int             `yaml:"limit"`       // max records per run (default: 500000)
	Interval   time.Duration   `yaml:"interval"`    // retrain period for Run (default: 1h)
	WindowSize int             `yaml:"window_size"` // sequence window length (default: 10)
}

// DefaultConfig returns the default training configuration.
func DefaultConfig() Config {
	return Config{
		Lookback:   7 * 24 * time.Hour,
		Limit:      500_000,
		Interval:   time.Hour,
		WindowSize: 10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Lookback <= 0 {
		c.Lookback = d.Lookback
	}
	if c.Limit <= 0 {
		c.Limit = d.Limit
	}
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.WindowSize <= 0 {
		c.WindowSize = d.WindowSize
	}
	return c
}

// Target is the holder of the live models, normally *engine.Engine.
type Target interface {
	Models() engine.Models
	SetModels(engine.Models)
}

// Report summarizes one training run.
type Report struct {
	Records  int            `json:"records"`
	Windows  int            `json:"windows"`
	Point    anomaly.Status `json:"point"`
	Sequence anomaly.Status `json:"sequence"`
	Swapped  []string       `json:"swapped"` // models replaced by this run
}

// Trainer fits models out of band. Live scoring keeps using the previous
// models until a fit completes.
type Trainer struct {
	cfg    Config
	store  storage.FeatureStore
	target Target
	logger *zap.Logger
	now    func() time.Time
}

// NewTrainer creates a trainer reading from store and updating target.
func NewTrainer(cfg Config, store storage.FeatureStore, target Target, logger *zap.Logger) *Trainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trainer{
		cfg:    cfg.withDefaults(),
		store:  store,
		target: target,
		logger: logger,
		now:    time.Now,
	}
}

// Train reads a snapshot of recent feature history and fits on it.
func (t *Trainer) Train(ctx context.Context) (*Report, error) {
	start := t.now()
	since := start.Add(-t.cfg.Lookback).UnixMilli()

	recs, err := t.store.GetSince(ctx, since, t.cfg.Limit)
	if err != nil {
		observability.RecordTrainingRun("error", t.now().Sub(start).Seconds())
		return nil, fmt.Errorf("read feature history: %w", err)
	}

	rep, err := t.Fit(ctx, recs)
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.RecordTrainingRun(status, t.now().Sub(start).Seconds())
	if err == nil {
		observability.DefaultMetrics.LastSuccessfulTraining.Set(float64(t.now().Unix()))
	}
	return rep, err
}

// Fit trains fresh models on records ordered by (entity_id, timestamp_ms)
// and swaps in every model that fitted. A model that fails to fit keeps its
// previous version.
func (t *Trainer) Fit(ctx context.Context, recs []domain.FeatureRecord) (*Report, error) {
	if len(recs) == 0 {
		return nil, ErrNoData
	}

	vectors := make([]domain.FeatureVector, len(recs))
	for i := range recs {
		vectors[i] = recs[i].FeatureVector
	}
	windows := features.Windows(recs, t.cfg.WindowSize)

	next := t.target.Models()
	rep := &Report{Records: len(recs), Windows: len(windows)}
	var errs []error

	point, err := anomaly.FromConfig(t.cfg.Point)
	if err != nil {
		return nil, err
	}
	if err := point.Fit(ctx, vectors); err != nil {
		errs = append(errs, fmt.Errorf("fit %s: %w", point.Name(), err))
	} else {
		next.Point = point
		rep.Swapped = append(rep.Swapped, point.Name())
	}

	seq, err := sequence.FromConfig(t.cfg.Sequence)
	if err != nil {
		return nil, err
	}
	if err := seq.Fit(ctx, windows); err != nil {
		errs = append(errs, fmt.Errorf("fit %s: %w", seq.Name(), err))
	} else {
		next.Sequence = seq
		rep.Swapped = append(rep.Swapped, seq.Name())
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(rep.Swapped) > 0 {
		t.target.SetModels(next)
	}
	rep.Point = next.Point.Status()
	rep.Sequence = next.Sequence.Status()

	t.logger.Info("training run finished",
		zap.Int("records", rep.Records),
		zap.Int("windows", rep.Windows),
		zap.Strings("swapped", rep.Swapped),
		zap.Errors("errors", errs),
	)

	if len(rep.Swapped) == 0 {
		return rep, errors.Join(errs...)
	}
	return rep, nil
}

// Run trains on every interval until ctx is done. Failures are logged.
func (t *Trainer) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := t.Train(ctx); err != nil && !errors.Is(err, ErrNoData) {
				t.logger.Warn("training run failed", zap.Error(err))
			}
		}
	}
}
