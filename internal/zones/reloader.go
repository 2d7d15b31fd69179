package zones

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/observability"
)

// Source supplies the active zone set.
type Source interface {
	ListActive(ctx context.Context) ([]domain.ZoneDefinition, error)
}

// Reloader refreshes an Index from a Source.
type Reloader struct {
	index    *Index
	source   Source
	interval time.Duration
	logger   *zap.Logger
	onReload func(s *Snapshot)
}

// ReloaderOptions configures a Reloader.
type ReloaderOptions struct {
	Interval time.Duration     // default: 1 minute
	Logger   *zap.Logger       // default: no-op
	OnReload func(s *Snapshot) // optional hook after each successful reload
}

// NewReloader creates a reloader for index backed by source.
func NewReloader(index *Index, source Source, opts ReloaderOptions) *Reloader {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Reloader{
		index:    index,
		source:   source,
		interval: opts.Interval,
		logger:   opts.Logger,
		onReload: opts.OnReload,
	}
}

// Reload fetches the zone set once and publishes it.
// On error the previous snapshot stays in place.
func (r *Reloader) Reload(ctx context.Context) (*Snapshot, error) {
	defs, err := r.source.ListActive(ctx)
	if err != nil {
		observability.RecordZoneReload(0, 0, err)
		return nil, fmt.Errorf("list zones: %w", err)
	}
	s := r.index.Replace(defs)
	observability.RecordZoneReload(s.Len(), s.Version(), nil)
	r.logger.Info("zone index reloaded",
		zap.Uint64("version", s.Version()),
		zap.Int("zones", s.Len()),
		zap.Int("skipped", s.Skipped()),
	)
	if r.onReload != nil {
		r.onReload(s)
	}
	return s, nil
}

// Run reloads immediately and then on every interval until ctx is done.
func (r *Reloader) Run(ctx context.Context) error {
	if _, err := r.Reload(ctx); err != nil {
		r.logger.Warn("initial zone load failed", zap.Error(err))
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Reload(ctx); err != nil {
				r.logger.Warn("zone reload failed", zap.Error(err))
			}
		}
	}
}
