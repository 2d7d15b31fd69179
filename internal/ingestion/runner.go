package ingestion

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/engine"
	"tourist-safety-engine/internal/features"
	"tourist-safety-engine/internal/idhash"
	"tourist-safety-engine/internal/observability"
	"tourist-safety-engine/internal/storage"
)

// Assessor scores one sample. Implemented by *engine.Engine.
type Assessor interface {
	Assess(ctx context.Context, s *domain.MovementSample) (*engine.Result, error)
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Sources       []Source
	Assessor      Assessor
	Checkpoints   storage.CheckpointStore // optional
	ReorderLag    time.Duration           // default: 2s
	MaxBuffered   int                     // per entity, default: 100
	FlushInterval time.Duration           // expiry scan and checkpoint save period (default: 500ms)
	Logger        *zap.Logger
}

// Runner merges all sources, restores per-entity order and submits samples
// to the assessor. Samples at or before a source's saved checkpoint are
// skipped so a restart does not re-assess redelivered messages.
type Runner struct {
	sources       []Source
	assessor      Assessor
	checkpoints   storage.CheckpointStore
	buffer        *ReorderBuffer
	flushInterval time.Duration
	logger        *zap.Logger

	resumeAfter map[string]int64                        // checkpoint loaded at start, per source
	watermarks  map[string]*storage.IngestionCheckpoint // newest assessed sample, per source
	dirty       map[string]bool
	stats       RunnerStats
}

// RunnerStats counts samples by outcome.
type RunnerStats struct {
	Received int64
	Assessed int64
	Rejected int64 // invalid or out of order at the engine
	Late     int64 // behind the reorder watermark
	Replayed int64 // at or before the checkpoint
	Failed   int64
}

// NewRunner creates a new ingestion runner.
func NewRunner(opts RunnerOptions) *Runner {
	lag := opts.ReorderLag
	if lag == 0 {
		lag = 2 * time.Second
	}
	flush := opts.FlushInterval
	if flush == 0 {
		flush = 500 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{
		sources:       opts.Sources,
		assessor:      opts.Assessor,
		checkpoints:   opts.Checkpoints,
		buffer:        NewReorderBuffer(lag, opts.MaxBuffered),
		flushInterval: flush,
		logger:        logger.Named("ingestion"),
		resumeAfter:   make(map[string]int64),
		watermarks:    make(map[string]*storage.IngestionCheckpoint),
		dirty:         make(map[string]bool),
	}
}

type tagged struct {
	sample *domain.MovementSample
	source string
}

// Run subscribes to every source and blocks until ctx is cancelled or all
// sources have closed. Buffered samples are drained before returning.
func (r *Runner) Run(ctx context.Context) error {
	if r.assessor == nil {
		return errors.New("ingestion runner: assessor is required")
	}
	if len(r.sources) == 0 {
		return errors.New("ingestion runner: no sources configured")
	}

	r.loadCheckpoints(ctx)

	merged := make(chan tagged, 1024)
	var wg sync.WaitGroup
	for _, src := range r.sources {
		ch, err := src.Subscribe(ctx)
		if err != nil {
			return err
		}
		r.logger.Info("subscribed", zap.String("source", src.Name()))

		wg.Add(1)
		go func(name string, ch <-chan *domain.MovementSample) {
			defer wg.Done()
			for s := range ch {
				select {
				case merged <- tagged{sample: s, source: name}:
				case <-ctx.Done():
					return
				}
			}
		}(src.Name(), ch)
	}
	go func() {
		wg.Wait()
		close(merged)
	}()

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.shutdown(ctx)
			return ctx.Err()

		case t, ok := <-merged:
			if !ok {
				r.logger.Warn("all sources closed")
				r.shutdown(ctx)
				return errors.New("all ingestion sources closed")
			}
			r.Submit(ctx, t.sample, t.source)

		case <-ticker.C:
			r.process(ctx, r.buffer.Expired())
			r.saveCheckpoints(ctx)
		}
	}
}

// Submit buffers one sample and processes whatever became releasable.
func (r *Runner) Submit(ctx context.Context, s *domain.MovementSample, source string) {
	r.stats.Received++
	observability.RecordSampleReceived(source)

	if s == nil || s.EntityID == "" {
		r.stats.Rejected++
		observability.RecordSampleRejected("invalid")
		return
	}
	if after, ok := r.resumeAfter[source]; ok && s.TimestampMs <= after {
		r.stats.Replayed++
		observability.RecordSampleDropped("replayed")
		return
	}
	if s.SampleID == "" {
		// Redelivered reports keep the same id and hence the same assessment id.
		s.SampleID = idhash.ComputeSampleKey(s.EntityID, s.TimestampMs, s.Latitude, s.Longitude)
	}

	ready, late := r.buffer.Add(s, source)
	if late {
		r.stats.Late++
		observability.RecordSampleDropped("late")
		r.logger.Debug("late sample dropped",
			zap.String("entity_id", s.EntityID),
			zap.Int64("timestamp_ms", s.TimestampMs))
	}
	r.process(ctx, ready)
}

// Flush releases samples whose lag has expired.
func (r *Runner) Flush(ctx context.Context) {
	r.process(ctx, r.buffer.Expired())
}

// Stats returns counters since start.
func (r *Runner) Stats() RunnerStats {
	return r.stats
}

func (r *Runner) process(ctx context.Context, ready []Released) {
	for _, rel := range ready {
		r.assess(ctx, rel)
	}
	observability.UpdateReorderBuffer(r.buffer.Len())
}

func (r *Runner) assess(ctx context.Context, rel Released) {
	res, err := r.assessor.Assess(ctx, rel.Sample)
	switch {
	case err == nil:
		r.stats.Assessed++
		r.advance(rel)
		if len(res.Intents) > 0 {
			r.logger.Info("alert intents emitted",
				zap.String("entity_id", rel.Sample.EntityID),
				zap.Int("count", len(res.Intents)),
				zap.String("severity", string(res.Assessment.Severity)))
		}
	case errors.Is(err, domain.ErrInvalidSample), errors.Is(err, features.ErrOutOfOrder):
		r.stats.Rejected++
		r.logger.Debug("sample rejected", zap.String("entity_id", rel.Sample.EntityID), zap.Error(err))
	default:
		r.stats.Failed++
		r.logger.Error("assessment failed",
			zap.String("source", rel.Source),
			zap.String("entity_id", rel.Sample.EntityID),
			zap.Error(err))
	}
}

// advance moves the source watermark forward.
func (r *Runner) advance(rel Released) {
	cp := r.watermarks[rel.Source]
	if cp == nil {
		cp = &storage.IngestionCheckpoint{Source: rel.Source}
		r.watermarks[rel.Source] = cp
	}
	if rel.Sample.TimestampMs > cp.TimestampMs {
		cp.TimestampMs = rel.Sample.TimestampMs
		cp.SampleID = rel.Sample.SampleID
	}
	r.dirty[rel.Source] = true
}

func (r *Runner) loadCheckpoints(ctx context.Context) {
	if r.checkpoints == nil {
		return
	}
	for _, src := range r.sources {
		cp, err := r.checkpoints.GetCheckpoint(ctx, src.Name())
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				r.logger.Warn("load checkpoint failed", zap.String("source", src.Name()), zap.Error(err))
			}
			continue
		}
		r.resumeAfter[src.Name()] = cp.TimestampMs
		c := *cp
		r.watermarks[src.Name()] = &c
		r.logger.Info("resuming after checkpoint",
			zap.String("source", src.Name()),
			zap.Int64("timestamp_ms", cp.TimestampMs))
	}
}

func (r *Runner) saveCheckpoints(ctx context.Context) {
	if r.checkpoints == nil {
		return
	}
	for source, cp := range r.watermarks {
		if !r.dirty[source] {
			continue
		}
		c := *cp
		if err := r.checkpoints.SetCheckpoint(ctx, &c); err != nil {
			r.logger.Warn("save checkpoint failed", zap.String("source", source), zap.Error(err))
			continue
		}
		r.dirty[source] = false
	}
}

// shutdown drains the buffer on a context detached from cancellation.
func (r *Runner) shutdown(ctx context.Context) {
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	r.process(drainCtx, r.buffer.Drain())
	r.saveCheckpoints(drainCtx)
	r.logger.Info("ingestion stopped",
		zap.Int64("received", r.stats.Received),
		zap.Int64("assessed", r.stats.Assessed),
		zap.Int64("rejected", r.stats.Rejected),
		zap.Int64("late", r.stats.Late))
}
