// Package engine runs the per-sample safety assessment: feature extraction,
// the geofence rule layer, both anomaly models, fusion and alert decisions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"tourist-safety-engine/internal/alerting"
	"tourist-safety-engine/internal/anomaly"
	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/features"
	"tourist-safety-engine/internal/geofence"
	"tourist-safety-engine/internal/idhash"
	"tourist-safety-engine/internal/observability"
	"tourist-safety-engine/internal/scoring"
	"tourist-safety-engine/internal/sequence"
	"tourist-safety-engine/internal/storage"
	"tourist-safety-engine/internal/zones"
)

// Config holds engine timing parameters.
type Config struct {
	PointTimeout    time.Duration `yaml:"point_timeout"`    // default: 50ms
	SequenceTimeout time.Duration `yaml:"sequence_timeout"` // default: 50ms
	LockShards      int           `yaml:"lock_shards"`      // default: 64
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		PointTimeout:    50 * time.Millisecond,
		SequenceTimeout: 50 * time.Millisecond,
		LockShards:      64,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PointTimeout <= 0 {
		c.PointTimeout = d.PointTimeout
	}
	if c.SequenceTimeout <= 0 {
		c.SequenceTimeout = d.SequenceTimeout
	}
	if c.LockShards <= 0 {
		c.LockShards = d.LockShards
	}
	return c
}

// degradedConfidence scales the confidence of an assessment with degraded
// inputs. Model confidences are at least 0.5 when present, so a degraded
// assessment always scores below any fully scored one.
const degradedConfidence = 0.8

// Models is the pair of anomaly models used for scoring.
// A Models value is replaced as a whole, never mutated.
type Models struct {
	Point    anomaly.PointModel
	Sequence sequence.Model
}

// Deps are the engine's collaborators. Extractor, Zones, Scorer and
// Dispatcher are required; the rest are optional.
type Deps struct {
	Extractor   *features.Extractor
	Zones       *zones.Index
	Geofence    *geofence.Evaluator
	Scorer      *scoring.Scorer
	Ledger      scoring.BonusLedger // default: in-memory, scorer's bonus period
	Dispatcher  *alerting.Dispatcher
	Assessments storage.AssessmentStore // persisted assessments, previous-assessment fallback
	Features    storage.FeatureStore    // feature history for training
	Sink        alerting.Sink           // receives emitted intents
	Logger      *zap.Logger
}

// Result is the outcome of assessing one sample.
type Result struct {
	Assessment domain.SafetyAssessment `json:"assessment"`
	Intents    []domain.AlertIntent    `json:"intents"`
}

// Engine assesses movement samples. Safe for concurrent use; samples for
// the same entity are serialized.
type Engine struct {
	cfg  Config
	deps Deps

	models atomic.Pointer[Models]
	locks  *keyedLock
	latest sync.Map // entity_id -> *domain.SafetyAssessment

	logger *zap.Logger
	now    func() time.Time
}

// New creates an engine with the given models.
func New(cfg Config, deps Deps, models Models) (*Engine, error) {
	switch {
	case deps.Extractor == nil:
		return nil, errors.New("engine: extractor is required")
	case deps.Zones == nil:
		return nil, errors.New("engine: zone index is required")
	case deps.Scorer == nil:
		return nil, errors.New("engine: scorer is required")
	case deps.Dispatcher == nil:
		return nil, errors.New("engine: dispatcher is required")
	case models.Point == nil || models.Sequence == nil:
		return nil, errors.New("engine: both models are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Geofence == nil {
		deps.Geofence = geofence.NewEvaluator(deps.Logger)
	}
	if deps.Ledger == nil {
		deps.Ledger = scoring.NewMemoryBonusLedger(deps.Scorer.Config().BonusPeriod)
	}

	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:    cfg,
		deps:   deps,
		locks:  newKeyedLock(cfg.LockShards),
		logger: deps.Logger,
		now:    time.Now,
	}
	e.SetModels(models)
	return e, nil
}

// Models returns the models currently used for scoring.
func (e *Engine) Models() Models {
	return *e.models.Load()
}

// SetModels atomically replaces the scoring models. In-flight assessments
// finish with the models they started with.
func (e *Engine) SetModels(m Models) {
	e.models.Store(&m)
	observability.UpdateModelReady(m.Point.Name(), m.Point.Ready())
	observability.UpdateModelReady(m.Sequence.Name(), m.Sequence.Ready())
}

// ModelStatus reports the fitted state of both models.
func (e *Engine) ModelStatus() []anomaly.Status {
	m := e.models.Load()
	return []anomaly.Status{m.Point.Status(), m.Sequence.Status()}
}

// Scorer returns the engine's scorer.
func (e *Engine) Scorer() *scoring.Scorer {
	return e.deps.Scorer
}

// Assess runs one sample through the full pipeline.
//
// Validation and ordering errors are returned before any state changes.
// Once the sample is ingested the window mutation stands; if ctx is
// cancelled after that point the assessment is abandoned and no intents
// are emitted.
func (e *Engine) Assess(ctx context.Context, s *domain.MovementSample) (*Result, error) {
	start := e.now()

	if err := s.Validate(); err != nil {
		observability.RecordSampleRejected("invalid")
		return nil, err
	}
	sample := *s
	if sample.SampleID == "" {
		sample.SampleID = domain.NewSampleID(sample.TimestampMs)
	}

	unlock := e.locks.Lock(sample.EntityID)
	defer unlock()

	fv, repeated, err := e.ingest(&sample)
	if err != nil {
		if errors.Is(err, features.ErrOutOfOrder) {
			observability.RecordSampleRejected("out_of_order")
		}
		return nil, err
	}
	window := e.deps.Extractor.Window(sample.EntityID)
	models := e.models.Load()

	// Models run off the caller goroutine; geofence runs here meanwhile.
	pointCh := e.scorePoint(models.Point, fv, len(window) == 1)
	seqCh := e.scoreSequence(models.Sequence, window)

	verdict := e.deps.Geofence.Evaluate(&sample, e.deps.Zones.Snapshot())

	var degraded []string
	if verdict.IndexMissing {
		degraded = append(degraded, domain.DegradedZoneIndex)
	}
	point, pFlag := await(pointCh, e.cfg.PointTimeout, domain.DegradedPointTimeout)
	seq, sFlag := await(seqCh, e.cfg.SequenceTimeout, domain.DegradedSequenceTimeout)
	if pFlag != "" {
		degraded = append(degraded, pFlag)
	}
	if sFlag != "" {
		degraded = append(degraded, sFlag)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("assess %s: %w", sample.EntityID, err)
	}

	confidence := (point.Confidence + seq.Confidence) / 2
	if len(degraded) > 0 {
		confidence *= degradedConfidence
	}
	if verdict.SOS() {
		confidence = 1
	}

	qualifying := e.deps.Scorer.Qualifies(verdict, point.Score, seq.Score)
	bonus, err := e.deps.Ledger.Observe(ctx, sample.EntityID, sample.TimestampMs, qualifying)
	if err != nil {
		e.logger.Warn("bonus ledger unavailable",
			zap.String("entity_id", sample.EntityID),
			zap.Error(err),
		)
		bonus = false
	}

	a := e.deps.Scorer.Fuse(verdict, point.Score, seq.Score, scoring.FuseContext{
		EntityID:      sample.EntityID,
		SampleID:      sample.SampleID,
		TimestampMs:   sample.TimestampMs,
		Latitude:      sample.Latitude,
		Longitude:     sample.Longitude,
		BonusEligible: bonus,
		Confidence:    confidence,
		Degraded:      degraded,
	})
	a.AssessmentID = idhash.ComputeAssessmentID(a.EntityID, a.SampleID, a.TimestampMs)

	prev := e.previous(ctx, sample.EntityID)
	intents, err := e.deps.Dispatcher.Decide(ctx, &a, prev)
	if err != nil {
		return nil, fmt.Errorf("assess %s: %w", sample.EntityID, err)
	}

	stored := a
	e.latest.Store(sample.EntityID, &stored)
	var rec *domain.FeatureRecord
	if !repeated {
		rec = &domain.FeatureRecord{
			EntityID:      sample.EntityID,
			SampleID:      sample.SampleID,
			FeatureVector: fv,
		}
	}
	e.persist(ctx, &a, rec)
	e.publish(ctx, intents)

	observability.RecordAssessment(string(a.Severity), a.SafetyScore,
		e.now().Sub(start).Seconds(), a.Degraded, a.SubScores.BonusApplied)
	observability.DefaultMetrics.LastSuccessfulIngestion.Set(float64(e.now().Unix()))

	e.logger.Debug("sample assessed",
		zap.String("entity_id", a.EntityID),
		zap.String("assessment_id", a.AssessmentID),
		zap.Int("score", a.SafetyScore),
		zap.String("severity", string(a.Severity)),
		zap.Strings("degraded", a.Degraded),
		zap.Int("intents", len(intents)),
	)

	return &Result{Assessment: a, Intents: intents}, nil
}

// Latest returns the most recent assessment for an entity.
// Returns storage.ErrNotFound if the entity has never been assessed.
func (e *Engine) Latest(ctx context.Context, entityID string) (*domain.SafetyAssessment, error) {
	if v, ok := e.latest.Load(entityID); ok {
		a := *v.(*domain.SafetyAssessment)
		return &a, nil
	}
	if e.deps.Assessments == nil {
		return nil, storage.ErrNotFound
	}
	return e.deps.Assessments.GetLatest(ctx, entityID)
}

// Explain breaks down the latest assessment for an entity.
func (e *Engine) Explain(ctx context.Context, entityID string) (scoring.Explanation, error) {
	a, err := e.Latest(ctx, entityID)
	if err != nil {
		return scoring.Explanation{}, err
	}
	return e.deps.Scorer.Explain(a), nil
}

// EvictIdle drops in-memory state for entities with no sample since cutoffMs.
func (e *Engine) EvictIdle(cutoffMs int64) int {
	n := e.deps.Extractor.EvictIdle(cutoffMs)
	e.latest.Range(func(k, v any) bool {
		if v.(*domain.SafetyAssessment).TimestampMs < cutoffMs {
			e.latest.Delete(k)
		}
		return true
	})
	observability.UpdateTrackedEntities(e.deps.Extractor.Len())
	return n
}

// previous returns the entity's last assessment, falling back to the store
// after a restart.
func (e *Engine) previous(ctx context.Context, entityID string) *domain.SafetyAssessment {
	if v, ok := e.latest.Load(entityID); ok {
		return v.(*domain.SafetyAssessment)
	}
	if e.deps.Assessments == nil {
		return nil
	}
	a, err := e.deps.Assessments.GetLatest(ctx, entityID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			e.logger.Warn("previous assessment lookup failed",
				zap.String("entity_id", entityID),
				zap.Error(err),
			)
		}
		return nil
	}
	return a
}

// ingest feeds the sample to the extractor. An SOS repeated at the entity's
// newest timestamp is assessed against the current window without
// mutating it; repeated reports that.
func (e *Engine) ingest(s *domain.MovementSample) (fv domain.FeatureVector, repeated bool, err error) {
	if s.SOS {
		if last, ok := e.deps.Extractor.LastTimestamp(s.EntityID); ok && last == s.TimestampMs {
			if w := e.deps.Extractor.Window(s.EntityID); len(w) > 0 {
				return w[len(w)-1], true, nil
			}
		}
	}
	fv, err = e.deps.Extractor.Ingest(s)
	return fv, false, err
}

// persist stores the assessment and, when rec is non-nil, its feature record.
func (e *Engine) persist(ctx context.Context, a *domain.SafetyAssessment, rec *domain.FeatureRecord) {
	if e.deps.Assessments != nil {
		if err := e.deps.Assessments.Insert(ctx, a); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			e.logger.Warn("assessment not persisted",
				zap.String("assessment_id", a.AssessmentID),
				zap.Error(err),
			)
		}
	}
	if e.deps.Features != nil && rec != nil {
		if err := e.deps.Features.InsertBulk(ctx, []domain.FeatureRecord{*rec}); err != nil {
			e.logger.Warn("feature record not persisted",
				zap.String("entity_id", rec.EntityID),
				zap.Error(err),
			)
		}
	}
}

func (e *Engine) publish(ctx context.Context, intents []domain.AlertIntent) {
	for _, in := range intents {
		observability.RecordIntent(string(in.Type), string(in.Severity))
	}
	if e.deps.Sink == nil || len(intents) == 0 {
		return
	}
	if err := e.deps.Sink.Publish(ctx, intents); err != nil {
		observability.RecordSinkError("engine")
		e.logger.Error("intent sink failed",
			zap.String("entity_id", intents[0].EntityID),
			zap.Int("intents", len(intents)),
			zap.Error(err),
		)
		e.abandon(ctx, intents, err)
	}
}

// abandon frees the dedup slots of intents the sink did not record, so the
// condition raises a fresh intent next time instead of staying suppressed
// behind an alert nobody can resolve.
func (e *Engine) abandon(ctx context.Context, intents []domain.AlertIntent, err error) {
	if errors.Is(err, alerting.ErrDeliveryIncomplete) {
		return
	}
	lost := intents
	var unrecorded *alerting.UnrecordedError
	if errors.As(err, &unrecorded) {
		lost = lost[:0:0]
		for _, in := range intents {
			if unrecorded.Has(in.IntentID) {
				lost = append(lost, in)
			}
		}
	}
	e.deps.Dispatcher.Abandon(context.WithoutCancel(ctx), lost)
}

// modelResult is a model outcome plus the degraded flag it implies, if any.
type modelResult struct {
	anomaly.Result
	flag string
}

// scorePoint evaluates fv asynchronously. The first sample of an entity is
// a neutral baseline and is not scored.
func (e *Engine) scorePoint(m anomaly.PointModel, fv domain.FeatureVector, first bool) <-chan modelResult {
	ch := make(chan modelResult, 1)
	if !m.Ready() {
		ch <- modelResult{flag: domain.DegradedPointNotReady}
		return ch
	}
	if first {
		ch <- modelResult{Result: anomaly.Result{Score: 0, Confidence: 1}}
		return ch
	}
	go func() {
		t := time.Now()
		r := m.Score(fv)
		observability.RecordModelLatency(m.Name(), time.Since(t).Seconds())
		ch <- modelResult{Result: r}
	}()
	return ch
}

// scoreSequence evaluates the window asynchronously. Windows shorter than
// the model minimum score 0 with no confidence.
func (e *Engine) scoreSequence(m sequence.Model, window []domain.FeatureVector) <-chan modelResult {
	ch := make(chan modelResult, 1)
	if !m.Ready() {
		ch <- modelResult{flag: domain.DegradedSequenceNotReady}
		return ch
	}
	if len(window) < m.MinLength() {
		ch <- modelResult{flag: domain.DegradedSequenceShort}
		return ch
	}
	go func() {
		t := time.Now()
		r := m.Score(window)
		observability.RecordModelLatency(m.Name(), time.Since(t).Seconds())
		ch <- modelResult{Result: r}
	}()
	return ch
}

// await waits up to timeout for a model result. On timeout the neutral
// result is returned with timeoutFlag.
func await(ch <-chan modelResult, timeout time.Duration, timeoutFlag string) (anomaly.Result, string) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.flag != "" {
			return anomaly.Result{}, r.flag
		}
		return r.Result, ""
	case <-timer.C:
		return anomaly.Result{}, timeoutFlag
	}
}
