package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/storage"
)

// Sink receives the intents produced for an assessment.
type Sink interface {
	Publish(ctx context.Context, intents []domain.AlertIntent) error
}

// ErrDeliveryIncomplete marks a sink error where every intent was recorded
// but some downstream delivery failed.
var ErrDeliveryIncomplete = errors.New("intents recorded, delivery incomplete")

// UnrecordedError lists intents the alert store did not accept.
type UnrecordedError struct {
	IntentIDs []string
	Err       error
}

func (e *UnrecordedError) Error() string {
	return fmt.Sprintf("%d intent(s) not recorded: %v", len(e.IntentIDs), e.Err)
}

func (e *UnrecordedError) Unwrap() error { return e.Err }

// Has reports whether intentID is among the unrecorded intents.
func (e *UnrecordedError) Has(intentID string) bool {
	for _, id := range e.IntentIDs {
		if id == intentID {
			return true
		}
	}
	return false
}

// Lifecycle persists intents as alerts and owns their status transitions.
// Closing an alert releases its registry slot so the next occurrence can fire.
type Lifecycle struct {
	store    storage.AlertStore
	registry Registry
	logger   *zap.Logger
	now      func() time.Time
}

// NewLifecycle creates a lifecycle over store and registry.
func NewLifecycle(store storage.AlertStore, registry Registry, logger *zap.Logger) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lifecycle{store: store, registry: registry, logger: logger, now: time.Now}
}

// Publish stores each intent as an active alert. Duplicate intent IDs are
// skipped. Failed inserts are reported as an *UnrecordedError.
func (l *Lifecycle) Publish(ctx context.Context, intents []domain.AlertIntent) error {
	var (
		errs   []error
		failed []string
	)
	for _, in := range intents {
		rec := &domain.AlertRecord{
			AlertIntent: in,
			Status:      domain.AlertStatusActive,
			UpdatedAtMs: in.CreatedAtMs,
		}
		err := l.store.Insert(ctx, rec)
		switch {
		case err == nil:
			l.logger.Info("alert recorded",
				zap.String("intent_id", in.IntentID),
				zap.String("entity_id", in.EntityID),
				zap.String("type", string(in.Type)),
				zap.String("severity", string(in.Severity)),
			)
		case errors.Is(err, storage.ErrDuplicateKey):
		default:
			failed = append(failed, in.IntentID)
			errs = append(errs, fmt.Errorf("insert alert %s: %w", in.IntentID, err))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &UnrecordedError{IntentIDs: failed, Err: errors.Join(errs...)}
}

// Acknowledge marks an alert as seen by an operator. The registry slot stays held.
func (l *Lifecycle) Acknowledge(ctx context.Context, intentID string) (*domain.AlertRecord, error) {
	return l.transition(ctx, intentID, domain.AlertStatusAcknowledged)
}

// Resolve closes an alert and releases its registry slot.
func (l *Lifecycle) Resolve(ctx context.Context, intentID string) (*domain.AlertRecord, error) {
	return l.transition(ctx, intentID, domain.AlertStatusResolved)
}

// MarkFalseAlarm closes an alert as a false alarm and releases its registry slot.
func (l *Lifecycle) MarkFalseAlarm(ctx context.Context, intentID string) (*domain.AlertRecord, error) {
	return l.transition(ctx, intentID, domain.AlertStatusFalseAlarm)
}

func (l *Lifecycle) transition(ctx context.Context, intentID string, to domain.AlertStatus) (*domain.AlertRecord, error) {
	rec, err := l.store.GetByID(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if !storage.CanTransition(rec.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", storage.ErrInvalidTransition, rec.Status, to)
	}

	nowMs := l.now().UnixMilli()
	if err := l.store.UpdateStatus(ctx, intentID, to, nowMs); err != nil {
		return nil, err
	}
	rec.Status = to
	rec.UpdatedAtMs = nowMs

	if !to.IsOpen() && l.registry != nil {
		holder, err := l.registry.Open(ctx, rec.EntityID, rec.Type)
		if err != nil {
			return rec, fmt.Errorf("registry lookup: %w", err)
		}
		if holder == intentID {
			if err := l.registry.Release(ctx, rec.EntityID, rec.Type); err != nil {
				return rec, fmt.Errorf("registry release: %w", err)
			}
		}
	}

	l.logger.Info("alert status changed",
		zap.String("intent_id", intentID),
		zap.String("status", string(to)),
	)
	return rec, nil
}

var _ Sink = (*Lifecycle)(nil)
