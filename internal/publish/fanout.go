package publish

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"tourist-safety-engine/internal/alerting"
	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/observability"
)

// Named is a sink with a metrics label.
type Named interface {
	alerting.Sink
	Name() string
}

type named struct {
	alerting.Sink
	name string
}

func (n named) Name() string { return n.name }

// WithName labels an unnamed sink, e.g. the alert lifecycle.
func WithName(name string, s alerting.Sink) Named {
	return named{Sink: s, name: name}
}

type record struct{ Named }

// AsRecord marks s as the system of record for alerts.
func AsRecord(s Named) Named {
	return record{Named: s}
}

func isRecord(s Named) bool {
	_, ok := s.(record)
	return ok
}

// Fanout delivers every batch to all sinks in order. A failing sink does
// not stop delivery to the others; its error is counted and returned
// joined with the rest. When only sinks other than the record sinks
// failed, the error wraps alerting.ErrDeliveryIncomplete.
type Fanout struct {
	sinks     []Named
	hasRecord bool
	logger    *zap.Logger
}

var _ alerting.Sink = (*Fanout)(nil)

// NewFanout creates a fan-out over sinks. Nil sinks are ignored.
func NewFanout(logger *zap.Logger, sinks ...Named) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fanout{logger: logger}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
			f.hasRecord = f.hasRecord || isRecord(s)
		}
	}
	return f
}

// Len returns the number of sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

// Publish implements alerting.Sink.
func (f *Fanout) Publish(ctx context.Context, intents []domain.AlertIntent) error {
	if len(intents) == 0 {
		return nil
	}
	var (
		errs         []error
		recordFailed bool
	)
	for _, s := range f.sinks {
		if err := s.Publish(ctx, intents); err != nil {
			recordFailed = recordFailed || isRecord(s)
			observability.RecordSinkError(s.Name())
			f.logger.Warn("sink publish failed",
				zap.String("sink", s.Name()),
				zap.Int("intents", len(intents)),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	joined := errors.Join(errs...)
	if f.hasRecord && !recordFailed {
		return fmt.Errorf("%w: %w", alerting.ErrDeliveryIncomplete, joined)
	}
	return joined
}
