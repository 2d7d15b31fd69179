// Package alerting turns safety assessments into alert intents and tracks
// which deduplicated intents are still open.
package alerting

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tourist-safety-engine/internal/domain"
)

// Config holds dispatcher thresholds.
type Config struct {
	AnomalyHigh  float64 `yaml:"anomaly_high"`  // point score that raises an early warning (default: 0.8)
	TemporalHigh float64 `yaml:"temporal_high"` // sequence score that raises an early warning (default: 0.8)
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{AnomalyHigh: 0.8, TemporalHigh: 0.8}
}

// Dispatcher decides which alert intents an assessment produces.
type Dispatcher struct {
	cfg      Config
	registry Registry
	logger   *zap.Logger
	newID    func() string
}

// NewDispatcher creates a dispatcher. A nil registry defaults to an in-memory one.
func NewDispatcher(cfg Config, registry Registry, logger *zap.Logger) *Dispatcher {
	if registry == nil {
		registry = NewMemoryRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		cfg:      cfg,
		registry: registry,
		logger:   logger,
		newID:    uuid.NewString,
	}
}

// Registry returns the dispatcher's open-intent registry.
func (d *Dispatcher) Registry() Registry {
	return d.registry
}

// Decide returns the intents for a, given the entity's previous assessment (nil if none).
//
//   - SOS: always a CRITICAL sos intent, never deduplicated
//   - restricted verdict: one geofence intent per continuous occupancy of a zone
//   - CRITICAL score: low_safety_score, unless one is already open
//   - WARNING with a high model score: anomaly / temporal, at most one open of each
//   - SAFE: nothing
func (d *Dispatcher) Decide(ctx context.Context, a *domain.SafetyAssessment, prev *domain.SafetyAssessment) ([]domain.AlertIntent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := a.SubScores.Geofence
	if v.SOS() {
		return []domain.AlertIntent{d.intent(a, domain.AlertSOS, domain.AlertSeverityCritical,
			"SOS emergency signal", "Entity triggered an SOS/panic signal")}, nil
	}

	var out []domain.AlertIntent

	if v.Kind == domain.VerdictRestricted && !sameRestrictedZone(prev, v) {
		in := d.intent(a, domain.AlertGeofence, domain.AlertSeverityHigh,
			"Restricted zone entered", restrictedDescription(v))
		in.ZoneID = v.MatchedZoneID
		out = append(out, in)
	}

	switch a.Severity {
	case domain.SeverityCritical:
		in := d.intent(a, domain.AlertLowSafetyScore, domain.AlertSeverityHigh,
			"Safety score critically low",
			fmt.Sprintf("Safety score dropped to %d", a.SafetyScore))
		if d.claim(ctx, a.EntityID, in) {
			out = append(out, in)
		}

	case domain.SeverityWarning:
		if a.SubScores.Anomaly >= d.cfg.AnomalyHigh {
			in := d.intent(a, domain.AlertAnomaly, domain.AlertSeverityMedium,
				"Unusual movement pattern",
				fmt.Sprintf("Point anomaly score %.2f", a.SubScores.Anomaly))
			if d.claim(ctx, a.EntityID, in) {
				out = append(out, in)
			}
		}
		if a.SubScores.Temporal >= d.cfg.TemporalHigh {
			in := d.intent(a, domain.AlertTemporal, domain.AlertSeverityMedium,
				"Sustained movement deviation",
				fmt.Sprintf("Temporal anomaly score %.2f", a.SubScores.Temporal))
			if d.claim(ctx, a.EntityID, in) {
				out = append(out, in)
			}
		}
	}

	return out, nil
}

// claim reserves the (entity, type) slot. Registry failures emit the intent
// anyway; downstream dedup handles the duplicate.
func (d *Dispatcher) claim(ctx context.Context, entityID string, in domain.AlertIntent) bool {
	ok, err := d.registry.Claim(ctx, entityID, in.Type, in.IntentID)
	if err != nil {
		d.logger.Warn("intent registry unavailable, emitting without dedup",
			zap.String("entity_id", entityID),
			zap.String("type", string(in.Type)),
			zap.Error(err),
		)
		return true
	}
	return ok
}

// Abandon releases the registry slots still held by intents that never
// reached the alert store. Slots taken over by another intent are left alone.
func (d *Dispatcher) Abandon(ctx context.Context, intents []domain.AlertIntent) {
	for _, in := range intents {
		if !deduplicated(in.Type) {
			continue
		}
		holder, err := d.registry.Open(ctx, in.EntityID, in.Type)
		if err != nil {
			d.logger.Warn("intent registry unavailable, slot not released",
				zap.String("entity_id", in.EntityID),
				zap.String("type", string(in.Type)),
				zap.Error(err),
			)
			continue
		}
		if holder != in.IntentID {
			continue
		}
		if err := d.registry.Release(ctx, in.EntityID, in.Type); err != nil {
			d.logger.Warn("release abandoned intent slot",
				zap.String("intent_id", in.IntentID),
				zap.Error(err),
			)
			continue
		}
		d.logger.Info("abandoned intent slot released",
			zap.String("intent_id", in.IntentID),
			zap.String("entity_id", in.EntityID),
			zap.String("type", string(in.Type)),
		)
	}
}

// deduplicated reports whether intents of type t hold a registry slot.
func deduplicated(t domain.AlertType) bool {
	switch t {
	case domain.AlertLowSafetyScore, domain.AlertAnomaly, domain.AlertTemporal:
		return true
	}
	return false
}

func (d *Dispatcher) intent(a *domain.SafetyAssessment, t domain.AlertType, sev domain.AlertSeverity, msg, desc string) domain.AlertIntent {
	return domain.AlertIntent{
		IntentID:      d.newID(),
		EntityID:      a.EntityID,
		AssessmentID:  a.AssessmentID,
		Type:          t,
		Severity:      sev,
		Message:       msg,
		Description:   desc,
		Latitude:      a.Latitude,
		Longitude:     a.Longitude,
		AIConfidence:  a.Confidence,
		AutoGenerated: true,
		CreatedAtMs:   a.TimestampMs,
	}
}

func sameRestrictedZone(prev *domain.SafetyAssessment, v domain.GeofenceVerdict) bool {
	if prev == nil {
		return false
	}
	pv := prev.SubScores.Geofence
	return pv.Kind == domain.VerdictRestricted && pv.MatchedZoneID == v.MatchedZoneID
}

func restrictedDescription(v domain.GeofenceVerdict) string {
	if v.ZoneName != "" {
		return fmt.Sprintf("Entity is inside restricted zone %s (danger level %d)", v.ZoneName, v.Rating)
	}
	return "Entity reported inside a restricted area"
}
