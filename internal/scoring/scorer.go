// Package scoring fuses the geofence verdict and model sub-scores into a
// bounded safety score and severity tier.
package scoring

import (
	"fmt"
	"math"

	"tourist-safety-engine/internal/domain"
)

// FuseContext carries the per-sample inputs fusion needs besides the sub-scores.
type FuseContext struct {
	EntityID      string
	SampleID      string
	TimestampMs   int64
	Latitude      float64
	Longitude     float64
	BonusEligible bool     // granted by the bonus ledger for this sample
	Confidence    float64  // [0,1], computed by the caller
	Degraded      []string // domain.Degraded* flags
}

// Scorer applies a fixed Config. Fuse is a pure function of its inputs.
type Scorer struct {
	cfg Config
}

// NewScorer creates a scorer for cfg.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Config returns the scorer's configuration.
func (s *Scorer) Config() Config {
	return s.cfg
}

// Fuse combines the inputs into an assessment. AssessmentID is left empty.
func (s *Scorer) Fuse(v domain.GeofenceVerdict, anomaly, temporal float64, fc FuseContext) domain.SafetyAssessment {
	anomaly = clamp(anomaly, 0, 1)
	temporal = clamp(temporal, 0, 1)

	a := domain.SafetyAssessment{
		EntityID:    fc.EntityID,
		SampleID:    fc.SampleID,
		TimestampMs: fc.TimestampMs,
		Latitude:    fc.Latitude,
		Longitude:   fc.Longitude,
		SubScores: domain.SubScores{
			Geofence: v,
			Anomaly:  anomaly,
			Temporal: temporal,
		},
		Confidence: clamp(fc.Confidence, 0, 1),
		Degraded:   fc.Degraded,
	}

	if v.SOS() {
		a.SafetyScore = 0
		a.Severity = domain.SeverityCritical
		a.RecommendedAction = domain.ActionIntervene
		a.Message = "SOS signal received"
		return a
	}

	bonus := fc.BonusEligible
	a.SubScores.BonusApplied = bonus
	a.SafetyScore = s.Score(v.Kind, anomaly, temporal, bonus)
	a.Severity = s.Severity(a.SafetyScore)
	a.RecommendedAction = domain.RecommendedAction(a.Severity)
	a.Message = message(a)
	return a
}

// Score computes the clamped integer score for non-SOS inputs.
func (s *Scorer) Score(kind domain.VerdictKind, anomaly, temporal float64, bonus bool) int {
	if kind == domain.VerdictSOS {
		return 0
	}
	total := s.cfg.Base + s.zoneAdjustment(kind)
	total -= clamp(anomaly, 0, 1)*s.cfg.PointWeight + clamp(temporal, 0, 1)*s.cfg.TemporalWeight
	if bonus {
		total += s.cfg.SafeDurationBonus
	}
	return int(math.Round(clamp(total, 0, 100)))
}

// Severity maps a score to its tier using the configured boundaries.
func (s *Scorer) Severity(score int) domain.Severity {
	v := float64(score)
	if v > s.cfg.SafeAbove || (s.cfg.SafeInclusive && v == s.cfg.SafeAbove) {
		return domain.SeveritySafe
	}
	if v < s.cfg.CriticalBelow || (s.cfg.CriticalInclusive && v == s.cfg.CriticalBelow) {
		return domain.SeverityCritical
	}
	return domain.SeverityWarning
}

// Qualifies reports whether a sample counts toward the safe-duration bonus.
func (s *Scorer) Qualifies(v domain.GeofenceVerdict, anomaly, temporal float64) bool {
	if v.Kind == domain.VerdictRestricted || v.SOS() {
		return false
	}
	return anomaly < s.cfg.LowAnomaly && temporal < s.cfg.LowAnomaly
}

// Reproduce recomputes an assessment's score from its recorded sub-scores.
func (s *Scorer) Reproduce(a *domain.SafetyAssessment) int {
	sub := a.SubScores
	return s.Score(sub.Geofence.Kind, sub.Anomaly, sub.Temporal, sub.BonusApplied)
}

func (s *Scorer) zoneAdjustment(kind domain.VerdictKind) float64 {
	switch kind {
	case domain.VerdictRestricted:
		return -s.cfg.RestrictedPenalty
	case domain.VerdictRisky:
		return -s.cfg.RiskyPenalty
	case domain.VerdictSafe:
		return s.cfg.SafeZoneBonus
	}
	return 0
}

func message(a domain.SafetyAssessment) string {
	v := a.SubScores.Geofence
	switch {
	case v.Kind == domain.VerdictRestricted && v.ZoneName != "":
		return fmt.Sprintf("Inside restricted zone %s, safety score %d", v.ZoneName, a.SafetyScore)
	case v.Kind == domain.VerdictRestricted:
		return fmt.Sprintf("Inside restricted area, safety score %d", a.SafetyScore)
	case a.Severity == domain.SeverityCritical:
		return fmt.Sprintf("Safety score critically low (%d)", a.SafetyScore)
	case a.Severity == domain.SeverityWarning:
		return fmt.Sprintf("Unusual movement detected, safety score %d", a.SafetyScore)
	}
	return fmt.Sprintf("Safety score %d", a.SafetyScore)
}

func clamp(v, lo, hi float64) float64 {
	if v != v {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
