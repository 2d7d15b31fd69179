// Package geofence implements the deterministic zone rule layer.
package geofence

import (
	"go.uber.org/zap"

	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/zones"
)

// Evaluator classifies a sample against a zone snapshot.
// It performs no model inference and never blocks.
type Evaluator struct {
	logger *zap.Logger
}

// NewEvaluator creates an evaluator. A nil logger is replaced by a no-op logger.
func NewEvaluator(logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{logger: logger}
}

// kindPriority ranks zone kinds for tie-breaking. Higher wins.
func kindPriority(k domain.ZoneKind) int {
	switch k {
	case domain.ZoneKindRestricted:
		return 3
	case domain.ZoneKindRisky:
		return 2
	case domain.ZoneKindSafe:
		return 1
	}
	return 0
}

// Evaluate returns the verdict for s using the given snapshot.
//
// Rules, in order:
//   - SOS flag set: SOS verdict, geometry skipped
//   - snapshot nil: fail closed to unknown (a restricted label is still honoured)
//   - any geometry match: restricted > risky > safe, then highest rating, then lowest zone_id
//   - no match: fall back to the sample's zone label
func (e *Evaluator) Evaluate(s *domain.MovementSample, snap *zones.Snapshot) domain.GeofenceVerdict {
	if s.SOS {
		return domain.GeofenceVerdict{Kind: domain.VerdictSOS}
	}

	if snap == nil {
		e.logger.Warn("zone index unavailable, geofence failing closed",
			zap.String("entity_id", s.EntityID))
		v := fromLabel(s.ZoneLabel)
		if v.Kind != domain.VerdictRestricted {
			v = domain.GeofenceVerdict{Kind: domain.VerdictUnknown}
		}
		v.IndexMissing = true
		return v
	}

	matches := snap.Lookup(s.Latitude, s.Longitude)
	if best, ok := pick(matches); ok {
		return domain.GeofenceVerdict{
			Kind:          verdictFor(best.Zone.Kind),
			MatchedZoneID: best.Zone.ZoneID,
			ZoneName:      best.Zone.Name,
			Rating:        best.Zone.Rating,
		}
	}

	return fromLabel(s.ZoneLabel)
}

// pick applies the tie-break. Matches arrive sorted by zone_id, so a strict
// comparison keeps the lowest id among equals.
func pick(matches []zones.Match) (zones.Match, bool) {
	if len(matches) == 0 {
		return zones.Match{}, false
	}
	best := matches[0]
	for _, m := range matches[1:] {
		bp, mp := kindPriority(best.Zone.Kind), kindPriority(m.Zone.Kind)
		if mp > bp || (mp == bp && m.Zone.Rating > best.Zone.Rating) {
			best = m
		}
	}
	return best, true
}

func verdictFor(k domain.ZoneKind) domain.VerdictKind {
	switch k {
	case domain.ZoneKindRestricted:
		return domain.VerdictRestricted
	case domain.ZoneKindRisky:
		return domain.VerdictRisky
	case domain.ZoneKindSafe:
		return domain.VerdictSafe
	}
	return domain.VerdictUnknown
}

func fromLabel(l domain.ZoneLabel) domain.GeofenceVerdict {
	switch l {
	case domain.ZoneLabelRestricted:
		return domain.GeofenceVerdict{Kind: domain.VerdictRestricted, FromLabel: true}
	case domain.ZoneLabelRisky:
		return domain.GeofenceVerdict{Kind: domain.VerdictRisky, FromLabel: true}
	case domain.ZoneLabelSafe:
		return domain.GeofenceVerdict{Kind: domain.VerdictSafe, FromLabel: true}
	}
	return domain.GeofenceVerdict{Kind: domain.VerdictUnknown}
}
