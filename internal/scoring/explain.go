package scoring

import "tourist-safety-engine/internal/domain"

// Contribution is one signed term of a fused score.
type Contribution struct {
	Component string  `json:"component"`
	Points    float64 `json:"points"`
	Detail    string  `json:"detail,omitempty"`
}

// Explanation breaks a score into its terms.
type Explanation struct {
	Score         int            `json:"score"`
	Severity      string         `json:"severity"`
	Contributions []Contribution `json:"contributions"`
	Clamped       bool           `json:"clamped"`
}

// Explain lists the terms that produced an assessment's score.
func (s *Scorer) Explain(a *domain.SafetyAssessment) Explanation {
	sub := a.SubScores
	ex := Explanation{Score: a.SafetyScore, Severity: string(a.Severity)}

	if sub.Geofence.SOS() {
		ex.Contributions = []Contribution{{Component: "sos", Points: -s.cfg.Base, Detail: "SOS forces score to 0"}}
		return ex
	}

	ex.Contributions = append(ex.Contributions, Contribution{Component: "base", Points: s.cfg.Base})
	if adj := s.zoneAdjustment(sub.Geofence.Kind); adj != 0 {
		ex.Contributions = append(ex.Contributions, Contribution{
			Component: "geofence",
			Points:    adj,
			Detail:    string(sub.Geofence.Kind) + zoneSuffix(sub.Geofence),
		})
	}
	if sub.Anomaly > 0 {
		ex.Contributions = append(ex.Contributions, Contribution{Component: "point_anomaly", Points: -sub.Anomaly * s.cfg.PointWeight})
	}
	if sub.Temporal > 0 {
		ex.Contributions = append(ex.Contributions, Contribution{Component: "temporal_anomaly", Points: -sub.Temporal * s.cfg.TemporalWeight})
	}
	if sub.BonusApplied {
		ex.Contributions = append(ex.Contributions, Contribution{Component: "safe_duration_bonus", Points: s.cfg.SafeDurationBonus})
	}

	var raw float64
	for _, c := range ex.Contributions {
		raw += c.Points
	}
	ex.Clamped = raw < 0 || raw > 100
	return ex
}

func zoneSuffix(v domain.GeofenceVerdict) string {
	if v.ZoneName == "" {
		return ""
	}
	return " (" + v.ZoneName + ")"
}
