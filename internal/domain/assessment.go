package domain

// Severity is the three-way classification of a safety score.
type Severity string

const (
	SeveritySafe     Severity = "SAFE"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// String returns the string representation of Severity.
func (s Severity) String() string {
	return string(s)
}

// Rank orders severities from SAFE (0) to CRITICAL (2).
func (s Severity) Rank() int {
	switch s {
	case SeverityWarning:
		return 1
	case SeverityCritical:
		return 2
	}
	return 0
}

// VerdictKind is the outcome of the geofence rule layer.
type VerdictKind string

const (
	VerdictSafe       VerdictKind = "safe"
	VerdictRisky      VerdictKind = "risky"
	VerdictRestricted VerdictKind = "restricted"
	VerdictUnknown    VerdictKind = "unknown"
	VerdictSOS        VerdictKind = "sos"
)

// GeofenceVerdict is the result of evaluating a sample against the zone index.
type GeofenceVerdict struct {
	Kind          VerdictKind `json:"kind"`
	MatchedZoneID string      `json:"matched_zone_id,omitempty"` // empty when no geometry matched
	ZoneName      string      `json:"zone_name,omitempty"`
	Rating        int         `json:"rating,omitempty"`
	FromLabel     bool        `json:"from_label,omitempty"`    // verdict taken from the sample label
	IndexMissing  bool        `json:"index_missing,omitempty"` // zone index unavailable, failed closed
}

// SOS reports whether the verdict is an SOS bypass.
func (v GeofenceVerdict) SOS() bool {
	return v.Kind == VerdictSOS
}

// Degraded input flags recorded on an assessment.
const (
	DegradedPointTimeout     = "point_model_timeout"
	DegradedPointNotReady    = "point_model_not_ready"
	DegradedSequenceTimeout  = "sequence_model_timeout"
	DegradedSequenceNotReady = "sequence_model_not_ready"
	DegradedSequenceShort    = "sequence_window_short"
	DegradedZoneIndex        = "zone_index_unavailable"
)

// SubScores are the inputs fusion consumed.
type SubScores struct {
	Geofence     GeofenceVerdict `json:"geofence"`
	Anomaly      float64         `json:"anomaly"`       // [0,1], 0 = normal
	Temporal     float64         `json:"temporal"`      // [0,1], 0 = normal
	BonusApplied bool            `json:"bonus_applied"` // safe-duration bonus granted
}

// SafetyAssessment is the fused result for one sample. Immutable once created.
// Corresponds to safety_assessments table in PostgreSQL.
type SafetyAssessment struct {
	AssessmentID      string    `json:"assessment_id"` // deterministic hash of entity+sample
	EntityID          string    `json:"entity_id"`
	SampleID          string    `json:"sample_id"`
	TimestampMs       int64     `json:"timestamp_ms"`
	Latitude          float64   `json:"latitude"`
	Longitude         float64   `json:"longitude"`
	SafetyScore       int       `json:"safety_score"` // [0,100]
	Severity          Severity  `json:"severity"`
	SubScores         SubScores `json:"sub_scores"`
	Confidence        float64   `json:"confidence"`         // [0,1]
	Degraded          []string  `json:"degraded,omitempty"` // Degraded* flags
	RecommendedAction string    `json:"recommended_action"`
	Message           string    `json:"message"`
}

// Recommended actions per severity.
const (
	ActionNone      = "No action required"
	ActionMonitor   = "Monitor closely"
	ActionIntervene = "Immediate intervention required"
)

// RecommendedAction maps a severity to operator guidance.
func RecommendedAction(s Severity) string {
	switch s {
	case SeverityCritical:
		return ActionIntervene
	case SeverityWarning:
		return ActionMonitor
	}
	return ActionNone
}

// IsDegraded reports whether flag was recorded on the assessment.
func (a *SafetyAssessment) IsDegraded(flag string) bool {
	for _, d := range a.Degraded {
		if d == flag {
			return true
		}
	}
	return false
}
