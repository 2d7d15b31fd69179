package domain

// AlertType classifies an alert intent.
type AlertType string

const (
	AlertPanic          AlertType = "panic"
	AlertGeofence       AlertType = "geofence"
	AlertAnomaly        AlertType = "anomaly"
	AlertTemporal       AlertType = "temporal"
	AlertLowSafetyScore AlertType = "low_safety_score"
	AlertSOS            AlertType = "sos"
	AlertManual         AlertType = "manual"
)

// IsValid checks if the alert type is a valid value.
func (t AlertType) IsValid() bool {
	switch t {
	case AlertPanic, AlertGeofence, AlertAnomaly, AlertTemporal, AlertLowSafetyScore, AlertSOS, AlertManual:
		return true
	}
	return false
}

// AlertSeverity is the urgency of an alert.
type AlertSeverity string

const (
	AlertSeverityLow      AlertSeverity = "LOW"
	AlertSeverityMedium   AlertSeverity = "MEDIUM"
	AlertSeverityHigh     AlertSeverity = "HIGH"
	AlertSeverityCritical AlertSeverity = "CRITICAL"
)

// AlertStatus is the lifecycle state owned by the alert store.
type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "active"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
	AlertStatusFalseAlarm   AlertStatus = "false_alarm"
)

// IsOpen reports whether the status still blocks duplicate intents.
func (s AlertStatus) IsOpen() bool {
	return s == AlertStatusActive || s == AlertStatusAcknowledged
}

// AlertIntent is a proposed alert emitted by the dispatcher.
type AlertIntent struct {
	IntentID      string        `json:"intent_id"` // UUID
	EntityID      string        `json:"entity_id"`
	AssessmentID  string        `json:"assessment_id"`
	Type          AlertType     `json:"type"`
	Severity      AlertSeverity `json:"severity"`
	Message       string        `json:"message"`
	Description   string        `json:"description,omitempty"`
	Latitude      float64       `json:"latitude"`
	Longitude     float64       `json:"longitude"`
	ZoneID        string        `json:"zone_id,omitempty"` // geofence intents
	AIConfidence  float64       `json:"ai_confidence"`
	AutoGenerated bool          `json:"auto_generated"`
	CreatedAtMs   int64         `json:"created_at_ms"`
}

// AlertRecord is a persisted intent with its lifecycle status.
// Corresponds to alerts table in PostgreSQL.
type AlertRecord struct {
	AlertIntent
	Status      AlertStatus `json:"status"`
	UpdatedAtMs int64       `json:"updated_at_ms"`
}
