package domain

// FeatureVector holds the point features derived for one sample.
type FeatureVector struct {
	TimestampMs        int64   `json:"timestamp_ms"`        // sample timestamp
	DistancePerMinute  float64 `json:"distance_per_minute"` // meters per minute since previous sample
	InactivityDuration float64 `json:"inactivity_duration"` // minutes since last significant movement
	RouteDeviation     float64 `json:"route_deviation"`     // meters from planned route, 0 without route
	Speed              float64 `json:"speed"`               // m/s
}

// FeatureDim is the number of numeric features in a FeatureVector.
const FeatureDim = 4

// Values returns the numeric features in a fixed order.
func (f FeatureVector) Values() []float64 {
	return []float64{f.DistancePerMinute, f.InactivityDuration, f.RouteDeviation, f.Speed}
}

// FeatureRecord is a feature vector tagged with its entity.
// Corresponds to entity_features table in ClickHouse.
type FeatureRecord struct {
	EntityID string
	SampleID string
	FeatureVector
}
