package anomaly

import "fmt"

// Config selects and parameterizes a point model.
type Config struct {
	Type            string                `yaml:"type"`
	IsolationForest IsolationForestParams `yaml:"isolation_forest"`
	Mahalanobis     MahalanobisParams     `yaml:"mahalanobis"`
}

// FromConfig creates an unfitted PointModel. Empty type selects the isolation forest.
func FromConfig(cfg Config) (PointModel, error) {
	switch cfg.Type {
	case TypeIsolationForest, "":
		return NewIsolationForest(cfg.IsolationForest), nil
	case TypeMahalanobis:
		return NewMahalanobis(cfg.Mahalanobis), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, cfg.Type)
	}
}
