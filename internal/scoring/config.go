package scoring

import (
	"errors"
	"fmt"
	"time"
)

// Config holds fusion weights and thresholds. It is passed by value and
// never mutated after construction.
type Config struct {
	Base              float64 `yaml:"base"`                // starting score (default: 100)
	RestrictedPenalty float64 `yaml:"restricted_penalty"`  // default: 30
	RiskyPenalty      float64 `yaml:"risky_penalty"`       // default: 20
	SafeZoneBonus     float64 `yaml:"safe_zone_bonus"`     // default: 5
	PointWeight       float64 `yaml:"point_weight"`        // max deduction from the point model (default: 30)
	TemporalWeight    float64 `yaml:"temporal_weight"`     // max deduction from the sequence model (default: 25)
	SafeDurationBonus float64 `yaml:"safe_duration_bonus"` // default: 10

	SafeAbove         float64 `yaml:"safe_above"`         // default: 80
	CriticalBelow     float64 `yaml:"critical_below"`     // default: 50
	SafeInclusive     bool    `yaml:"safe_inclusive"`     // score == SafeAbove is SAFE
	CriticalInclusive bool    `yaml:"critical_inclusive"` // score == CriticalBelow is CRITICAL

	LowAnomaly  float64       `yaml:"low_anomaly"`  // both sub-scores must be below this to accrue the bonus (default: 0.1)
	BonusPeriod time.Duration `yaml:"bonus_period"` // qualifying interval (default: 1h)
}

// DefaultConfig returns the reference fusion policy.
func DefaultConfig() Config {
	return Config{
		Base:              100,
		RestrictedPenalty: 30,
		RiskyPenalty:      20,
		SafeZoneBonus:     5,
		PointWeight:       30,
		TemporalWeight:    25,
		SafeDurationBonus: 10,
		SafeAbove:         80,
		CriticalBelow:     50,
		LowAnomaly:        0.1,
		BonusPeriod:       time.Hour,
	}
}

// Validate checks the thresholds are coherent.
func (c Config) Validate() error {
	var errs []error
	if c.Base < 0 || c.Base > 100 {
		errs = append(errs, fmt.Errorf("base %v out of [0,100]", c.Base))
	}
	if c.CriticalBelow > c.SafeAbove {
		errs = append(errs, fmt.Errorf("critical_below %v above safe_above %v", c.CriticalBelow, c.SafeAbove))
	}
	if c.CriticalBelow == c.SafeAbove && c.SafeInclusive && c.CriticalInclusive {
		errs = append(errs, errors.New("safe and critical thresholds overlap"))
	}
	for name, v := range map[string]float64{
		"restricted_penalty":  c.RestrictedPenalty,
		"risky_penalty":       c.RiskyPenalty,
		"safe_zone_bonus":     c.SafeZoneBonus,
		"point_weight":        c.PointWeight,
		"temporal_weight":     c.TemporalWeight,
		"safe_duration_bonus": c.SafeDurationBonus,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must be non-negative", name))
		}
	}
	if c.LowAnomaly < 0 || c.LowAnomaly > 1 {
		errs = append(errs, fmt.Errorf("low_anomaly %v out of [0,1]", c.LowAnomaly))
	}
	if c.BonusPeriod <= 0 {
		errs = append(errs, errors.New("bonus_period must be positive"))
	}
	return errors.Join(errs...)
}
