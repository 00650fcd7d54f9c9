package nbfc

import "fmt"

// ValidationErrorKind names which validation invariant failed.
type ValidationErrorKind string

const (
	ErrNoFanConfigurations    ValidationErrorKind = "no-fan-configurations"
	ErrNoMaxSpeedThreshold    ValidationErrorKind = "no-max-speed-threshold"
	ErrDuplicateDownThreshold ValidationErrorKind = "duplicate-down-threshold"
	ErrUpBelowDown            ValidationErrorKind = "up-below-down"
	ErrUpAboveCritical        ValidationErrorKind = "up-above-critical"
)

// ValidationError reports the first invariant violation found, along with
// the offending fan (and threshold, where applicable) for diagnostics.
type ValidationError struct {
	Kind      ValidationErrorKind
	FanIndex  int
	Threshold int // -1 when not threshold-specific
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case ErrNoFanConfigurations:
		return "there should be at least one fan configuration"
	case ErrNoMaxSpeedThreshold:
		return fmt.Sprintf("fan %d: there should be at least one threshold with the maximum fan speed", e.FanIndex)
	case ErrDuplicateDownThreshold:
		return fmt.Sprintf("fan %d: duplicate down threshold at index %d", e.FanIndex, e.Threshold)
	case ErrUpBelowDown:
		return fmt.Sprintf("fan %d: up threshold below down threshold at index %d", e.FanIndex, e.Threshold)
	case ErrUpAboveCritical:
		return fmt.Sprintf("fan %d: up threshold above critical temperature at index %d", e.FanIndex, e.Threshold)
	default:
		return "invalid fan control configuration"
	}
}

const maxSpeedEpsilon = 1e-4

// Validate enforces the fan-configuration invariants below, in order, and
// stops at the first violation.
func Validate(c *FanControlConfig) error {
	if len(c.FanConfigurations) == 0 {
		return &ValidationError{Kind: ErrNoFanConfigurations, FanIndex: -1, Threshold: -1}
	}

	for fi, fan := range c.FanConfigurations {
		hasMax := false
		for _, t := range fan.TemperatureThresholds {
			if absFloat32(t.FanSpeed-100.0) < maxSpeedEpsilon {
				hasMax = true
				break
			}
		}
		if !hasMax {
			return &ValidationError{Kind: ErrNoMaxSpeedThreshold, FanIndex: fi, Threshold: -1}
		}

		seen := make(map[uint8]bool, len(fan.TemperatureThresholds))
		for ti, t := range fan.TemperatureThresholds {
			if seen[t.DownThreshold] {
				return &ValidationError{Kind: ErrDuplicateDownThreshold, FanIndex: fi, Threshold: ti}
			}
			seen[t.DownThreshold] = true
		}

		for ti, t := range fan.TemperatureThresholds {
			if t.UpThreshold < t.DownThreshold {
				return &ValidationError{Kind: ErrUpBelowDown, FanIndex: fi, Threshold: ti}
			}
		}

		for ti, t := range fan.TemperatureThresholds {
			if t.UpThreshold > c.CriticalTemperature {
				return &ValidationError{Kind: ErrUpAboveCritical, FanIndex: fi, Threshold: ti}
			}
		}
	}

	return nil
}

func absFloat32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
