// Package nbfc implements the fan-control configuration model shared by the
// XML "NBFC" schema and its JSON equivalent, along with the validator that
// enforces the invariants a config must satisfy before it can drive a fan.
package nbfc

import (
	"sort"
	"strconv"
)

// WriteOccasion selects when a RegisterWriteConfiguration is applied.
type WriteOccasion string

const (
	OnInitialization WriteOccasion = "OnInitialization"
	OnWriteFanSpeed  WriteOccasion = "OnWriteFanSpeed"
)

// OverrideTarget selects whether a FanSpeedPercentageOverride applies to
// reads, writes, or both. Absent is treated as ReadWrite when matching —
// see DESIGN.md for why this differs from a stricter write-only reading.
type OverrideTarget string

const (
	OverrideRead      OverrideTarget = "Read"
	OverrideWrite     OverrideTarget = "Write"
	OverrideReadWrite OverrideTarget = "ReadWrite"
)

// TemperatureThreshold is a (up, down, speed) hysteresis band. Ordering
// (ThresholdsByDown) is defined on DownThreshold alone. There is no
// DownThreshold-only equality method; Go's == and SemanticEqual both
// compare all three fields.
type TemperatureThreshold struct {
	UpThreshold   uint8   `json:"up_threshold" xml:"UpThreshold"`
	DownThreshold uint8   `json:"down_threshold" xml:"DownThreshold"`
	FanSpeed      float32 `json:"fan_speed" xml:"FanSpeed"`
}

// SemanticEqual compares two thresholds by their full triple, used by P1's
// round-trip check, unlike the Down-threshold-only ordering below.
func (t TemperatureThreshold) SemanticEqual(o TemperatureThreshold) bool {
	return t.UpThreshold == o.UpThreshold && t.DownThreshold == o.DownThreshold && t.FanSpeed == o.FanSpeed
}

// ThresholdsByDown sorts thresholds ascending by DownThreshold, the only key
// the control loop's threshold selection (and the original schema) cares
// about for ordering.
type ThresholdsByDown []TemperatureThreshold

func (t ThresholdsByDown) Len() int           { return len(t) }
func (t ThresholdsByDown) Less(i, j int) bool { return t[i].DownThreshold < t[j].DownThreshold }
func (t ThresholdsByDown) Swap(i, j int)      { t[i], t[j] = t[j], t[i] }

func SortThresholds(t []TemperatureThreshold) {
	sort.Stable(ThresholdsByDown(t))
}

// DefaultThresholds is applied when a fan configuration omits thresholds.
func DefaultThresholds() []TemperatureThreshold {
	return []TemperatureThreshold{
		{UpThreshold: 0, DownThreshold: 0, FanSpeed: 0.0},
		{UpThreshold: 50, DownThreshold: 40, FanSpeed: 100.0},
	}
}

// FanSpeedPercentageOverride maps an exact raw register value to an exact
// percentage (or vice versa) for hardware that doesn't fit a linear model.
type FanSpeedPercentageOverride struct {
	FanSpeedPercentage float32         `json:"fan_speed_percentage" xml:"FanSpeedPercentage"`
	FanSpeedValue      uint16          `json:"fan_speed_value" xml:"FanSpeedValue"`
	TargetOperation    *OverrideTarget `json:"target_operation,omitempty" xml:"TargetOperation,omitempty"`
}

// EffectiveTarget returns the override's target, treating an absent value as
// ReadWrite.
func (o FanSpeedPercentageOverride) EffectiveTarget() OverrideTarget {
	if o.TargetOperation == nil {
		return OverrideReadWrite
	}
	return *o.TargetOperation
}

// AppliesToWrite reports whether this override should be consulted when
// encoding a write.
func (o FanSpeedPercentageOverride) AppliesToWrite() bool {
	t := o.EffectiveTarget()
	return t == OverrideWrite || t == OverrideReadWrite
}

// AppliesToRead reports whether this override should be consulted when
// decoding a read.
func (o FanSpeedPercentageOverride) AppliesToRead() bool {
	t := o.EffectiveTarget()
	return t == OverrideRead || t == OverrideReadWrite
}

// RegisterWriteConfiguration describes a single auxiliary register write
// performed either once at initialization or before every fan-speed write.
type RegisterWriteConfiguration struct {
	WriteOccasion *WriteOccasion `json:"write_occasion,omitempty" xml:"WriteOccasion,omitempty"`
	Register      uint8          `json:"register" xml:"Register"`
	Value         uint8          `json:"value" xml:"Value"`
	ResetRequired bool           `json:"reset_required" xml:"ResetRequired"`
	ResetValue    *uint8         `json:"reset_value,omitempty" xml:"ResetValue,omitempty"`
	Description   *string        `json:"description,omitempty" xml:"Description,omitempty"`
}

// FanConfiguration describes one physical fan: its EC registers, the raw
// value range that maps to 0-100%, and the thresholds that drive it.
type FanConfiguration struct {
	ReadRegister                 uint8                        `json:"read_register" xml:"ReadRegister"`
	WriteRegister                uint8                         `json:"write_register" xml:"WriteRegister"`
	MinSpeedValue                uint16                        `json:"min_speed_value" xml:"MinSpeedValue"`
	MaxSpeedValue                uint16                        `json:"max_speed_value" xml:"MaxSpeedValue"`
	IndependentReadMinMaxValues  bool                          `json:"independent_read_min_max_values" xml:"IndependentReadMinMaxValues"`
	MinSpeedValueRead            uint16                        `json:"min_speed_value_read" xml:"MinSpeedValueRead"`
	MaxSpeedValueRead            uint16                        `json:"max_speed_value_read" xml:"MaxSpeedValueRead"`
	ResetRequired                bool                          `json:"reset_required" xml:"ResetRequired"`
	FanSpeedResetValue           *uint16                       `json:"fan_speed_reset_value,omitempty" xml:"FanSpeedResetValue,omitempty"`
	FanDisplayName                *string                      `json:"fan_display_name,omitempty" xml:"FanDisplayName,omitempty"`
	TemperatureThresholds         []TemperatureThreshold        `json:"temperature_thresholds" xml:"-"`
	FanSpeedPercentageOverrides   []FanSpeedPercentageOverride  `json:"fan_speed_percentage_overrides,omitempty" xml:"-"`
}

// DisplayName returns FanDisplayName or, when absent, "Fan #<n>" (1-based).
func (f FanConfiguration) DisplayName(n int) string {
	if f.FanDisplayName != nil && *f.FanDisplayName != "" {
		return *f.FanDisplayName
	}
	return fanLabel(n)
}

func fanLabel(n int) string {
	return "Fan #" + strconv.Itoa(n)
}

// ReadBounds returns the (min, max) pair used when decoding a read,
// honoring IndependentReadMinMaxValues.
func (f FanConfiguration) ReadBounds() (min, max uint16) {
	if f.IndependentReadMinMaxValues {
		return f.MinSpeedValueRead, f.MaxSpeedValueRead
	}
	return f.MinSpeedValue, f.MaxSpeedValue
}

// FanControlConfig is the fully parsed, in-memory model for a notebook
// model's fan control configuration, independent of its source format.
type FanControlConfig struct {
	NotebookModel                string                        `json:"notebook_model" xml:"NotebookModel"`
	Author                       *string                       `json:"author,omitempty" xml:"Author,omitempty"`
	EcPollInterval                uint64                        `json:"ec_poll_interval" xml:"EcPollInterval"`
	ReadWriteWords                bool                          `json:"read_write_words" xml:"ReadWriteWords"`
	CriticalTemperature           uint8                         `json:"critical_temperature" xml:"CriticalTemperature"`
	FanConfigurations             []FanConfiguration            `json:"fan_configurations" xml:"-"`
	RegisterWriteConfigurations   []RegisterWriteConfiguration  `json:"register_write_configurations,omitempty" xml:"-"`
}
