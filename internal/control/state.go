// Package control implements the threshold-selection control loop that
// coordinates the EC reader/writer, user overrides, critical-temperature
// safety and configuration hot-swap.
package control

import (
	"time"

	"github.com/ectherm/fancontrold/internal/nbfc"
)

// TempComputeMethod selects how the scalar driving temperature is derived
// from the sensor sample.
type TempComputeMethod string

const (
	CPUOnly    TempComputeMethod = "CPUOnly"
	AllSensors TempComputeMethod = "AllSensors"
)

// criticalHysteresisMargin is the margin (in °C) the driving temperature
// must fall below critical_temperature before the critical state clears.
const criticalHysteresisMargin = 10

// SensorReading is one sensor's current mean temperature, tagged with
// whether it counts toward CPUOnly's mean.
type SensorReading struct {
	Value float64
	IsCPU bool
}

// TemperatureSample is a snapshot of every sensor's current reading, keyed
// by sensor/chip name — the shape the sensor collector hands the loop.
type TemperatureSample map[string]SensorReading

// Sampler is the sensor collector's interface as seen by the control loop.
type Sampler interface {
	Sample() (TemperatureSample, error)
}

// FanRuntime is the loop's derived, per-fan state.
type FanRuntime struct {
	Name          string
	WriteRegister uint8
	ReadRegister  uint8

	Thresholds             []nbfc.TemperatureThreshold
	CurrentThresholdIndex  int
	LastWrittenSpeed       float64
	LastReadSpeed          float64
}

// newFanRuntime derives a FanRuntime from a parsed FanConfiguration, sorting
// its thresholds by down_threshold.
func newFanRuntime(n int, fan nbfc.FanConfiguration) *FanRuntime {
	thresholds := append([]nbfc.TemperatureThreshold(nil), fan.TemperatureThresholds...)
	nbfc.SortThresholds(thresholds)
	return &FanRuntime{
		Name:                  fan.DisplayName(n),
		WriteRegister:         fan.WriteRegister,
		ReadRegister:          fan.ReadRegister,
		Thresholds:            thresholds,
		CurrentThresholdIndex: 0,
	}
}

// State is the process-wide control-loop state.
type State struct {
	ConfigName string
	Config     *nbfc.FanControlConfig
	Fans       []*FanRuntime

	PollInterval        time.Duration
	CriticalTemperature uint8
	Critical            bool
	Auto                 bool
	TempCompute           TempComputeMethod

	Temperatures TemperatureSample
	CPUTemp      float64

	Targets           []float64
	ManualTargetDirty bool
}

// newState builds a State from a freshly loaded config, preserving targets
// by index from a prior state when present.
func newState(name string, cfg *nbfc.FanControlConfig, prevTargets []float64, tempCompute TempComputeMethod) *State {
	fans := make([]*FanRuntime, len(cfg.FanConfigurations))
	for i, fc := range cfg.FanConfigurations {
		fans[i] = newFanRuntime(i+1, fc)
	}

	targets := make([]float64, len(fans))
	for i := range targets {
		if i < len(prevTargets) {
			targets[i] = prevTargets[i]
		}
	}

	return &State{
		ConfigName:          name,
		Config:              cfg,
		Fans:                fans,
		PollInterval:        time.Duration(cfg.EcPollInterval) * time.Millisecond,
		CriticalTemperature: cfg.CriticalTemperature,
		Critical:            false,
		Auto:                true,
		TempCompute:         tempCompute,
		Targets:             targets,
	}
}

// FanNames returns the current fans' display names, in configuration order.
func (s *State) FanNames() []string {
	names := make([]string, len(s.Fans))
	for i, f := range s.Fans {
		names[i] = f.Name
	}
	return names
}

// FanSpeeds returns each fan's last-read speed percentage.
func (s *State) FanSpeeds() []float64 {
	speeds := make([]float64, len(s.Fans))
	for i, f := range s.Fans {
		speeds[i] = f.LastReadSpeed
	}
	return speeds
}

// drivingTemperature computes the scalar driving temperature from a sample.
func drivingTemperature(sample TemperatureSample, method TempComputeMethod) (float64, bool) {
	var sum float64
	var n int
	for _, r := range sample {
		if method == CPUOnly && !r.IsCPU {
			continue
		}
		sum += r.Value
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// updateCritical applies the hysteretic critical-temperature update and
// returns the new value.
func updateCritical(wasCritical bool, t float64, criticalTemperature uint8) bool {
	if !wasCritical {
		return t >= float64(criticalTemperature)
	}
	return float64(criticalTemperature)-t <= criticalHysteresisMargin
}
