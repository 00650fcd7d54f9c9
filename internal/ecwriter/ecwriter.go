// Package ecwriter implements protocol-level initialization, speed-value
// encoding and reset of EC registers.
package ecwriter

import (
	"encoding/binary"
	"math"

	"github.com/ectherm/fancontrold/internal/ectransport"
	"github.com/ectherm/fancontrold/internal/nbfc"
)

const writeEpsilon = 1e-9

type fanWriteConfig struct {
	writeRegister  uint8
	resetRequired  bool
	resetValue     *uint16
	minSpeed       uint16
	maxSpeed       uint16
	writeOverrides []nbfc.FanSpeedPercentageOverride
}

// Writer drives the write side of an EC transport for one installed config.
type Writer struct {
	dev ectransport.EcRW

	onWriteRegConfs []nbfc.RegisterWriteConfiguration
	initRegConfs    []nbfc.RegisterWriteConfiguration
	fans            []fanWriteConfig
	writeWords      bool
}

// New builds a Writer with no config installed; call RefreshConfig before
// any write.
func New(dev ectransport.EcRW) *Writer {
	return &Writer{dev: dev}
}

// RefreshConfig partitions register_write_configurations by write_occasion,
// captures per-fan write parameters, then performs the init-write.
func (w *Writer) RefreshConfig(cfg *nbfc.FanControlConfig) error {
	w.onWriteRegConfs = w.onWriteRegConfs[:0]
	w.initRegConfs = w.initRegConfs[:0]
	for _, rc := range cfg.RegisterWriteConfigurations {
		switch occasionOf(rc) {
		case nbfc.OnWriteFanSpeed:
			w.onWriteRegConfs = append(w.onWriteRegConfs, rc)
		case nbfc.OnInitialization:
			w.initRegConfs = append(w.initRegConfs, rc)
		}
	}

	w.writeWords = cfg.ReadWriteWords
	w.fans = make([]fanWriteConfig, len(cfg.FanConfigurations))
	for i, fan := range cfg.FanConfigurations {
		var overrides []nbfc.FanSpeedPercentageOverride
		for _, o := range fan.FanSpeedPercentageOverrides {
			if o.AppliesToWrite() {
				overrides = append(overrides, o)
			}
		}
		w.fans[i] = fanWriteConfig{
			writeRegister:  fan.WriteRegister,
			resetRequired:  fan.ResetRequired,
			resetValue:     fan.FanSpeedResetValue,
			minSpeed:       fan.MinSpeedValue,
			maxSpeed:       fan.MaxSpeedValue,
			writeOverrides: overrides,
		}
	}

	return w.initWrite()
}

func occasionOf(rc nbfc.RegisterWriteConfiguration) nbfc.WriteOccasion {
	if rc.WriteOccasion == nil {
		return ""
	}
	return *rc.WriteOccasion
}

// initWrite performs the init-write pass: a single byte at every
// OnInitialization register, then each fan's reset value (word or byte).
func (w *Writer) initWrite() error {
	for _, rc := range w.initRegConfs {
		if err := w.dev.WriteBytes(rc.Register, []byte{rc.Value}); err != nil {
			return err
		}
	}
	for _, fan := range w.fans {
		if fan.resetValue == nil {
			continue
		}
		if err := w.writeValue(w.writeWords, fan.writeRegister, *fan.resetValue); err != nil {
			return err
		}
	}
	return nil
}

// Reset rewrites every register's reset value, gated by reset_required
// unless resetAll is set.
func (w *Writer) Reset(resetAll bool) error {
	for _, rc := range w.initRegConfs {
		if (resetAll || rc.ResetRequired) && rc.ResetValue != nil {
			if err := w.dev.WriteBytes(rc.Register, []byte{*rc.ResetValue}); err != nil {
				return err
			}
		}
	}
	for _, rc := range w.onWriteRegConfs {
		if (resetAll || rc.ResetRequired) && rc.ResetValue != nil {
			if err := w.dev.WriteBytes(rc.Register, []byte{*rc.ResetValue}); err != nil {
				return err
			}
		}
	}
	for _, fan := range w.fans {
		if (resetAll || fan.resetRequired) && fan.resetValue != nil {
			if err := w.writeValue(w.writeWords, fan.writeRegister, *fan.resetValue); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteSpeedPercent encodes and writes percent for fanIndex: on-write
// register writes, then override-or-linear raw value.
func (w *Writer) WriteSpeedPercent(fanIndex int, percent float64) error {
	for _, rc := range w.onWriteRegConfs {
		if err := w.dev.WriteBytes(rc.Register, []byte{rc.Value}); err != nil {
			return err
		}
	}

	fan := w.fans[fanIndex]
	raw := rawForPercent(fan, percent)
	return w.writeValue(w.writeWords, fan.writeRegister, raw)
}

func rawForPercent(fan fanWriteConfig, percent float64) uint16 {
	for _, o := range fan.writeOverrides {
		if math.Abs(float64(o.FanSpeedPercentage)-percent) < writeEpsilon {
			return o.FanSpeedValue
		}
	}
	v := float64(fan.minSpeed) + (float64(fan.maxSpeed)-float64(fan.minSpeed))*percent/100.0
	return uint16(math.Round(v))
}

func (w *Writer) writeValue(words bool, register uint8, value uint16) error {
	if words {
		var buf [2]byte
		binary.LittleEndian.PutUint16(buf[:], value)
		return w.dev.WriteBytes(register, buf[:])
	}
	return w.dev.WriteBytes(register, []byte{byte(value)})
}
