// Package ecreader decodes fan speed registers into normalized percentages.
package ecreader

import (
	"encoding/binary"

	"github.com/ectherm/fancontrold/internal/ectransport"
	"github.com/ectherm/fancontrold/internal/nbfc"
)

type fanReadConfig struct {
	readRegister  uint8
	minSpeedRead  uint16
	maxSpeedRead  uint16
	readOverrides []nbfc.FanSpeedPercentageOverride
}

// Reader drives the read side of an EC transport for one installed config.
type Reader struct {
	dev        ectransport.EcRW
	readWords  bool
	fans       []fanReadConfig
}

// New builds a Reader with no config installed; call RefreshConfig before
// any read.
func New(dev ectransport.EcRW) *Reader {
	return &Reader{dev: dev}
}

// RefreshConfig captures per-fan read parameters. It performs no I/O.
func (r *Reader) RefreshConfig(cfg *nbfc.FanControlConfig) {
	r.readWords = cfg.ReadWriteWords
	r.fans = make([]fanReadConfig, len(cfg.FanConfigurations))
	for i, fan := range cfg.FanConfigurations {
		min, max := fan.ReadBounds()
		var overrides []nbfc.FanSpeedPercentageOverride
		for _, o := range fan.FanSpeedPercentageOverrides {
			if o.AppliesToRead() {
				overrides = append(overrides, o)
			}
		}
		r.fans[i] = fanReadConfig{
			readRegister:  fan.ReadRegister,
			minSpeedRead:  min,
			maxSpeedRead:  max,
			readOverrides: overrides,
		}
	}
}

// ReadSpeedPercent reads fanIndex's register and returns its normalized
// percentage, honoring read overrides and clamping the linear fallback to
// [0, 100].
func (r *Reader) ReadSpeedPercent(fanIndex int) (float64, error) {
	fan := r.fans[fanIndex]
	raw, err := r.readValue(fan.readRegister)
	if err != nil {
		return 0, err
	}

	for _, o := range fan.readOverrides {
		if o.FanSpeedValue == raw {
			return float64(o.FanSpeedPercentage), nil
		}
	}

	span := float64(fan.maxSpeedRead) - float64(fan.minSpeedRead)
	pct := (float64(raw) - float64(fan.minSpeedRead)) / span * 100.0
	return clamp(pct, 0, 100), nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (r *Reader) readValue(register uint8) (uint16, error) {
	if r.readWords {
		var buf [2]byte
		if err := r.dev.ReadBytes(register, buf[:]); err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint16(buf[:]), nil
	}
	var buf [1]byte
	if err := r.dev.ReadBytes(register, buf[:]); err != nil {
		return 0, err
	}
	return uint16(buf[0]), nil
}
