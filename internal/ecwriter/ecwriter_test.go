package ecwriter

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ectherm/fancontrold/internal/nbfc"
)

// fakeEC is an in-memory EcRW backed by a flat 256-byte register file, for
// exercising the writer/reader's protocol logic independent of any real
// transport backend.
type fakeEC struct {
	regs [256]byte
}

func (f *fakeEC) ReadBytes(offset uint8, buf []byte) error {
	for i := range buf {
		buf[i] = f.regs[int(offset)+i]
	}
	return nil
}

func (f *fakeEC) WriteBytes(offset uint8, buf []byte) error {
	for i, b := range buf {
		f.regs[int(offset)+i] = b
	}
	return nil
}

func (f *fakeEC) Close() error { return nil }

func onWriteOccasion() *nbfc.WriteOccasion {
	o := nbfc.OnWriteFanSpeed
	return &o
}

func onInitOccasion() *nbfc.WriteOccasion {
	o := nbfc.OnInitialization
	return &o
}

// TestWriteSpeedPercentInversePolarity verifies min > max linearly maps a
// mid-range percent to a value below min (inverted polarity fans).
func TestWriteSpeedPercentInversePolarity(t *testing.T) {
	cfg := &nbfc.FanControlConfig{
		ReadWriteWords: false,
		FanConfigurations: []nbfc.FanConfiguration{
			{WriteRegister: 0x10, MinSpeedValue: 175, MaxSpeedValue: 70},
		},
	}
	dev := &fakeEC{}
	w := New(dev)
	require.NoError(t, w.RefreshConfig(cfg))

	require.NoError(t, w.WriteSpeedPercent(0, 50.0))
	assert.Equal(t, byte(123), dev.regs[0x10], "round(175 + (70-175)*0.5) = 123")
}

// TestWriteSpeedPercentOverrideMatch verifies an exact percentage override
// wins over the linear map, verbatim.
func TestWriteSpeedPercentOverrideMatch(t *testing.T) {
	cfg := &nbfc.FanControlConfig{
		ReadWriteWords: false,
		FanConfigurations: []nbfc.FanConfiguration{
			{
				WriteRegister: 0x10, MinSpeedValue: 175, MaxSpeedValue: 70,
				FanSpeedPercentageOverrides: []nbfc.FanSpeedPercentageOverride{
					{FanSpeedPercentage: 0.0, FanSpeedValue: 255},
				},
			},
		},
	}
	dev := &fakeEC{}
	w := New(dev)
	require.NoError(t, w.RefreshConfig(cfg))

	require.NoError(t, w.WriteSpeedPercent(0, 0.0))
	assert.Equal(t, byte(255), dev.regs[0x10], "override value used verbatim, not the linear-mapped 175")
}

// TestWriteSpeedPercentWords verifies little-endian word encoding.
func TestWriteSpeedPercentWords(t *testing.T) {
	cfg := &nbfc.FanControlConfig{
		ReadWriteWords: true,
		FanConfigurations: []nbfc.FanConfiguration{
			{WriteRegister: 0x20, MinSpeedValue: 0, MaxSpeedValue: 1000},
		},
	}
	dev := &fakeEC{}
	w := New(dev)
	require.NoError(t, w.RefreshConfig(cfg))

	require.NoError(t, w.WriteSpeedPercent(0, 100.0))
	got := binary.LittleEndian.Uint16(dev.regs[0x20:0x22])
	assert.Equal(t, uint16(1000), got)
}

// TestRefreshConfigInitWrite covers the init-write pass: OnInitialization
// register writes and each fan's reset value, performed inside
// RefreshConfig.
func TestRefreshConfigInitWrite(t *testing.T) {
	resetVal := uint16(255)
	cfg := &nbfc.FanControlConfig{
		RegisterWriteConfigurations: []nbfc.RegisterWriteConfiguration{
			{WriteOccasion: onInitOccasion(), Register: 0x50, Value: 0x0d},
		},
		FanConfigurations: []nbfc.FanConfiguration{
			{WriteRegister: 0x10, MinSpeedValue: 0, MaxSpeedValue: 255, FanSpeedResetValue: &resetVal},
		},
	}
	dev := &fakeEC{}
	w := New(dev)
	require.NoError(t, w.RefreshConfig(cfg))

	assert.Equal(t, byte(0x0d), dev.regs[0x50])
	assert.Equal(t, byte(255), dev.regs[0x10])
}

// TestWriteSpeedPercentOnWriteRegister covers the on-write auxiliary
// register write performed before every fan-speed write.
func TestWriteSpeedPercentOnWriteRegister(t *testing.T) {
	cfg := &nbfc.FanControlConfig{
		RegisterWriteConfigurations: []nbfc.RegisterWriteConfiguration{
			{WriteOccasion: onWriteOccasion(), Register: 0x60, Value: 0x01},
		},
		FanConfigurations: []nbfc.FanConfiguration{
			{WriteRegister: 0x10, MinSpeedValue: 0, MaxSpeedValue: 255},
		},
	}
	dev := &fakeEC{}
	w := New(dev)
	require.NoError(t, w.RefreshConfig(cfg))

	require.NoError(t, w.WriteSpeedPercent(0, 50.0))
	assert.Equal(t, byte(0x01), dev.regs[0x60])
}

// TestResetHonorsResetRequired verifies Reset(resetAll=false) only rewrites
// registers whose own ResetRequired is set.
func TestResetHonorsResetRequired(t *testing.T) {
	initReset := uint8(0x04)
	fanReset := uint16(0)
	cfg := &nbfc.FanControlConfig{
		RegisterWriteConfigurations: []nbfc.RegisterWriteConfiguration{
			{WriteOccasion: onInitOccasion(), Register: 0x50, Value: 0x0d, ResetRequired: true, ResetValue: &initReset},
		},
		FanConfigurations: []nbfc.FanConfiguration{
			{WriteRegister: 0x10, MinSpeedValue: 0, MaxSpeedValue: 255, ResetRequired: false, FanSpeedResetValue: &fanReset},
		},
	}
	dev := &fakeEC{}
	w := New(dev)
	require.NoError(t, w.RefreshConfig(cfg))

	dev.regs[0x50] = 0xff
	dev.regs[0x10] = 0xff

	require.NoError(t, w.Reset(false))
	assert.Equal(t, initReset, dev.regs[0x50], "reset_required register rewritten even without resetAll")
	assert.Equal(t, byte(0xff), dev.regs[0x10], "fan without reset_required left alone when resetAll is false")

	require.NoError(t, w.Reset(true))
	assert.Equal(t, byte(0), dev.regs[0x10], "resetAll forces every fan reset value to be rewritten")
}
