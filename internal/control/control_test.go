package control

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ectherm/fancontrold/internal/ecreader"
	"github.com/ectherm/fancontrold/internal/ecwriter"
	"github.com/ectherm/fancontrold/internal/loader"
)

// fakeEC is an in-memory EcRW for exercising the loop's hot-swap path
// without a real transport backend.
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

const twoFanConfig = `{
  "notebook_model": "Test Model A",
  "ec_poll_interval": 1000,
  "critical_temperature": 80,
  "fan_configurations": [
    {"read_register": 1, "write_register": 1, "min_speed_value": 0, "max_speed_value": 255,
     "temperature_thresholds": [{"up_threshold":0,"down_threshold":0,"fan_speed":0},{"up_threshold":50,"down_threshold":40,"fan_speed":100}]},
    {"read_register": 2, "write_register": 2, "min_speed_value": 0, "max_speed_value": 255,
     "temperature_thresholds": [{"up_threshold":0,"down_threshold":0,"fan_speed":0},{"up_threshold":50,"down_threshold":40,"fan_speed":100}]}
  ]
}`

const oneFanConfig = `{
  "notebook_model": "Test Model B",
  "ec_poll_interval": 500,
  "critical_temperature": 80,
  "fan_configurations": [
    {"read_register": 1, "write_register": 1, "min_speed_value": 0, "max_speed_value": 255,
     "temperature_thresholds": [{"up_threshold":0,"down_threshold":0,"fan_speed":0},{"up_threshold":50,"down_threshold":40,"fan_speed":100}]}
  ]
}`

func newTestLoop(t *testing.T) (*Loop, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ModelA.json"), []byte(twoFanConfig), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ModelB.json"), []byte(oneFanConfig), 0o644))

	dev := &fakeEC{}
	cfgLoader := loader.New([]string{dir}, false)
	writer := ecwriter.New(dev)
	reader := ecreader.New(dev)
	l := New(cfgLoader, writer, reader, nil, CPUOnly, zerolog.Nop())
	return l, dir
}

// TestInstallConfigPreservesTargets verifies hot-swap preserves
// targets[i] for every i < min(old_fan_count, new_fan_count).
func TestInstallConfigPreservesTargets(t *testing.T) {
	l, _ := newTestLoop(t)

	require.NoError(t, l.installConfig("ModelA"))
	require.Len(t, l.state.Targets, 2)
	l.state.Targets[0] = 33.0
	l.state.Targets[1] = 77.0

	require.NoError(t, l.installConfig("ModelB"))
	require.Len(t, l.state.Targets, 1)
	assert.Equal(t, 33.0, l.state.Targets[0], "fan 0's target survives the swap to a smaller fan count")

	require.NoError(t, l.installConfig("ModelA"))
	require.Len(t, l.state.Targets, 2)
	assert.Equal(t, 33.0, l.state.Targets[0])
	assert.Equal(t, 0.0, l.state.Targets[1], "fan 1 had no prior value in the one-fan config, so it resets to zero")
}

// TestInstallConfigUnknownNameLeavesPriorConfig verifies a failed hot-swap
// leaves any previously-installed config untouched.
func TestInstallConfigUnknownNameLeavesPriorConfig(t *testing.T) {
	l, _ := newTestLoop(t)
	require.NoError(t, l.installConfig("ModelA"))

	err := l.installConfig("DoesNotExist")
	require.Error(t, err)
	assert.Equal(t, "ModelA", l.state.ConfigName, "prior config remains installed after a failed swap")
}

// TestInstallConfigRejectsInvalidConfig verifies installConfig validates
// the candidate config (via TestLoad) rather than installing anything
// that merely parses.
func TestInstallConfigRejectsInvalidConfig(t *testing.T) {
	l, dir := newTestLoop(t)
	require.NoError(t, l.installConfig("ModelA"))

	const noMaxSpeedThreshold = `{
  "notebook_model": "Broken",
  "critical_temperature": 80,
  "fan_configurations": [
    {"read_register": 1, "write_register": 1, "min_speed_value": 0, "max_speed_value": 255,
     "temperature_thresholds": [{"up_threshold":0,"down_threshold":0,"fan_speed":50}]}
  ]
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Broken.json"), []byte(noMaxSpeedThreshold), 0o644))

	err := l.installConfig("Broken")
	require.Error(t, err)
	assert.Equal(t, "ModelA", l.state.ConfigName, "invalid config must not replace the installed one")
}

// TestSelectTargetCriticalForcesFullSpeed verifies that while critical is
// true, every write issued in a tick is exactly 100.0 regardless of auto or
// targets[i].
func TestSelectTargetCriticalForcesFullSpeed(t *testing.T) {
	l, _ := newTestLoop(t)
	require.NoError(t, l.installConfig("ModelA"))

	l.state.Critical = true
	l.state.Auto = false
	l.state.Targets[0] = 12.0

	target, shouldWrite := l.selectTarget(l.state.Fans[0], 0, 75.0)
	require.True(t, shouldWrite)
	assert.Equal(t, 100.0, target)
}

// TestSelectTargetManualOverridesAuto verifies manual mode writes the
// user-set target instead of running threshold selection.
func TestSelectTargetManualOverridesAuto(t *testing.T) {
	l, _ := newTestLoop(t)
	require.NoError(t, l.installConfig("ModelA"))

	l.state.Auto = false
	l.state.Targets[0] = 42.5

	target, shouldWrite := l.selectTarget(l.state.Fans[0], 0, 10.0)
	require.True(t, shouldWrite)
	assert.Equal(t, 42.5, target)
}
