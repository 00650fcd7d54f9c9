package control

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ectherm/fancontrold/internal/nbfc"
)

func sampleThresholds() []nbfc.TemperatureThreshold {
	return []nbfc.TemperatureThreshold{
		{UpThreshold: 0, DownThreshold: 0, FanSpeed: 0},
		{UpThreshold: 50, DownThreshold: 40, FanSpeed: 40},
		{UpThreshold: 65, DownThreshold: 55, FanSpeed: 70},
		{UpThreshold: 80, DownThreshold: 70, FanSpeed: 100},
	}
}

// TestSelectThresholdMonotonicRising verifies that for a monotonically
// rising temperature sweep, the selected threshold index never regresses.
func TestSelectThresholdMonotonicRising(t *testing.T) {
	thresholds := sampleThresholds()
	current := 0
	lastIdx := 0
	for temp := 0; temp <= 80; temp++ {
		next, changed := selectThreshold(thresholds, current, float64(temp))
		if changed {
			current = next
		}
		assert.GreaterOrEqual(t, current, lastIdx, "index regressed at temp=%d", temp)
		lastIdx = current
	}
	assert.Equal(t, 3, current, "sweep should reach the top threshold by 80")
}

// TestSelectThresholdMonotonicFalling verifies the mirror property for a
// monotonically falling temperature sweep: the selected index never rises.
func TestSelectThresholdMonotonicFalling(t *testing.T) {
	thresholds := sampleThresholds()
	current := 3
	lastIdx := 3
	for temp := 80; temp >= 0; temp-- {
		next, changed := selectThreshold(thresholds, current, float64(temp))
		if changed {
			current = next
		}
		assert.LessOrEqual(t, current, lastIdx, "index rose at temp=%d", temp)
		lastIdx = current
	}
	assert.Equal(t, 0, current, "sweep should settle at the bottom threshold by 0")
}

// TestSelectThresholdNoChangeWithinBand verifies the hysteresis band: once
// a level is entered, small fluctuations within [down, up] don't move it.
func TestSelectThresholdNoChangeWithinBand(t *testing.T) {
	thresholds := sampleThresholds()
	next, changed := selectThreshold(thresholds, 2, 60) // within [55,65]
	assert.False(t, changed)
	assert.Equal(t, 2, next)
}

// TestSelectThresholdTopSaturates verifies temperatures at or above the
// highest up_threshold always select the last index.
func TestSelectThresholdTopSaturates(t *testing.T) {
	thresholds := sampleThresholds()
	next, changed := selectThreshold(thresholds, 0, 200)
	assert.True(t, changed)
	assert.Equal(t, len(thresholds)-1, next)
}

// TestUpdateCriticalHysteresis walks the sensor stream [60,68,71,69,64,59]
// against critical_temperature=70 and checks the critical flag traces
// [F,F,T,T,T,F] — entering at T+1 above threshold, clearing only once T
// drops a full margin below it.
func TestUpdateCriticalHysteresis(t *testing.T) {
	temps := []float64{60, 68, 71, 69, 64, 59}
	want := []bool{false, false, true, true, true, false}

	critical := false
	for i, temp := range temps {
		critical = updateCritical(critical, temp, 70)
		assert.Equal(t, want[i], critical, "tick %d (T=%v)", i, temp)
	}
}
