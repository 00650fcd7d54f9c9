package control

import "github.com/ectherm/fancontrold/internal/nbfc"

// tempToU8 saturates a driving temperature to the u8 range the threshold
// model is defined over.
func tempToU8(temp float64) uint8 {
	switch {
	case temp <= 0:
		return 0
	case temp >= 255:
		return 255
	default:
		return uint8(temp)
	}
}

// selectThreshold applies the threshold-selection rule. It returns the
// index the fan should be at after observing temp, and whether that
// differs from current.
func selectThreshold(thresholds []nbfc.TemperatureThreshold, current int, temp float64) (next int, changed bool) {
	t := tempToU8(temp)
	uTop := thresholds[len(thresholds)-1].UpThreshold
	cur := thresholds[current]

	switch {
	case t >= uTop:
		next = len(thresholds) - 1
	case t >= cur.DownThreshold && t <= cur.UpThreshold:
		return current, false
	default:
		if idx, ok := firstNonZeroDown(thresholds); (ok && t <= thresholds[idx].DownThreshold) || len(thresholds) == 1 {
			next = 0
		} else if idx, ok := binarySearchThreshold(thresholds, t); ok {
			next = idx
		} else {
			return current, false
		}
	}

	return next, next != current
}

func firstNonZeroDown(thresholds []nbfc.TemperatureThreshold) (int, bool) {
	for i, th := range thresholds {
		if th.DownThreshold != 0 {
			return i, true
		}
	}
	return 0, false
}

// binarySearchThreshold finds the threshold whose [down, up] range contains
// t, assuming thresholds are sorted ascending by DownThreshold and their
// ranges don't overlap.
func binarySearchThreshold(thresholds []nbfc.TemperatureThreshold, t uint8) (int, bool) {
	lo, hi := 0, len(thresholds)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		th := thresholds[mid]
		switch {
		case th.DownThreshold > t:
			hi = mid - 1
		case th.UpThreshold < t:
			lo = mid + 1
		default:
			return mid, true
		}
	}
	return 0, false
}
