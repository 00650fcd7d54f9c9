package nbfc

import "reflect"

// SemanticEqual compares two configs the way P1 (round-trip parse equality)
// requires: thresholds compared by their full {up, down, speed} triple
// rather than by the Down-threshold-only key used for sorting.
func (c *FanControlConfig) SemanticEqual(o *FanControlConfig) bool {
	if c.NotebookModel != o.NotebookModel {
		return false
	}
	if !strPtrEqual(c.Author, o.Author) {
		return false
	}
	if c.EcPollInterval != o.EcPollInterval || c.ReadWriteWords != o.ReadWriteWords ||
		c.CriticalTemperature != o.CriticalTemperature {
		return false
	}
	if len(c.FanConfigurations) != len(o.FanConfigurations) {
		return false
	}
	for i := range c.FanConfigurations {
		if !fanEqual(c.FanConfigurations[i], o.FanConfigurations[i]) {
			return false
		}
	}
	return reflect.DeepEqual(c.RegisterWriteConfigurations, o.RegisterWriteConfigurations)
}

func fanEqual(a, b FanConfiguration) bool {
	if a.ReadRegister != b.ReadRegister || a.WriteRegister != b.WriteRegister ||
		a.MinSpeedValue != b.MinSpeedValue || a.MaxSpeedValue != b.MaxSpeedValue ||
		a.IndependentReadMinMaxValues != b.IndependentReadMinMaxValues ||
		a.MinSpeedValueRead != b.MinSpeedValueRead || a.MaxSpeedValueRead != b.MaxSpeedValueRead ||
		a.ResetRequired != b.ResetRequired {
		return false
	}
	if !u16PtrEqual(a.FanSpeedResetValue, b.FanSpeedResetValue) {
		return false
	}
	if !strPtrEqual(a.FanDisplayName, b.FanDisplayName) {
		return false
	}
	if len(a.TemperatureThresholds) != len(b.TemperatureThresholds) {
		return false
	}
	for i := range a.TemperatureThresholds {
		if !a.TemperatureThresholds[i].SemanticEqual(b.TemperatureThresholds[i]) {
			return false
		}
	}
	return reflect.DeepEqual(a.FanSpeedPercentageOverrides, b.FanSpeedPercentageOverrides)
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func u16PtrEqual(a, b *uint16) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
