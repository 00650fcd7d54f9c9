package nbfc

const (
	DefaultEcPollInterval      = 100
	DefaultCriticalTemperature = 70
)

// normalize applies defaults to fields left at their zero value (an
// explicit zero in the document is treated the same as an omitted field),
// and fills in thresholds when a fan configuration carries none at all.
func normalize(c *FanControlConfig) {
	if c.EcPollInterval == 0 {
		c.EcPollInterval = DefaultEcPollInterval
	}
	if c.CriticalTemperature == 0 {
		c.CriticalTemperature = DefaultCriticalTemperature
	}
	for i := range c.FanConfigurations {
		fan := &c.FanConfigurations[i]
		if len(fan.TemperatureThresholds) == 0 {
			fan.TemperatureThresholds = DefaultThresholds()
		}
	}
}
