package nbfc

import "encoding/xml"

// The XML ("NBFC") schema wraps every repeated element in a singular-named
// outer element, e.g. <TemperatureThresholds><TemperatureThreshold>…. These
// wrapper types exist only to express that nesting to encoding/xml; they
// are converted to/from the flat FanControlConfig immediately after
// (de)serialization, the same wrapper shape internal/settings uses for the
// legacy NBFC TargetFanSpeeds list.

type xmlTemperatureThresholds struct {
	Thresholds []TemperatureThreshold `xml:"TemperatureThreshold"`
}

type xmlFanSpeedPercentageOverrides struct {
	Overrides []FanSpeedPercentageOverride `xml:"FanSpeedPercentageOverride"`
}

type xmlFanConfiguration struct {
	ReadRegister                uint8                           `xml:"ReadRegister"`
	WriteRegister               uint8                           `xml:"WriteRegister"`
	MinSpeedValue               uint16                          `xml:"MinSpeedValue"`
	MaxSpeedValue               uint16                          `xml:"MaxSpeedValue"`
	IndependentReadMinMaxValues bool                            `xml:"IndependentReadMinMaxValues"`
	MinSpeedValueRead           uint16                          `xml:"MinSpeedValueRead"`
	MaxSpeedValueRead           uint16                          `xml:"MaxSpeedValueRead"`
	ResetRequired               bool                            `xml:"ResetRequired"`
	FanSpeedResetValue          *uint16                         `xml:"FanSpeedResetValue"`
	FanDisplayName              *string                         `xml:"FanDisplayName"`
	TemperatureThresholds       xmlTemperatureThresholds        `xml:"TemperatureThresholds"`
	FanSpeedPercentageOverrides *xmlFanSpeedPercentageOverrides `xml:"FanSpeedPercentageOverrides"`
}

func (f xmlFanConfiguration) toModel() FanConfiguration {
	var overrides []FanSpeedPercentageOverride
	if f.FanSpeedPercentageOverrides != nil {
		overrides = f.FanSpeedPercentageOverrides.Overrides
	}
	return FanConfiguration{
		ReadRegister:                f.ReadRegister,
		WriteRegister:               f.WriteRegister,
		MinSpeedValue:               f.MinSpeedValue,
		MaxSpeedValue:               f.MaxSpeedValue,
		IndependentReadMinMaxValues: f.IndependentReadMinMaxValues,
		MinSpeedValueRead:           f.MinSpeedValueRead,
		MaxSpeedValueRead:           f.MaxSpeedValueRead,
		ResetRequired:               f.ResetRequired,
		FanSpeedResetValue:          f.FanSpeedResetValue,
		FanDisplayName:              f.FanDisplayName,
		TemperatureThresholds:       f.TemperatureThresholds.Thresholds,
		FanSpeedPercentageOverrides: overrides,
	}
}

func fanConfigurationToXML(f FanConfiguration) xmlFanConfiguration {
	var overrides *xmlFanSpeedPercentageOverrides
	if f.FanSpeedPercentageOverrides != nil {
		overrides = &xmlFanSpeedPercentageOverrides{Overrides: f.FanSpeedPercentageOverrides}
	}
	return xmlFanConfiguration{
		ReadRegister:                f.ReadRegister,
		WriteRegister:               f.WriteRegister,
		MinSpeedValue:               f.MinSpeedValue,
		MaxSpeedValue:               f.MaxSpeedValue,
		IndependentReadMinMaxValues: f.IndependentReadMinMaxValues,
		MinSpeedValueRead:           f.MinSpeedValueRead,
		MaxSpeedValueRead:           f.MaxSpeedValueRead,
		ResetRequired:               f.ResetRequired,
		FanSpeedResetValue:          f.FanSpeedResetValue,
		FanDisplayName:              f.FanDisplayName,
		TemperatureThresholds:       xmlTemperatureThresholds{Thresholds: f.TemperatureThresholds},
		FanSpeedPercentageOverrides: overrides,
	}
}

type xmlFanConfigurations struct {
	Fans []xmlFanConfiguration `xml:"FanConfiguration"`
}

type xmlRegisterWriteConfigurations struct {
	Configs []RegisterWriteConfiguration `xml:"RegisterWriteConfiguration"`
}

type xmlFanControlConfigV2 struct {
	XMLName                     xml.Name                        `xml:"FanControlConfigV2"`
	NotebookModel                string                          `xml:"NotebookModel"`
	Author                       *string                         `xml:"Author"`
	EcPollInterval                *uint64                         `xml:"EcPollInterval"`
	ReadWriteWords                bool                            `xml:"ReadWriteWords"`
	CriticalTemperature           *uint8                          `xml:"CriticalTemperature"`
	FanConfigurations             xmlFanConfigurations            `xml:"FanConfigurations"`
	RegisterWriteConfigurations   *xmlRegisterWriteConfigurations `xml:"RegisterWriteConfigurations"`
}

// ParseXML parses the PascalCase, nested-wrapper "NBFC" XML config format
// and applies defaults for any field the document omitted.
func ParseXML(data []byte) (*FanControlConfig, error) {
	var doc xmlFanControlConfigV2
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Format: "xml", Err: err}
	}

	fans := make([]FanConfiguration, len(doc.FanConfigurations.Fans))
	for i, f := range doc.FanConfigurations.Fans {
		fans[i] = f.toModel()
	}

	var regs []RegisterWriteConfiguration
	if doc.RegisterWriteConfigurations != nil {
		regs = doc.RegisterWriteConfigurations.Configs
	}

	cfg := &FanControlConfig{
		NotebookModel:               doc.NotebookModel,
		Author:                      doc.Author,
		ReadWriteWords:              doc.ReadWriteWords,
		FanConfigurations:           fans,
		RegisterWriteConfigurations: regs,
	}
	if doc.EcPollInterval != nil {
		cfg.EcPollInterval = *doc.EcPollInterval
	}
	if doc.CriticalTemperature != nil {
		cfg.CriticalTemperature = *doc.CriticalTemperature
	}
	normalize(cfg)
	return cfg, nil
}

// MarshalXML renders the config back to the "NBFC" XML format.
func MarshalXML(c *FanControlConfig) ([]byte, error) {
	fans := make([]xmlFanConfiguration, len(c.FanConfigurations))
	for i, f := range c.FanConfigurations {
		fans[i] = fanConfigurationToXML(f)
	}

	var regs *xmlRegisterWriteConfigurations
	if c.RegisterWriteConfigurations != nil {
		regs = &xmlRegisterWriteConfigurations{Configs: c.RegisterWriteConfigurations}
	}

	pollInterval := c.EcPollInterval
	criticalTemp := c.CriticalTemperature
	doc := xmlFanControlConfigV2{
		NotebookModel:               c.NotebookModel,
		Author:                      c.Author,
		EcPollInterval:              &pollInterval,
		ReadWriteWords:              c.ReadWriteWords,
		CriticalTemperature:         &criticalTemp,
		FanConfigurations:           xmlFanConfigurations{Fans: fans},
		RegisterWriteConfigurations: regs,
	}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}
