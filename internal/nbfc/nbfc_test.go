package nbfc

import "testing"

const sampleXML = `<?xml version="1.0"?>
<FanControlConfigV2 xmlns:xsd="http://www.w3.org/2001/XMLSchema" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
<NotebookModel>HP Envy X360 13-ag0xxx Ryzen-APU</NotebookModel>
<Author>Daniel Andersen</Author>
<EcPollInterval>1000</EcPollInterval>
<ReadWriteWords>true</ReadWriteWords>
<CriticalTemperature>90</CriticalTemperature>
<FanConfigurations>
    <FanConfiguration>
        <ReadRegister>149</ReadRegister>
        <WriteRegister>148</WriteRegister>
        <MinSpeedValue>175</MinSpeedValue>
        <MaxSpeedValue>70</MaxSpeedValue>
        <IndependentReadMinMaxValues>false</IndependentReadMinMaxValues>
        <MinSpeedValueRead>0</MinSpeedValueRead>
        <MaxSpeedValueRead>0</MaxSpeedValueRead>
        <ResetRequired>false</ResetRequired>
        <FanSpeedResetValue>255</FanSpeedResetValue>
        <FanDisplayName>CPU fan</FanDisplayName>
        <TemperatureThresholds>
            <TemperatureThreshold>
            <UpThreshold>0</UpThreshold>
            <DownThreshold>0</DownThreshold>
            <FanSpeed>0</FanSpeed>
            </TemperatureThreshold>
            <TemperatureThreshold>
            <UpThreshold>71</UpThreshold>
            <DownThreshold>67</DownThreshold>
            <FanSpeed>100</FanSpeed>
            </TemperatureThreshold>
        </TemperatureThresholds>
        <FanSpeedPercentageOverrides>
            <FanSpeedPercentageOverride>
            <FanSpeedPercentage>0</FanSpeedPercentage>
            <FanSpeedValue>255</FanSpeedValue>
            <TargetOperation>ReadWrite</TargetOperation>
            </FanSpeedPercentageOverride>
        </FanSpeedPercentageOverrides>
    </FanConfiguration>
</FanConfigurations>
<RegisterWriteConfigurations>
    <RegisterWriteConfiguration>
    <WriteOccasion>OnInitialization</WriteOccasion>
    <Register>147</Register>
    <Value>20</Value>
    <ResetRequired>true</ResetRequired>
    <ResetValue>4</ResetValue>
    <Description>Set EC to manual control</Description>
    </RegisterWriteConfiguration>
</RegisterWriteConfigurations>
</FanControlConfigV2>`

func TestParseXMLAllFields(t *testing.T) {
	cfg, err := ParseXML([]byte(sampleXML))
	if err != nil {
		t.Fatalf("ParseXML: %v", err)
	}
	if cfg.NotebookModel != "HP Envy X360 13-ag0xxx Ryzen-APU" {
		t.Errorf("notebook model = %q", cfg.NotebookModel)
	}
	if cfg.EcPollInterval != 1000 || cfg.CriticalTemperature != 90 || !cfg.ReadWriteWords {
		t.Errorf("scalar fields mismatch: %+v", cfg)
	}
	if len(cfg.FanConfigurations) != 1 {
		t.Fatalf("expected 1 fan, got %d", len(cfg.FanConfigurations))
	}
	fan := cfg.FanConfigurations[0]
	if fan.ReadRegister != 149 || fan.WriteRegister != 148 {
		t.Errorf("fan registers mismatch: %+v", fan)
	}
	if len(fan.FanSpeedPercentageOverrides) != 1 || fan.FanSpeedPercentageOverrides[0].FanSpeedValue != 255 {
		t.Errorf("overrides mismatch: %+v", fan.FanSpeedPercentageOverrides)
	}
	if len(cfg.RegisterWriteConfigurations) != 1 || cfg.RegisterWriteConfigurations[0].Register != 147 {
		t.Errorf("register write configs mismatch: %+v", cfg.RegisterWriteConfigurations)
	}
}

func TestParseXMLDefaults(t *testing.T) {
	const partial = `<FanControlConfigV2>
  <NotebookModel>Aspire 1810TZ</NotebookModel>
  <ReadWriteWords>false</ReadWriteWords>
  <FanConfigurations>
    <FanConfiguration>
      <ReadRegister>85</ReadRegister>
      <WriteRegister>85</WriteRegister>
      <MinSpeedValue>1</MinSpeedValue>
      <MaxSpeedValue>0</MaxSpeedValue>
      <ResetRequired>true</ResetRequired>
      <FanSpeedResetValue>0</FanSpeedResetValue>
    </FanConfiguration>
  </FanConfigurations>
</FanControlConfigV2>`

	cfg, err := ParseXML([]byte(partial))
	if err != nil {
		t.Fatalf("ParseXML: %v", err)
	}
	if cfg.EcPollInterval != DefaultEcPollInterval {
		t.Errorf("ec_poll_interval default = %d, want %d", cfg.EcPollInterval, DefaultEcPollInterval)
	}
	if cfg.CriticalTemperature != DefaultCriticalTemperature {
		t.Errorf("critical_temperature default = %d, want %d", cfg.CriticalTemperature, DefaultCriticalTemperature)
	}
	got := cfg.FanConfigurations[0].TemperatureThresholds
	want := DefaultThresholds()
	if len(got) != len(want) {
		t.Fatalf("thresholds = %+v, want %+v", got, want)
	}
	for i := range got {
		if !got[i].SemanticEqual(want[i]) {
			t.Errorf("threshold[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestRoundTripXML(t *testing.T) {
	cfg, err := ParseXML([]byte(sampleXML))
	if err != nil {
		t.Fatalf("ParseXML: %v", err)
	}
	out, err := MarshalXML(cfg)
	if err != nil {
		t.Fatalf("MarshalXML: %v", err)
	}
	roundtripped, err := ParseXML(out)
	if err != nil {
		t.Fatalf("ParseXML(round-tripped): %v", err)
	}
	if !cfg.SemanticEqual(roundtripped) {
		t.Errorf("round trip not semantically equal:\n%+v\n%+v", cfg, roundtripped)
	}
}

func TestRoundTripJSON(t *testing.T) {
	cfg, err := ParseXML([]byte(sampleXML))
	if err != nil {
		t.Fatalf("ParseXML: %v", err)
	}
	out, err := MarshalJSON(cfg)
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	roundtripped, err := ParseJSON(out)
	if err != nil {
		t.Fatalf("ParseJSON(round-tripped): %v", err)
	}
	if !cfg.SemanticEqual(roundtripped) {
		t.Errorf("round trip not semantically equal:\n%+v\n%+v", cfg, roundtripped)
	}
}

func validFan() FanConfiguration {
	return FanConfiguration{
		ReadRegister:  1,
		WriteRegister: 1,
		MinSpeedValue: 0,
		MaxSpeedValue: 255,
		TemperatureThresholds: []TemperatureThreshold{
			{UpThreshold: 0, DownThreshold: 0, FanSpeed: 0},
			{UpThreshold: 50, DownThreshold: 40, FanSpeed: 100},
		},
	}
}

func TestValidateOK(t *testing.T) {
	cfg := &FanControlConfig{CriticalTemperature: 70, FanConfigurations: []FanConfiguration{validFan()}}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateInvariants(t *testing.T) {
	cases := []struct {
		name string
		cfg  func() *FanControlConfig
		kind ValidationErrorKind
	}{
		{
			name: "no fans",
			cfg: func() *FanControlConfig {
				return &FanControlConfig{CriticalTemperature: 70}
			},
			kind: ErrNoFanConfigurations,
		},
		{
			name: "no max speed threshold",
			cfg: func() *FanControlConfig {
				fan := validFan()
				fan.TemperatureThresholds = []TemperatureThreshold{{UpThreshold: 0, DownThreshold: 0, FanSpeed: 50}}
				return &FanControlConfig{CriticalTemperature: 70, FanConfigurations: []FanConfiguration{fan}}
			},
			kind: ErrNoMaxSpeedThreshold,
		},
		{
			name: "duplicate down threshold",
			cfg: func() *FanControlConfig {
				fan := validFan()
				fan.TemperatureThresholds = append(fan.TemperatureThresholds, TemperatureThreshold{UpThreshold: 60, DownThreshold: 40, FanSpeed: 100})
				return &FanControlConfig{CriticalTemperature: 70, FanConfigurations: []FanConfiguration{fan}}
			},
			kind: ErrDuplicateDownThreshold,
		},
		{
			name: "up below down",
			cfg: func() *FanControlConfig {
				fan := validFan()
				fan.TemperatureThresholds = append(fan.TemperatureThresholds, TemperatureThreshold{UpThreshold: 10, DownThreshold: 20, FanSpeed: 100})
				return &FanControlConfig{CriticalTemperature: 70, FanConfigurations: []FanConfiguration{fan}}
			},
			kind: ErrUpBelowDown,
		},
		{
			name: "up above critical",
			cfg: func() *FanControlConfig {
				fan := validFan()
				fan.TemperatureThresholds = append(fan.TemperatureThresholds, TemperatureThreshold{UpThreshold: 80, DownThreshold: 60, FanSpeed: 100})
				return &FanControlConfig{CriticalTemperature: 70, FanConfigurations: []FanConfiguration{fan}}
			},
			kind: ErrUpAboveCritical,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.cfg())
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			ve, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if ve.Kind != tc.kind {
				t.Errorf("kind = %q, want %q", ve.Kind, tc.kind)
			}
		})
	}
}
