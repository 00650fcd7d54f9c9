package nbfc

import "encoding/json"

// jsonDoc mirrors FanControlConfig field-for-field; JSON uses flat arrays
// so no wrapper types are needed, unlike the XML schema.
type jsonDoc struct {
	NotebookModel               string                        `json:"notebook_model"`
	Author                      *string                       `json:"author,omitempty"`
	EcPollInterval               uint64                        `json:"ec_poll_interval"`
	ReadWriteWords               bool                          `json:"read_write_words"`
	CriticalTemperature          uint8                         `json:"critical_temperature"`
	FanConfigurations            []FanConfiguration            `json:"fan_configurations"`
	RegisterWriteConfigurations  []RegisterWriteConfiguration  `json:"register_write_configurations,omitempty"`
}

// ParseJSON parses the snake_case JSON config format and applies defaults
// for any field the document omitted.
func ParseJSON(data []byte) (*FanControlConfig, error) {
	var doc jsonDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Format: "json", Err: err}
	}

	cfg := &FanControlConfig{
		NotebookModel:               doc.NotebookModel,
		Author:                      doc.Author,
		EcPollInterval:              doc.EcPollInterval,
		ReadWriteWords:              doc.ReadWriteWords,
		CriticalTemperature:         doc.CriticalTemperature,
		FanConfigurations:           doc.FanConfigurations,
		RegisterWriteConfigurations: doc.RegisterWriteConfigurations,
	}
	normalize(cfg)
	return cfg, nil
}

// MarshalJSON renders the config back to the snake_case JSON format.
func MarshalJSON(c *FanControlConfig) ([]byte, error) {
	doc := jsonDoc{
		NotebookModel:               c.NotebookModel,
		Author:                      c.Author,
		EcPollInterval:              c.EcPollInterval,
		ReadWriteWords:              c.ReadWriteWords,
		CriticalTemperature:         c.CriticalTemperature,
		FanConfigurations:           c.FanConfigurations,
		RegisterWriteConfigurations: c.RegisterWriteConfigurations,
	}
	return json.MarshalIndent(doc, "", "  ")
}

// ParseError wraps a format-specific parse failure.
type ParseError struct {
	Format string
	Err    error
}

func (e *ParseError) Error() string { return e.Format + " parse error: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }
