// Package settings loads and persists the daemon's own service-level
// configuration — which EC access mode to use, which fan config is
// currently selected, and the last manual/auto state — independently of
// the fan configs the loader resolves (component grounded on
// original_source/service/src/config/service.rs's ServiceConfig).
package settings

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"

	jsonParser "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EcAccessMode names which EC transport backend to open.
type EcAccessMode string

const (
	// EcAccessAuto probes AcpiEc, then EcSys, then RawPort at startup,
	// matching internal/ectransport.ModeAuto exactly so the value round-trips
	// straight through to ectransport.Open without translation.
	EcAccessAuto    EcAccessMode = "Auto"
	EcAccessRawPort EcAccessMode = "RawPort"
	EcAccessAcpiEc  EcAccessMode = "AcpiEc"
	EcAccessEcSys   EcAccessMode = "EcSys"
)

// TempComputeMethod mirrors control.TempComputeMethod; kept as its own
// string type here so this package has no import on internal/control.
type TempComputeMethod string

const (
	TempComputeCPUOnly    TempComputeMethod = "CPUOnly"
	TempComputeAllSensors TempComputeMethod = "AllSensors"
)

// Settings is the persisted service configuration.
type Settings struct {
	EcAccessMode      EcAccessMode      `koanf:"ec_access_mode" json:"ec_access_mode"`
	SelectedFanConfig string            `koanf:"selected_fan_config" json:"selected_fan_config"`
	Auto              bool              `koanf:"auto" json:"auto"`
	TargetFansSpeeds  []float64         `koanf:"target_fans_speeds" json:"target_fans_speeds"`
	TempCompute       TempComputeMethod `koanf:"temp_compute" json:"temp_compute"`
	CheckControlConfig bool             `koanf:"check_control_config" json:"check_control_config"`
}

// Default returns the settings a fresh install starts from.
func Default() Settings {
	return Settings{
		EcAccessMode:       EcAccessAuto,
		Auto:               true,
		TempCompute:        TempComputeCPUOnly,
		CheckControlConfig: true,
	}
}

// Dir returns the directory the daemon's own config.json lives in.
func Dir() (string, error) {
	if root := os.Getenv("FANCONTROLD_CONFIG_DIR"); root != "" {
		return root, nil
	}
	return "/etc/fancontrold", nil
}

func configPath(dir string) string { return filepath.Join(dir, "config.json") }

// legacyNBFCSettingsPath is where NbfcService historically stored its
// own settings; Load falls back to parsing it when no native config.json
// exists yet, so migrating from NBFC doesn't lose the selected profile.
const legacyNBFCSettingsPath = "/etc/NbfcService/NbfcServiceSettings.xml"

// xmlNBFCServiceSettings mirrors original_source/nbfc/src/lib.rs's
// XmlNbfcServiceSettings wrapper shape closely enough to parse it.
type xmlNBFCServiceSettings struct {
	XMLName          xml.Name `xml:"NbfcServiceSettings"`
	SettingsVersion  int      `xml:"SettingsVersion"`
	SelectedConfigID string   `xml:"SelectedConfigId"`
	Autostart        bool     `xml:"Autostart"`
	ReadOnly         bool     `xml:"ReadOnly"`
	TargetFanSpeeds  struct {
		Values []float64 `xml:"float"`
	} `xml:"TargetFanSpeeds"`
}

// Load reads settings from dir's config.json, merging over Default() via
// koanf; if config.json doesn't exist yet, it falls back to parsing a
// legacy NbfcServiceSettings.xml so an NBFC install's selected profile
// survives migration.
func Load(dir string) (Settings, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Settings{}, fmt.Errorf("settings: load defaults: %w", err)
	}

	path := configPath(dir)
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), jsonParser.Parser()); err != nil {
			return Settings{}, fmt.Errorf("settings: load %s: %w", path, err)
		}
		var s Settings
		if err := k.Unmarshal("", &s); err != nil {
			return Settings{}, fmt.Errorf("settings: unmarshal: %w", err)
		}
		return s, nil
	}

	if legacy, err := loadLegacyNBFC(legacyNBFCSettingsPath); err == nil {
		return legacy, nil
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return Settings{}, fmt.Errorf("settings: unmarshal: %w", err)
	}
	return s, nil
}

func loadLegacyNBFC(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}
	var x xmlNBFCServiceSettings
	if err := xml.Unmarshal(data, &x); err != nil {
		return Settings{}, fmt.Errorf("settings: parse legacy nbfc settings: %w", err)
	}

	s := Default()
	s.SelectedFanConfig = x.SelectedConfigID
	s.Auto = true // NBFC's Auto means something different; it has no equivalent bit.
	s.TargetFansSpeeds = append([]float64(nil), x.TargetFanSpeeds.Values...)
	return s, nil
}

// Save writes s to dir's config.json, creating dir if needed.
func Save(dir string, s Settings) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("settings: mkdir %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}
	return os.WriteFile(configPath(dir), data, 0o644)
}
