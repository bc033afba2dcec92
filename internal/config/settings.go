// Package config loads the two settings documents consumed by gribfetch:
// the model settings file (server endpoints and per-data-type coverage
// templates) and the user settings file (per-model API keys). Both are JSON,
// read through per-file viper instances and validated at load time.
package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// RunTimePlaceholder is the placeholder a coverage-id template must contain
// exactly once. The run identifier is substituted for it when building
// concrete coverage ids.
const RunTimePlaceholder = "{run_time}"

// DataType describes one downloadable variable family of a model.
type DataType struct {
	// CoverageID is the coverage-id template, containing RunTimePlaceholder.
	CoverageID string `mapstructure:"coverage_id"`

	// TimeOffsets, when present, is the static [start, end] forecast-hour
	// window relative to the run time. When absent the window is resolved
	// from the server's DescribeCoverage endpoint.
	TimeOffsets []int `mapstructure:"time_offsets"`
}

// HasOffsets reports whether the data type carries a static window.
func (d DataType) HasOffsets() bool { return len(d.TimeOffsets) == 2 }

// Model describes one weather model entry in the model settings file.
type Model struct {
	Server               string              `mapstructure:"server"`
	WCSVersion           string              `mapstructure:"wcs_version"`
	GetCapabilitiesPath  string              `mapstructure:"get_capabilities_path"`
	DescribeCoveragePath string              `mapstructure:"describe_coverage_path"`
	GetCoveragePath      string              `mapstructure:"get_coverage_path"`
	DataTypes            map[string]DataType `mapstructure:"data_types"`
}

// DataTypeNames returns the configured data-type names, sorted.
func (m Model) DataTypeNames() []string {
	names := make([]string, 0, len(m.DataTypes))
	for name := range m.DataTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Settings is the merged, validated snapshot of both settings files. It is
// loaded once and passed into components by value; there is no package-level
// settings state.
type Settings struct {
	Models  map[string]Model
	APIKeys map[string]string
}

type userSettings struct {
	APIKeys map[string]string `mapstructure:"api_keys"`
}

// Load reads and validates the model and user settings files.
func Load(modelPath, userPath string) (*Settings, error) {
	models, err := loadModelSettings(modelPath)
	if err != nil {
		return nil, fmt.Errorf("loading model settings %s: %w", modelPath, err)
	}

	keys, err := loadUserSettings(userPath)
	if err != nil {
		return nil, fmt.Errorf("loading user settings %s: %w", userPath, err)
	}

	return &Settings{Models: models, APIKeys: keys}, nil
}

func loadModelSettings(path string) (map[string]Model, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	models := make(map[string]Model)
	if err := v.Unmarshal(&models); err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("no models defined")
	}

	for name, m := range models {
		if err := validateModel(m); err != nil {
			return nil, fmt.Errorf("model %q: %w", name, err)
		}
	}

	return models, nil
}

func loadUserSettings(path string) (map[string]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var u userSettings
	if err := v.Unmarshal(&u); err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	if u.APIKeys == nil {
		u.APIKeys = map[string]string{}
	}

	return u.APIKeys, nil
}

func validateModel(m Model) error {
	if m.Server == "" {
		return fmt.Errorf("server is required")
	}
	if u, err := url.Parse(m.Server); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server %q is not a valid URL", m.Server)
	}
	if m.GetCapabilitiesPath == "" {
		return fmt.Errorf("get_capabilities_path is required")
	}
	if m.GetCoveragePath == "" {
		return fmt.Errorf("get_coverage_path is required")
	}
	if len(m.DataTypes) == 0 {
		return fmt.Errorf("data_types must not be empty")
	}

	for name, dt := range m.DataTypes {
		if err := validateDataType(dt); err != nil {
			return fmt.Errorf("data type %q: %w", name, err)
		}
		// Without static offsets the window comes from DescribeCoverage.
		if !dt.HasOffsets() && m.DescribeCoveragePath == "" {
			return fmt.Errorf("data type %q: describe_coverage_path is required when time_offsets are absent", name)
		}
	}

	return nil
}

func validateDataType(dt DataType) error {
	if dt.CoverageID == "" {
		return fmt.Errorf("coverage_id is required")
	}
	if strings.Count(dt.CoverageID, RunTimePlaceholder) != 1 {
		return fmt.Errorf("coverage_id %q must contain exactly one %s placeholder", dt.CoverageID, RunTimePlaceholder)
	}
	if strings.HasPrefix(dt.CoverageID, RunTimePlaceholder) {
		return fmt.Errorf("coverage_id %q must not start with the %s placeholder", dt.CoverageID, RunTimePlaceholder)
	}
	switch len(dt.TimeOffsets) {
	case 0:
		// dynamic window
	case 2:
		if dt.TimeOffsets[0] > dt.TimeOffsets[1] {
			return fmt.Errorf("time_offsets start %d exceeds end %d", dt.TimeOffsets[0], dt.TimeOffsets[1])
		}
	default:
		return fmt.Errorf("time_offsets must be a [start, end] pair, got %d value(s)", len(dt.TimeOffsets))
	}
	return nil
}

// Model returns the named model entry.
func (s *Settings) Model(name string) (Model, error) {
	m, ok := s.Models[name]
	if !ok {
		return Model{}, fmt.Errorf("unknown model %q (known models: %s)", name, strings.Join(s.ModelNames(), ", "))
	}
	return m, nil
}

// ModelNames returns the configured model names, sorted.
func (s *Settings) ModelNames() []string {
	names := make([]string, 0, len(s.Models))
	for name := range s.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// APIKey returns the API key configured for the named model, or "" when the
// user settings carry none.
func (s *Settings) APIKey(model string) string {
	return s.APIKeys[model]
}
