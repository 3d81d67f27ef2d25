// Package config loads the optional key/value settings that tune bounds
// and thresholds the rest of this codebase otherwise defaults on its own.
// Every caller must work correctly with a zero Config; nothing here is
// load-bearing for core behaviour.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tunable bounds and thresholds sourced from a YAML file.
type Config struct {
	// GainMin and GainMax bound every gain value GainFileEditor will write.
	GainMin int `yaml:"gain_min"`
	GainMax int `yaml:"gain_max"`

	// Exclude lists filename substrings the driver should skip when
	// iterating a batch directory.
	Exclude []string `yaml:"exclude"`

	// MaxFaultRetries caps the total amplifier-fault recoveries in one run
	// before the controller gives up the run as unrecoverable.
	MaxFaultRetries int `yaml:"max_fault_retries"`

	// PythonPromptTimeout bounds how long the controller waits for the
	// generator's readiness token before failing the run.
	PythonPromptTimeout time.Duration `yaml:"python_prompt_timeout"`

	// ALCRangeThreshold is the number of "ALC Range" lines, counted since
	// the ALC waveform was last started, that during ALC stabilisation are
	// treated as stability anyway absent true stability (see DESIGN.md
	// Open Questions).
	ALCRangeThreshold int `yaml:"alc_range_threshold"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		GainMin:             -10,
		GainMax:             60,
		MaxFaultRetries:     5,
		PythonPromptTimeout: 30 * time.Second,
		ALCRangeThreshold:   12,
	}
}

// Load reads path and overlays it onto Default(). A missing file is not an
// error: it simply yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyOverlay(&cfg, overlay, data)
	return cfg, nil
}

// applyOverlay merges non-zero overlay fields onto cfg. A bare yaml.Unmarshal
// into Config would already do this for most fields since zero values equal
// "unset" for everything but GainMin, which is legitimately sometimes zero;
// track which keys were actually present instead of trusting zero-ness.
func applyOverlay(cfg *Config, overlay Config, raw []byte) {
	var present map[string]any
	if err := yaml.Unmarshal(raw, &present); err != nil {
		return
	}
	if _, ok := present["gain_min"]; ok {
		cfg.GainMin = overlay.GainMin
	}
	if _, ok := present["gain_max"]; ok {
		cfg.GainMax = overlay.GainMax
	}
	if _, ok := present["exclude"]; ok {
		cfg.Exclude = overlay.Exclude
	}
	if _, ok := present["max_fault_retries"]; ok {
		cfg.MaxFaultRetries = overlay.MaxFaultRetries
	}
	if _, ok := present["python_prompt_timeout"]; ok {
		cfg.PythonPromptTimeout = overlay.PythonPromptTimeout
	}
	if _, ok := present["alc_range_threshold"]; ok {
		cfg.ALCRangeThreshold = overlay.ALCRangeThreshold
	}
}

// Excluded reports whether name contains any configured exclusion substring.
func (c Config) Excluded(name string) bool {
	lower := strings.ToLower(name)
	for _, substr := range c.Exclude {
		if substr == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(substr)) {
			return true
		}
	}
	return false
}
