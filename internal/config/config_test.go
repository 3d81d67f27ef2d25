package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadOverlaysOnlyPresentKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wavetuner.yaml")
	contents := "gain_min: -5\nmax_fault_retries: 2\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GainMin != -5 {
		t.Fatalf("expected overridden gain_min -5, got %d", cfg.GainMin)
	}
	if cfg.MaxFaultRetries != 2 {
		t.Fatalf("expected overridden max_fault_retries 2, got %d", cfg.MaxFaultRetries)
	}
	if cfg.GainMax != Default().GainMax {
		t.Fatalf("expected default gain_max preserved, got %d", cfg.GainMax)
	}
	if cfg.PythonPromptTimeout != 30*time.Second {
		t.Fatalf("expected default prompt timeout preserved, got %v", cfg.PythonPromptTimeout)
	}
}

func TestExcludedIsCaseInsensitiveSubstringMatch(t *testing.T) {
	cfg := Config{Exclude: []string{"_scratch", "DEBUG_"}}
	cases := map[string]bool{
		"L1_scratch_wave.py": true,
		"debug_wave.py":      true,
		"L1_wave.py":         false,
	}
	for name, want := range cases {
		if got := cfg.Excluded(name); got != want {
			t.Errorf("Excluded(%q) = %v, want %v", name, got, want)
		}
	}
}
