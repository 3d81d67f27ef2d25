package ampfleet

import (
	"os"
	"path/filepath"
	"testing"
)

func TestScanLocalDevicesMatchesCaseInsensitiveAmpPattern(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"ttyUSB_AMP", "ttyUSB_AMPL1", "ttyS0", "AMPLIFIER0"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("seed fixture %s: %v", name, err)
		}
	}

	got, err := scanLocalDevices(dir)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	want := map[string]bool{
		filepath.Join(dir, "AMPLIFIER0"):  true,
		filepath.Join(dir, "ttyUSB_AMP"):  true,
		filepath.Join(dir, "ttyUSB_AMPL1"): true,
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want matches for %v", got, want)
	}
	for _, g := range got {
		if !want[g] {
			t.Fatalf("unexpected match %q", g)
		}
	}
}

func TestScanLocalDevicesMissingRootIsNotAnError(t *testing.T) {
	got, err := scanLocalDevices(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("expected no error for missing root, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no matches, got %v", got)
	}
}

func TestDevicesPreservesDiscoveryOrder(t *testing.T) {
	f := New(nil)
	f.order = []string{"/dev/ttyUSB_AMPL1", "/dev/ttyUSB_AMPL2"}

	got := f.Devices()
	want := []string{"/dev/ttyUSB_AMPL1", "/dev/ttyUSB_AMPL2"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v want %v", got, want)
	}
}
