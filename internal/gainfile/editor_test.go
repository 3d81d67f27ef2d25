package gainfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/n5hz/wavetuner/internal/config"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wave.py")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func readScript(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return string(data)
}

func TestEditGainRewritesOnlyMatchingChannel(t *testing.T) {
	path := writeScript(t, "#!/usr/bin/env python3\nself.gain.set_gain(5, 0)\nself.gain.set_gain(7, 1)\n")
	e := New(config.Default())

	if err := e.EditGain(path, 30, 0); err != nil {
		t.Fatalf("edit: %v", err)
	}
	got := readScript(t, path)
	want := "#!/usr/bin/env python3\nself.gain.set_gain(30, 0)\nself.gain.set_gain(7, 1)\n"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestEditGainOutOfRangeLeavesFileUnchanged(t *testing.T) {
	body := "self.gain.set_gain(5, 0)\n"
	path := writeScript(t, body)
	e := New(config.Default())

	for _, bad := range []int{-11, 61} {
		if err := e.EditGain(path, bad, 0); err == nil {
			t.Fatalf("expected OutOfRange error for gain %d", bad)
		}
	}
	if got := readScript(t, path); got != body {
		t.Fatalf("file mutated after rejected edit: %q", got)
	}
}

func TestEditGainNoCandidateFails(t *testing.T) {
	path := writeScript(t, "print('nothing to see here')\n")
	e := New(config.Default())
	if err := e.EditGain(path, 10, 0); err != ErrNoCandidate {
		t.Fatalf("expected ErrNoCandidate, got %v", err)
	}
}

func TestEditGainIsIdempotent(t *testing.T) {
	path := writeScript(t, "self.chanA_0.set_gain(1, 0)\n")
	e := New(config.Default())

	if err := e.EditGain(path, 22, 0); err != nil {
		t.Fatalf("first edit: %v", err)
	}
	first := readScript(t, path)

	if err := e.EditGain(path, 22, 0); err != nil {
		t.Fatalf("second edit: %v", err)
	}
	second := readScript(t, path)

	if first != second {
		t.Fatalf("edit not idempotent: %q != %q", first, second)
	}
}

func TestSelectionPolicyDiffersByChannelParam(t *testing.T) {
	path := writeScript(t, "self.a.set_gain(1, 0)\nself.b.set_gain(2, 1)\n")
	e := New(config.Default())
	if err := e.EditGain(path, 15, 1); err != nil {
		t.Fatalf("edit: %v", err)
	}
	got := readScript(t, path)
	want := "self.a.set_gain(1, 0)\nself.b.set_gain(15, 1)\n"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestSelectionPolicyFallsBackToLastToken(t *testing.T) {
	// Same channel_param (0) and same token count (2) on both candidates;
	// last-token integers distinguish L1 (0) from L2 (1).
	path := writeScript(t, "self.chan_0.set_gain(1, 0)\nself.chan_1.set_gain(2, 0)\n")
	e := New(config.Default())
	if err := e.EditGain(path, 40, 1); err != nil {
		t.Fatalf("edit: %v", err)
	}
	got := readScript(t, path)
	want := "self.chan_0.set_gain(1, 0)\nself.chan_1.set_gain(40, 0)\n"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestExtractChannelReturnsFirstCallsChannel(t *testing.T) {
	path := writeScript(t, "self.gain.set_gain(5, 1)\n")
	if ch := ExtractChannel(path); ch != 1 {
		t.Fatalf("expected channel 1, got %d", ch)
	}
}

func TestExtractChannelDefaultsToZeroWithNoCall(t *testing.T) {
	path := writeScript(t, "print('no gain call')\n")
	if ch := ExtractChannel(path); ch != 0 {
		t.Fatalf("expected default channel 0, got %d", ch)
	}
}
