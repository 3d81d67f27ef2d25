package wavelog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNextLogPathPicksSmallestFreeIndex(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)

	first, err := nextLogPath(dir, now)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(first) != "waveLog-03-05-26-1.txt" {
		t.Fatalf("first path = %s", first)
	}

	if err := os.WriteFile(first, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	second, err := nextLogPath(dir, now)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(second) != "waveLog-03-05-26-2.txt" {
		t.Fatalf("second path = %s, want index 2 once index 1 exists", second)
	}
}

func TestDebugAndLogAppendsTimestampedLine(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	if err := l.DebugAndLog("Waveform L1_wave for channel L1 is tuned to a minimum power of 20.1 dBm and a maximum power of 29.9 dBm"); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatal(err)
	}
	line := string(data)
	if !strings.Contains(line, "Waveform L1_wave") {
		t.Fatalf("log line missing message: %q", line)
	}
	if !strings.HasSuffix(strings.TrimRight(line, "\n"), "dBm") {
		t.Fatalf("log line malformed: %q", line)
	}
	if !strings.HasPrefix(line, "<") || !strings.Contains(line, "> Waveform") {
		t.Fatalf("log line missing timestamp prefix: %q", line)
	}
}

func TestOpenCreatesSeparateFilesAcrossRuns(t *testing.T) {
	dir := t.TempDir()

	l1, err := Open(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	l1.Close()

	l2, err := Open(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer l2.Close()

	if l1.Path() == l2.Path() {
		t.Fatalf("expected a distinct file per run, both got %s", l1.Path())
	}
}
