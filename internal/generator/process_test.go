package generator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.sh")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestStartEmitsStartedAndExited(t *testing.T) {
	path := writeScript(t, "#!/bin/sh\necho ready\n")
	p := New(path)
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	sawStarted, sawExited := false, false
	timeout := time.After(2 * time.Second)
	for !sawExited {
		select {
		case e := <-p.Events():
			switch e.Kind {
			case Started:
				sawStarted = true
			case Exited:
				sawExited = true
			}
		case <-timeout:
			t.Fatal("timed out waiting for process lifecycle events")
		}
	}
	if !sawStarted {
		t.Fatal("expected a Started event before Exited")
	}
}

func TestWaitForTokenSucceedsOnMatchingChunk(t *testing.T) {
	path := writeScript(t, "#!/bin/sh\nsleep 0.05\necho 'Press Enter to quit: now'\nsleep 1\n")
	p := New(path)
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := WaitForToken(ctx, p.Events(), "Press Enter to quit", 2*time.Second); err != nil {
		t.Fatalf("wait for token: %v", err)
	}
}

func TestWaitForTokenTimesOutWithoutMatch(t *testing.T) {
	path := writeScript(t, "#!/bin/sh\nsleep 1\n")
	p := New(path)
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := WaitForToken(ctx, p.Events(), "Press Enter to quit", 100*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestScanForRunawayDetectsSixteenWithinWindow(t *testing.T) {
	p := New("/bin/true")
	stopped := false
	p.mu.Lock()
	p.running = true
	p.cmd = nil
	p.mu.Unlock()

	// Drain events asynchronously so scanForRunaway's Stop() call (a no-op
	// here since p.cmd is nil) and emit() never block.
	go func() {
		for e := range p.events {
			if e.Kind == ThresholdExceeded {
				stopped = true
			}
		}
	}()

	p.scanForRunaway(string(make([]byte, 0)) + repeat('U', markerCapacity))
	time.Sleep(50 * time.Millisecond)

	if !stopped {
		t.Fatal("expected ThresholdExceeded for 16 rapid U markers")
	}
}

func TestScanForRunawayResetsOnInterveningCharacter(t *testing.T) {
	p := New("/bin/true")
	got := false
	go func() {
		for e := range p.events {
			if e.Kind == ThresholdExceeded {
				got = true
			}
		}
	}()

	chunk := repeat('U', markerCapacity-1) + "x" + repeat('U', markerCapacity-1)
	p.scanForRunaway(chunk)
	time.Sleep(50 * time.Millisecond)

	if got {
		t.Fatal("expected no threshold event once the run is broken by a non-marker character")
	}
}

func repeat(c byte, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = c
	}
	return string(b)
}
