package amplink

import (
	"io"
	"testing"
	"time"
)

// fakePort is an in-memory io.ReadWriteCloser standing in for a serial.Port
// so framing and write behaviour can be tested without real hardware.
type fakePort struct {
	toLink   *io.PipeReader
	fromTest *io.PipeWriter
	written  *io.PipeReader
	writeEnd *io.PipeWriter
	closed   chan struct{}
}

func newFakePort() *fakePort {
	pr, pw := io.Pipe()
	wr, ww := io.Pipe()
	return &fakePort{toLink: pr, fromTest: pw, written: wr, writeEnd: ww, closed: make(chan struct{})}
}

func (f *fakePort) Read(p []byte) (int, error)  { return f.toLink.Read(p) }
func (f *fakePort) Write(p []byte) (int, error) { return f.writeEnd.Write(p) }
func (f *fakePort) Close() error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	f.fromTest.Close()
	f.writeEnd.Close()
	return nil
}

func TestFrameSplitsOnNewlineAndTagsErrors(t *testing.T) {
	fp := newFakePort()
	link := newLink("/dev/ttyUSB_AMP", fp)
	defer fp.Close()

	go func() {
		_, _ = fp.fromTest.Write([]byte("ONLINE, ALC\nERROR: over temp\n"))
	}()

	var got []Line
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case l := <-link.Lines():
			got = append(got, l)
		case <-timeout:
			t.Fatal("timed out waiting for framed lines")
		}
	}

	if got[0].Text != "ONLINE, ALC" || got[0].IsError {
		t.Fatalf("unexpected first line: %+v", got[0])
	}
	if got[1].Text != "ERROR: over temp" || !got[1].IsError {
		t.Fatalf("unexpected second line: %+v", got[1])
	}
}

func TestSendAppendsNewline(t *testing.T) {
	fp := newFakePort()
	link := newLink("/dev/ttyUSB_AMP", fp)
	defer fp.Close()

	go func() {
		if err := link.Send("FWD_PWR?"); err != nil {
			t.Errorf("send: %v", err)
		}
	}()

	buf := make([]byte, 32)
	n, err := fp.written.Read(buf)
	if err != nil {
		t.Fatalf("read written bytes: %v", err)
	}
	if got := string(buf[:n]); got != "FWD_PWR?\n" {
		t.Fatalf("got %q want %q", got, "FWD_PWR?\n")
	}
}

func TestLinesClosesWhenPortCloses(t *testing.T) {
	fp := newFakePort()
	link := newLink("/dev/ttyUSB_AMP", fp)

	fp.fromTest.Close()

	select {
	case _, ok := <-link.Lines():
		if ok {
			t.Fatal("expected channel to be closed, got a value")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Lines to close")
	}
}
