// Package amplink owns a single serial connection to one amplifier: framing
// raw bytes into lines, tagging error lines, and writing newline-terminated
// commands.
package amplink

import (
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"go.bug.st/serial"
)

// Line is one framed, trimmed line received from a device, tagged with
// whether it matched the error vocabulary.
type Line struct {
	Device  string
	Text    string
	IsError bool
}

// port is the subset of go.bug.st/serial.Port that Link depends on; it lets
// tests substitute an in-memory pipe without opening a real device.
type port interface {
	io.ReadWriteCloser
}

// Link owns one open serial connection and its framing accumulator.
type Link struct {
	Device string

	mu   sync.Mutex
	port port
	acc  strings.Builder

	lines chan Line
	done  chan struct{}
}

const serialMode = "9600-8-N-1-no_flow_control"

// defaultMode is the wire configuration mandated for every amplifier link:
// 9600 baud, 8 data bits, no parity, one stop bit, no flow control.
func defaultMode() *serial.Mode {
	return &serial.Mode{
		BaudRate: 9600,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// Open opens device at the fixed amplifier line configuration and starts its
// read-and-frame loop. The returned Link's Lines channel is closed once the
// underlying port read loop exits (on Close or a read error).
func Open(device string) (*Link, error) {
	p, err := serial.Open(device, defaultMode())
	if err != nil {
		return nil, fmt.Errorf("amplink: open %s: %w", device, err)
	}
	return newLink(device, p), nil
}

// OpenNetwork dials a network-bridged amplifier (a terminal server fronting
// the amp's real serial port, discovered over mDNS) and frames its byte
// stream identically to a local serial link.
func OpenNetwork(device, address string) (*Link, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("amplink: dial %s (%s): %w", device, address, err)
	}
	return newLink(device, conn), nil
}

func newLink(device string, p port) *Link {
	l := &Link{
		Device: device,
		port:   p,
		lines:  make(chan Line, 64),
		done:   make(chan struct{}),
	}
	go l.readLoop()
	return l
}

// Lines returns the channel of framed lines. It is closed when the link's
// read loop terminates.
func (l *Link) Lines() <-chan Line { return l.lines }

// Send appends a newline and writes command to the device. Per the wire
// contract it is a best-effort operation: a write failure is returned to the
// caller rather than panicking, but callers at the fleet layer treat an
// unknown or closed device as a silent no-op.
func (l *Link) Send(command string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.port.Write([]byte(command + "\n"))
	if err != nil {
		return fmt.Errorf("amplink: write to %s: %w", l.Device, err)
	}
	return nil
}

// Close releases the underlying port. It does not wait for the read loop to
// drain; callers should range over Lines() until it closes if they need that
// guarantee.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port.Close()
}

func (l *Link) readLoop() {
	defer close(l.lines)
	buf := make([]byte, 256)
	for {
		n, err := l.port.Read(buf)
		if n > 0 {
			l.frame(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// frame appends chunk to the per-device accumulator; whenever a newline is
// present it splits on '\n', emits each non-empty trimmed piece as a Line,
// and clears the accumulator.
func (l *Link) frame(chunk []byte) {
	l.acc.Write(chunk)
	if !strings.Contains(l.acc.String(), "\n") {
		return
	}
	pieces := strings.Split(l.acc.String(), "\n")
	l.acc.Reset()
	for _, piece := range pieces {
		text := strings.TrimSpace(piece)
		if text == "" {
			continue
		}
		l.emit(Line{
			Device:  l.Device,
			Text:    text,
			IsError: strings.Contains(text, "ERROR:"),
		})
	}
}

func (l *Link) emit(line Line) {
	select {
	case l.lines <- line:
	default:
		// A stalled consumer drops lines rather than blocking the device's
		// own read loop; the fleet layer is expected to keep up.
	}
}
