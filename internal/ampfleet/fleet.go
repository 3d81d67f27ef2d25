// Package ampfleet discovers the set of connected amplifiers (local serial
// devices and, where present, network-bridged devices advertised over
// mDNS) and multiplexes their line streams into a single event feed.
package ampfleet

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/n5hz/wavetuner/internal/amplink"
	"github.com/n5hz/wavetuner/internal/logging"
	"github.com/n5hz/wavetuner/internal/mdns"
)

// openRetries bounds the exponential backoff applied to each candidate
// device open: a device that's mid-enumeration by udev or briefly locked
// by another process gets a few short retries instead of being dropped
// on the first failure.
const openRetries = 3

func newOpenBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	return backoff.WithMaxRetries(b, openRetries)
}

// EventKind distinguishes an ordinary output line from an error line.
type EventKind int

const (
	LineEvent EventKind = iota
	ErrorLineEvent
)

// Event is a single device-tagged record surfaced to the controller.
type Event struct {
	Kind   EventKind
	Device string
	Text   string
}

// DiscoverOptions controls where Discover looks for amplifier devices.
type DiscoverOptions struct {
	// DevRoot is the device namespace to scan for local serial candidates.
	// Defaults to "/dev".
	DevRoot string
	// NetworkTimeout bounds the mDNS browse. Zero disables network-bridge
	// discovery entirely.
	NetworkTimeout time.Duration
}

var ampPattern = regexp.MustCompile(`(?i)amp`)

// Fleet owns every open amplifier link and fans their lines into one
// ordered event stream.
type Fleet struct {
	logger logging.Logger

	mu    sync.Mutex
	links map[string]*amplink.Link
	order []string

	events chan Event
}

// New builds an empty Fleet. Call Discover to populate it.
func New(logger logging.Logger) *Fleet {
	if logger == nil {
		logger = logging.Default()
	}
	return &Fleet{
		logger: logger,
		links:  make(map[string]*amplink.Link),
		events: make(chan Event, 256),
	}
}

// Events returns the fleet's merged line stream.
func (f *Fleet) Events() <-chan Event { return f.events }

// Devices returns discovered device identifiers in discovery order.
func (f *Fleet) Devices() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// Discover scans the local device namespace for candidates matching
// `.*amp.*` case-insensitively (by filename or resolved symlink target),
// opens each at 9600 8N1 no-flow-control, then — if opts.NetworkTimeout is
// nonzero — browses mDNS for network-bridged amplifiers and opens those
// too. Every opened link's lines are registered for fan-in. An open
// failure is logged and the candidate is skipped; Discover returns an
// error only if scanning the device namespace itself fails.
func (f *Fleet) Discover(opts DiscoverOptions) error {
	devRoot := opts.DevRoot
	if devRoot == "" {
		devRoot = "/dev"
	}

	candidates, err := scanLocalDevices(devRoot)
	if err != nil {
		return fmt.Errorf("ampfleet: scan %s: %w", devRoot, err)
	}
	for _, path := range candidates {
		var link *amplink.Link
		openErr := backoff.Retry(func() error {
			l, err := amplink.Open(path)
			if err != nil {
				return err
			}
			link = l
			return nil
		}, newOpenBackoff())
		if openErr != nil {
			f.logger.Warn("ampfleet: failed to open amp device", logging.Field{Key: "device", Value: path}, logging.Field{Key: "error", Value: openErr.Error()})
			continue
		}
		f.register(path, link)
	}

	if opts.NetworkTimeout > 0 {
		bridges, err := mdns.Discover(opts.NetworkTimeout)
		if err != nil {
			f.logger.Warn("ampfleet: mDNS discovery failed", logging.Field{Key: "error", Value: err.Error()})
			return nil
		}
		for _, b := range bridges {
			if len(b.Addresses) == 0 {
				continue
			}
			address := fmt.Sprintf("%s:%d", b.Addresses[0], b.Port)
			device := b.Instance
			if device == "" {
				device = b.Hostname
			}
			var link *amplink.Link
			openErr := backoff.Retry(func() error {
				l, err := amplink.OpenNetwork(device, address)
				if err != nil {
					return err
				}
				link = l
				return nil
			}, newOpenBackoff())
			if openErr != nil {
				f.logger.Warn("ampfleet: failed to open network amp bridge", logging.Field{Key: "device", Value: device}, logging.Field{Key: "error", Value: openErr.Error()})
				continue
			}
			f.register(device, link)
		}
	}

	return nil
}

func (f *Fleet) register(device string, link *amplink.Link) {
	f.mu.Lock()
	f.links[device] = link
	f.order = append(f.order, device)
	f.mu.Unlock()

	go func() {
		for line := range link.Lines() {
			kind := LineEvent
			if line.IsError {
				kind = ErrorLineEvent
			}
			f.emit(Event{Kind: kind, Device: line.Device, Text: line.Text})
		}
	}()
}

func (f *Fleet) emit(e Event) {
	select {
	case f.events <- e:
	default:
	}
}

// Send appends '\n' and writes command to device. Per the wire contract an
// unknown or closed device is a silent no-op from the caller's point of
// view: the failure is logged, not returned.
func (f *Fleet) Send(device, command string) {
	f.mu.Lock()
	link, ok := f.links[device]
	f.mu.Unlock()
	if !ok {
		f.logger.Warn("ampfleet: send to unknown device", logging.Field{Key: "device", Value: device})
		return
	}
	if err := link.Send(command); err != nil {
		f.logger.Warn("ampfleet: send failed", logging.Field{Key: "device", Value: device}, logging.Field{Key: "error", Value: err.Error()})
	}
}

// Broadcast issues Send to every device in devices.
func (f *Fleet) Broadcast(devices []string, command string) {
	for _, d := range devices {
		f.Send(d, command)
	}
}

// DisconnectAll closes and releases every link.
func (f *Fleet) DisconnectAll() {
	f.mu.Lock()
	links := make([]*amplink.Link, 0, len(f.links))
	for _, l := range f.links {
		links = append(links, l)
	}
	f.links = make(map[string]*amplink.Link)
	f.order = nil
	f.mu.Unlock()

	for _, l := range links {
		_ = l.Close()
	}
}

func scanLocalDevices(devRoot string) ([]string, error) {
	entries, err := os.ReadDir(devRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var matches []string
	for _, name := range names {
		full := filepath.Join(devRoot, name)
		target := name
		if resolved, err := filepath.EvalSymlinks(full); err == nil {
			target = filepath.Base(resolved)
		}
		if ampPattern.MatchString(name) || ampPattern.MatchString(target) {
			matches = append(matches, full)
		}
	}
	return matches, nil
}
