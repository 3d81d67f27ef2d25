// Package mdns discovers network-bridged amplifier controllers: terminal
// servers that front an amplifier's serial port and advertise themselves
// over mDNS instead of exposing a local /dev entry.
package mdns

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

// serviceName is the mDNS service type amplifier bridges advertise under.
const serviceName = "_amp._tcp"

// BridgeHost is a discovered amplifier serial-to-network bridge.
type BridgeHost struct {
	Instance  string // advertised name, e.g. "amp-bridge on L1"
	Hostname  string
	Addresses []net.IP
	Port      int
}

// Discover performs a blocking mDNS browse for amplifier bridges,
// returning deduplicated, cleaned host entries. An empty result is not an
// error: most deployments have no network-bridged amplifiers at all.
func Discover(timeout time.Duration) ([]BridgeHost, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	resultMap := make(map[string]BridgeHost)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case e, ok := <-entries:
				if !ok {
					return
				}
				if e == nil {
					continue
				}
				addrs := make([]net.IP, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
				addrs = append(addrs, e.AddrIPv4...)
				addrs = append(addrs, e.AddrIPv6...)
				key := fmt.Sprintf("%s|%d", e.HostName, e.Port)
				resultMap[key] = BridgeHost{
					Instance:  cleanInstance(e.Instance),
					Hostname:  e.HostName,
					Addresses: addrs,
					Port:      e.Port,
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, serviceName, "local.", entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}

	<-done

	out := make([]BridgeHost, 0, len(resultMap))
	for _, h := range resultMap {
		out = append(out, h)
	}
	return out, nil
}

func cleanInstance(s string) string {
	return strings.ReplaceAll(s, `\ `, " ")
}
