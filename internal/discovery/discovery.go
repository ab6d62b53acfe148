// Package discovery advertises the Master's UDP responder over mDNS
// and lets a Slave locate it without a configured address.
package discovery

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/hashicorp/mdns"
	"go.uber.org/zap"
)

const (
	// ServiceType is the mDNS service type the Master advertises under
	// and the Slave browses for.
	ServiceType   = "_clocksync._udp"
	lookupTimeout = 3 * time.Second
)

// Advertiser publishes the Master's sync port over mDNS until Shutdown
// is called.
type Advertiser struct {
	server *mdns.Server
	log    *zap.Logger
}

// Advertise registers an mDNS service named instance for the given UDP
// port, visible to any Slave browsing for ServiceType.
func Advertise(instance string, port int, log *zap.Logger) (*Advertiser, error) {
	ips, err := localIPs()
	if err != nil {
		return nil, fmt.Errorf("discovery: failed to enumerate local addresses: %w", err)
	}

	service, err := mdns.NewMDNSService(instance, ServiceType, "", "", port, ips, nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: failed to build service record: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("discovery: failed to start advertiser: %w", err)
	}

	log.Info("advertising mDNS sync service", zap.String("instance", instance), zap.Int("port", port))
	return &Advertiser{server: server, log: log}, nil
}

// Shutdown stops advertising.
func (a *Advertiser) Shutdown() error {
	return a.server.Shutdown()
}

// Lookup performs one mDNS browse for a clocksync Master and returns
// the address of the first responder seen, or an error if none
// answered within the lookup timeout. Callers treat a Lookup failure
// as non-fatal and fall back to a configured or default address.
func Lookup(ctx context.Context, log *zap.Logger) (string, error) {
	entries := make(chan *mdns.ServiceEntry, 8)

	lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	done := make(chan *mdns.ServiceEntry, 1)
	go func() {
		for entry := range entries {
			select {
			case done <- entry:
			default:
			}
		}
	}()

	params := &mdns.QueryParam{
		Service: ServiceType,
		Domain:  "local",
		Timeout: lookupTimeout,
		Entries: entries,
	}

	go func() {
		mdns.Query(params)
		close(entries)
	}()

	select {
	case entry := <-done:
		addr := net.JoinHostPort(entry.AddrV4.String(), fmt.Sprintf("%d", entry.Port))
		log.Info("discovered Master via mDNS", zap.String("addr", addr))
		return addr, nil
	case <-lookupCtx.Done():
		return "", fmt.Errorf("discovery: no Master answered within %s", lookupTimeout)
	}
}

func localIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}

	if len(ips) == 0 {
		return nil, fmt.Errorf("discovery: no non-loopback IPv4 address found")
	}
	return ips, nil
}
