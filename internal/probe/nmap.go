package probe

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"strings"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"

	"github.com/MrSnakeDoc/hostwatch/internal/logger"
)

// runFunc executes one nmap invocation. Tests replace it with canned results.
type runFunc func(ctx context.Context, opts ...nmap.Option) (*nmap.Run, []string, error)

func runNmap(ctx context.Context, opts ...nmap.Option) (*nmap.Run, []string, error) {
	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create scanner: %w", err)
	}

	result, warnings, err := scanner.Run()
	var warns []string
	if warnings != nil {
		warns = *warnings
	}
	if err != nil {
		return nil, warns, fmt.Errorf("scan failed: %w", err)
	}
	if result == nil {
		return nil, warns, errors.New("nil scan result")
	}
	return result, warns, nil
}

// NmapOption is a functional option shared by the nmap-backed probes.
type NmapOption func(*nmapSettings)

type nmapSettings struct {
	timeout time.Duration
	run     runFunc
}

// WithScanTimeout bounds one nmap invocation.
func WithScanTimeout(d time.Duration) NmapOption {
	return func(s *nmapSettings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func withRunner(run runFunc) NmapOption {
	return func(s *nmapSettings) { s.run = run }
}

func newSettings(def time.Duration, opts []NmapOption) nmapSettings {
	s := nmapSettings{timeout: def, run: runNmap}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// ─────────────────────────────────────────────────────────────────
// Discovery
// ─────────────────────────────────────────────────────────────────

// NmapDiscoverer runs an nmap ping scan (-sn). On a directly attached
// Ethernet segment nmap probes with ARP, so answering hosts come back with
// their MAC address.
type NmapDiscoverer struct {
	settings nmapSettings
	logger   logger.Logger
}

var _ Discoverer = (*NmapDiscoverer)(nil)

func NewNmapDiscoverer(log logger.Logger, opts ...NmapOption) *NmapDiscoverer {
	return &NmapDiscoverer{
		settings: newSettings(2*time.Minute, opts),
		logger:   log,
	}
}

func (d *NmapDiscoverer) Discover(ctx context.Context, subnet string) ([]Neighbor, error) {
	prefix, err := netip.ParsePrefix(subnet)
	if err != nil || !prefix.Addr().Is4() {
		return nil, failure("discovery", subnet, errors.New("not an IPv4 CIDR"))
	}

	scanCtx, cancel := context.WithTimeout(ctx, d.settings.timeout)
	defer cancel()

	result, warnings, err := d.settings.run(scanCtx,
		nmap.WithTargets(prefix.Masked().String()),
		nmap.WithPingScan(),
		nmap.WithDisabledDNSResolution(),
	)
	if len(warnings) > 0 {
		d.logger.Debug("nmap discovery warnings",
			logger.String("subnet", subnet),
			logger.String("warnings", strings.Join(warnings, "; ")))
	}
	if err != nil {
		return nil, failure("discovery", subnet, err)
	}

	return neighborsFromRun(result, prefix), nil
}

// neighborsFromRun keeps IPv4 hosts that are up and inside prefix, one entry per address.
func neighborsFromRun(result *nmap.Run, prefix netip.Prefix) []Neighbor {
	seen := make(map[string]bool, len(result.Hosts))
	neighbors := make([]Neighbor, 0, len(result.Hosts))

	for _, host := range result.Hosts {
		if host.Status.State != "up" {
			continue
		}

		var ip, mac string
		for _, addr := range host.Addresses {
			switch addr.AddrType {
			case "ipv4":
				ip = addr.Addr
			case "mac":
				mac = strings.ToUpper(addr.Addr)
			}
		}

		parsed, err := netip.ParseAddr(ip)
		if err != nil || !prefix.Contains(parsed) || seen[ip] {
			continue
		}
		seen[ip] = true
		neighbors = append(neighbors, Neighbor{IP: ip, MAC: mac})
	}

	return neighbors
}

// ─────────────────────────────────────────────────────────────────
// Port scan
// ─────────────────────────────────────────────────────────────────

// NmapPortScanner runs a TCP connect scan (-sT) against one host.
type NmapPortScanner struct {
	settings nmapSettings
	logger   logger.Logger
}

var _ PortScanner = (*NmapPortScanner)(nil)

func NewNmapPortScanner(log logger.Logger, opts ...NmapOption) *NmapPortScanner {
	return &NmapPortScanner{
		settings: newSettings(5*time.Minute, opts),
		logger:   log,
	}
}

func (s *NmapPortScanner) ScanPorts(ctx context.Context, ip string, ports PortRange) ([]int, error) {
	scanCtx, cancel := context.WithTimeout(ctx, s.settings.timeout)
	defer cancel()

	result, warnings, err := s.settings.run(scanCtx,
		nmap.WithTargets(ip),
		nmap.WithPorts(ports.String()),
		nmap.WithConnectScan(),
		nmap.WithDisabledDNSResolution(),
	)
	if len(warnings) > 0 {
		s.logger.Debug("nmap port scan warnings",
			logger.String("ip", ip),
			logger.String("warnings", strings.Join(warnings, "; ")))
	}
	if err != nil {
		return nil, failure("portscan", ip, err)
	}

	open, err := openPortsFromRun(result, ip)
	if err != nil {
		return nil, failure("portscan", ip, err)
	}
	return open, nil
}

// openPortsFromRun extracts the open TCP ports of ip. A host missing from
// the report, or reported down, could not be scanned.
func openPortsFromRun(result *nmap.Run, ip string) ([]int, error) {
	for _, host := range result.Hosts {
		if !hasAddress(host, ip) {
			continue
		}
		if host.Status.State != "up" {
			return nil, fmt.Errorf("host is %s", host.Status.State)
		}

		open := make([]int, 0, len(host.Ports))
		for _, port := range host.Ports {
			if port.Protocol == "tcp" && port.State.State == "open" {
				open = append(open, int(port.ID))
			}
		}
		slices.Sort(open)
		return open, nil
	}
	return nil, errors.New("host missing from scan report")
}

func hasAddress(host nmap.Host, ip string) bool {
	for _, addr := range host.Addresses {
		if addr.Addr == ip {
			return true
		}
	}
	return false
}
