// Package probe defines the network primitives the monitor relies on
// (subnet discovery, liveness, port scanning, reverse DNS) and their
// implementations on top of nmap, ICMP and plain TCP dials.
package probe

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrProbeFailed marks a probe attempt that produced no usable result.
// It is always recoverable: the activity is retried on its next occurrence.
var ErrProbeFailed = errors.New("probe failed")

// failure wraps err so that it matches both ErrProbeFailed and err.
func failure(activity, target string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrProbeFailed, activity, target, err)
}

// Neighbor is one host answering on the local link.
type Neighbor struct {
	IP  string
	MAC string
}

// Discoverer sweeps a subnet for hosts currently answering.
// A nil error with an empty slice means the sweep ran and found nobody.
type Discoverer interface {
	Discover(ctx context.Context, subnet string) ([]Neighbor, error)
}

// Pinger checks whether one host answers ICMP echo.
// An unreachable host is (false, nil); the error is reserved for probes that could not run.
type Pinger interface {
	Ping(ctx context.Context, ip string) (bool, error)
}

// PortScanner lists the open TCP ports of one host, ascending.
type PortScanner interface {
	ScanPorts(ctx context.Context, ip string, ports PortRange) ([]int, error)
}

// Resolver maps an address to a host name.
type Resolver interface {
	LookupAddr(ctx context.Context, ip string) (string, error)
}

// PortRange is an inclusive TCP port interval.
type PortRange struct {
	From int
	To   int
}

// ParsePortRange accepts "22-1024" or a single port "443".
func ParsePortRange(s string) (PortRange, error) {
	s = strings.TrimSpace(s)
	lo, hi, found := strings.Cut(s, "-")
	if !found {
		hi = lo
	}

	from, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return PortRange{}, fmt.Errorf("invalid port range %q: %w", s, err)
	}
	to, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return PortRange{}, fmt.Errorf("invalid port range %q: %w", s, err)
	}

	r := PortRange{From: from, To: to}
	if r.From < 1 || r.To > 65535 || r.From > r.To {
		return PortRange{}, fmt.Errorf("invalid port range %q: must satisfy 1 <= from <= to <= 65535", s)
	}
	return r, nil
}

// Len is the number of ports in the range.
func (r PortRange) Len() int { return r.To - r.From + 1 }

// String renders the range the way nmap's -p flag expects it.
func (r PortRange) String() string {
	if r.From == r.To {
		return strconv.Itoa(r.From)
	}
	return fmt.Sprintf("%d-%d", r.From, r.To)
}
