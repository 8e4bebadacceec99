package domain

import (
	"encoding/json"
	"slices"
	"time"
)

// Host represents the last known state of one monitored network host.
//
// It is the record exchanged with the inventory service. The inventory
// replaces whole records on write, so every mutation must start from the
// latest fetched copy and produce a complete new record.
//
// A Host is uniquely identified by its Hostname.
type Host struct {
	// ─────────────────────────────
	// Identity
	// ─────────────────────────────

	// IP is the dotted-quad address the host answered on.
	// It may change between discoveries.
	IP string `json:"ip" validate:"required,ipv4"`

	// MAC is the link-layer address seen during discovery.
	MAC string `json:"mac" validate:"omitempty,mac"`

	// Hostname is the reverse-DNS name, or the IP string when the
	// address did not resolve. It is the inventory primary key and is
	// never reassigned once the record exists.
	Hostname string `json:"hostname" validate:"required,max=253"`

	// ─────────────────────────────
	// Observation
	// ─────────────────────────────

	// LastHeard is updated on every successful probe.
	LastHeard Timestamp `json:"last_heard"`

	// Availability is the outcome of the latest liveness probe.
	Availability bool `json:"availability"`

	// OpenTCPPorts is the result of the latest successful port scan.
	// A failed or skipped scan leaves it untouched.
	OpenTCPPorts []int `json:"open_tcp_ports" validate:"dive,min=1,max=65535"`
}

// NewDiscoveredHost builds the record for a host seen for the first time.
func NewDiscoveredHost(id Identity, ip, mac string, now time.Time) Host {
	return Host{
		IP:           ip,
		MAC:          mac,
		Hostname:     id.Key(),
		LastHeard:    NewTimestamp(now),
		Availability: true,
		OpenTCPPorts: []int{},
	}
}

// Clone returns a deep copy of h.
func (h Host) Clone() Host {
	c := h
	if h.OpenTCPPorts != nil {
		c.OpenTCPPorts = slices.Clone(h.OpenTCPPorts)
	} else {
		c.OpenTCPPorts = []int{}
	}
	return c
}

// WithLiveness returns a copy of h carrying the outcome of a liveness probe.
// LastHeard only moves forward when the host answered.
func (h Host) WithLiveness(reachable bool, now time.Time) Host {
	c := h.Clone()
	c.Availability = reachable
	if reachable {
		c.LastHeard = NewTimestamp(now)
	}
	return c
}

// WithOpenPorts returns a copy of h whose port set is replaced by ports,
// sorted ascending and without duplicates.
func (h Host) WithOpenPorts(ports []int) Host {
	c := h.Clone()
	c.OpenTCPPorts = NormalizePorts(ports)
	return c
}

// NormalizePorts returns a sorted, de-duplicated copy of ports. It never returns nil.
func NormalizePorts(ports []int) []int {
	out := make([]int, 0, len(ports))
	out = append(out, ports...)
	slices.Sort(out)
	return slices.Compact(out)
}

// MarshalJSON encodes a missing port set as an empty list rather than null.
func (h Host) MarshalJSON() ([]byte, error) {
	type plain Host
	p := plain(h)
	if p.OpenTCPPorts == nil {
		p.OpenTCPPorts = []int{}
	}
	return json.Marshal(p)
}
