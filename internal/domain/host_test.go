package domain

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestNewDiscoveredHost(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.Local)

	host := NewDiscoveredHost(Unresolved("10.0.0.5"), "10.0.0.5", "AA:BB:CC:DD:EE:FF", now)

	if host.Hostname != "10.0.0.5" {
		t.Errorf("Hostname = %q, want %q", host.Hostname, "10.0.0.5")
	}
	if !host.Availability {
		t.Error("new host should be available")
	}
	if host.OpenTCPPorts == nil || len(host.OpenTCPPorts) != 0 {
		t.Errorf("OpenTCPPorts = %v, want empty non-nil list", host.OpenTCPPorts)
	}
	if !host.LastHeard.Equal(now) {
		t.Errorf("LastHeard = %v, want %v", host.LastHeard, now)
	}
}

func TestWithLiveness(t *testing.T) {
	before := time.Date(2024, 3, 1, 10, 0, 0, 0, time.Local)
	now := before.Add(time.Minute)

	base := Host{
		IP:           "10.0.0.7",
		MAC:          "AA:BB:CC:00:00:07",
		Hostname:     "h1",
		LastHeard:    NewTimestamp(before),
		Availability: true,
		OpenTCPPorts: []int{22, 80},
	}

	tests := []struct {
		name          string
		reachable     bool
		wantLastHeard time.Time
	}{
		{name: "reachable refreshes last_heard", reachable: true, wantLastHeard: now},
		{name: "unreachable keeps last_heard", reachable: false, wantLastHeard: before},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := base.WithLiveness(tt.reachable, now)

			if got.Availability != tt.reachable {
				t.Errorf("Availability = %v, want %v", got.Availability, tt.reachable)
			}
			if !got.LastHeard.Equal(tt.wantLastHeard) {
				t.Errorf("LastHeard = %v, want %v", got.LastHeard, tt.wantLastHeard)
			}
			if got.Hostname != base.Hostname || got.MAC != base.MAC || got.IP != base.IP {
				t.Errorf("identity fields changed: %+v", got)
			}
			if !reflect.DeepEqual(got.OpenTCPPorts, []int{22, 80}) {
				t.Errorf("OpenTCPPorts = %v, want [22 80]", got.OpenTCPPorts)
			}
		})
	}

	if !base.Availability {
		t.Error("WithLiveness mutated the receiver")
	}
}

func TestWithOpenPortsDoesNotAlias(t *testing.T) {
	base := Host{Hostname: "h1", OpenTCPPorts: []int{22}}
	ports := []int{443, 22, 80, 22}

	got := base.WithOpenPorts(ports)

	if !reflect.DeepEqual(got.OpenTCPPorts, []int{22, 80, 443}) {
		t.Errorf("OpenTCPPorts = %v, want [22 80 443]", got.OpenTCPPorts)
	}
	if !reflect.DeepEqual(base.OpenTCPPorts, []int{22}) {
		t.Errorf("receiver ports changed to %v", base.OpenTCPPorts)
	}

	ports[0] = 1
	if got.OpenTCPPorts[2] != 443 {
		t.Error("result shares backing array with the input slice")
	}
}

func TestHostJSONWireFormat(t *testing.T) {
	heard := time.Date(2024, 3, 1, 10, 30, 15, 123456789, time.Local)
	host := Host{
		IP:           "192.168.254.10",
		MAC:          "AA:BB:CC:DD:EE:01",
		Hostname:     "nas.lan",
		LastHeard:    NewTimestamp(heard),
		Availability: true,
	}

	data, err := json.Marshal(host)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	body := string(data)
	for _, want := range []string{
		`"ip":"192.168.254.10"`,
		`"hostname":"nas.lan"`,
		`"last_heard":"2024-03-01 10:30:15.123"`,
		`"availability":true`,
		`"open_tcp_ports":[]`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("encoded host %s does not contain %s", body, want)
		}
	}

	var decoded Host
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !decoded.LastHeard.Equal(host.LastHeard.Time) {
		t.Errorf("LastHeard round trip = %v, want %v", decoded.LastHeard, host.LastHeard)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		zero    bool
	}{
		{name: "wire layout", raw: "2024-03-01 10:30:15.123"},
		{name: "without fraction", raw: "2024-03-01 10:30:15"},
		{name: "without seconds", raw: "2024-03-01 10:30"},
		{name: "rfc3339", raw: "2024-03-01T10:30:15Z"},
		{name: "empty", raw: "", zero: true},
		{name: "garbage", raw: "yesterday", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, err := ParseTimestamp(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseTimestamp(%q) = nil error, want error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimestamp(%q) failed: %v", tt.raw, err)
			}
			if ts.IsZero() != tt.zero {
				t.Errorf("ParseTimestamp(%q).IsZero() = %v, want %v", tt.raw, ts.IsZero(), tt.zero)
			}
		})
	}
}

func TestIdentity(t *testing.T) {
	named := Identified("printer.lan")
	if named.Key() != "printer.lan" || !named.Resolved() {
		t.Errorf("Identified = %v", named)
	}

	raw := Unresolved("10.0.0.9")
	if raw.Key() != "10.0.0.9" || raw.Resolved() {
		t.Errorf("Unresolved = %v", raw)
	}
}

func TestHostValidate(t *testing.T) {
	tests := []struct {
		name    string
		host    Host
		wantErr bool
	}{
		{
			name: "valid",
			host: Host{IP: "10.0.0.5", MAC: "AA:BB:CC:DD:EE:FF", Hostname: "10.0.0.5", OpenTCPPorts: []int{22}},
		},
		{
			name: "missing mac is allowed",
			host: Host{IP: "10.0.0.5", Hostname: "h1"},
		},
		{
			name:    "bad ip",
			host:    Host{IP: "10.0.0", Hostname: "h1"},
			wantErr: true,
		},
		{
			name:    "missing hostname",
			host:    Host{IP: "10.0.0.5"},
			wantErr: true,
		},
		{
			name:    "port out of range",
			host:    Host{IP: "10.0.0.5", Hostname: "h1", OpenTCPPorts: []int{70000}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.host.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
