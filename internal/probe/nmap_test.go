package probe

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	nmap "github.com/Ullaakut/nmap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/hostwatch/internal/logger"
)

func upHost(ip, mac string, ports ...nmap.Port) nmap.Host {
	addrs := []nmap.Address{{Addr: ip, AddrType: "ipv4"}}
	if mac != "" {
		addrs = append(addrs, nmap.Address{Addr: mac, AddrType: "mac"})
	}
	return nmap.Host{
		Addresses: addrs,
		Status:    nmap.Status{State: "up"},
		Ports:     ports,
	}
}

func tcpPort(id uint16, state string) nmap.Port {
	return nmap.Port{ID: id, Protocol: "tcp", State: nmap.State{State: state}}
}

func TestNeighborsFromRun(t *testing.T) {
	prefix := netip.MustParsePrefix("192.168.254.0/24")
	run := &nmap.Run{
		Hosts: []nmap.Host{
			upHost("192.168.254.10", "aa:bb:cc:dd:ee:01"),
			upHost("192.168.254.11", ""),
			upHost("192.168.254.10", "aa:bb:cc:dd:ee:01"),
			upHost("10.0.0.1", "aa:bb:cc:dd:ee:02"),
			{
				Addresses: []nmap.Address{{Addr: "192.168.254.12", AddrType: "ipv4"}},
				Status:    nmap.Status{State: "down"},
			},
		},
	}

	got := neighborsFromRun(run, prefix)

	assert.Equal(t, []Neighbor{
		{IP: "192.168.254.10", MAC: "AA:BB:CC:DD:EE:01"},
		{IP: "192.168.254.11", MAC: ""},
	}, got)
}

func TestNmapDiscoverer_Discover(t *testing.T) {
	log := logger.New("error", false)

	t.Run("returns neighbors", func(t *testing.T) {
		d := NewNmapDiscoverer(log, withRunner(func(ctx context.Context, opts ...nmap.Option) (*nmap.Run, []string, error) {
			return &nmap.Run{Hosts: []nmap.Host{upHost("10.0.0.5", "AA:BB:CC:DD:EE:FF")}}, nil, nil
		}))

		got, err := d.Discover(context.Background(), "10.0.0.0/24")
		require.NoError(t, err)
		assert.Equal(t, []Neighbor{{IP: "10.0.0.5", MAC: "AA:BB:CC:DD:EE:FF"}}, got)
	})

	t.Run("empty sweep is not an error", func(t *testing.T) {
		d := NewNmapDiscoverer(log, withRunner(func(ctx context.Context, opts ...nmap.Option) (*nmap.Run, []string, error) {
			return &nmap.Run{}, nil, nil
		}))

		got, err := d.Discover(context.Background(), "10.0.0.0/24")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("scan failure is a probe failure", func(t *testing.T) {
		d := NewNmapDiscoverer(log, withRunner(func(ctx context.Context, opts ...nmap.Option) (*nmap.Run, []string, error) {
			return nil, []string{"requires root"}, errors.New("exit status 1")
		}))

		_, err := d.Discover(context.Background(), "10.0.0.0/24")
		assert.ErrorIs(t, err, ErrProbeFailed)
	})

	t.Run("rejects non IPv4 subnet", func(t *testing.T) {
		d := NewNmapDiscoverer(log)

		_, err := d.Discover(context.Background(), "fe80::/64")
		assert.ErrorIs(t, err, ErrProbeFailed)
	})
}

func TestOpenPortsFromRun(t *testing.T) {
	tests := []struct {
		name    string
		run     *nmap.Run
		want    []int
		wantErr bool
	}{
		{
			name: "open ports only, sorted",
			run: &nmap.Run{Hosts: []nmap.Host{upHost("10.0.0.5", "",
				tcpPort(443, "open"),
				tcpPort(22, "open"),
				tcpPort(25, "closed"),
				tcpPort(80, "filtered"),
			)}},
			want: []int{22, 443},
		},
		{
			name: "up with nothing open",
			run:  &nmap.Run{Hosts: []nmap.Host{upHost("10.0.0.5", "")}},
			want: []int{},
		},
		{
			name:    "host missing",
			run:     &nmap.Run{},
			wantErr: true,
		},
		{
			name: "host down",
			run: &nmap.Run{Hosts: []nmap.Host{{
				Addresses: []nmap.Address{{Addr: "10.0.0.5", AddrType: "ipv4"}},
				Status:    nmap.Status{State: "down"},
			}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := openPortsFromRun(tt.run, "10.0.0.5")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNmapPortScanner_Failure(t *testing.T) {
	s := NewNmapPortScanner(logger.New("error", false), withRunner(func(ctx context.Context, opts ...nmap.Option) (*nmap.Run, []string, error) {
		return &nmap.Run{}, nil, nil
	}))

	_, err := s.ScanPorts(context.Background(), "10.0.0.5", PortRange{From: 22, To: 1024})
	assert.ErrorIs(t, err, ErrProbeFailed)
}
