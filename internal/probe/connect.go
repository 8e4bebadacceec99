package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/MrSnakeDoc/hostwatch/internal/logger"
)

// ConnectPortScanner finds open ports with plain TCP dials, without nmap.
// A refused connection proves the host is up; if no port accepted and none
// refused, the host is considered unscannable.
type ConnectPortScanner struct {
	timeout     time.Duration
	concurrency int
	logger      logger.Logger
}

var _ PortScanner = (*ConnectPortScanner)(nil)

func NewConnectPortScanner(timeout time.Duration, concurrency int, log logger.Logger) *ConnectPortScanner {
	if timeout <= 0 {
		timeout = time.Second
	}
	if concurrency <= 0 {
		concurrency = 100
	}
	return &ConnectPortScanner{
		timeout:     timeout,
		concurrency: concurrency,
		logger:      log,
	}
}

type portState uint8

const (
	portFiltered portState = iota
	portOpen
	portClosed
)

func (s *ConnectPortScanner) ScanPorts(ctx context.Context, ip string, ports PortRange) ([]int, error) {
	states := make([]portState, ports.Len())
	var answered atomic.Int32

	err := ForEach(ctx, s.concurrency, len(states), func(ctx context.Context, i int) {
		state := s.checkPort(ctx, ip, ports.From+i)
		states[i] = state
		if state != portFiltered {
			answered.Add(1)
		}
	})
	if err != nil {
		return nil, failure("portscan", ip, err)
	}

	if answered.Load() == 0 {
		return nil, failure("portscan", ip, fmt.Errorf("no answer on %d ports", len(states)))
	}

	open := make([]int, 0, 8)
	for i, state := range states {
		if state == portOpen {
			open = append(open, ports.From+i)
		}
	}
	slices.Sort(open)
	return open, nil
}

func (s *ConnectPortScanner) checkPort(ctx context.Context, ip string, port int) portState {
	probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(probeCtx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return portClosed
		}
		return portFiltered
	}

	if err := conn.Close(); err != nil {
		s.logger.Debug("failed to close connection",
			logger.String("ip", ip),
			logger.Int("port", port),
			logger.Error(err))
	}
	return portOpen
}
