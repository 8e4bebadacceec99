package probe

import (
	"context"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"github.com/MrSnakeDoc/hostwatch/internal/logger"
)

// ICMPPinger sends a short burst of echo requests and reports the host as
// reachable when at least one reply came back.
type ICMPPinger struct {
	count      int
	interval   time.Duration
	timeout    time.Duration
	privileged bool
	logger     logger.Logger
}

var _ Pinger = (*ICMPPinger)(nil)

// NewICMPPinger mirrors `ping -c count -i interval -W timeout`.
func NewICMPPinger(count int, interval, timeout time.Duration, privileged bool, log logger.Logger) *ICMPPinger {
	if count < 1 {
		count = 3
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ICMPPinger{
		count:      count,
		interval:   interval,
		timeout:    timeout,
		privileged: privileged,
		logger:     log,
	}
}

// runDeadline bounds the whole burst: every request is sent, then the last
// one gets the reply timeout.
func (p *ICMPPinger) runDeadline() time.Duration {
	return time.Duration(p.count-1)*p.interval + p.timeout
}

func (p *ICMPPinger) Ping(ctx context.Context, ip string) (bool, error) {
	pinger, err := probing.NewPinger(ip)
	if err != nil {
		return false, failure("ping", ip, err)
	}

	pinger.Count = p.count
	pinger.Interval = p.interval
	pinger.Timeout = p.runDeadline()
	pinger.SetPrivileged(p.privileged)

	err = pinger.RunWithContext(ctx)
	if err != nil && !p.privileged {
		// unprivileged UDP pings need net.ipv4.ping_group_range; fall back to raw sockets
		p.logger.Debug("unprivileged ping failed, retrying with raw socket",
			logger.String("ip", ip),
			logger.Error(err))
		pinger, err = probing.NewPinger(ip)
		if err != nil {
			return false, failure("ping", ip, err)
		}
		pinger.Count = p.count
		pinger.Interval = p.interval
		pinger.Timeout = p.runDeadline()
		pinger.SetPrivileged(true)
		err = pinger.RunWithContext(ctx)
	}
	if err != nil {
		return false, failure("ping", ip, err)
	}

	stats := pinger.Statistics()
	return stats.PacketsRecv > 0, nil
}
