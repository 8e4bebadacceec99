package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrSnakeDoc/hostwatch/internal/config"
	"github.com/MrSnakeDoc/hostwatch/internal/httpserver"
	"github.com/MrSnakeDoc/hostwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/hostwatch/internal/inventory"
	"github.com/MrSnakeDoc/hostwatch/internal/logger"
	"github.com/MrSnakeDoc/hostwatch/internal/probe"
	"github.com/MrSnakeDoc/hostwatch/internal/reconcile"
	"github.com/MrSnakeDoc/hostwatch/internal/scheduler"
	"github.com/MrSnakeDoc/hostwatch/internal/version"
)

// Monitor is the monitoring daemon: scheduler, probes and optional status server.
type Monitor struct {
	cfg     *config.Config
	logger  logger.Logger
	monitor *scheduler.Monitor
	server  *httpserver.Server // nil when the status server is disabled
}

// NewMonitor wires the daemon from cfg.
func NewMonitor(cfg *config.Config) (*Monitor, error) {
	loggerClient := newLogger(cfg.LogLevel, cfg.PrettyLog, cfg.LogFile, cfg.LogMaxSize)

	ports, err := probe.ParsePortRange(cfg.PortRange)
	if err != nil {
		return nil, err
	}

	var scanner probe.PortScanner
	switch cfg.PortScanEngine {
	case "connect":
		scanner = probe.NewConnectPortScanner(cfg.ConnectTimeout, cfg.ProbeConcurrency, loggerClient)
	default:
		scanner = probe.NewNmapPortScanner(loggerClient, probe.WithScanTimeout(cfg.PortScanTimeout))
	}

	probes := scheduler.Probes{
		Discoverer:  probe.NewNmapDiscoverer(loggerClient, probe.WithScanTimeout(cfg.DiscoveryTimeout)),
		Pinger:      probe.NewICMPPinger(cfg.PingCount, cfg.PingInterval, cfg.PingTimeout, cfg.PingPrivileged, loggerClient),
		PortScanner: scanner,
	}

	client := inventory.NewHTTPClient(cfg.InventoryURL, cfg.InventoryTimeout, loggerClient)
	rec := reconcile.New(client, probe.NewDNSResolver(cfg.DNSTimeout), loggerClient, cfg.ProbeConcurrency)

	mon := scheduler.NewMonitor(scheduler.Settings{
		Subnet:            cfg.Subnet,
		Ports:             ports,
		TickInterval:      cfg.TickInterval,
		DiscoveryInterval: cfg.DiscoveryInterval,
		PortScanInterval:  cfg.PortScanInterval,
		Concurrency:       cfg.ProbeConcurrency,
	}, probes, client, rec, loggerClient)

	var server *httpserver.Server
	if cfg.StatusListenAddr != "" {
		server = httpserver.New(cfg.StatusListenAddr, loggerClient, deps.Deps{
			Logger:       loggerClient,
			StartTime:    time.Now(),
			Version:      version.Version,
			Commit:       version.Commit,
			BuildDate:    version.BuildDate,
			GoVersion:    version.GoVersion,
			AllowedCIDRS: cfg.AllowedCIDRS,
			TrustProxy:   cfg.TrustProxy,
			Monitor:      mon,
		})
	} else {
		loggerClient.Info("status server disabled")
	}

	return &Monitor{
		cfg:     cfg,
		logger:  loggerClient,
		monitor: mon,
		server:  server,
	}, nil
}

// Run blocks until SIGINT/SIGTERM, then stops the scheduler and the status server.
func (a *Monitor) Run() error {
	defer func() { _ = a.logger.Sync() }()

	a.logger.Info("starting hostwatch monitor",
		logger.String("version", version.Version),
		logger.String("commit", version.Commit),
		logger.String("subnet", a.cfg.Subnet),
		logger.String("inventory", a.cfg.InventoryURL),
		logger.String("portscan_engine", a.cfg.PortScanEngine))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	if a.server != nil {
		go func() {
			if err := a.server.Start(); err != nil {
				errCh <- fmt.Errorf("status server error: %w", err)
			}
		}()
	}

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = a.monitor.Run(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down gracefully")
	case runErr = <-errCh:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	select {
	case <-loopDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("monitor loop did not stop before the shutdown timeout",
			logger.Duration("timeout", a.cfg.ShutdownTimeout))
	}

	if a.server != nil {
		if err := a.server.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("failed to stop status server: %w", err)
		}
	}

	if runErr != nil {
		return runErr
	}

	a.logger.Info("hostwatch monitor stopped cleanly")
	return nil
}
