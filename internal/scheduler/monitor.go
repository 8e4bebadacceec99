package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MrSnakeDoc/hostwatch/internal/domain"
	"github.com/MrSnakeDoc/hostwatch/internal/inventory"
	"github.com/MrSnakeDoc/hostwatch/internal/logger"
	"github.com/MrSnakeDoc/hostwatch/internal/probe"
	"github.com/MrSnakeDoc/hostwatch/internal/reconcile"
)

const (
	DefaultTickInterval      = 60 * time.Second
	DefaultDiscoveryInterval = 600 * time.Second
	DefaultPortScanInterval  = 3600 * time.Second
	DefaultConcurrency       = 16
)

// Settings drives what the monitor probes and how often.
type Settings struct {
	Subnet            string
	Ports             probe.PortRange
	TickInterval      time.Duration
	DiscoveryInterval time.Duration
	PortScanInterval  time.Duration
	Concurrency       int
}

// Probes bundles the network primitives of one monitor.
type Probes struct {
	Discoverer  probe.Discoverer
	Pinger      probe.Pinger
	PortScanner probe.PortScanner
}

// Timers holds the last successful run of each timed activity.
// A zero time means the activity never ran and is due immediately.
type Timers struct {
	LastDiscovery time.Time
	LastPortScan  time.Time
}

// Due reports whether an activity last run at last is due at now.
func Due(now, last time.Time, interval time.Duration) bool {
	return last.IsZero() || now.Sub(last) >= interval
}

// TickReport describes what one tick did.
type TickReport struct {
	Started  time.Time
	Duration time.Duration

	DiscoveryRan bool
	DiscoveryErr error
	Discovery    reconcile.DiscoveryResult

	FetchErr error
	Hosts    int

	PortScanRan      bool
	PortScanFailures int
	PortScan         reconcile.PassResult

	Unreachable int
	Liveness    reconcile.PassResult
}

// Status is a point-in-time view of the monitor for the status endpoint.
type Status struct {
	Ticks            uint64        `json:"ticks"`
	LastTick         time.Time     `json:"last_tick"`
	LastTickDuration time.Duration `json:"last_tick_duration_ns"`
	LastDiscovery    time.Time     `json:"last_discovery"`
	LastPortScan     time.Time     `json:"last_portscan"`
	Hosts            int           `json:"hosts"`
	Unreachable      int           `json:"unreachable"`
	PendingDiscovery bool          `json:"pending_discovery"`
	PendingPortScan  bool          `json:"pending_portscan"`
}

// Monitor runs discovery, port scans and liveness probes on a fixed tick.
type Monitor struct {
	settings   Settings
	probes     Probes
	inventory  inventory.Client
	reconciler *reconcile.Reconciler
	clock      Clock
	logger     logger.Logger

	mu     sync.RWMutex
	timers Timers
	status Status

	forceDiscovery chan struct{}
	forcePortScan  chan struct{}
	wake           chan struct{}
}

type Option func(*Monitor)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// WithTimers seeds the activity timers.
func WithTimers(t Timers) Option {
	return func(m *Monitor) { m.timers = t }
}

func NewMonitor(
	settings Settings,
	probes Probes,
	client inventory.Client,
	reconciler *reconcile.Reconciler,
	log logger.Logger,
	opts ...Option,
) *Monitor {
	if settings.TickInterval <= 0 {
		settings.TickInterval = DefaultTickInterval
	}
	if settings.DiscoveryInterval <= 0 {
		settings.DiscoveryInterval = DefaultDiscoveryInterval
	}
	if settings.PortScanInterval <= 0 {
		settings.PortScanInterval = DefaultPortScanInterval
	}
	if settings.Concurrency < 1 {
		settings.Concurrency = DefaultConcurrency
	}

	m := &Monitor{
		settings:       settings,
		probes:         probes,
		inventory:      client,
		reconciler:     reconciler,
		clock:          realClock{},
		logger:         log,
		forceDiscovery: make(chan struct{}, 1),
		forcePortScan:  make(chan struct{}, 1),
		wake:           make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run ticks once immediately, then every TickInterval until ctx is done.
// A tick that overruns the cadence delays the next one; ticks never overlap.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started",
		logger.String("subnet", m.settings.Subnet),
		logger.Duration("tick", m.settings.TickInterval),
		logger.Duration("discovery_interval", m.settings.DiscoveryInterval),
		logger.Duration("portscan_interval", m.settings.PortScanInterval))

	m.Tick(ctx)

	ticker := m.clock.Ticker(m.settings.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopped")
			return nil
		case <-ticker.Chan():
			m.Tick(ctx)
		case <-m.wake:
			m.logger.Info("manual trigger, running extra tick")
			m.Tick(ctx)
		}
	}
}

// TriggerDiscovery forces discovery on an immediate extra tick.
// It returns false when a discovery trigger is already pending.
func (m *Monitor) TriggerDiscovery() bool {
	return m.trigger(m.forceDiscovery)
}

// TriggerPortScan forces a port scan pass on an immediate extra tick.
// It returns false when a port scan trigger is already pending.
func (m *Monitor) TriggerPortScan() bool {
	return m.trigger(m.forcePortScan)
}

func (m *Monitor) trigger(ch chan struct{}) bool {
	select {
	case ch <- struct{}{}:
	default:
		return false
	}
	select {
	case m.wake <- struct{}{}:
	default:
	}
	return true
}

func take(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// Timers returns a copy of the activity timers.
func (m *Monitor) Timers() Timers {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.timers
}

// Status returns a snapshot of the monitor state.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	s := m.status
	s.LastDiscovery = m.timers.LastDiscovery
	s.LastPortScan = m.timers.LastPortScan
	m.mu.RUnlock()

	s.PendingDiscovery = len(m.forceDiscovery) > 0
	s.PendingPortScan = len(m.forcePortScan) > 0
	return s
}

// Ready reports whether at least one tick has completed.
func (m *Monitor) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Ticks > 0
}

// Tick runs one iteration: discovery when due, fetch, port scan when due,
// then liveness over every known host. Activity failures are logged and
// reported, never returned.
func (m *Monitor) Tick(ctx context.Context) TickReport {
	now := m.clock.Now()
	report := TickReport{Started: now}
	timers := m.Timers()

	forceDiscovery := take(m.forceDiscovery)
	forcePortScan := take(m.forcePortScan)

	// merges land even when shutdown interrupts probing; each one is a full-record upsert
	mergeCtx := context.WithoutCancel(ctx)

	defer func() {
		report.Duration = m.clock.Now().Sub(now)
		m.finishTick(report)
	}()

	// 1. discovery
	if forceDiscovery || Due(now, timers.LastDiscovery, m.settings.DiscoveryInterval) {
		report.DiscoveryRan = true
		report.Discovery, report.DiscoveryErr = m.discover(ctx, now)
		if report.DiscoveryErr != nil {
			m.logger.Warn("discovery failed, retrying next tick",
				logger.String("subnet", m.settings.Subnet),
				logger.Error(report.DiscoveryErr))
		} else {
			m.setTimers(func(t *Timers) { t.LastDiscovery = now })
		}
	}
	if ctx.Err() != nil {
		return report
	}

	// 2. fetch
	hosts, err := m.fetch(ctx)
	if err != nil {
		report.FetchErr = err
		m.logger.Error("failed to fetch hosts, continuing with none",
			logger.Error(err))
	}
	report.Hosts = len(hosts)

	// 3. port scan
	if forcePortScan || Due(now, timers.LastPortScan, m.settings.PortScanInterval) {
		report.PortScanRan = true
		var scanErr error
		hosts, report.PortScan, report.PortScanFailures, scanErr = m.portScan(ctx, mergeCtx, hosts)
		if scanErr != nil {
			m.logger.Warn("port scan pass interrupted, timer not reset",
				logger.Error(scanErr))
			return report
		}
		m.setTimers(func(t *Timers) { t.LastPortScan = now })
	}

	// 4. liveness
	report.Liveness, report.Unreachable = m.liveness(ctx, mergeCtx, hosts, now)

	return report
}

func (m *Monitor) setTimers(fn func(*Timers)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.timers)
}

func (m *Monitor) finishTick(r TickReport) {
	m.mu.Lock()
	m.status.Ticks++
	m.status.LastTick = r.Started
	m.status.LastTickDuration = r.Duration
	m.status.Hosts = r.Hosts
	m.status.Unreachable = r.Unreachable
	m.mu.Unlock()

	m.logger.Info("tick completed",
		logger.Duration("duration", r.Duration),
		logger.Bool("discovery", r.DiscoveryRan),
		logger.Int("discovered", r.Discovery.Created),
		logger.Bool("portscan", r.PortScanRan),
		logger.Int("hosts", r.Hosts),
		logger.Int("unreachable", r.Unreachable),
		logger.Int("upsert_failures", r.Discovery.Failed+r.PortScan.Failed+r.Liveness.Failed))
}

func (m *Monitor) fetch(ctx context.Context) ([]domain.Host, error) {
	byName, err := m.inventory.FetchAll(ctx)
	if err != nil {
		return nil, err
	}

	hosts := make([]domain.Host, 0, len(byName))
	for _, h := range byName {
		hosts = append(hosts, h)
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Hostname < hosts[j].Hostname })
	return hosts, nil
}

func (m *Monitor) discover(ctx context.Context, now time.Time) (reconcile.DiscoveryResult, error) {
	neighbors, err := m.probes.Discoverer.Discover(ctx, m.settings.Subnet)
	if err != nil {
		return reconcile.DiscoveryResult{}, err
	}

	snapshot, err := m.inventory.FetchAll(ctx)
	if err != nil {
		return reconcile.DiscoveryResult{}, fmt.Errorf("load inventory snapshot: %w", err)
	}

	res := m.reconciler.MergeDiscovery(ctx, snapshot, neighbors, now)
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("discovery interrupted: %w", err)
	}
	m.logger.Info("discovery completed",
		logger.Int("seen", res.Seen),
		logger.Int("created", res.Created),
		logger.Int("known", res.Known),
		logger.Int("unresolved", res.Unresolved),
		logger.Int("upsert_failures", res.Failed))
	return res, nil
}

func (m *Monitor) portScan(ctx, mergeCtx context.Context, hosts []domain.Host) ([]domain.Host, reconcile.PassResult, int, error) {
	var idx []int
	for i, h := range hosts {
		if h.Availability {
			idx = append(idx, i)
		}
	}

	targets := make([]domain.Host, len(idx))
	for j, i := range idx {
		targets[j] = hosts[i]
	}

	results := make([]reconcile.PortScan, len(targets))
	err := probe.ForEach(ctx, m.settings.Concurrency, len(targets), func(ctx context.Context, i int) {
		ports, err := m.probes.PortScanner.ScanPorts(ctx, targets[i].IP, m.settings.Ports)
		results[i] = reconcile.PortScan{Probed: true, Ports: ports, Err: err}
	})

	failures := 0
	for _, r := range results {
		if r.Probed && r.Err != nil {
			failures++
		}
	}

	scanned, pass := m.reconciler.ApplyPortScan(mergeCtx, targets, results)

	updated := make([]domain.Host, len(hosts))
	copy(updated, hosts)
	for j, i := range idx {
		updated[i] = scanned[j]
	}

	m.logger.Info("port scan pass completed",
		logger.Int("scanned", len(targets)),
		logger.Int("skipped_unavailable", len(hosts)-len(targets)),
		logger.Int("probe_failures", failures),
		logger.Int("upsert_failures", pass.Failed))

	return updated, pass, failures, err
}

func (m *Monitor) liveness(ctx, mergeCtx context.Context, hosts []domain.Host, now time.Time) (reconcile.PassResult, int) {
	results := make([]reconcile.Liveness, len(hosts))
	_ = probe.ForEach(ctx, m.settings.Concurrency, len(hosts), func(ctx context.Context, i int) {
		reachable, err := m.probes.Pinger.Ping(ctx, hosts[i].IP)
		if err != nil {
			if ctx.Err() != nil {
				// interrupted, not an outcome
				return
			}
			m.logger.Warn("liveness probe failed, treating host as unreachable",
				logger.String("hostname", hosts[i].Hostname),
				logger.String("ip", hosts[i].IP),
				logger.Error(err))
		}
		results[i] = reconcile.Liveness{Probed: true, Reachable: reachable && err == nil}
	})

	unreachable := 0
	for _, r := range results {
		if r.Probed && !r.Reachable {
			unreachable++
		}
	}

	return m.reconciler.ApplyLiveness(mergeCtx, hosts, results, now), unreachable
}
