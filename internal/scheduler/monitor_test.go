package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/hostwatch/internal/domain"
	"github.com/MrSnakeDoc/hostwatch/internal/inventory"
	"github.com/MrSnakeDoc/hostwatch/internal/inventory/inventorytest"
	"github.com/MrSnakeDoc/hostwatch/internal/logger"
	"github.com/MrSnakeDoc/hostwatch/internal/probe"
	"github.com/MrSnakeDoc/hostwatch/internal/reconcile"
)

// ─────────────────────────────
// Fakes
// ─────────────────────────────

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	ticker *fakeTicker
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now, ticker: &fakeTicker{ch: make(chan time.Time)}}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Ticker(time.Duration) Ticker { return c.ticker }

type fakeTicker struct {
	ch chan time.Time
}

func (t *fakeTicker) Chan() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()                  {}

type fakeDiscoverer struct {
	mu         sync.Mutex
	neighbors  []probe.Neighbor
	err        error
	calls      int
	onDiscover func()
}

func (f *fakeDiscoverer) Discover(ctx context.Context, subnet string) ([]probe.Neighbor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.onDiscover != nil {
		f.onDiscover()
	}
	return f.neighbors, f.err
}

func (f *fakeDiscoverer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePinger struct {
	down map[string]bool
	errs map[string]error
}

func (f *fakePinger) Ping(ctx context.Context, ip string) (bool, error) {
	if err := f.errs[ip]; err != nil {
		return false, err
	}
	return !f.down[ip], nil
}

type fakeScanner struct {
	mu      sync.Mutex
	ports   map[string][]int
	fail    map[string]bool
	scanned []string
	onScan  func()
}

func (f *fakeScanner) ScanPorts(ctx context.Context, ip string, r probe.PortRange) ([]int, error) {
	f.mu.Lock()
	f.scanned = append(f.scanned, ip)
	hook := f.onScan
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if f.fail[ip] {
		return nil, errors.Join(probe.ErrProbeFailed, errors.New("host down"))
	}
	return f.ports[ip], nil
}

func (f *fakeScanner) Scanned() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.scanned))
	copy(out, f.scanned)
	return out
}

// ─────────────────────────────
// Harness
// ─────────────────────────────

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.Local)

type harness struct {
	clock   *fakeClock
	inv     *inventorytest.Memory
	disc    *fakeDiscoverer
	pinger  *fakePinger
	scanner *fakeScanner
	monitor *Monitor
}

func newHarness(t *testing.T, hosts []domain.Host, opts ...Option) *harness {
	t.Helper()
	log := logger.New("error", false)

	h := &harness{
		clock:   newFakeClock(t0),
		inv:     inventorytest.NewMemory(hosts...),
		disc:    &fakeDiscoverer{},
		pinger:  &fakePinger{down: map[string]bool{}, errs: map[string]error{}},
		scanner: &fakeScanner{ports: map[string][]int{}, fail: map[string]bool{}},
	}

	settings := Settings{
		Subnet:            "10.0.0.0/24",
		Ports:             probe.PortRange{From: 22, To: 1024},
		TickInterval:      60 * time.Second,
		DiscoveryInterval: 600 * time.Second,
		PortScanInterval:  3600 * time.Second,
		Concurrency:       4,
	}
	probes := Probes{Discoverer: h.disc, Pinger: h.pinger, PortScanner: h.scanner}
	rec := reconcile.New(h.inv, nil, log, 4)

	opts = append([]Option{WithClock(h.clock)}, opts...)
	h.monitor = NewMonitor(settings, probes, h.inv, rec, log, opts...)
	return h
}

func host(name, ip string, available bool, ports ...int) domain.Host {
	if ports == nil {
		ports = []int{}
	}
	return domain.Host{
		IP:           ip,
		MAC:          "AA:BB:CC:00:00:01",
		Hostname:     name,
		LastHeard:    domain.NewTimestamp(t0.Add(-time.Hour)),
		Availability: available,
		OpenTCPPorts: ports,
	}
}

// ─────────────────────────────
// Tests
// ─────────────────────────────

func TestDue(t *testing.T) {
	interval := 600 * time.Second

	tests := []struct {
		name    string
		last    time.Time
		elapsed time.Duration
		want    bool
	}{
		{name: "never ran", last: time.Time{}, want: true},
		{name: "599s of 600s", last: t0, elapsed: 599 * time.Second, want: false},
		{name: "exactly 600s", last: t0, elapsed: 600 * time.Second, want: true},
		{name: "601s of 600s", last: t0, elapsed: 601 * time.Second, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Due(t0.Add(tt.elapsed), tt.last, interval))
		})
	}
}

func TestTick_FirstTickRunsEverything(t *testing.T) {
	h := newHarness(t, []domain.Host{host("h1", "10.0.0.1", true)})
	h.scanner.ports["10.0.0.1"] = []int{22}

	report := h.monitor.Tick(context.Background())

	assert.True(t, report.DiscoveryRan)
	assert.True(t, report.PortScanRan)
	assert.Equal(t, 1, report.Hosts)
	assert.Equal(t, Timers{LastDiscovery: t0, LastPortScan: t0}, h.monitor.Timers())
	assert.True(t, h.monitor.Ready())
}

func TestTick_DiscoveryInterval(t *testing.T) {
	h := newHarness(t, nil, WithTimers(Timers{LastDiscovery: t0, LastPortScan: t0}))

	h.clock.Advance(599 * time.Second)
	report := h.monitor.Tick(context.Background())
	assert.False(t, report.DiscoveryRan)
	assert.Equal(t, 0, h.disc.Calls())

	h.clock.Advance(2 * time.Second)
	report = h.monitor.Tick(context.Background())
	assert.True(t, report.DiscoveryRan)
	assert.Equal(t, 1, h.disc.Calls())
	assert.Equal(t, t0.Add(601*time.Second), h.monitor.Timers().LastDiscovery)
}

func TestTick_DiscoveryFailureRetriesNextTick(t *testing.T) {
	h := newHarness(t, nil)
	h.disc.err = probe.ErrProbeFailed

	report := h.monitor.Tick(context.Background())
	require.ErrorIs(t, report.DiscoveryErr, probe.ErrProbeFailed)
	assert.True(t, h.monitor.Timers().LastDiscovery.IsZero())

	h.disc.err = nil
	h.clock.Advance(60 * time.Second)
	report = h.monitor.Tick(context.Background())
	assert.True(t, report.DiscoveryRan)
	assert.NoError(t, report.DiscoveryErr)
	assert.Equal(t, t0.Add(60*time.Second), h.monitor.Timers().LastDiscovery)
}

func TestTick_DiscoveryCreatesHostsThenProbesThem(t *testing.T) {
	h := newHarness(t, nil)
	h.disc.neighbors = []probe.Neighbor{{IP: "10.0.0.5", MAC: "AA:BB:CC:DD:EE:FF"}}
	h.scanner.ports["10.0.0.5"] = []int{443, 22}

	report := h.monitor.Tick(context.Background())

	assert.Equal(t, 1, report.Discovery.Created)
	assert.Equal(t, 1, report.Hosts)

	got, ok := h.inv.Host("10.0.0.5")
	require.True(t, ok)
	assert.True(t, got.Availability)
	assert.Equal(t, []int{22, 443}, got.OpenTCPPorts, "liveness write must carry the fresh scan")
}

func TestTick_PortScanSkipsUnavailableAndKeepsFailedPorts(t *testing.T) {
	h := newHarness(t, []domain.Host{
		host("h1", "10.0.0.1", true, 22, 80),
		host("h2", "10.0.0.2", true),
		host("off", "10.0.0.3", false, 8080),
	}, WithTimers(Timers{LastDiscovery: t0}))
	h.scanner.fail["10.0.0.1"] = true
	h.scanner.ports["10.0.0.2"] = []int{3306}

	report := h.monitor.Tick(context.Background())

	assert.True(t, report.PortScanRan)
	assert.Equal(t, 1, report.PortScanFailures)
	assert.ElementsMatch(t, []string{"10.0.0.1", "10.0.0.2"}, h.scanner.Scanned())
	assert.Equal(t, t0, h.monitor.Timers().LastPortScan, "a per-host failure still advances the timer")

	h1, _ := h.inv.Host("h1")
	assert.Equal(t, []int{22, 80}, h1.OpenTCPPorts)
	h2, _ := h.inv.Host("h2")
	assert.Equal(t, []int{3306}, h2.OpenTCPPorts)
	off, _ := h.inv.Host("off")
	assert.Equal(t, []int{8080}, off.OpenTCPPorts)
}

func TestTick_LivenessMarksUnreachable(t *testing.T) {
	h := newHarness(t, []domain.Host{host("h1", "10.0.0.1", true, 22)},
		WithTimers(Timers{LastDiscovery: t0, LastPortScan: t0}))
	h.pinger.down["10.0.0.1"] = true

	report := h.monitor.Tick(context.Background())

	assert.Equal(t, 1, report.Unreachable)
	assert.Equal(t, 1, report.Liveness.Written)

	got, _ := h.inv.Host("h1")
	assert.False(t, got.Availability)
	assert.Equal(t, []int{22}, got.OpenTCPPorts)
	assert.True(t, got.LastHeard.Equal(t0.Add(-time.Hour)))
}

func TestTick_PingErrorCountsAsUnreachable(t *testing.T) {
	h := newHarness(t, []domain.Host{host("h1", "10.0.0.1", true)},
		WithTimers(Timers{LastDiscovery: t0, LastPortScan: t0}))
	h.pinger.errs["10.0.0.1"] = probe.ErrProbeFailed

	report := h.monitor.Tick(context.Background())

	assert.Equal(t, 1, report.Unreachable)
	got, _ := h.inv.Host("h1")
	assert.False(t, got.Availability)
}

func TestTick_UpsertFailureDoesNotStopPass(t *testing.T) {
	h := newHarness(t, []domain.Host{
		host("a", "10.0.0.1", true),
		host("b", "10.0.0.2", true),
		host("c", "10.0.0.3", true),
	}, WithTimers(Timers{LastDiscovery: t0, LastPortScan: t0}))
	h.inv.FailUpsert("b")

	report := h.monitor.Tick(context.Background())

	assert.Equal(t, reconcile.PassResult{Written: 2, Failed: 1}, report.Liveness)
	c, _ := h.inv.Host("c")
	assert.True(t, c.LastHeard.Equal(t0))
}

func TestTick_FetchFailureContinues(t *testing.T) {
	h := newHarness(t, []domain.Host{host("h1", "10.0.0.1", true)},
		WithTimers(Timers{LastDiscovery: t0}))
	h.inv.FailFetch(true)

	report := h.monitor.Tick(context.Background())

	assert.ErrorIs(t, report.FetchErr, inventory.ErrUnavailable)
	assert.Equal(t, 0, report.Hosts)
	assert.True(t, report.PortScanRan)
	assert.Empty(t, h.scanner.Scanned())
	assert.Empty(t, h.inv.Upserts())
	assert.Equal(t, uint64(1), h.monitor.Status().Ticks)
}

func TestTick_InventoryDownFailsDiscovery(t *testing.T) {
	h := newHarness(t, nil)
	h.disc.neighbors = []probe.Neighbor{{IP: "10.0.0.5"}}
	h.inv.FailFetch(true)

	report := h.monitor.Tick(context.Background())

	assert.ErrorIs(t, report.DiscoveryErr, inventory.ErrUnavailable)
	assert.True(t, h.monitor.Timers().LastDiscovery.IsZero())
}

func TestTick_InterruptedDiscoveryKeepsTimer(t *testing.T) {
	h := newHarness(t, nil)
	h.disc.neighbors = []probe.Neighbor{{IP: "10.0.0.5", MAC: "AA:BB:CC:DD:EE:05"}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.disc.onDiscover = cancel

	report := h.monitor.Tick(ctx)

	assert.True(t, report.DiscoveryRan)
	assert.ErrorIs(t, report.DiscoveryErr, context.Canceled)
	assert.True(t, h.monitor.Timers().LastDiscovery.IsZero())
}

func TestTick_CancelledPortScanKeepsTimer(t *testing.T) {
	h := newHarness(t, []domain.Host{host("h1", "10.0.0.1", true, 22)},
		WithTimers(Timers{LastDiscovery: t0}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.scanner.onScan = cancel
	h.scanner.fail["10.0.0.1"] = true

	report := h.monitor.Tick(ctx)

	assert.True(t, report.PortScanRan)
	assert.True(t, h.monitor.Timers().LastPortScan.IsZero())
	got, _ := h.inv.Host("h1")
	assert.Equal(t, []int{22}, got.OpenTCPPorts)
}

func TestTriggers(t *testing.T) {
	h := newHarness(t, nil, WithTimers(Timers{LastDiscovery: t0, LastPortScan: t0}))

	assert.True(t, h.monitor.TriggerDiscovery())
	assert.False(t, h.monitor.TriggerDiscovery(), "a pending trigger coalesces")
	assert.True(t, h.monitor.Status().PendingDiscovery)

	h.clock.Advance(time.Second)
	report := h.monitor.Tick(context.Background())

	assert.True(t, report.DiscoveryRan)
	assert.False(t, report.PortScanRan)
	assert.False(t, h.monitor.Status().PendingDiscovery)

	assert.True(t, h.monitor.TriggerPortScan())
	report = h.monitor.Tick(context.Background())
	assert.False(t, report.DiscoveryRan)
	assert.True(t, report.PortScanRan)
}

func TestRun(t *testing.T) {
	h := newHarness(t, []domain.Host{host("h1", "10.0.0.1", true)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.monitor.Run(ctx) }()

	require.Eventually(t, func() bool { return h.monitor.Status().Ticks == 1 },
		time.Second, 5*time.Millisecond, "Run ticks immediately")

	h.clock.Advance(60 * time.Second)
	h.clock.ticker.ch <- h.clock.Now()
	require.Eventually(t, func() bool { return h.monitor.Status().Ticks == 2 },
		time.Second, 5*time.Millisecond)

	h.monitor.TriggerPortScan()
	require.Eventually(t, func() bool { return h.monitor.Status().Ticks == 3 },
		time.Second, 5*time.Millisecond, "a trigger wakes the loop")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
