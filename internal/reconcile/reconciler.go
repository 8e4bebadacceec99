// Package reconcile turns probe observations into inventory writes.
//
// Every write is a full-record upsert built from the latest fetched copy of
// the host, so an activity either lands completely for a host or not at all.
// Upsert failures are logged and counted; they never stop a pass.
package reconcile

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/hostwatch/internal/domain"
	"github.com/MrSnakeDoc/hostwatch/internal/inventory"
	"github.com/MrSnakeDoc/hostwatch/internal/logger"
	"github.com/MrSnakeDoc/hostwatch/internal/probe"
)

const defaultConcurrency = 16

// Reconciler owns the merge rules of the three monitoring activities.
type Reconciler struct {
	inventory   inventory.Client
	resolver    probe.Resolver
	logger      logger.Logger
	concurrency int
}

// New returns a Reconciler writing to client. resolver may be nil, in which
// case every discovered host is keyed by its IP.
func New(client inventory.Client, resolver probe.Resolver, log logger.Logger, concurrency int) *Reconciler {
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}

	return &Reconciler{
		inventory:   client,
		resolver:    resolver,
		logger:      log,
		concurrency: concurrency,
	}
}

// PassResult counts what a merge pass did.
type PassResult struct {
	Written int // records upserted
	Skipped int // no write was due
	Failed  int // upserts rejected by the inventory
}

func (p *PassResult) add(o outcome) {
	switch o {
	case written:
		p.Written++
	case skipped:
		p.Skipped++
	case failed:
		p.Failed++
	}
}

type outcome int

const (
	skipped outcome = iota
	written
	failed
)

func (r *Reconciler) upsert(ctx context.Context, host domain.Host, activity string) outcome {
	if err := r.inventory.Upsert(ctx, host); err != nil {
		r.logger.Error("inventory upsert failed",
			logger.String("activity", activity),
			logger.String("hostname", host.Hostname),
			logger.String("ip", host.IP),
			logger.Error(err))
		return failed
	}
	return written
}

// ─────────────────────────────
// Discovery
// ─────────────────────────────

// DiscoveryResult summarises one discovery merge.
type DiscoveryResult struct {
	Seen       int // neighbours reported by the probe
	Created    int // new records upserted
	Known      int // neighbours whose key already existed
	Unresolved int // neighbours keyed by IP for lack of a DNS name
	Failed     int // upserts rejected by the inventory
}

// identify resolves the inventory key of ip, falling back to the IP itself.
// It returns the zero Identity when ctx ended before the lookup answered.
func (r *Reconciler) identify(ctx context.Context, ip string) domain.Identity {
	if r.resolver == nil {
		return domain.Unresolved(ip)
	}

	name, err := r.resolver.LookupAddr(ctx, ip)
	if err != nil && ctx.Err() != nil {
		return domain.Identity{}
	}
	if err != nil || name == "" {
		r.logger.Debug("no reverse DNS entry, keying host by address",
			logger.String("ip", ip),
			logger.Error(err))
		return domain.Unresolved(ip)
	}
	return domain.Identified(name)
}

// MergeDiscovery registers every neighbour whose key is absent from snapshot.
// Hosts already present are never touched. Names are resolved concurrently
// and stop with ctx; neighbours left unnamed are dropped from the pass.
// Upserts run one at a time in neighbour order and outlive ctx.
func (r *Reconciler) MergeDiscovery(
	ctx context.Context,
	snapshot map[string]domain.Host,
	neighbors []probe.Neighbor,
	now time.Time,
) DiscoveryResult {
	res := DiscoveryResult{Seen: len(neighbors)}

	ids := make([]domain.Identity, len(neighbors))
	_ = probe.ForEach(ctx, r.concurrency, len(neighbors), func(ctx context.Context, i int) {
		ids[i] = r.identify(ctx, neighbors[i].IP)
	})

	writeCtx := context.WithoutCancel(ctx)

	created := make(map[string]struct{})
	for i, n := range neighbors {
		id := ids[i]
		if id.Key() == "" {
			// cancelled before the name was known
			continue
		}

		if _, ok := snapshot[id.Key()]; ok {
			res.Known++
			continue
		}
		if _, ok := created[id.Key()]; ok {
			res.Known++
			continue
		}
		if !id.Resolved() {
			res.Unresolved++
		}

		host := domain.NewDiscoveredHost(id, n.IP, n.MAC, now)
		if r.upsert(writeCtx, host, "discovery") == failed {
			res.Failed++
			continue
		}

		created[id.Key()] = struct{}{}
		res.Created++
		r.logger.Info("new host discovered",
			logger.String("hostname", host.Hostname),
			logger.String("ip", host.IP),
			logger.String("mac", host.MAC),
			logger.Bool("resolved", id.Resolved()))
	}

	return res
}

// ─────────────────────────────
// Liveness
// ─────────────────────────────

// Liveness is the outcome of one liveness probe.
type Liveness struct {
	Probed    bool // false when the probe never ran
	Reachable bool
}

// MergeLiveness records a liveness outcome and always writes the record back.
func (r *Reconciler) MergeLiveness(ctx context.Context, host domain.Host, reachable bool, now time.Time) bool {
	updated := host.WithLiveness(reachable, now)
	return r.upsert(ctx, updated, "liveness") == written
}

// ApplyLiveness merges results[i] into hosts[i] for every probed host.
func (r *Reconciler) ApplyLiveness(ctx context.Context, hosts []domain.Host, results []Liveness, now time.Time) PassResult {
	var pass PassResult
	for i, host := range hosts {
		if i >= len(results) || !results[i].Probed {
			pass.add(skipped)
			continue
		}
		if r.MergeLiveness(ctx, host, results[i].Reachable, now) {
			pass.add(written)
		} else {
			pass.add(failed)
		}
	}
	return pass
}

// ─────────────────────────────
// Port scan
// ─────────────────────────────

// PortScan is the outcome of one port scan.
type PortScan struct {
	Probed bool // false when the scan never ran
	Ports  []int
	Err    error
}

// MergePortScan replaces the open port set of host after a successful scan.
// A failed scan leaves the record alone and writes nothing. The returned host
// is the record as the inventory now holds it.
func (r *Reconciler) MergePortScan(ctx context.Context, host domain.Host, ports []int, scanErr error) (domain.Host, bool) {
	if scanErr != nil {
		r.logger.Warn("port scan failed, keeping previous ports",
			logger.String("hostname", host.Hostname),
			logger.String("ip", host.IP),
			logger.Ints("open_tcp_ports", host.OpenTCPPorts),
			logger.Error(scanErr))
		return host, false
	}

	updated := host.WithOpenPorts(ports)
	if r.upsert(ctx, updated, "portscan") != written {
		return host, false
	}
	return updated, true
}

// ApplyPortScan merges results[i] into hosts[i] for every scanned host and
// returns the host list with the written records swapped in, so that later
// activities in the same tick build on them.
func (r *Reconciler) ApplyPortScan(ctx context.Context, hosts []domain.Host, results []PortScan) ([]domain.Host, PassResult) {
	var pass PassResult
	out := make([]domain.Host, len(hosts))
	for i, host := range hosts {
		if i >= len(results) || !results[i].Probed {
			out[i] = host
			pass.add(skipped)
			continue
		}

		var ok bool
		out[i], ok = r.MergePortScan(ctx, host, results[i].Ports, results[i].Err)
		switch {
		case results[i].Err != nil:
			pass.add(skipped)
		case ok:
			pass.add(written)
		default:
			pass.add(failed)
		}
	}
	return out, pass
}
