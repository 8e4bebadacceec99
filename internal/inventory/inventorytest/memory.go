// Package inventorytest provides an in-memory inventory.Client for tests.
package inventorytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrSnakeDoc/hostwatch/internal/domain"
	"github.com/MrSnakeDoc/hostwatch/internal/inventory"
)

// Memory is a map-backed inventory with switchable failures.
type Memory struct {
	mu         sync.Mutex
	hosts      map[string]domain.Host
	upserts    []domain.Host
	failFetch  bool
	failUpsert map[string]bool
}

var _ inventory.Client = (*Memory)(nil)

func NewMemory(hosts ...domain.Host) *Memory {
	m := &Memory{
		hosts:      make(map[string]domain.Host, len(hosts)),
		failUpsert: make(map[string]bool),
	}
	for _, h := range hosts {
		m.hosts[h.Hostname] = h.Clone()
	}
	return m
}

// FailFetch makes FetchAll return ErrUnavailable while on is true.
func (m *Memory) FailFetch(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFetch = on
}

// FailUpsert makes writes for hostname fail.
func (m *Memory) FailUpsert(hostname string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failUpsert[hostname] = true
}

func (m *Memory) FetchAll(ctx context.Context) (map[string]domain.Host, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failFetch {
		return nil, fmt.Errorf("fetch hosts: %w", inventory.ErrUnavailable)
	}
	out := make(map[string]domain.Host, len(m.hosts))
	for k, h := range m.hosts {
		out[k] = h.Clone()
	}
	return out, nil
}

func (m *Memory) Upsert(ctx context.Context, host domain.Host) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failUpsert[host.Hostname] {
		return fmt.Errorf("upsert %s: %w", host.Hostname, inventory.ErrUnavailable)
	}
	m.hosts[host.Hostname] = host.Clone()
	m.upserts = append(m.upserts, host.Clone())
	return nil
}

// Host returns the stored record for hostname.
func (m *Memory) Host(hostname string) (domain.Host, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hosts[hostname]
	return h.Clone(), ok
}

// Upserts returns every successful write in order.
func (m *Memory) Upserts() []domain.Host {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Host, len(m.upserts))
	copy(out, m.upserts)
	return out
}

// Len is the number of stored records.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hosts)
}
