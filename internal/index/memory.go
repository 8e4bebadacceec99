package index

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/MrSnakeDoc/hostwatch/internal/domain"
)

// MemoryIndex holds the inventory's host records in memory, keyed by hostname.
// Reads are served from here; Redis is the durable copy.
type MemoryIndex struct {
	mu       sync.RWMutex
	hosts    map[string]domain.Host // hostname -> record
	lastSync time.Time              // last full replace from Redis

	writers [writeStripes]sync.Mutex
}

const writeStripes = 64

// NewMemoryIndex creates a new memory index
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		hosts: make(map[string]domain.Host),
	}
}

// UpdateHosts replaces all hosts in the index
func (idx *MemoryIndex) UpdateHosts(hosts []domain.Host) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.hosts = make(map[string]domain.Host, len(hosts))
	for _, host := range hosts {
		idx.hosts[host.Hostname] = host.Clone()
	}
	idx.lastSync = time.Now()
}

// GetHost retrieves a host by hostname
func (idx *MemoryIndex) GetHost(hostname string) (domain.Host, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	host, ok := idx.hosts[hostname]
	if !ok {
		return domain.Host{}, false
	}
	return host.Clone(), true
}

// GetAllHosts returns a copy of every host keyed by hostname
func (idx *MemoryIndex) GetAllHosts() map[string]domain.Host {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	hosts := make(map[string]domain.Host, len(idx.hosts))
	for name, host := range idx.hosts {
		hosts[name] = host.Clone()
	}
	return hosts
}

// PutHost adds or replaces a single host
func (idx *MemoryIndex) PutHost(host domain.Host) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.hosts[host.Hostname] = host.Clone()
}

// DeleteHost removes a host from the index
func (idx *MemoryIndex) DeleteHost(hostname string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	delete(idx.hosts, hostname)
}

// LockHost serializes writers of one hostname across Redis and the index.
// Hostnames share a fixed set of stripes, so unrelated hosts may wait on each other.
func (idx *MemoryIndex) LockHost(hostname string) (unlock func()) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(hostname))
	m := &idx.writers[h.Sum32()%writeStripes]
	m.Lock()
	return m.Unlock
}

// Count returns the number of hosts in the index
func (idx *MemoryIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.hosts)
}

// LastSync returns when the index was last replaced from Redis
func (idx *MemoryIndex) LastSync() time.Time {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.lastSync
}
