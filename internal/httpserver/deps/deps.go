package deps

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/hostwatch/internal/domain"
	"github.com/MrSnakeDoc/hostwatch/internal/index"
	"github.com/MrSnakeDoc/hostwatch/internal/logger"
	"github.com/MrSnakeDoc/hostwatch/internal/scheduler"
)

// HostWriter persists host records behind the memory index.
type HostWriter interface {
	SaveHost(ctx context.Context, host domain.Host) error
}

// MonitorControl is what the status endpoints need from a running monitor.
type MonitorControl interface {
	Status() scheduler.Status
	Ready() bool
	TriggerDiscovery() bool
	TriggerPortScan() bool
}

// Deps carries everything route registrars may need. Routes whose
// dependencies are nil are not mounted, so the same package serves both
// the inventory API and the monitor status API.
type Deps struct {
	Logger       logger.Logger
	StartTime    time.Time
	Version      string
	Commit       string
	BuildDate    string
	GoVersion    string
	AllowedCIDRS []string // IPs allowed to reach control and probe endpoints
	TrustProxy   bool     // true if running behind a trusted reverse proxy

	// inventory service
	Hosts       *index.MemoryIndex // in-memory host records, served by GET /hosts
	Store       HostWriter         // durable copy, nil keeps writes in memory only
	RedisClient *redis.Client      // pinged by readyz and infra

	// monitor
	Monitor MonitorControl
}
