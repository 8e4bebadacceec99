package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the settings of the monitoring daemon.
type Config struct {
	ShutdownTimeout time.Duration `validate:"gt=0"` // ex: 5s

	LogLevel   string `validate:"omitempty,oneof=debug info warn error"`
	PrettyLog  bool   // true => zap dev (color), false => zap prod (JSON)
	LogFile    string // optional rotated log file
	LogMaxSize int    // MB before rotation

	// Scheduling
	TickInterval      time.Duration `validate:"gt=0"` // liveness cadence (default: 60s)
	DiscoveryInterval time.Duration `validate:"gt=0"` // subnet sweep period (default: 600s)
	PortScanInterval  time.Duration `validate:"gt=0"` // port scan period (default: 3600s)

	// Probing
	Subnet           string        `validate:"required,cidrv4"` // ex: "192.168.254.0/24"
	PortRange        string        `validate:"required"`        // ex: "22-1024"
	PortScanEngine   string        `validate:"oneof=nmap connect"`
	ProbeConcurrency int           `validate:"min=1,max=1024"`
	DiscoveryTimeout time.Duration `validate:"gt=0"`
	PortScanTimeout  time.Duration `validate:"gt=0"` // per host
	ConnectTimeout   time.Duration `validate:"gt=0"` // per port, connect engine only
	PingCount        int           `validate:"min=1"`
	PingInterval     time.Duration `validate:"gt=0"`
	PingTimeout      time.Duration `validate:"gt=0"`
	PingPrivileged   bool          // raw ICMP sockets (needs CAP_NET_RAW)
	DNSTimeout       time.Duration `validate:"gt=0"`
	InventoryURL     string        `validate:"required,url"` // ex: "http://127.0.0.1:5000"
	InventoryTimeout time.Duration `validate:"gt=0"`
	StatusListenAddr string        // ex: ":8081", empty disables the status server
	AllowedCIDRS     []string      // optional, restrict access to the status endpoints
	TrustProxy       bool          // true => trust X-Forwarded-For headers
	ConfigFile       string        // YAML overlay applied before env
}

// InventoryConfig holds the settings of the reference inventory service.
type InventoryConfig struct {
	ListenAddr      string        `validate:"required"` // ex: ":5000"
	ShutdownTimeout time.Duration `validate:"gt=0"`

	LogLevel  string `validate:"omitempty,oneof=debug info warn error"`
	PrettyLog bool
	LogFile   string

	Retention  time.Duration `validate:"gt=0"` // hosts not heard for this long are dropped
	GCInterval time.Duration `validate:"gt=0"`

	// Redis
	RedisAddr           string        `validate:"required"` // ex: "localhost:6379"
	RedisUser           string        // optional
	RedisPassword       string        // optional
	RedisDB             int           `validate:"min=0"`
	RedisDT             time.Duration `validate:"gt=0"`                             // Redis dial timeout (ex: 5s)
	RedisRT             time.Duration `validate:"gt=0"`                             // Redis read timeout (ex: 3s)
	RedisWT             time.Duration `validate:"gt=0"`                             // Redis write timeout (ex: 3s)
	RedisMaxWait        time.Duration `validate:"gt=0,gtefield=RedisRetryInterval"` // max wait between retries (ex: 10s)
	RedisPingTimeout    time.Duration `validate:"gt=0"`                             // timeout for each ping attempt (ex: 5s)
	RedisPoolSize       int           `validate:"min=0"`                            // Redis connection pool size
	RedisConnectTimeout time.Duration `validate:"gt=0"`                             // Total time to retry connecting (ex: 30s)
	RedisRetryInterval  time.Duration `validate:"gt=0"`                             // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold  int           `validate:"min=0"`                            // warn after this many attempts

	AllowedCIDRS []string // optional, restrict who may PUT hosts
	TrustProxy   bool
}

// Defaults returns the monitor configuration before any file or env overlay.
func Defaults() *Config {
	return &Config{
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		PrettyLog:         true,
		LogMaxSize:        50,
		TickInterval:      60 * time.Second,
		DiscoveryInterval: 600 * time.Second,
		PortScanInterval:  3600 * time.Second,
		Subnet:            "192.168.254.0/24",
		PortRange:         "22-1024",
		PortScanEngine:    "nmap",
		ProbeConcurrency:  16,
		DiscoveryTimeout:  2 * time.Minute,
		PortScanTimeout:   5 * time.Minute,
		ConnectTimeout:    time.Second,
		PingCount:         3,
		PingInterval:      500 * time.Millisecond,
		PingTimeout:       2 * time.Second,
		DNSTimeout:        2 * time.Second,
		InventoryURL:      "http://127.0.0.1:5000",
		InventoryTimeout:  5 * time.Second,
		StatusListenAddr:  ":8081",
	}
}

// Override mutates the configuration after env has been applied (CLI flags).
type Override func(*Config)

// Load builds the monitor configuration: defaults, then the YAML file named by
// configFile (or HOSTWATCH_CONFIG_FILE), then environment variables, then overrides.
func Load(configFile string, overrides ...Override) (*Config, error) {
	cfg := Defaults()

	cfg.ConfigFile = getenv("HOSTWATCH_CONFIG_FILE", "")
	if configFile != "" {
		cfg.ConfigFile = configFile
	}
	if cfg.ConfigFile != "" {
		fc, err := LoadFile(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
		if err := fc.apply(cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	for _, o := range overrides {
		o(cfg)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	// Log config only in debug mode
	if cfg.LogLevel == "debug" {
		log.Printf("[DEBUG] cfg: %+v\n", *cfg)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.ShutdownTimeout = mustDuration("HOSTWATCH_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)

	// Logging
	cfg.LogLevel = getenv("HOSTWATCH_LOG_LEVEL", cfg.LogLevel)
	cfg.PrettyLog = mustBool("HOSTWATCH_PRETTY_LOG", cfg.PrettyLog)
	cfg.LogFile = getenv("HOSTWATCH_LOG_FILE", cfg.LogFile)
	cfg.LogMaxSize = getenvInt("HOSTWATCH_LOG_MAX_SIZE_MB", cfg.LogMaxSize)

	// Scheduling
	cfg.TickInterval = mustDuration("HOSTWATCH_TICK_INTERVAL", cfg.TickInterval)
	cfg.DiscoveryInterval = mustDuration("HOSTWATCH_DISCOVERY_INTERVAL", cfg.DiscoveryInterval)
	cfg.PortScanInterval = mustDuration("HOSTWATCH_PORTSCAN_INTERVAL", cfg.PortScanInterval)

	// Probing
	cfg.Subnet = getenv("HOSTWATCH_SUBNET", cfg.Subnet)
	cfg.PortRange = getenv("HOSTWATCH_PORT_RANGE", cfg.PortRange)
	cfg.PortScanEngine = getenv("HOSTWATCH_PORTSCAN_ENGINE", cfg.PortScanEngine)
	cfg.ProbeConcurrency = getenvInt("HOSTWATCH_PROBE_CONCURRENCY", cfg.ProbeConcurrency)
	cfg.DiscoveryTimeout = mustDuration("HOSTWATCH_DISCOVERY_TIMEOUT", cfg.DiscoveryTimeout)
	cfg.PortScanTimeout = mustDuration("HOSTWATCH_PORTSCAN_TIMEOUT", cfg.PortScanTimeout)
	cfg.ConnectTimeout = mustDuration("HOSTWATCH_CONNECT_TIMEOUT", cfg.ConnectTimeout)
	cfg.PingCount = getenvInt("HOSTWATCH_PING_COUNT", cfg.PingCount)
	cfg.PingInterval = mustDuration("HOSTWATCH_PING_INTERVAL", cfg.PingInterval)
	cfg.PingTimeout = mustDuration("HOSTWATCH_PING_TIMEOUT", cfg.PingTimeout)
	cfg.PingPrivileged = mustBool("HOSTWATCH_PING_PRIVILEGED", cfg.PingPrivileged)
	cfg.DNSTimeout = mustDuration("HOSTWATCH_DNS_TIMEOUT", cfg.DNSTimeout)

	// Inventory
	cfg.InventoryURL = strings.TrimRight(getenv("HOSTWATCH_INVENTORY_URL", cfg.InventoryURL), "/")
	cfg.InventoryTimeout = mustDuration("HOSTWATCH_INVENTORY_TIMEOUT", cfg.InventoryTimeout)

	// Status server
	cfg.StatusListenAddr = getenvAllowEmpty("HOSTWATCH_STATUS_ADDR", cfg.StatusListenAddr)
	if v := getenv("HOSTWATCH_ALLOWED_CIDRS", ""); v != "" {
		cfg.AllowedCIDRS = parseAllowedIPs(v)
	}
	cfg.TrustProxy = mustBool("HOSTWATCH_TRUST_PROXY", cfg.TrustProxy)
}

// LoadInventory builds the inventory service configuration from the environment.
func LoadInventory() (*InventoryConfig, error) {
	cfg := &InventoryConfig{
		ListenAddr:      getenv("HOSTWATCH_INVENTORY_LISTEN", ":5000"),
		ShutdownTimeout: mustDuration("HOSTWATCH_SHUTDOWN_TIMEOUT", 5*time.Second),

		LogLevel:  getenv("HOSTWATCH_LOG_LEVEL", "info"),
		PrettyLog: mustBool("HOSTWATCH_PRETTY_LOG", true),
		LogFile:   getenv("HOSTWATCH_LOG_FILE", ""),

		Retention:  mustDuration("HOSTWATCH_RETENTION", 30*24*time.Hour),
		GCInterval: mustDuration("HOSTWATCH_GC_INTERVAL", 24*time.Hour),

		// Redis settings
		RedisAddr:           getenv("HOSTWATCH_REDIS_ADDR", "localhost:6379"),
		RedisUser:           getenv("HOSTWATCH_REDIS_USERNAME", ""),
		RedisPassword:       getenv("HOSTWATCH_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("HOSTWATCH_REDIS_DB", 0),
		RedisDT:             mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:             mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:             mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:        mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:       getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout: mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:  getenvInt("REDIS_WARN_THRESHOLD", 3),

		AllowedCIDRS: parseAllowedIPs(getenv("HOSTWATCH_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("HOSTWATCH_TRUST_PROXY", false),
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		if cfgCopy.RedisPassword != "" {
			cfgCopy.RedisPassword = "***REDACTED***"
		}
		log.Printf("[DEBUG] inventory cfg: %+v\n", cfgCopy)
	}

	return cfg, nil
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getenvAllowEmpty distinguishes "unset" from "set to empty" so a feature can be switched off.
func getenvAllowEmpty(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
