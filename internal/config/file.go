package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML overlay for the monitor. Every field is optional;
// durations use Go syntax ("90s", "10m").
//
//	subnet: 192.168.1.0/24
//	inventory_url: http://inventory.lan:5000
//	intervals:
//	  tick: 30s
//	  discovery: 5m
//	  portscan: 1h
type FileConfig struct {
	Subnet         string   `yaml:"subnet"`
	InventoryURL   string   `yaml:"inventory_url"`
	PortRange      string   `yaml:"port_range"`
	PortScanEngine string   `yaml:"portscan_engine"`
	Concurrency    int      `yaml:"probe_concurrency"`
	LogLevel       string   `yaml:"log_level"`
	LogFile        string   `yaml:"log_file"`
	StatusAddr     *string  `yaml:"status_addr"`
	AllowedCIDRS   []string `yaml:"allowed_cidrs"`

	Intervals struct {
		Tick      string `yaml:"tick"`
		Discovery string `yaml:"discovery"`
		PortScan  string `yaml:"portscan"`
	} `yaml:"intervals"`

	Ping struct {
		Count      int    `yaml:"count"`
		Interval   string `yaml:"interval"`
		Timeout    string `yaml:"timeout"`
		Privileged *bool  `yaml:"privileged"`
	} `yaml:"ping"`

	Timeouts struct {
		Discovery string `yaml:"discovery"`
		PortScan  string `yaml:"portscan"`
		Connect   string `yaml:"connect"`
		DNS       string `yaml:"dns"`
		Inventory string `yaml:"inventory"`
	} `yaml:"timeouts"`
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadFile reads and parses a YAML overlay. ${VAR} references are expanded from the environment.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	data = envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		return []byte(os.Getenv(string(envRef.FindSubmatch(m)[1])))
	})

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config yaml: %w", err)
	}

	return &fc, nil
}

func (fc *FileConfig) apply(cfg *Config) error {
	setString(&cfg.Subnet, fc.Subnet)
	setString(&cfg.InventoryURL, fc.InventoryURL)
	setString(&cfg.PortRange, fc.PortRange)
	setString(&cfg.PortScanEngine, fc.PortScanEngine)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogFile, fc.LogFile)
	if fc.Concurrency > 0 {
		cfg.ProbeConcurrency = fc.Concurrency
	}
	if fc.StatusAddr != nil {
		cfg.StatusListenAddr = *fc.StatusAddr
	}
	if len(fc.AllowedCIDRS) > 0 {
		cfg.AllowedCIDRS = fc.AllowedCIDRS
	}
	if fc.Ping.Count > 0 {
		cfg.PingCount = fc.Ping.Count
	}
	if fc.Ping.Privileged != nil {
		cfg.PingPrivileged = *fc.Ping.Privileged
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"intervals.tick", fc.Intervals.Tick, &cfg.TickInterval},
		{"intervals.discovery", fc.Intervals.Discovery, &cfg.DiscoveryInterval},
		{"intervals.portscan", fc.Intervals.PortScan, &cfg.PortScanInterval},
		{"ping.interval", fc.Ping.Interval, &cfg.PingInterval},
		{"ping.timeout", fc.Ping.Timeout, &cfg.PingTimeout},
		{"timeouts.discovery", fc.Timeouts.Discovery, &cfg.DiscoveryTimeout},
		{"timeouts.portscan", fc.Timeouts.PortScan, &cfg.PortScanTimeout},
		{"timeouts.connect", fc.Timeouts.Connect, &cfg.ConnectTimeout},
		{"timeouts.dns", fc.Timeouts.DNS, &cfg.DNSTimeout},
		{"timeouts.inventory", fc.Timeouts.Inventory, &cfg.InventoryTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("config file: invalid %s %q: %w", d.name, d.raw, err)
		}
		*d.dst = v
	}

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
