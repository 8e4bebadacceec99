package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/hostwatch/internal/app"
	"github.com/MrSnakeDoc/hostwatch/internal/config"
	"github.com/MrSnakeDoc/hostwatch/internal/version"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hostwatch",
		Short:         "Discover, ping and port-scan the hosts of a subnet into a shared inventory",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newMonitorCmd(), newInventoryCmd(), newVersionCmd())
	return root
}

type monitorFlags struct {
	configFile        string
	tick              time.Duration
	discoveryInterval time.Duration
	portScanInterval  time.Duration
	subnet            string
	inventoryURL      string
	portRange         string
	engine            string
	statusAddr        string
}

func newMonitorCmd() *cobra.Command {
	f := &monitorFlags{}

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run the monitoring daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.configFile, f.overrides(cmd)...)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			mon, err := app.NewMonitor(cfg)
			if err != nil {
				return err
			}
			return mon.Run()
		},
	}

	f.register(cmd)
	return cmd
}

func (f *monitorFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.configFile, "config", "", "YAML config file (env: HOSTWATCH_CONFIG_FILE)")
	fl.DurationVar(&f.tick, "tick", 60*time.Second, "tick cadence, liveness runs every tick")
	fl.DurationVar(&f.discoveryInterval, "discovery-interval", 600*time.Second, "subnet discovery period")
	fl.DurationVar(&f.portScanInterval, "portscan-interval", 3600*time.Second, "port scan period")
	fl.StringVar(&f.subnet, "subnet", "", "IPv4 subnet to monitor, CIDR form")
	fl.StringVar(&f.inventoryURL, "inventory-url", "", "base URL of the inventory service")
	fl.StringVar(&f.portRange, "ports", "", `TCP port range to scan, ex: "22-1024"`)
	fl.StringVar(&f.engine, "portscan-engine", "", "port scan engine: nmap or connect")
	fl.StringVar(&f.statusAddr, "status-addr", "", `status server listen address, "off" disables it`)
}

// overrides returns one config override per flag set explicitly on the command line.
func (f *monitorFlags) overrides(cmd *cobra.Command) []config.Override {
	changed := cmd.Flags().Changed
	var out []config.Override

	if changed("tick") {
		out = append(out, func(c *config.Config) { c.TickInterval = f.tick })
	}
	if changed("discovery-interval") {
		out = append(out, func(c *config.Config) { c.DiscoveryInterval = f.discoveryInterval })
	}
	if changed("portscan-interval") {
		out = append(out, func(c *config.Config) { c.PortScanInterval = f.portScanInterval })
	}
	if changed("subnet") {
		out = append(out, func(c *config.Config) { c.Subnet = f.subnet })
	}
	if changed("inventory-url") {
		out = append(out, func(c *config.Config) { c.InventoryURL = f.inventoryURL })
	}
	if changed("ports") {
		out = append(out, func(c *config.Config) { c.PortRange = f.portRange })
	}
	if changed("portscan-engine") {
		out = append(out, func(c *config.Config) { c.PortScanEngine = f.engine })
	}
	if changed("status-addr") {
		out = append(out, func(c *config.Config) {
			c.StatusListenAddr = f.statusAddr
			if f.statusAddr == "off" {
				c.StatusListenAddr = ""
			}
		})
	}

	return out
}

func newInventoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inventory",
		Short: "Run the reference inventory service (Redis backed)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadInventory()
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			inv, err := app.NewInventory(cfg)
			if err != nil {
				return err
			}
			return inv.Run()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
