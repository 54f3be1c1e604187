package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mancow2001/ntx-custom-monitor/internal/config"
)

func runInitConfig(args []string) int {
	fs := flag.NewFlagSet("init-config", flag.ExitOnError)
	output := fs.String("output", "config.yaml", "path of the configuration file to create")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if err := config.WriteDefault(*output); err != nil {
		fmt.Fprintf(os.Stderr, "init-config failed: %v\n", err)
		return 1
	}
	fmt.Printf("Configuration written: %s\n", *output)
	fmt.Println("Edit the prism and snmp credentials before starting the daemon.")
	return 0
}

func runCheckConfig(args []string) int {
	fs := flag.NewFlagSet("check-config", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration invalid:\n%v\n", err)
		return 1
	}

	file := cfg.File
	if file == "" {
		file = "(defaults and environment)"
	}
	fmt.Printf("Configuration OK: %s\n", file)
	fmt.Printf("  prism:   %s:%d (user %s)\n", cfg.Prism.Address, cfg.Prism.Port, cfg.Prism.Username)
	fmt.Printf("  snmp:    %s:%d (user %s, %s/%s)\n", cfg.SNMP.BindIP, cfg.SNMP.BindPort, cfg.SNMP.Username, cfg.SNMP.AuthProtocol, cfg.SNMP.PrivProtocol)
	fmt.Printf("  base:    %s\n", cfg.SNMP.BaseOID)
	fmt.Printf("  vms:     %t\n", cfg.Metrics.VMEnabled())
	fmt.Printf("  every:   %s\n", cfg.Daemon.CollectionInterval)
	return 0
}
