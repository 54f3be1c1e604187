package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/mancow2001/ntx-custom-monitor/internal/collector"
	"github.com/mancow2001/ntx-custom-monitor/internal/oid"
	"github.com/mancow2001/ntx-custom-monitor/internal/snapshot"
	"github.com/mancow2001/ntx-custom-monitor/internal/version"
)

func runWalk(args []string) int {
	fs := flag.NewFlagSet("walk", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	testMode := fs.Bool("test-mode", false, "walk simulated telemetry")
	verbose := fs.Bool("v", false, "log collection progress to stderr")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(*configPath, *testMode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logger := zap.NewNop()
	if *verbose {
		cfg.Daemon.LogFormat = "console"
		if logger, err = newLogger(cfg.Daemon); err != nil {
			fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
			return 1
		}
	}

	src, err := newSource(cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	base, err := oid.Parse(cfg.SNMP.BaseOID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "base oid: %v\n", err)
		return 1
	}

	cache := snapshot.NewCache(nil)
	opts := collector.OptionsFromConfig(cfg)
	opts.CacheEnabled = false
	engine := collector.NewEngine(src, cache, opts, logger)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Daemon.CollectionInterval)
	defer cancel()
	snap := engine.Collect(ctx)

	writeWalk(os.Stdout, oid.NewIndex(base, cache, version.Short()).Entries())
	fmt.Fprintf(os.Stderr, "%d clusters, %d hosts, %d vms in %s\n",
		snap.Clusters.Len(), snap.Hosts.Len(), snap.VMs.Len(), snap.CollectionDuration)
	if !snap.SourceHealthy {
		fmt.Fprintln(os.Stderr, "warning: source reported unhealthy")
		return 1
	}
	return 0
}

func writeWalk(w io.Writer, entries []oid.Entry) {
	tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
	for _, e := range entries {
		switch e.Value.Type {
		case oid.OctetString:
			fmt.Fprintf(tw, ".%s\t= %s:\t%q\n", e.OID, e.Value.Type, e.Value.Str)
		default:
			fmt.Fprintf(tw, ".%s\t= %s:\t%d\n", e.OID, e.Value.Type, e.Value.Num)
		}
	}
	_ = tw.Flush()
}
