// Command ntx-snmpd polls Nutanix Prism Central and serves the collected
// cluster, host and VM statistics over SNMPv3.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/mancow2001/ntx-custom-monitor/internal/version"
)

const usage = `usage: ntx-snmpd [command] [flags]

commands:
  run            run the daemon (default)
  init-config    write a default configuration file
  check-config   load and validate a configuration file
  walk           collect once and print every served OID
  version        print version information

Run "ntx-snmpd <command> -h" for command flags.
`

func main() {
	os.Exit(dispatch(os.Args[1:]))
}

func dispatch(args []string) int {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		if len(args) > 0 && (args[0] == "-h" || args[0] == "-help" || args[0] == "--help") {
			fmt.Fprint(os.Stderr, usage)
			return 0
		}
		return runDaemon(args)
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "run":
		return runDaemon(rest)
	case "init-config":
		return runInitConfig(rest)
	case "check-config":
		return runCheckConfig(rest)
	case "walk":
		return runWalk(rest)
	case "version":
		fmt.Println(version.Info())
		return 0
	case "help":
		fmt.Print(usage)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}
}
