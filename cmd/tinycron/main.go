// tinycron - Entry Point
//
// tinycron is a small cron daemon. It reads its jobs from a YAML file,
// polls the clock every poll_interval seconds and runs each job whose
// schedule has an occurrence in the time elapsed since the previous poll.
//
// Subcommands:
//   - run      start the daemon (normally under systemd, Type=notify)
//   - next     print upcoming occurrences of a cron expression
//   - check    validate a config file
//   - history  show recorded job runs
//   - init     write a starter config file
//   - version  print build information
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
}
