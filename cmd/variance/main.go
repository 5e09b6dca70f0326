/*
main.go - Command-line entry point

PURPOSE:
  Runs variance analyses from the terminal against the same SQLite
  database the server uses, or against export files on disk.

COMMANDS:
  variance analyze      Analyze one org/board/period
  variance history      List recorded runs for an org/board
  variance thresholds   Show or save an organization's thresholds

GLOBAL FLAGS:
  --config     TOML config path (default: variance.toml, optional)
  --db         SQLite database path (overrides config)
  --log-level  debug, info, warn, error (default: warn)
  --json       Print JSON instead of tables

EXAMPLES:
  variance analyze --org acme --board opex --period 2025-03 \
      --budgets plan.json --actuals ledger.json
  variance analyze --org acme --board opex --period 2025-03 --dir ./exports
  variance history --org acme --board opex
  variance thresholds set --org acme --file thresholds.yaml

SEE ALSO:
  - cli/render.go: Table rendering
  - reconcile/service.go: Run orchestration
  - ingest/source.go: Export file formats
*/
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
