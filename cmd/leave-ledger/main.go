/*
main.go - Application entry point

PURPOSE:
  Command-line entry for the leave ledger service.

COMMANDS:
  serve      Start the HTTP API and the accrual scheduler
  migrate    Apply or roll back the Postgres schema (up|down|version)
  catch-up   Run accrual catch-up for every employee once and exit

CONFIGURATION:
  config.yaml in --config-dir (optional), overridden by LEDGER_* environment
  variables, e.g. LEDGER_DATABASE_DRIVER=postgres LEDGER_DATABASE_DSN=...
  See config/config.go for every key and its default.

EXAMPLES:
  # Run with file database
  LEDGER_DATABASE_PATH=./data/ledger.db leave-ledger serve

  # Run against Postgres
  LEDGER_DATABASE_DRIVER=postgres LEDGER_DATABASE_DSN=postgres://... leave-ledger migrate up
  LEDGER_DATABASE_DRIVER=postgres LEDGER_DATABASE_DSN=postgres://... leave-ledger serve

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Settings
*/
package main

func main() {
	Execute()
}
