// adm is the command-line interface for the go-adm data model library.
//
// Usage:
//
//	adm <command> [flags]
//
// Commands:
//
//	init        Create an adm.yaml configuration file
//	aggs        Normalise and render aggregations from a search response
//	get         Load a model through the gateway and cache
//	search      Run a search and show hits and aggregations
//	cache       Manage cached responses
//	diagnose    Run diagnostic checks on your setup
//	version     Show version information
//
// Examples:
//
//	# Create a configuration
//	adm init --non-interactive --driver=redis
//
//	# Render the aggregations of a saved response
//	adm aggs response.json --sort category=Books,Music
//
//	# Load a model
//	adm get article 42 --full
//
//	# Run diagnostics
//	adm diagnose --metrics
//
// A .env file in the working directory is loaded before the configuration,
// so ADM_* overrides and the variables referenced by adm.yaml may live there.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/AshkanYarmoradi/go-adm/cli/commands"

	// Register PostgreSQL drivers ("pgx" and "postgres")
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
)

// Build information (set via ldflags)
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// Missing .env files are fine
	_ = godotenv.Load()

	commands.Version = version
	commands.Commit = commit
	commands.BuildDate = buildDate

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
