package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/BaSui01/a2aengine/internal/migration"
)

// =============================================================================
// Checkpoint Schema Migration Commands
// =============================================================================

// migrateValueCommands take one positional value before the flags.
var migrateValueCommands = map[string]bool{
	"steps": true,
	"goto":  true,
	"force": true,
}

// runMigrate handles the migrate command and its subcommands
func runMigrate(args []string) {
	if len(args) < 1 {
		printMigrateUsage()
		os.Exit(1)
	}

	subcommand := args[0]
	subargs := args[1:]

	switch subcommand {
	case "help", "-h", "--help":
		printMigrateUsage()
		return
	}

	var values []string
	if migrateValueCommands[subcommand] {
		if len(subargs) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: a2aengine migrate %s <value> [options]\n", subcommand)
			os.Exit(1)
		}
		values, subargs = subargs[:1], subargs[1:]
	}

	fs := flag.NewFlagSet("migrate "+subcommand, flag.ExitOnError)
	migrator, err := createMigrator(fs, subargs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}

	cli := migration.NewCLI(migrator)
	runErr := cli.Run(context.Background(), subcommand, values)
	if err := migrator.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close migrator: %v\n", err)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Migration %s failed: %v\n", subcommand, runErr)
		os.Exit(1)
	}
}

// printMigrateUsage prints the usage information for migrate command
func printMigrateUsage() {
	fmt.Println(`Checkpoint Schema Migration Commands

Usage:
  a2aengine migrate <subcommand> [value] [options]

Subcommands:
  up          Apply all pending migrations
  down        Rollback the last migration
  down-all    Rollback all migrations
  steps <n>   Apply (n > 0) or rollback (n < 0) n migrations
  goto <v>    Migrate to a specific version
  force <v>   Force set migration version (use with caution)
  version     Show current migration version
  status      Show migration status
  info        Show migration summary
  help        Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)
  --verbose           Log migration progress

Examples:
  a2aengine migrate up
  a2aengine migrate up --config /etc/a2aengine/config.yaml
  a2aengine migrate down
  a2aengine migrate steps -1
  a2aengine migrate status
  a2aengine migrate goto 1
  a2aengine migrate force 0`)
}

// createMigrator creates a migrator from command line flags
func createMigrator(fs *flag.FlagSet, args []string) (*migration.DefaultMigrator, error) {
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")
	verbose := fs.Bool("verbose", false, "Log migration progress")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	logger := zap.NewNop()
	if *verbose {
		logger = initLogger(defaultCLILogConfig())
	}

	// If db-type and db-url are provided, use them directly
	if *dbType != "" && *dbURL != "" {
		return migration.NewMigratorFromURL(*dbType, *dbURL, logger)
	}

	// Otherwise, load from config
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Override database type if specified
	if *dbType != "" {
		cfg.Database.Driver = *dbType
	}

	return migration.NewMigratorFromDatabaseConfig(cfg.Database, logger)
}
