// Command pgward provisions and maintains a PostgreSQL host: engine and
// pooler configuration, network access rules, credentials, and backups.
package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/groblegark/pgward/internal/config"
	"github.com/groblegark/pgward/internal/engine"
	"github.com/groblegark/pgward/internal/events"
	"github.com/groblegark/pgward/internal/firewall"
	"github.com/groblegark/pgward/internal/runner"
	"github.com/groblegark/pgward/internal/service"
)

var (
	statePath  string
	jsonOutput bool
	verbose    bool
)

func defaultDSN() string {
	if dsn := os.Getenv("PGWARD_DATABASE_URL"); dsn != "" {
		return dsn
	}
	// Local peer-authenticated socket connection; pgward runs on the host
	// it manages.
	return "host=/var/run/postgresql dbname=postgres sslmode=disable"
}

// openDB connects to the local server for operations that need SQL access
// (credentials, backups).
func openDB() (*sql.DB, error) {
	db, err := sql.Open("postgres", defaultDSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// newPublisher returns the NATS publisher when PGWARD_NATS_URL is set, and
// a no-op otherwise.
func newPublisher() (events.Publisher, error) {
	url := os.Getenv("PGWARD_NATS_URL")
	if url == "" {
		return &events.NoopPublisher{}, nil
	}
	return events.NewNATSPublisher(url)
}

// newEngine wires the reconciliation engine against the real host.
func newEngine(pub events.Publisher) *engine.Engine {
	run := runner.Exec{}
	return &engine.Engine{
		Store:    config.NewStore(statePath),
		Paths:    engine.DefaultPaths(),
		Firewall: firewall.NewUFW(run),
		Services: service.NewManager(run),
		Events:   pub,
	}
}

var rootCmd = &cobra.Command{
	Use:   "pgward <command>",
	Short: "Provision and maintain a PostgreSQL host",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&statePath, "state", config.DefaultStatePath, "path to the persisted state file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddGroup(
		&cobra.Group{ID: "provision", Title: "Provisioning:"},
		&cobra.Group{ID: "maintenance", Title: "Maintenance:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)
	cobra.EnableCommandSorting = false

	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(credentialCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(eventsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
