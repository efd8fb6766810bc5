package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/groblegark/pgward/internal/config"
	"github.com/groblegark/pgward/internal/runner"
	"github.com/groblegark/pgward/internal/service"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show service states and the persisted configuration summary",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		rec := config.NewStore(statePath).Load()
		mgr := service.NewManager(runner.Exec{})

		pgActive := mgr.IsActive(ctx, service.Postgres)
		poolActive := false
		if rec.PoolerEnabled {
			poolActive = mgr.IsActive(ctx, service.PgBouncer)
		}

		if jsonOutput {
			out := map[string]any{
				"postgresql":     pgActive,
				"pooler_enabled": rec.PoolerEnabled,
				"pgbouncer":      poolActive,
				"port":           rec.Port,
				"listen":         rec.ListenAddresses,
				"allow_list":     rec.AllowList,
				"retention_days": rec.RetentionDays,
			}
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Println("pgward status")
		fmt.Printf("  postgresql: %s\n", activeWord(pgActive))
		if rec.PoolerEnabled {
			fmt.Printf("  pgbouncer:  %s\n", activeWord(poolActive))
		} else {
			fmt.Println("  pgbouncer:  disabled")
		}
		fmt.Printf("  listen:     %s:%d\n", rec.ListenAddresses, rec.Port)
		fmt.Printf("  allow-list: %d entries\n", len(rec.AllowList))
		fmt.Printf("  retention:  %d days\n", rec.RetentionDays)
		return nil
	},
}

func activeWord(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}
