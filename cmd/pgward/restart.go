package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/groblegark/pgward/internal/config"
	"github.com/groblegark/pgward/internal/runner"
	"github.com/groblegark/pgward/internal/service"
)

var restartCmd = &cobra.Command{
	Use:     "restart",
	Short:   "Restart the database service, and the pooler when enabled",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		rec := config.NewStore(statePath).Load()
		mgr := service.NewManager(runner.Exec{})

		if err := mgr.Restart(ctx, service.Postgres); err != nil {
			return err
		}
		fmt.Println("postgresql restarted")

		if rec.PoolerEnabled {
			if err := mgr.Restart(ctx, service.PgBouncer); err != nil {
				return err
			}
			fmt.Println("pgbouncer restarted")
		}
		return nil
	},
}
