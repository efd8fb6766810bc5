package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/groblegark/pgward/internal/events"
	"github.com/groblegark/pgward/internal/restore"
	"github.com/groblegark/pgward/internal/runner"
	"github.com/groblegark/pgward/internal/ui"
)

var restoreFlags struct {
	yes   bool
	owner string
}

var restoreCmd = &cobra.Command{
	Use:     "restore <artifact> <database>",
	Short:   "Restore a backup artifact into a database (destructive)",
	GroupID: "maintenance",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		artifact, database := args[0], args[1]

		confirmed := restoreFlags.yes
		if !confirmed && ui.IsInteractive() {
			confirmed = ui.Confirm(os.Stderr, os.Stdin,
				fmt.Sprintf("Restore %s into %q, dropping conflicting objects?", artifact, database))
		}

		w := restore.NewWorkflow(runner.Exec{})
		err := w.Restore(context.Background(), artifact, database, restore.Options{
			Confirmed: confirmed,
			Owner:     restoreFlags.owner,
		})
		if err != nil {
			return err
		}

		if pub, pubErr := newPublisher(); pubErr == nil {
			host, _ := os.Hostname()
			_ = pub.Publish(context.Background(), events.TopicRestoreCompleted, events.RestoreCompleted{
				Host:     host,
				Artifact: artifact,
				Database: database,
			})
			pub.Close()
		}

		fmt.Printf("Restored %s into %q\n", artifact, database)
		return nil
	},
}

func init() {
	restoreCmd.Flags().BoolVar(&restoreFlags.yes, "yes", false, "confirm the restore without prompting")
	restoreCmd.Flags().StringVar(&restoreFlags.owner, "owner", "", "role to own restored objects")
}
