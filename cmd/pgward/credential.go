package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/groblegark/pgward/internal/config"
	"github.com/groblegark/pgward/internal/cred"
	"github.com/groblegark/pgward/internal/engine"
	"github.com/groblegark/pgward/internal/events"
	"github.com/groblegark/pgward/internal/runner"
	"github.com/groblegark/pgward/internal/service"
	"github.com/groblegark/pgward/internal/ui"
)

var credentialSecret string

var credentialCmd = &cobra.Command{
	Use:     "create-credential <database> <role>",
	Short:   "Create a role and database, mirrored into the pooler when enabled",
	GroupID: "provision",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, role := args[0], args[1]

		secret := credentialSecret
		if secret == "" {
			var err error
			secret, err = ui.ReadSecret(fmt.Sprintf("Secret for role %q: ", role))
			if err != nil {
				return err
			}
		}
		if secret == "" {
			return fmt.Errorf("empty secret for role %q", role)
		}

		rec := config.NewStore(statePath).Load()

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		var pooler *cred.PoolerStore
		if rec.PoolerEnabled {
			pooler = &cred.PoolerStore{
				UserlistPath: engine.DefaultPaths().Userlist,
				AuthType:     rec.AuthType,
				Services:     service.NewManager(runner.Exec{}),
			}
		}

		pair, err := cred.NewProvisioner(db, pooler).CreateCredential(context.Background(), database, role, secret)
		if err != nil {
			return err
		}

		pub, err := newPublisher()
		if err == nil {
			host, _ := os.Hostname()
			_ = pub.Publish(context.Background(), events.TopicCredentialCreated, events.CredentialCreated{
				Host:     host,
				Role:     pair.Role,
				Database: pair.Database,
				Pooler:   rec.PoolerEnabled,
			})
			pub.Close()
		}

		if jsonOutput {
			data, err := json.MarshalIndent(pair, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}
		fmt.Printf("Created role %q owning database %q", pair.Role, pair.Database)
		if rec.PoolerEnabled {
			fmt.Print(" (pooler credential installed)")
		}
		fmt.Println()
		return nil
	},
}

func init() {
	credentialCmd.Flags().StringVar(&credentialSecret, "secret", "", "secret for the role (prompted when omitted)")
}
