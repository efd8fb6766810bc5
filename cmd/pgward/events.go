package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/groblegark/pgward/internal/events"
)

var eventsCmd = &cobra.Command{
	Use:     "events",
	Short:   "Tail provisioning events from the ops event bus",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		url := os.Getenv("PGWARD_NATS_URL")
		if url == "" {
			return fmt.Errorf("PGWARD_NATS_URL is not set")
		}

		sub, err := events.NewNATSSubscriber(url)
		if err != nil {
			return err
		}
		defer sub.Close()

		ch, cancel, err := sub.Subscribe("pgward.>")
		if err != nil {
			return err
		}
		defer cancel()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

		for {
			select {
			case msg := <-ch:
				fmt.Printf("%s %s\n", msg.Subject, msg.Data)
			case <-sig:
				return nil
			}
		}
	},
}
