package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/groblegark/pgward/internal/config"
)

var applyFlags struct {
	listenAddresses string
	port            int
	sharedBuffers   string
	workMem         string
	allow           []string
	ssl             bool
	walArchive      bool
	walArchiveDir   string
	pooler          bool
	poolMode        string
	retentionDays   int
	s3Bucket        string
}

var applyCmd = &cobra.Command{
	Use:     "apply",
	Short:   "Run a full reconciliation pass against this host",
	GroupID: "provision",
	RunE: func(cmd *cobra.Command, args []string) error {
		pub, err := newPublisher()
		if err != nil {
			return err
		}
		defer pub.Close()

		rec, err := newEngine(pub).Apply(context.Background(), applyOverrides(cmd))
		if err != nil {
			return err
		}

		if jsonOutput {
			data, err := json.MarshalIndent(rec, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}
		fmt.Println("Reconciliation pass complete")
		fmt.Printf("  Listen:     %s:%d\n", rec.ListenAddresses, rec.Port)
		fmt.Printf("  Allow-list: %d entries\n", len(rec.AllowList))
		fmt.Printf("  Pooler:     %v\n", rec.PoolerEnabled)
		return nil
	},
}

// applyOverrides converts only the flags the operator actually set into
// record overrides, so an untouched flag never clobbers persisted state.
func applyOverrides(cmd *cobra.Command) config.Overrides {
	var o config.Overrides
	set := cmd.Flags().Changed
	if set("listen-addresses") {
		o.ListenAddresses = &applyFlags.listenAddresses
	}
	if set("port") {
		o.Port = &applyFlags.port
	}
	if set("shared-buffers") {
		o.SharedBuffers = &applyFlags.sharedBuffers
	}
	if set("work-mem") {
		o.WorkMem = &applyFlags.workMem
	}
	if set("allow") {
		o.AllowList = &applyFlags.allow
	}
	if set("ssl") {
		o.SSL = &applyFlags.ssl
	}
	if set("wal-archive") {
		o.WALArchive = &applyFlags.walArchive
	}
	if set("wal-archive-dir") {
		o.WALArchiveDir = &applyFlags.walArchiveDir
	}
	if set("pooler") {
		o.PoolerEnabled = &applyFlags.pooler
	}
	if set("pool-mode") {
		o.PoolMode = &applyFlags.poolMode
	}
	if set("retention-days") {
		o.RetentionDays = &applyFlags.retentionDays
	}
	if set("s3-bucket") {
		o.S3Bucket = &applyFlags.s3Bucket
	}
	return o
}

func init() {
	f := applyCmd.Flags()
	f.StringVar(&applyFlags.listenAddresses, "listen-addresses", "", "addresses the server listens on")
	f.IntVar(&applyFlags.port, "port", 0, "server port")
	f.StringVar(&applyFlags.sharedBuffers, "shared-buffers", "", "shared_buffers setting")
	f.StringVar(&applyFlags.workMem, "work-mem", "", "work_mem setting")
	f.StringSliceVar(&applyFlags.allow, "allow", nil, "allow-list entries (CIDR or IP, repeatable)")
	f.BoolVar(&applyFlags.ssl, "ssl", false, "enable TLS")
	f.BoolVar(&applyFlags.walArchive, "wal-archive", false, "enable WAL archiving")
	f.StringVar(&applyFlags.walArchiveDir, "wal-archive-dir", "", "WAL archive destination")
	f.BoolVar(&applyFlags.pooler, "pooler", false, "enable PgBouncer")
	f.StringVar(&applyFlags.poolMode, "pool-mode", "", "PgBouncer pool mode")
	f.IntVar(&applyFlags.retentionDays, "retention-days", 0, "backup retention in days")
	f.StringVar(&applyFlags.s3Bucket, "s3-bucket", "", "S3 bucket for backup offload")
}
