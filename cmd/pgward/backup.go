package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/groblegark/pgward/internal/backup"
	"github.com/groblegark/pgward/internal/config"
	"github.com/groblegark/pgward/internal/engine"
	"github.com/groblegark/pgward/internal/events"
	"github.com/groblegark/pgward/internal/lockfile"
	"github.com/groblegark/pgward/internal/runner"
)

var backupCmd = &cobra.Command{
	Use:     "backup",
	Short:   "Backup operations",
	GroupID: "maintenance",
}

var backupRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Dump every database plus globals, rotate by age, offload if configured",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		rec := config.NewStore(statePath).Load()

		lock, err := lockfile.Acquire(engine.DefaultPaths().Lock)
		if err != nil {
			return err
		}
		defer lock.Release()

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		var offload backup.Offloader
		if rec.S3Bucket != "" {
			o, err := backup.NewS3Offloader(ctx, rec.S3Bucket, rec.S3Prefix, rec.S3Region, rec.S3Endpoint)
			if err != nil {
				return err
			}
			offload = o
		}

		m := backup.NewManager(db, runner.Exec{}, rec.BackupDir, rec.RetentionDays, offload)
		report, err := m.RunBackup(ctx)
		if err != nil {
			return err
		}

		if pub, pubErr := newPublisher(); pubErr == nil {
			host, _ := os.Hostname()
			_ = pub.Publish(ctx, events.TopicBackupCompleted, events.BackupCompleted{
				Host:         host,
				RunID:        report.RunID,
				Artifacts:    len(report.Artifacts),
				Deleted:      len(report.Deleted),
				OffloadError: report.OffloadError,
				FinishedAt:   time.Now().UTC(),
			})
			pub.Close()
		}

		if jsonOutput {
			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}
		fmt.Printf("Backup run %s complete: %d artifacts, %d expired\n",
			report.RunID, len(report.Artifacts), len(report.Deleted))
		if report.OffloadError != "" {
			fmt.Printf("  Offload failed (local artifacts retained): %s\n", report.OffloadError)
		}
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backup artifacts on disk",
	RunE: func(cmd *cobra.Command, args []string) error {
		rec := config.NewStore(statePath).Load()
		entries, err := os.ReadDir(rec.BackupDir)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Println("No backups yet")
				return nil
			}
			return fmt.Errorf("read backup dir: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			fmt.Printf("%s\t%d\t%s\n",
				info.ModTime().Format(time.RFC3339),
				info.Size(),
				filepath.Join(rec.BackupDir, e.Name()))
		}
		return nil
	},
}

func init() {
	backupCmd.AddCommand(backupRunCmd)
	backupCmd.AddCommand(backupListCmd)
}
