// Package engine drives one reconciliation pass: merge configuration state,
// patch the engine and pooler config files, reconcile network access, reload
// services, and persist the resulting record. A pass is sequential and
// synchronous; idempotence, not rollback, is the recovery mechanism after a
// partial failure.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/groblegark/pgward/internal/access"
	"github.com/groblegark/pgward/internal/conffile"
	"github.com/groblegark/pgward/internal/config"
	"github.com/groblegark/pgward/internal/events"
	"github.com/groblegark/pgward/internal/firewall"
	"github.com/groblegark/pgward/internal/hba"
	"github.com/groblegark/pgward/internal/lockfile"
	"github.com/groblegark/pgward/internal/service"
)

// Paths locates the configuration files one pass patches.
type Paths struct {
	PostgresConf string // postgresql.conf
	HBAConf      string // pg_hba.conf
	PgBouncerIni string // pgbouncer.ini
	Userlist     string // pgbouncer userlist.txt
	Lock         string // advisory lock file
}

// DefaultPaths covers a Debian-flavored PostgreSQL 16 install.
func DefaultPaths() Paths {
	return Paths{
		PostgresConf: "/etc/postgresql/16/main/postgresql.conf",
		HBAConf:      "/etc/postgresql/16/main/pg_hba.conf",
		PgBouncerIni: "/etc/pgbouncer/pgbouncer.ini",
		Userlist:     "/etc/pgbouncer/userlist.txt",
		Lock:         lockfile.DefaultPath,
	}
}

// Engine holds the collaborators of a reconciliation pass.
type Engine struct {
	Store    *config.Store
	Paths    Paths
	Firewall firewall.Firewall
	Services *service.Manager
	Events   events.Publisher
}

// Apply runs one full reconciliation pass and returns the record it
// converged on. The state file is only written after every prior step has
// completed, so a failed pass leaves the previous state intact and a re-run
// safe.
func (e *Engine) Apply(ctx context.Context, overrides config.Overrides) (config.Record, error) {
	lock, err := lockfile.Acquire(e.Paths.Lock)
	if err != nil {
		return config.Record{}, err
	}
	defer lock.Release()

	rec := config.Merge(e.Store.Load(), overrides)

	if err := conffile.PatchFile(e.Paths.PostgresConf, postgresDirectives(rec)); err != nil {
		return rec, err
	}
	if rec.PoolerEnabled {
		if err := conffile.PatchFile(e.Paths.PgBouncerIni, e.pgbouncerDirectives(rec)); err != nil {
			return rec, err
		}
	}

	res, err := e.reconcileAccess(ctx, rec)
	if err != nil {
		return rec, err
	}

	if err := e.Services.Reload(ctx, service.Postgres); err != nil {
		return rec, err
	}
	if rec.PoolerEnabled {
		if err := e.Services.Reload(ctx, service.PgBouncer); err != nil {
			return rec, err
		}
	}

	if err := e.Store.Save(rec); err != nil {
		return rec, err
	}

	e.publishApply(ctx, res)
	slog.Info("reconciliation pass complete",
		"auth_rules_added", res.AuthRulesAdded,
		"firewall_rules_added", res.FirewallRulesAdded,
		"skipped_entries", len(res.Skipped))
	return rec, nil
}

// reconcileAccess applies the allow-list to pg_hba.conf and the firewall,
// rewriting the hba file only when reconciliation changed it.
func (e *Engine) reconcileAccess(ctx context.Context, rec config.Record) (access.Result, error) {
	hbaFile, err := hba.ParseFile(e.Paths.HBAConf)
	if err != nil {
		return access.Result{}, err
	}
	before := hbaFile.String()

	res, err := access.Reconcile(ctx, rec.AllowList, hbaFile, e.Firewall, access.Params{
		Port:       rec.Port,
		AuthMethod: rec.AuthType,
	})
	if err != nil {
		return res, err
	}

	if hbaFile.String() != before {
		mode := os.FileMode(0o640)
		if info, statErr := os.Stat(e.Paths.HBAConf); statErr == nil {
			mode = info.Mode().Perm()
		}
		if err := hbaFile.WriteFile(e.Paths.HBAConf, mode); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (e *Engine) publishApply(ctx context.Context, res access.Result) {
	host, _ := os.Hostname()
	skipped := make([]string, 0, len(res.Skipped))
	for entry := range res.Skipped {
		skipped = append(skipped, entry)
	}
	err := e.Events.Publish(ctx, events.TopicApplyCompleted, events.ApplyCompleted{
		Host:               host,
		AuthRulesAdded:     res.AuthRulesAdded,
		FirewallRulesAdded: res.FirewallRulesAdded,
		SkippedEntries:     skipped,
		FinishedAt:         time.Now().UTC(),
	})
	if err != nil {
		slog.Warn("failed to publish apply event", "error", err)
	}
}

// postgresDirectives derives the postgresql.conf settings from the record.
func postgresDirectives(rec config.Record) []conffile.Directive {
	d := []conffile.Directive{
		{Key: "listen_addresses", Value: pgQuote(rec.ListenAddresses)},
		{Key: "port", Value: fmt.Sprintf("%d", rec.Port)},
		{Key: "shared_buffers", Value: rec.SharedBuffers},
		{Key: "work_mem", Value: rec.WorkMem},
		{Key: "maintenance_work_mem", Value: rec.MaintenanceWorkMem},
		{Key: "effective_cache_size", Value: rec.EffectiveCacheSize},
		{Key: "max_wal_size", Value: rec.MaxWALSize},
		{Key: "min_wal_size", Value: rec.MinWALSize},
		{Key: "log_min_messages", Value: rec.LogMinMessages},
	}
	if rec.SSL {
		d = append(d,
			conffile.Directive{Key: "ssl", Value: "on"},
			conffile.Directive{Key: "ssl_cert_file", Value: pgQuote(rec.SSLCertFile)},
			conffile.Directive{Key: "ssl_key_file", Value: pgQuote(rec.SSLKeyFile)},
		)
	} else {
		d = append(d, conffile.Directive{Key: "ssl", Value: "off"})
	}
	if rec.WALArchive {
		d = append(d,
			conffile.Directive{Key: "archive_mode", Value: "on"},
			conffile.Directive{Key: "archive_command", Value: pgQuote(
				fmt.Sprintf("test ! -f %s/%%f && cp %%p %s/%%f", rec.WALArchiveDir, rec.WALArchiveDir))},
		)
	} else {
		// archive_mode must be written in both states or a disable never
		// reaches the host.
		d = append(d, conffile.Directive{Key: "archive_mode", Value: "off"})
	}
	return d
}

// pgbouncerDirectives derives the pgbouncer.ini settings from the record.
func (e *Engine) pgbouncerDirectives(rec config.Record) []conffile.Directive {
	const section = "pgbouncer"
	return []conffile.Directive{
		{Section: section, Key: "pool_mode", Value: rec.PoolMode},
		{Section: section, Key: "max_client_conn", Value: fmt.Sprintf("%d", rec.MaxClientConn)},
		{Section: section, Key: "default_pool_size", Value: fmt.Sprintf("%d", rec.DefaultPoolSize)},
		{Section: section, Key: "auth_type", Value: rec.AuthType},
		{Section: section, Key: "auth_file", Value: e.Paths.Userlist},
	}
}

// pgQuote single-quotes a postgresql.conf string value.
func pgQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
