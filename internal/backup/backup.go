// Package backup produces per-database dump artifacts, rotates them by
// age, and optionally offloads the backup directory to S3-compatible
// object storage.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/groblegark/pgward/internal/idgen"
	"github.com/groblegark/pgward/internal/runner"
)

// Artifact is one backup output. Artifacts are never mutated after
// creation; they age out of the backup directory by the retention policy.
type Artifact struct {
	Database  string    `json:"database"` // "*" for the globals dump
	Format    string    `json:"format"`   // "custom" or "sql"
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	RemoteURI string    `json:"remote_uri,omitempty"`
}

// Report summarizes one backup run.
type Report struct {
	RunID     string     `json:"run_id"`
	Artifacts []Artifact `json:"artifacts"`
	Deleted   []string   `json:"deleted,omitempty"`
	// OffloadError records a best-effort remote sync failure; it never
	// fails the run.
	OffloadError string `json:"offload_error,omitempty"`
}

// Offloader copies a local artifact to remote storage and returns its
// remote URI.
type Offloader interface {
	Upload(ctx context.Context, localPath, name string) (string, error)
}

// Manager runs backups against a live server.
type Manager struct {
	db        *sql.DB
	run       runner.Runner
	dir       string
	retention time.Duration
	offload   Offloader // nil disables remote offload

	now func() time.Time
}

func NewManager(db *sql.DB, run runner.Runner, dir string, retentionDays int, offload Offloader) *Manager {
	return &Manager{
		db:        db,
		run:       run,
		dir:       dir,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		offload:   offload,
		now:       time.Now,
	}
}

// RunBackup dumps every non-template database in custom (compressed)
// format, dumps globals (roles and grants, which per-database dumps omit),
// sweeps artifacts past retention, and finally offloads the directory when
// remote storage is configured. Offload is best-effort: its failure is
// logged and reported but local retention is never reduced by a failed
// remote copy.
func (m *Manager) RunBackup(ctx context.Context) (Report, error) {
	runID, err := idgen.Generate()
	if err != nil {
		return Report{}, fmt.Errorf("backup run id: %w", err)
	}
	report := Report{RunID: runID}

	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return report, fmt.Errorf("create backup dir: %w", err)
	}

	databases, err := m.listDatabases(ctx)
	if err != nil {
		return report, err
	}

	stamp := m.now().UTC()
	ts := stamp.Format("20060102T150405")

	for _, db := range databases {
		path := filepath.Join(m.dir, fmt.Sprintf("%s-%s.dump", db, ts))
		if _, err := m.run.Run(ctx, "pg_dump", "--format=custom", "--file="+path, db); err != nil {
			return report, fmt.Errorf("dump %s: %w", db, err)
		}
		report.Artifacts = append(report.Artifacts, Artifact{
			Database: db, Format: "custom", Path: path, CreatedAt: stamp,
		})
	}

	globalsPath := filepath.Join(m.dir, fmt.Sprintf("globals-%s.sql", ts))
	if _, err := m.run.Run(ctx, "pg_dumpall", "--globals-only", "--file="+globalsPath); err != nil {
		return report, fmt.Errorf("dump globals: %w", err)
	}
	report.Artifacts = append(report.Artifacts, Artifact{
		Database: "*", Format: "sql", Path: globalsPath, CreatedAt: stamp,
	})

	deleted, err := m.sweep()
	if err != nil {
		return report, err
	}
	report.Deleted = deleted

	if m.offload != nil {
		if err := m.offloadDir(ctx, &report); err != nil {
			slog.Warn("remote offload failed, local artifacts retained", "error", err)
			report.OffloadError = err.Error()
		}
	}
	return report, nil
}

// listDatabases returns every connectable non-template database.
func (m *Manager) listDatabases(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx,
		"SELECT datname FROM pg_database WHERE datallowconn AND NOT datistemplate ORDER BY datname")
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan database name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	return names, nil
}

// sweep deletes artifacts whose age exceeds the retention threshold. The
// policy is purely age-based; nothing else (count, size) keeps or evicts
// an artifact.
func (m *Manager) sweep() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	cutoff := m.now().Add(-m.retention)
	var deleted []string
	for _, e := range entries {
		if e.IsDir() || !isArtifactName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return deleted, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(m.dir, e.Name())
		if err := os.Remove(path); err != nil {
			return deleted, fmt.Errorf("delete expired artifact: %w", err)
		}
		deleted = append(deleted, path)
	}
	return deleted, nil
}

// isArtifactName restricts the sweep to files pgward itself produced, so a
// stray file in the backup directory is never deleted.
func isArtifactName(name string) bool {
	return strings.HasSuffix(name, ".dump") || strings.HasSuffix(name, ".sql")
}

// offloadDir uploads every artifact currently on disk and annotates the
// freshly created ones with their remote URI.
func (m *Manager) offloadDir(ctx context.Context, report *Report) error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return fmt.Errorf("read backup dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !isArtifactName(e.Name()) {
			continue
		}
		path := filepath.Join(m.dir, e.Name())
		uri, err := m.offload.Upload(ctx, path, e.Name())
		if err != nil {
			return fmt.Errorf("upload %s: %w", e.Name(), err)
		}
		for i := range report.Artifacts {
			if report.Artifacts[i].Path == path {
				report.Artifacts[i].RemoteURI = uri
			}
		}
	}
	return nil
}
