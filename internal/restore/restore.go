// Package restore applies a backup artifact to a target database. Restore
// is the highest-blast-radius operation in the system, so it sits behind an
// explicit confirmation gate and refuses artifacts it cannot validate.
package restore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/groblegark/pgward/internal/runner"
)

// ErrNotConfirmed is returned when the operator has not confirmed the
// restore. Nothing has been touched.
var ErrNotConfirmed = errors.New("restore not confirmed; no action taken")

// pgdmpMagic is the header of a pg_dump custom-format archive.
const pgdmpMagic = "PGDMP"

// Options controls a restore.
type Options struct {
	// Confirmed must be set explicitly; there is no way to automate past
	// it from inside the engine.
	Confirmed bool
	// Owner, when set, becomes the owning role for restored objects in
	// place of whatever role the artifact was dumped as.
	Owner string
}

// Workflow restores artifacts through pg_restore.
type Workflow struct {
	run runner.Runner
}

func NewWorkflow(run runner.Runner) *Workflow {
	return &Workflow{run: run}
}

// Restore validates artifactPath and applies it to targetDB with
// clean-if-exists semantics: conflicting pre-existing objects are dropped
// and recreated so the target reflects the artifact exactly. Ownership
// metadata in the artifact is stripped. A malformed or truncated artifact
// aborts before any destructive action; a failure mid-restore leaves the
// target unreliable, and the returned error says so.
func (w *Workflow) Restore(ctx context.Context, artifactPath, targetDB string, opts Options) error {
	if err := validateArtifact(artifactPath); err != nil {
		return err
	}
	if !opts.Confirmed {
		return ErrNotConfirmed
	}

	// Globals dumps are plain SQL scripts; everything else is a
	// custom-format archive for pg_restore.
	tool := "pg_restore"
	var args []string
	if strings.HasSuffix(artifactPath, ".sql") {
		tool = "psql"
		args = []string{"--set", "ON_ERROR_STOP=1", "--dbname=" + targetDB, "--file=" + artifactPath}
	} else {
		args = []string{"--clean", "--if-exists", "--no-owner"}
		if opts.Owner != "" {
			args = append(args, "--role="+opts.Owner)
		}
		args = append(args, "--dbname="+targetDB, artifactPath)
	}

	if _, err := w.run.Run(ctx, tool, args...); err != nil {
		return fmt.Errorf("restore of %s into %s failed; treat the target database as unreliable and repeat against a clean target: %w",
			artifactPath, targetDB, err)
	}
	return nil
}

// validateArtifact checks the artifact exists, is readable, and — for
// custom-format dumps — carries the PGDMP header.
func validateArtifact(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("artifact unreadable: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("artifact unreadable: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("artifact %s is a directory", path)
	}

	if !strings.HasSuffix(path, ".dump") {
		return nil
	}
	header := make([]byte, len(pgdmpMagic))
	n, err := f.Read(header)
	if err != nil || n < len(pgdmpMagic) || string(header) != pgdmpMagic {
		return fmt.Errorf("artifact %s is not a valid custom-format dump (truncated or malformed)", path)
	}
	return nil
}
