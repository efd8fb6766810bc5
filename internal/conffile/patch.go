package conffile

import (
	"fmt"
	"io/fs"
	"os"
	"time"
)

// Directive is one key/value setting destined for a target file.
type Directive struct {
	Key   string
	Value string
	// Section is the INI section for the directive; empty for flat files.
	Section string
}

// PatchError is the typed failure for a directive that could not be applied.
// It names the file and key so an operator can fix the target and re-run.
type PatchError struct {
	Path string
	Key  string
	Err  error
}

func (e *PatchError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("patch %s (%s): %v", e.Path, e.Key, e.Err)
	}
	return fmt.Sprintf("patch %s: %v", e.Path, e.Err)
}

func (e *PatchError) Unwrap() error { return e.Err }

// backupTimestamp is overridable in tests for stable backup names.
var backupTimestamp = func() string { return time.Now().Format("20060102T150405") }

// PatchFile upserts the given directives into path. Before the first
// mutation it copies the original aside as <path>.pgward-<timestamp>.bak so
// a human can diff or revert. The target file must already exist: pgward
// patches distribution-installed configs, it does not create them. If the
// patched content equals the original, neither the file nor a backup is
// written.
func PatchFile(path string, directives []Directive) error {
	data, err := os.ReadFile(path)
	if err != nil {
		key := ""
		if len(directives) > 0 {
			key = directives[0].Key
		}
		return &PatchError{Path: path, Key: key, Err: err}
	}
	mode := fs.FileMode(0o640)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	f := Parse(string(data))
	for _, d := range directives {
		if d.Section != "" {
			f.UpsertSection(d.Section, d.Key, d.Value)
		} else {
			f.Upsert(d.Key, d.Value)
		}
	}

	patched := f.String()
	if patched == string(data) {
		return nil
	}

	backup := fmt.Sprintf("%s.pgward-%s.bak", path, backupTimestamp())
	if err := os.WriteFile(backup, data, mode); err != nil {
		return &PatchError{Path: path, Err: fmt.Errorf("write backup copy: %w", err)}
	}
	if err := os.WriteFile(path, []byte(patched), mode); err != nil {
		return &PatchError{Path: path, Err: err}
	}
	return nil
}
