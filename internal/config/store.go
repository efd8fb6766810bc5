package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultStatePath is where pgward keeps its state file unless overridden.
const DefaultStatePath = "/var/lib/pgward/state.toml"

// Store reads and writes the persisted Record at a fixed path.
type Store struct {
	Path string
}

// NewStore returns a Store for path, or for DefaultStatePath when empty.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultStatePath
	}
	return &Store{Path: path}
}

// Load reads the persisted record. A missing file yields Defaults. Fields
// absent from the file keep their default value, and unknown keys are
// ignored. A parse error is non-fatal: the host must stay provisionable on
// corrupt state, so Load logs a warning and falls back to defaults.
func (s *Store) Load() Record {
	r := Defaults()
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("state file unreadable, using defaults", "path", s.Path, "error", err)
		}
		return r
	}
	if _, err := toml.Decode(string(data), &r); err != nil {
		slog.Warn("state file unparsable, using defaults", "path", s.Path, "error", err)
		return Defaults()
	}
	return r
}

// Save writes the full record atomically: encode to a temp file in the same
// directory, fsync, then rename over the target. Mode is owner-only since
// the record can carry paths and bucket names an operator may consider
// sensitive.
func (s *Store) Save(r Record) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp state file: %w", err)
	}
	if err := toml.NewEncoder(tmp).Encode(r); err != nil {
		tmp.Close()
		return fmt.Errorf("encode state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("rename state file: %w", err)
	}
	return nil
}
