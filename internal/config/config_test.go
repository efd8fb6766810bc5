package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "state.toml"))
	got := s.Load()
	want := Defaults()
	if got.Port != want.Port || got.ListenAddresses != want.ListenAddresses {
		t.Errorf("Load on missing file = %+v, want defaults", got)
	}
}

func TestLoadFillsAbsentFieldsFromDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.toml")
	if err := os.WriteFile(path, []byte("port = 5433\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	r := NewStore(path).Load()
	if r.Port != 5433 {
		t.Errorf("Port = %d, want 5433", r.Port)
	}
	if r.SharedBuffers != Defaults().SharedBuffers {
		t.Errorf("SharedBuffers = %q, want default %q", r.SharedBuffers, Defaults().SharedBuffers)
	}
}

func TestLoadIgnoresUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.toml")
	if err := os.WriteFile(path, []byte("port = 5433\nfuture_knob = \"x\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	r := NewStore(path).Load()
	if r.Port != 5433 {
		t.Errorf("Port = %d, want 5433 despite unknown key", r.Port)
	}
}

func TestLoadParseErrorFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.toml")
	if err := os.WriteFile(path, []byte("port = = 5433"), 0o600); err != nil {
		t.Fatal(err)
	}
	r := NewStore(path).Load()
	if r.Port != Defaults().Port {
		t.Errorf("Port = %d, want default %d after parse error", r.Port, Defaults().Port)
	}
}

func TestMergeOnlyChangesSuppliedFields(t *testing.T) {
	base := Defaults()
	base.Port = 5433

	port := 6432
	pooler := true
	allow := []string{"10.0.0.0/8"}
	merged := Merge(base, Overrides{
		Port:          &port,
		PoolerEnabled: &pooler,
		AllowList:     &allow,
	})

	if merged.Port != 6432 {
		t.Errorf("Port = %d, want 6432", merged.Port)
	}
	if !merged.PoolerEnabled {
		t.Error("PoolerEnabled = false, want true")
	}
	if len(merged.AllowList) != 1 || merged.AllowList[0] != "10.0.0.0/8" {
		t.Errorf("AllowList = %v", merged.AllowList)
	}
	// Unspecified fields keep the loaded values.
	if merged.SharedBuffers != base.SharedBuffers {
		t.Errorf("SharedBuffers = %q, want %q", merged.SharedBuffers, base.SharedBuffers)
	}
}

func TestSaveRoundTripAndMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.toml")
	s := NewStore(path)

	r := Defaults()
	r.Port = 5444
	r.AllowList = []string{"192.168.1.0/24", "10.1.2.3"}
	r.PoolerEnabled = true
	if err := s.Save(r); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("state file mode = %o, want 0600", info.Mode().Perm())
	}

	got := s.Load()
	if got.Port != 5444 || !got.PoolerEnabled || len(got.AllowList) != 2 {
		t.Errorf("round trip = %+v", got)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "state.toml"))
	if err := s.Save(Defaults()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "state.toml" {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("dir contents = %v, want only state.toml", names)
	}
}
