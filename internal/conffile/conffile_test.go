package conffile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestUpsertReplacesActiveLineInPlace(t *testing.T) {
	f := Parse("# memory\nshared_buffers = 128MB\nwork_mem = 4MB\n")
	f.Upsert("shared_buffers", "256MB")
	want := "# memory\nshared_buffers = 256MB\nwork_mem = 4MB\n"
	if got := f.String(); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestUpsertActivatesCommentedDirective(t *testing.T) {
	f := Parse("#listen_addresses = 'localhost'\t# what IP to listen on\nport = 5432\n")
	f.Upsert("listen_addresses", "'*'")
	got := f.String()
	if !strings.Contains(got, "listen_addresses = '*'") {
		t.Errorf("commented directive not activated:\n%s", got)
	}
	if strings.Count(got, "listen_addresses") != 1 {
		t.Errorf("directive duplicated instead of activated in place:\n%s", got)
	}
}

func TestUpsertAppendsWhenAbsent(t *testing.T) {
	f := Parse("port = 5432\n")
	f.Upsert("max_wal_size", "1GB")
	want := "port = 5432\nmax_wal_size = 1GB\n"
	if got := f.String(); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	f := Parse("#port = 5432\nshared_buffers = 128MB\n")
	f.Upsert("port", "5433")
	f.Upsert("shared_buffers", "256MB")
	first := f.String()

	g := Parse(first)
	g.Upsert("port", "5433")
	g.Upsert("shared_buffers", "256MB")
	if second := g.String(); second != first {
		t.Errorf("second pass differs:\nfirst:\n%s\nsecond:\n%s", first, second)
	}
}

func TestUpsertConvergesOnChangedValue(t *testing.T) {
	f := Parse("work_mem = 4MB\n")
	f.Upsert("work_mem", "8MB")
	f.Upsert("work_mem", "16MB")
	if v, _ := f.Value("work_mem"); v != "16MB" {
		t.Errorf("value = %q, want 16MB", v)
	}
	if n := f.ActiveCount("work_mem"); n != 1 {
		t.Errorf("active lines = %d, want 1", n)
	}
}

func TestUpsertCollapsesSeededDuplicates(t *testing.T) {
	// Two conflicting active lines, as left by a buggy earlier run.
	f := Parse("port = 5432\nwork_mem = 4MB\nport = 5444\n")
	f.Upsert("port", "5433")

	if n := f.ActiveCount("port"); n != 1 {
		t.Fatalf("active port lines = %d, want 1", n)
	}
	if v, _ := f.Value("port"); v != "5433" {
		t.Errorf("port = %q, want 5433", v)
	}
	// The duplicate is disabled, not deleted, so the history stays visible.
	if !strings.Contains(f.String(), "#port = 5444") {
		t.Errorf("duplicate not disabled in place:\n%s", f.String())
	}

	// And a further pass does not accumulate anything.
	g := Parse(f.String())
	g.Upsert("port", "5433")
	if g.String() != f.String() {
		t.Errorf("collapse not stable:\n%s\nvs\n%s", f.String(), g.String())
	}
}

func TestUpsertSection(t *testing.T) {
	content := "[databases]\napp = host=127.0.0.1\n\n[pgbouncer]\npool_mode = session\n"
	f := Parse(content)
	f.UpsertSection("pgbouncer", "pool_mode", "transaction")
	f.UpsertSection("pgbouncer", "max_client_conn", "100")

	got := f.String()
	if !strings.Contains(got, "pool_mode = transaction") {
		t.Errorf("pool_mode not replaced:\n%s", got)
	}
	if strings.Contains(got, "pool_mode = session") {
		t.Errorf("old pool_mode left active:\n%s", got)
	}
	// New key lands inside [pgbouncer], not after [databases].
	idx := strings.Index(got, "[pgbouncer]")
	if strings.Index(got, "max_client_conn") < idx {
		t.Errorf("max_client_conn outside its section:\n%s", got)
	}
}

func TestUpsertSectionCreatesSection(t *testing.T) {
	f := Parse("[databases]\napp = host=127.0.0.1\n")
	f.UpsertSection("pgbouncer", "auth_type", "scram-sha-256")
	want := "[databases]\napp = host=127.0.0.1\n[pgbouncer]\nauth_type = scram-sha-256\n"
	if got := f.String(); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestUpsertSectionDoesNotTouchOtherSections(t *testing.T) {
	content := "[a]\ntimeout = 1\n[b]\ntimeout = 2\n"
	f := Parse(content)
	f.UpsertSection("b", "timeout", "9")
	got := f.String()
	if !strings.Contains(got, "[a]\ntimeout = 1\n") {
		t.Errorf("section [a] modified:\n%s", got)
	}
	if !strings.Contains(got, "[b]\ntimeout = 9\n") {
		t.Errorf("section [b] not updated:\n%s", got)
	}
}

func TestParsePreservesUnterminatedFinalLine(t *testing.T) {
	content := "port = 5432"
	if got := Parse(content).String(); got != content {
		t.Errorf("round trip changed content: %q -> %q", content, got)
	}
}

func TestPatchFileWritesBackupCopy(t *testing.T) {
	old := backupTimestamp
	backupTimestamp = func() string { return "20260101T000000" }
	defer func() { backupTimestamp = old }()

	dir := t.TempDir()
	path := filepath.Join(dir, "postgresql.conf")
	original := "port = 5432\n"
	if err := os.WriteFile(path, []byte(original), 0o640); err != nil {
		t.Fatal(err)
	}

	err := PatchFile(path, []Directive{{Key: "port", Value: "5433"}})
	if err != nil {
		t.Fatalf("PatchFile: %v", err)
	}

	backup, err := os.ReadFile(path + ".pgward-20260101T000000.bak")
	if err != nil {
		t.Fatalf("backup copy missing: %v", err)
	}
	if string(backup) != original {
		t.Errorf("backup = %q, want original %q", backup, original)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "port = 5433\n" {
		t.Errorf("patched = %q", data)
	}
}

func TestPatchFileNoChangeNoBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "postgresql.conf")
	if err := os.WriteFile(path, []byte("port = 5432\n"), 0o640); err != nil {
		t.Fatal(err)
	}
	if err := PatchFile(path, []Directive{{Key: "port", Value: "5432"}}); err != nil {
		t.Fatalf("PatchFile: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("no-op patch produced extra files: %v", entries)
	}
}

func TestPatchFileMissingTarget(t *testing.T) {
	err := PatchFile(filepath.Join(t.TempDir(), "nope.conf"), []Directive{{Key: "port", Value: "5432"}})
	var pe *PatchError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *PatchError", err)
	}
	if pe.Key != "port" {
		t.Errorf("PatchError.Key = %q, want port", pe.Key)
	}
}
