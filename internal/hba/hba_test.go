package hba

import (
	"path/filepath"
	"strings"
	"testing"
)

const sampleConf = `# TYPE  DATABASE  USER  ADDRESS  METHOD
local   all       postgres            peer

host    all   all   127.0.0.1/32   scram-sha-256
hostssl app   app   10.0.0.0/8     scram-sha-256
hostnossl all all   192.168.0.0/16 md5
host    short rule
`

func TestParseRecognizesRuleForms(t *testing.T) {
	f := Parse(sampleConf)
	rules := f.Rules()
	if len(rules) != 4 {
		t.Fatalf("parsed %d rules, want 4: %+v", len(rules), rules)
	}

	if rules[0].ConnType != "local" || rules[0].User != "postgres" || rules[0].Method != "peer" || rules[0].Address != "" {
		t.Errorf("local rule = %+v", rules[0])
	}
	if rules[2].ConnType != "hostssl" || rules[2].Database != "app" || rules[2].Address != "10.0.0.0/8" {
		t.Errorf("hostssl rule = %+v", rules[2])
	}
	if rules[3].ConnType != "hostnossl" || rules[3].Method != "md5" {
		t.Errorf("hostnossl rule = %+v", rules[3])
	}

	// Comments, blanks, and the short "host" line are kept as lines but
	// never become rules.
	if got := f.String(); got != sampleConf {
		t.Errorf("serialization not faithful:\n%s\nvs\n%s", sampleConf, got)
	}
}

func TestEnsureAppendsAndDeduplicates(t *testing.T) {
	f := Parse("local\tall\tpostgres\tpeer\n")
	r := Rule{ConnType: "host", Database: "all", User: "all", Address: "10.1.0.0/16", Method: "scram-sha-256"}

	if !f.Ensure(r) {
		t.Fatal("first Ensure reported no change")
	}
	if f.Ensure(r) {
		t.Error("second Ensure of the same rule reported a change")
	}
	if !f.Contains(r) {
		t.Error("Contains misses the appended rule")
	}
	if got := strings.Count(f.String(), "10.1.0.0/16"); got != 1 {
		t.Errorf("rule appears %d times:\n%s", got, f.String())
	}
}

func TestEquivalentIgnoresMethod(t *testing.T) {
	f := Parse("host\tall\tall\t10.0.0.0/8\tmd5\n")
	// A second rule for the same selector would never be reached, whatever
	// its method, so Ensure must treat it as already present.
	if f.Ensure(Rule{ConnType: "host", Database: "all", User: "all", Address: "10.0.0.0/8", Method: "scram-sha-256"}) {
		t.Errorf("unreachable duplicate appended:\n%s", f.String())
	}
	a := Rule{ConnType: "local", Database: "all", User: "a"}
	if !a.Equivalent(Rule{ConnType: "local", Database: "all", User: "a", Method: "trust"}) {
		t.Error("Equivalent distinguishes rules by method")
	}
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pg_hba.conf")
	f := Parse(sampleConf)
	f.Ensure(Rule{ConnType: "host", Database: "all", User: "all", Address: "203.0.113.0/24", Method: "scram-sha-256"})
	if err := f.WriteFile(path, 0o640); err != nil {
		t.Fatal(err)
	}

	again, err := ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if again.String() != f.String() {
		t.Errorf("round trip diverged:\n%s\nvs\n%s", f.String(), again.String())
	}
	if !again.Contains(Rule{ConnType: "host", Database: "all", User: "all", Address: "203.0.113.0/24"}) {
		t.Error("appended rule lost in round trip")
	}
}
