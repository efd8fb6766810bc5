package access

import (
	"context"
	"testing"

	"github.com/groblegark/pgward/internal/firewall"
	"github.com/groblegark/pgward/internal/hba"
)

var params = Params{Port: 5432, AuthMethod: "scram-sha-256"}

func TestReconcileAllowListCompleteness(t *testing.T) {
	allow := []string{"192.168.1.0/24", "10.1.2.3"}
	hbaFile := hba.Parse("")
	fw := firewall.NewFake()

	res, err := Reconcile(context.Background(), allow, hbaFile, fw, params)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(res.Skipped) != 0 {
		t.Errorf("skipped = %v", res.Skipped)
	}

	for _, cidr := range []string{"192.168.1.0/24", "10.1.2.3/32"} {
		if !hbaFile.Contains(hba.Rule{ConnType: "host", Database: "all", User: "all", Address: cidr}) {
			t.Errorf("hba missing rule for %s", cidr)
		}
		if !fw.Contains(firewall.Rule{Source: cidr, Port: 5432, Proto: "tcp"}) {
			t.Errorf("firewall missing rule for %s", cidr)
		}
	}
}

func TestReconcileLoopbackInvariant(t *testing.T) {
	for name, allow := range map[string][]string{
		"empty list":  {},
		"remote only": {"203.0.113.0/24"},
	} {
		t.Run(name, func(t *testing.T) {
			hbaFile := hba.Parse("")
			if _, err := Reconcile(context.Background(), allow, hbaFile, firewall.NewFake(), params); err != nil {
				t.Fatalf("Reconcile: %v", err)
			}
			for _, r := range []hba.Rule{
				{ConnType: "local", Database: "all", User: "postgres"},
				{ConnType: "host", Database: "all", User: "all", Address: "127.0.0.1/32"},
				{ConnType: "host", Database: "all", User: "all", Address: "::1/128"},
			} {
				if !hbaFile.Contains(r) {
					t.Errorf("loopback rule missing: %s", r)
				}
			}
		})
	}
}

func TestReconcileIdempotent(t *testing.T) {
	allow := []string{"192.168.1.0/24"}
	hbaFile := hba.Parse("")
	fw := firewall.NewFake()
	ctx := context.Background()

	if _, err := Reconcile(ctx, allow, hbaFile, fw, params); err != nil {
		t.Fatal(err)
	}
	before := hbaFile.String()
	fwBefore := len(fw.Rules())

	res, err := Reconcile(ctx, allow, hbaFile, fw, params)
	if err != nil {
		t.Fatal(err)
	}
	if res.AuthRulesAdded != 0 || res.FirewallRulesAdded != 0 {
		t.Errorf("second pass added rules: %+v", res)
	}
	if hbaFile.String() != before {
		t.Errorf("hba file changed on second pass:\n%s\nvs\n%s", before, hbaFile.String())
	}
	if len(fw.Rules()) != fwBefore {
		t.Errorf("firewall grew on second pass: %v", fw.Rules())
	}
}

func TestReconcileSkipsMalformedEntry(t *testing.T) {
	allow := []string{"not-a-cidr", "10.0.0.0/8"}
	hbaFile := hba.Parse("")
	fw := firewall.NewFake()

	res, err := Reconcile(context.Background(), allow, hbaFile, fw, params)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if _, ok := res.Skipped["not-a-cidr"]; !ok {
		t.Errorf("malformed entry not recorded as skipped: %v", res.Skipped)
	}
	// The bad entry must not block the good one.
	if !fw.Contains(firewall.Rule{Source: "10.0.0.0/8", Port: 5432, Proto: "tcp"}) {
		t.Error("valid entry after malformed one was not reconciled")
	}
}

func TestReconcilePreservesExistingRules(t *testing.T) {
	content := "# managed by the distribution\nlocal\tall\tpostgres\tpeer\nhost\tall\tall\t172.16.0.0/12\tmd5\n"
	hbaFile := hba.Parse(content)

	if _, err := Reconcile(context.Background(), []string{"172.16.0.0/12"}, hbaFile, firewall.NewFake(), params); err != nil {
		t.Fatal(err)
	}
	// The pre-existing md5 rule for the same source already decides those
	// clients; no second rule may be appended.
	count := 0
	for _, r := range hbaFile.Rules() {
		if r.Address == "172.16.0.0/12" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("rules for 172.16.0.0/12 = %d, want 1", count)
	}
}

func TestNormalizeEntry(t *testing.T) {
	for _, tc := range []struct {
		in, want string
		wantErr  bool
	}{
		{in: "10.1.2.3", want: "10.1.2.3/32"},
		{in: "192.168.1.0/24", want: "192.168.1.0/24"},
		{in: "2001:db8::1", want: "2001:db8::1/128"},
		{in: "192.168.1.5/24", want: "192.168.1.0/24"},
		{in: "hostname", wantErr: true},
		{in: "", wantErr: true},
	} {
		got, err := normalizeEntry(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("normalizeEntry(%q) = %q, want error", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("normalizeEntry(%q): %v", tc.in, err)
		} else if got != tc.want {
			t.Errorf("normalizeEntry(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
