// Package access reconciles the configured allow-list against both
// enforcement points: the PostgreSQL authentication rule file and the host
// firewall. The allow-list is the single source of truth; reconciliation
// only adds missing rules and never prunes, so a shrunken list cannot lock
// anyone out behind the operator's back.
package access

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/groblegark/pgward/internal/firewall"
	"github.com/groblegark/pgward/internal/hba"
)

// Params configures a reconciliation.
type Params struct {
	Port       int
	AuthMethod string // hba method for remote hosts, e.g. "scram-sha-256"
}

// Result summarizes what a reconciliation changed.
type Result struct {
	AuthRulesAdded     int
	FirewallRulesAdded int
	// Skipped holds allow-list entries that could not be parsed, with the
	// reason; they do not block the rest of the list.
	Skipped map[string]string
}

// loopbackRules are always ensured first. Local administrative access must
// never depend on the allow-list being right.
func loopbackRules(method string) []hba.Rule {
	return []hba.Rule{
		{ConnType: "local", Database: "all", User: "postgres", Method: "peer"},
		{ConnType: "host", Database: "all", User: "all", Address: "127.0.0.1/32", Method: method},
		{ConnType: "host", Database: "all", User: "all", Address: "::1/128", Method: method},
	}
}

// Reconcile guarantees that every parseable allow-list entry has an
// authentication rule in hbaFile and an allow rule in fw for the configured
// port. Re-running with an unchanged list adds nothing. A malformed entry is
// logged, recorded in the result, and skipped.
func Reconcile(ctx context.Context, allowList []string, hbaFile *hba.File, fw firewall.Firewall, p Params) (Result, error) {
	res := Result{Skipped: map[string]string{}}

	for _, r := range loopbackRules(p.AuthMethod) {
		if hbaFile.Ensure(r) {
			res.AuthRulesAdded++
		}
	}

	for _, entry := range allowList {
		cidr, err := normalizeEntry(entry)
		if err != nil {
			slog.Warn("skipping malformed allow-list entry", "entry", entry, "error", err)
			res.Skipped[entry] = err.Error()
			continue
		}

		if hbaFile.Ensure(hba.Rule{
			ConnType: "host",
			Database: "all",
			User:     "all",
			Address:  cidr,
			Method:   p.AuthMethod,
		}) {
			res.AuthRulesAdded++
		}

		added, err := fw.EnsureRule(ctx, firewall.Rule{Source: cidr, Port: p.Port, Proto: "tcp"})
		if err != nil {
			return res, fmt.Errorf("firewall rule for %s: %w", cidr, err)
		}
		if added {
			res.FirewallRulesAdded++
		}
	}
	return res, nil
}

// normalizeEntry accepts a CIDR or a bare IP and returns canonical CIDR
// notation (bare addresses become /32 or /128 host prefixes).
func normalizeEntry(entry string) (string, error) {
	if pfx, err := netip.ParsePrefix(entry); err == nil {
		return pfx.Masked().String(), nil
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return "", fmt.Errorf("not an IP or CIDR: %q", entry)
	}
	return netip.PrefixFrom(addr, addr.BitLen()).String(), nil
}
