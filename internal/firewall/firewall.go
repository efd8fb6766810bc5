// Package firewall manages the host firewall rules that admit database
// traffic. The production implementation drives ufw; tests inject a fake.
package firewall

import (
	"context"
	"fmt"
	"strings"

	"github.com/groblegark/pgward/internal/runner"
)

// Rule permits inbound traffic to port from source over proto.
type Rule struct {
	Source string // CIDR
	Port   int
	Proto  string // "tcp"
}

func (r Rule) String() string {
	return fmt.Sprintf("%s -> %d/%s", r.Source, r.Port, r.Proto)
}

// Firewall is one of the two enforcement points the access reconciler
// keeps consistent with the allow-list.
type Firewall interface {
	// EnsureRule adds r unless an equivalent rule exists. It reports
	// whether a rule was added.
	EnsureRule(ctx context.Context, r Rule) (bool, error)
}

// UFW manages rules through the ufw command line.
type UFW struct {
	run runner.Runner
}

func NewUFW(run runner.Runner) *UFW {
	return &UFW{run: run}
}

// EnsureRule checks the current ruleset for an equivalent allow rule and
// adds one when missing. ufw itself tolerates duplicate adds, but probing
// first keeps "ufw status" output stable across reconciliation passes.
func (u *UFW) EnsureRule(ctx context.Context, r Rule) (bool, error) {
	out, err := u.run.Run(ctx, "ufw", "status", "numbered")
	if err != nil {
		return false, fmt.Errorf("ufw status: %w", err)
	}
	if hasUFWRule(string(out), r) {
		return false, nil
	}
	_, err = u.run.Run(ctx, "ufw", "allow", "proto", r.Proto,
		"from", r.Source, "to", "any", "port", fmt.Sprintf("%d", r.Port))
	if err != nil {
		return false, fmt.Errorf("ufw allow %s: %w", r, err)
	}
	return true, nil
}

// hasUFWRule scans `ufw status numbered` output for an ALLOW rule matching
// (source, port, proto).
func hasUFWRule(status string, r Rule) bool {
	portProto := fmt.Sprintf("%d/%s", r.Port, r.Proto)
	for _, line := range strings.Split(status, "\n") {
		if !strings.Contains(line, "ALLOW") {
			continue
		}
		if strings.Contains(line, portProto) && strings.Contains(line, r.Source) {
			return true
		}
	}
	return false
}
