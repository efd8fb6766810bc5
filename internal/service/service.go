// Package service controls the database and pooler systemd units.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/groblegark/pgward/internal/runner"
)

// Unit names for the services pgward manages.
const (
	Postgres  = "postgresql"
	PgBouncer = "pgbouncer"
)

// Manager wraps systemctl.
type Manager struct {
	run runner.Runner
}

func NewManager(run runner.Runner) *Manager {
	return &Manager{run: run}
}

// Reload asks the unit to re-read its configuration without dropping
// connections.
func (m *Manager) Reload(ctx context.Context, unit string) error {
	if _, err := m.run.Run(ctx, "systemctl", "reload", unit); err != nil {
		return fmt.Errorf("reload %s: %w", unit, err)
	}
	return nil
}

// Restart restarts the unit.
func (m *Manager) Restart(ctx context.Context, unit string) error {
	if _, err := m.run.Run(ctx, "systemctl", "restart", unit); err != nil {
		return fmt.Errorf("restart %s: %w", unit, err)
	}
	return nil
}

// IsActive reports whether the unit is running. systemctl exits non-zero
// for inactive units, which is a state, not an error.
func (m *Manager) IsActive(ctx context.Context, unit string) bool {
	out, err := m.run.Run(ctx, "systemctl", "is-active", unit)
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) == "active"
}
