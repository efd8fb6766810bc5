// Package cred provisions a database credential end to end: the role, the
// database it owns, and — when the pooler is enabled — the matching entry
// in the PgBouncer userlist, so one (role, secret) pair works both directly
// and through the pooler.
package cred

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/groblegark/pgward/internal/pool"
	"github.com/groblegark/pgward/internal/service"
)

// Pair is the provisioned credential.
type Pair struct {
	Role     string
	Database string
}

// StepError names the provisioning step and object that failed so the
// operator knows exactly what to fix before re-running.
type StepError struct {
	Step   string // "role", "database", "pooler"
	Object string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("provision %s %q: %v", e.Step, e.Object, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// PoolerStore describes where the pooler side of a credential goes. A nil
// PoolerStore means the pooler is disabled and step three is skipped.
type PoolerStore struct {
	UserlistPath string
	AuthType     string // "md5" or "scram-sha-256"
	Services     *service.Manager
}

// Provisioner creates roles, databases, and pooler credentials.
type Provisioner struct {
	db     *sql.DB
	pooler *PoolerStore
}

func NewProvisioner(db *sql.DB, pooler *PoolerStore) *Provisioner {
	return &Provisioner{db: db, pooler: pooler}
}

// CreateCredential ensures the role and database exist and, if the pooler
// is enabled, mirrors the credential into the userlist and reloads the
// pooler. Each step is idempotent; a failure in an earlier step leaves the
// pooler store untouched so a half-working credential is never visible.
func (p *Provisioner) CreateCredential(ctx context.Context, database, role, secret string) (Pair, error) {
	pair := Pair{Role: role, Database: database}

	if err := p.ensureRole(ctx, role, secret); err != nil {
		return pair, &StepError{Step: "role", Object: role, Err: err}
	}
	if err := p.ensureDatabase(ctx, database, role); err != nil {
		return pair, &StepError{Step: "database", Object: database, Err: err}
	}
	if p.pooler != nil {
		if err := p.provisionPooler(ctx, role, secret); err != nil {
			return pair, &StepError{Step: "pooler", Object: role, Err: err}
		}
	}
	return pair, nil
}

// ensureRole creates the role if absent. A pre-existing role is left
// untouched, password included: re-running must never be destructive.
func (p *Provisioner) ensureRole(ctx context.Context, role, secret string) error {
	exists, err := p.exists(ctx, "SELECT 1 FROM pg_roles WHERE rolname = $1", role)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	// Utility statements cannot take bind parameters; quote explicitly.
	stmt := fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD %s",
		pq.QuoteIdentifier(role), pq.QuoteLiteral(secret))
	if _, err := p.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create role: %w", err)
	}
	return nil
}

// ensureDatabase creates the database owned by role if absent.
func (p *Provisioner) ensureDatabase(ctx context.Context, database, role string) error {
	exists, err := p.exists(ctx, "SELECT 1 FROM pg_database WHERE datname = $1", database)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	stmt := fmt.Sprintf("CREATE DATABASE %s OWNER %s",
		pq.QuoteIdentifier(database), pq.QuoteIdentifier(role))
	if _, err := p.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	return nil
}

func (p *Provisioner) exists(ctx context.Context, query, arg string) (bool, error) {
	var one int
	err := p.db.QueryRowContext(ctx, query, arg).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup: %w", err)
	}
	return true, nil
}

// provisionPooler writes the pooler-compatible hash into the userlist and
// reloads PgBouncer, which re-reads credentials without dropping active
// connections.
func (p *Provisioner) provisionPooler(ctx context.Context, role, secret string) error {
	hash, err := pool.HashFor(p.pooler.AuthType, role, secret)
	if err != nil {
		return err
	}
	users, err := pool.LoadUserlist(p.pooler.UserlistPath)
	if err != nil {
		return err
	}
	users.Upsert(role, hash)
	if err := users.Save(); err != nil {
		return err
	}
	if p.pooler.Services != nil {
		if err := p.pooler.Services.Reload(ctx, service.PgBouncer); err != nil {
			return err
		}
	}
	return nil
}
