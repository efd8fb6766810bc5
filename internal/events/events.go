// Package events emits provisioning lifecycle events to an optional ops
// event bus so fleet tooling can watch hosts converge.
package events

import (
	"context"
	"time"
)

// Event topic constants
const (
	TopicApplyCompleted    = "pgward.apply.completed"
	TopicBackupCompleted   = "pgward.backup.completed"
	TopicCredentialCreated = "pgward.credential.created"
	TopicRestoreCompleted  = "pgward.restore.completed"
)

// Event types

type ApplyCompleted struct {
	Host               string    `json:"host"`
	AuthRulesAdded     int       `json:"auth_rules_added"`
	FirewallRulesAdded int       `json:"firewall_rules_added"`
	SkippedEntries     []string  `json:"skipped_entries,omitempty"`
	FinishedAt         time.Time `json:"finished_at"`
}

type BackupCompleted struct {
	Host         string    `json:"host"`
	RunID        string    `json:"run_id"`
	Artifacts    int       `json:"artifacts"`
	Deleted      int       `json:"deleted"`
	OffloadError string    `json:"offload_error,omitempty"`
	FinishedAt   time.Time `json:"finished_at"`
}

type CredentialCreated struct {
	Host     string `json:"host"`
	Role     string `json:"role"`
	Database string `json:"database"`
	Pooler   bool   `json:"pooler"`
}

type RestoreCompleted struct {
	Host     string `json:"host"`
	Artifact string `json:"artifact"`
	Database string `json:"database"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
