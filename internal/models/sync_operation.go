package models

import "encoding/json"

// SyncOpType is the kind of mutation captured in the sync operation log.
type SyncOpType string

const (
	SyncOpCreate SyncOpType = "create"
	SyncOpUpdate SyncOpType = "update"
	SyncOpDelete SyncOpType = "delete"
)

// SyncOpStatus is the replay lifecycle of a logged operation.
type SyncOpStatus string

const (
	SyncOpPending    SyncOpStatus = "pending"
	SyncOpInProgress SyncOpStatus = "in_progress"
	SyncOpCompleted  SyncOpStatus = "completed"
	SyncOpFailed     SyncOpStatus = "failed"
)

// SyncOperation is a durable log entry for a mutation awaiting propagation.
// The per-row syncStatus tag covers simple re-push; the operation log exists
// for replay-sensitive mutations (Q&A message sends, deletes of rows that no
// longer exist locally) where the entity row alone cannot drive the retry.
type SyncOperation struct {
	ID            ID              `db:"id" json:"id"`
	EntityType    string          `db:"entity_type" json:"entity_type"`
	EntityID      ID              `db:"entity_id" json:"entity_id"`
	Operation     SyncOpType      `db:"operation" json:"operation"`
	Payload       json.RawMessage `db:"payload" json:"payload"`
	RetryCount    int             `db:"retry_count" json:"retry_count"`
	MaxRetries    int             `db:"max_retries" json:"max_retries"`
	Status        SyncOpStatus    `db:"status" json:"status"`
	CreatedAt     int64           `db:"created_at" json:"created_at"`
	LastAttemptAt int64           `db:"last_attempt_at" json:"last_attempt_at,omitempty"` // 0 = never attempted
}

// TableName returns the table name for SyncOperation.
func (SyncOperation) TableName() string {
	return "sync_operations"
}
