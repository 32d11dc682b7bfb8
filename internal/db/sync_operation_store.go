package db

import (
	"database/sql"

	"github.com/storynest/storynest/internal/models"
)

const syncOperationColumns = `id, entity_type, entity_id, operation, payload,
	retry_count, max_retries, status, created_at, last_attempt_at`

func scanSyncOperation(row rowScanner) (*models.SyncOperation, error) {
	var op models.SyncOperation
	var payload string
	var lastAttemptAt sql.NullInt64
	err := row.Scan(&op.ID, &op.EntityType, &op.EntityID, &op.Operation, &payload,
		&op.RetryCount, &op.MaxRetries, &op.Status, &op.CreatedAt, &lastAttemptAt)
	if err != nil {
		return nil, err
	}
	op.Payload = []byte(payload)
	op.LastAttemptAt = lastAttemptAt.Int64
	return &op, nil
}

// EnqueueSyncOperation appends a mutation to the durable operation log.
func (s *Store) EnqueueSyncOperation(op *models.SyncOperation) error {
	query := `
	INSERT INTO sync_operations (id, entity_type, entity_id, operation, payload,
		retry_count, max_retries, status, created_at, last_attempt_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		retry_count = excluded.retry_count,
		status = excluded.status,
		last_attempt_at = excluded.last_attempt_at
	`
	var lastAttemptAt interface{}
	if op.LastAttemptAt != 0 {
		lastAttemptAt = op.LastAttemptAt
	}
	_, err := s.db.Exec(query, op.ID, op.EntityType, op.EntityID, op.Operation,
		string(op.Payload), op.RetryCount, op.MaxRetries, op.Status, op.CreatedAt, lastAttemptAt)
	if err != nil {
		return cacheErr("failed to enqueue sync operation", err)
	}
	s.notifier.notify(models.SyncOperation{}.TableName())
	return nil
}

// ListPendingSyncOperations returns replayable operations in creation
// order, optionally filtered by entity type.
func (s *Store) ListPendingSyncOperations(entityType string) ([]*models.SyncOperation, error) {
	query := `SELECT ` + syncOperationColumns + ` FROM sync_operations WHERE status = 'pending'`
	var args []interface{}
	if entityType != "" {
		query += ` AND entity_type = ?`
		args = append(args, entityType)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, cacheErr("failed to list pending sync operations", err)
	}
	defer rows.Close()

	var ops []*models.SyncOperation
	for rows.Next() {
		op, err := scanSyncOperation(rows)
		if err != nil {
			return nil, cacheErr("failed to scan sync operation", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, cacheErr("failed to iterate sync operations", err)
	}
	return ops, nil
}

// JournaledDeleteIDs returns the ids of rows whose remote delete is
// still in the log, whatever its retry state. Pull refreshes consult
// this so a deleted row is never re-created from a server listing.
func (s *Store) JournaledDeleteIDs(entityType string) (map[models.ID]struct{}, error) {
	rows, err := s.db.Query(
		`SELECT entity_id FROM sync_operations WHERE operation = 'delete' AND entity_type = ?`,
		entityType)
	if err != nil {
		return nil, cacheErr("failed to list journaled deletes", err)
	}
	defer rows.Close()

	ids := make(map[models.ID]struct{})
	for rows.Next() {
		var id models.ID
		if err := rows.Scan(&id); err != nil {
			return nil, cacheErr("failed to scan journaled delete", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, cacheErr("failed to iterate journaled deletes", err)
	}
	return ids, nil
}

// StartSyncOperation marks an operation in_progress and records the
// attempt.
func (s *Store) StartSyncOperation(id models.ID) error {
	_, err := s.db.Exec(
		`UPDATE sync_operations SET status = 'in_progress', retry_count = retry_count + 1, last_attempt_at = ? WHERE id = ?`,
		models.Now(), id)
	if err != nil {
		return cacheErr("failed to start sync operation", err)
	}
	s.notifier.notify(models.SyncOperation{}.TableName())
	return nil
}

// CompleteSyncOperation removes a successfully replayed operation from the
// log.
func (s *Store) CompleteSyncOperation(id models.ID) error {
	_, err := s.db.Exec(`DELETE FROM sync_operations WHERE id = ?`, id)
	if err != nil {
		return cacheErr("failed to complete sync operation", err)
	}
	s.notifier.notify(models.SyncOperation{}.TableName())
	return nil
}

// FailSyncOperation returns an operation to pending for a later pass, or
// marks it failed once retries are exhausted.
func (s *Store) FailSyncOperation(id models.ID) error {
	_, err := s.db.Exec(`
	UPDATE sync_operations
	SET status = CASE WHEN retry_count >= max_retries THEN 'failed' ELSE 'pending' END
	WHERE id = ?`, id)
	if err != nil {
		return cacheErr("failed to fail sync operation", err)
	}
	s.notifier.notify(models.SyncOperation{}.TableName())
	return nil
}

// RecoverInFlightSyncOperations returns in_progress operations to
// pending. A replay attempt never survives a process restart, so any
// operation still marked in_progress at startup was orphaned by a crash
// between Start and Complete/Fail. Returns the number recovered.
func (s *Store) RecoverInFlightSyncOperations() (int, error) {
	res, err := s.db.Exec(`UPDATE sync_operations SET status = 'pending' WHERE status = 'in_progress'`)
	if err != nil {
		return 0, cacheErr("failed to recover in-flight sync operations", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.notifier.notify(models.SyncOperation{}.TableName())
	}
	return int(n), nil
}

// RequeueFailedSyncOperations resets failed operations to pending with a
// fresh retry budget. Returns the number of operations re-queued.
func (s *Store) RequeueFailedSyncOperations() (int, error) {
	res, err := s.db.Exec(`UPDATE sync_operations SET status = 'pending', retry_count = 0 WHERE status = 'failed'`)
	if err != nil {
		return 0, cacheErr("failed to requeue sync operations", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.notifier.notify(models.SyncOperation{}.TableName())
	}
	return int(n), nil
}
