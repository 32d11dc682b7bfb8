package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/storynest/storynest/internal/errors"
	"github.com/storynest/storynest/internal/logging"
	"github.com/storynest/storynest/internal/models"
	syncpkg "github.com/storynest/storynest/internal/sync"
	"github.com/storynest/storynest/internal/uuid"
)

// defaultOpRetries bounds how many sync passes may retry a journaled
// operation before it is marked failed.
const defaultOpRetries = 5

// journalDelete records a remote delete in the operation log so a sync
// pass can replay it after the local row is gone. Journaling failure is
// logged and swallowed: the local delete already happened and must not
// be undone by a bookkeeping error.
func (b *base) journalDelete(entityType string, entityID models.ID) {
	op := &models.SyncOperation{
		ID:         models.ID(uuid.New()),
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  models.SyncOpDelete,
		MaxRetries: defaultOpRetries,
		Status:     models.SyncOpPending,
		CreatedAt:  models.Now(),
	}
	if err := b.store.EnqueueSyncOperation(op); err != nil {
		logging.Warn("journal delete failed",
			zap.String("entity_type", entityType),
			zap.String("entity_id", string(entityID)),
			zap.Error(err))
	}
}

// replayDeletes drains the pending delete operations for one entity
// type. A remote 404 counts as success: the row is already gone.
func (b *base) replayDeletes(ctx context.Context, entityType string, del func(context.Context, models.ID) error, res *syncpkg.Result) {
	ops, err := b.store.ListPendingSyncOperations(entityType)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("list %s delete log: %v", entityType, err))
		return
	}
	for _, op := range ops {
		if op.Operation != models.SyncOpDelete {
			continue
		}
		if err := b.store.StartSyncOperation(op.ID); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("start op %s: %v", op.ID, err))
			continue
		}
		if err := del(ctx, op.EntityID); err != nil && !errors.Is(err, errors.ErrNotFound) {
			if ferr := b.store.FailSyncOperation(op.ID); ferr != nil {
				logging.Warn("mark op failed", zap.String("op_id", string(op.ID)), zap.Error(ferr))
			}
			res.Errors = append(res.Errors, fmt.Sprintf("delete %s %s: %v", entityType, op.EntityID, err))
			continue
		}
		if err := b.store.CompleteSyncOperation(op.ID); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("complete op %s: %v", op.ID, err))
			continue
		}
		res.ItemsSynced++
	}
}

// failureStatus maps a push error onto the row's sync state: retryable
// failures leave the row pending for the next pass, everything else is
// marked failed so the UI can surface it.
func failureStatus(err error) models.SyncStatus {
	if errors.IsRetryable(err) {
		return models.SyncStatusPendingSync
	}
	return models.SyncStatusSyncFailed
}
