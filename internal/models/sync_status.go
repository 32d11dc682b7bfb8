package models

// SyncStatus is the three-valued tag carried on every syncable row. It is
// independent of any domain lifecycle status the entity may also carry: a
// ready voice profile can still be pending_sync if the ready transition has
// not been pushed yet.
type SyncStatus string

const (
	SyncStatusSynced      SyncStatus = "synced"
	SyncStatusPendingSync SyncStatus = "pending_sync"
	SyncStatusSyncFailed  SyncStatus = "sync_failed"
)

// IsValid reports whether s is one of the three defined tags.
func (s SyncStatus) IsValid() bool {
	switch s {
	case SyncStatusSynced, SyncStatusPendingSync, SyncStatusSyncFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the transition s -> next is allowed:
//
//	pending_sync -> synced       successful push
//	pending_sync -> sync_failed  non-retryable rejection
//	sync_failed  -> pending_sync re-queued by a later sync pass
//	synced       -> pending_sync new local mutation
func (s SyncStatus) CanTransitionTo(next SyncStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case SyncStatusPendingSync:
		return next == SyncStatusSynced || next == SyncStatusSyncFailed
	case SyncStatusSyncFailed:
		return next == SyncStatusPendingSync
	case SyncStatusSynced:
		return next == SyncStatusPendingSync
	}
	return false
}

// NeedsSync reports whether the row must be re-attempted by a sync pass.
func (s SyncStatus) NeedsSync() bool {
	return s != SyncStatusSynced
}
