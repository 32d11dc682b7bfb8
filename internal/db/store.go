package db

import (
	"database/sql"

	"github.com/storynest/storynest/internal/errors"
)

// Store provides per-table operations over the local cache. All writes
// funnel through idempotent upsert-by-id statements and end by notifying
// the reactive layer, so every live subscription observes every mutation
// regardless of which component made it.
type Store struct {
	db       *sql.DB
	notifier *notifier
}

// NewStore creates a Store over an opened database.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:       db,
		notifier: newNotifier(),
	}
}

// cacheErr wraps a storage I/O error as a CacheFailure. The store itself
// never retries.
func cacheErr(op string, err error) error {
	return errors.Wrap(errors.ErrCache, op, err)
}

// CountPendingSync returns the number of rows across all entity tables
// still awaiting propagation, plus unreplayed operation log entries. Used
// for the denormalized pending count on the sync status surface.
func (s *Store) CountPendingSync() (int, error) {
	query := `
	SELECT
		(SELECT COUNT(*) FROM parents WHERE sync_status != 'synced') +
		(SELECT COUNT(*) FROM voice_profiles WHERE sync_status != 'synced') +
		(SELECT COUNT(*) FROM stories WHERE sync_status != 'synced') +
		(SELECT COUNT(*) FROM qa_sessions WHERE sync_status != 'synced') +
		(SELECT COUNT(*) FROM qa_messages WHERE sync_status != 'synced') +
		(SELECT COUNT(*) FROM pending_questions WHERE sync_status != 'synced') +
		(SELECT COUNT(*) FROM sync_operations WHERE status IN ('pending', 'in_progress'))
	`
	var n int
	if err := s.db.QueryRow(query).Scan(&n); err != nil {
		return 0, cacheErr("failed to count pending rows", err)
	}
	return n, nil
}

// inTx runs fn inside a transaction.
func (s *Store) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return cacheErr("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return cacheErr("failed to commit transaction", err)
	}
	return nil
}
