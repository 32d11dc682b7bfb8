// Package repository implements the per-feature data policies: local
// reads first, optimistic writes, opportunistic pushes, and per-row
// sync passes. Repositories are the only layer allowed to talk to both
// the local store and the remote gateway.
package repository

import (
	"go.uber.org/zap"

	"github.com/storynest/storynest/internal/connectivity"
	"github.com/storynest/storynest/internal/db"
	"github.com/storynest/storynest/internal/errors"
	"github.com/storynest/storynest/internal/logging"
	"github.com/storynest/storynest/internal/models"
)

// PendingSink receives the number of rows still awaiting sync after a
// local mutation or sync pass. The sync manager implements it.
type PendingSink interface {
	UpdatePendingCount(n int)
}

// base carries the wiring every repository shares.
type base struct {
	store   *db.Store
	oracle  connectivity.Oracle
	pending PendingSink
}

func (b *base) reachable() bool {
	return b.oracle != nil && b.oracle.Reachable()
}

// publishPending recounts unsynced rows and pushes the total to the
// sink. Best-effort: a counting failure is logged, never surfaced.
func (b *base) publishPending() {
	if b.pending == nil {
		return
	}
	n, err := b.store.CountPendingSync()
	if err != nil {
		logging.Warn("pending sync count failed", zap.Error(err))
		return
	}
	b.pending.UpdatePendingCount(n)
}

// journaledDeletes returns the ids of rows deleted on this device whose
// remote delete has not replayed yet. Refreshes skip these ids so a
// server listing cannot resurrect a locally deleted row. On a read
// failure the refresh is safer skipped than run blind.
func (b *base) journaledDeletes(entityType string) (map[models.ID]struct{}, bool) {
	ids, err := b.store.JournaledDeleteIDs(entityType)
	if err != nil {
		logging.Warn("read delete journal", zap.String("entity_type", entityType), zap.Error(err))
		return nil, false
	}
	return ids, true
}

// spawn runs fn on its own goroutine with panic containment. Used for
// opportunistic pushes so callers never block on the network.
func (b *base) spawn(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.Error("background push panicked", zap.Any("panic", r))
			}
		}()
		fn()
	}()
}

// offlineErr is the uniform failure for online-only flows.
func offlineErr(action string) error {
	return errors.Newf(errors.ErrNetwork, "%s requires a network connection", action)
}
