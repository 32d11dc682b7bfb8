package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/storynest/storynest/internal/connectivity"
	"github.com/storynest/storynest/internal/db"
	"github.com/storynest/storynest/internal/errors"
	"github.com/storynest/storynest/internal/logging"
	"github.com/storynest/storynest/internal/models"
	syncpkg "github.com/storynest/storynest/internal/sync"
)

// ParentGateway is the remote surface the parent repository depends on.
// remote.ParentAPI implements it.
type ParentGateway interface {
	Get(ctx context.Context, id models.ID) (*models.Parent, error)
	Update(ctx context.Context, p *models.Parent) (*models.Parent, error)
}

// ParentRepository owns the account holder's profile. Parent accounts
// are created during server-side signup, so the repository only ever
// caches, edits, and pushes; it never mints parent ids.
type ParentRepository struct {
	base
	gateway ParentGateway
}

// NewParentRepository wires a parent repository.
func NewParentRepository(store *db.Store, gateway ParentGateway, oracle connectivity.Oracle, pending PendingSink) *ParentRepository {
	return &ParentRepository{
		base:    base{store: store, oracle: oracle, pending: pending},
		gateway: gateway,
	}
}

// GetParent reads locally first and falls back to the server. Absence
// is (nil, nil).
func (r *ParentRepository) GetParent(ctx context.Context, id models.ID) (*models.Parent, error) {
	p, err := r.store.GetParent(id)
	if err != nil || p != nil {
		return p, err
	}
	if !r.reachable() {
		return nil, nil
	}
	p, err = r.gateway.Get(ctx, id)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := r.store.UpsertParent(p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateParent applies a profile edit locally and opportunistically
// pushes it.
func (r *ParentRepository) UpdateParent(ctx context.Context, p *models.Parent) (*models.Parent, error) {
	if p.Name == "" {
		return nil, errors.New(errors.ErrValidation, "parent name is required")
	}
	p.SyncStatus = models.SyncStatusPendingSync
	p.Touch()
	if err := r.store.UpsertParent(p); err != nil {
		return nil, err
	}
	r.publishPending()
	if r.reachable() {
		snapshot := *p
		r.spawn(func() { r.push(context.Background(), &snapshot) })
	}
	return p, nil
}

// Sync pushes every non-synced parent row.
func (r *ParentRepository) Sync(ctx context.Context) *syncpkg.Result {
	res := &syncpkg.Result{Success: true}
	parents, err := r.store.ListParentsPendingSync()
	if err != nil {
		res.Success = false
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	for _, p := range parents {
		if err := r.push(ctx, p); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("parent %s: %v", p.ID, err))
			continue
		}
		res.ItemsSynced++
	}
	if len(res.Errors) > 0 {
		res.Success = false
	}
	r.publishPending()
	return res
}

// push propagates one profile edit to the server.
func (r *ParentRepository) push(ctx context.Context, p *models.Parent) error {
	remote, err := r.gateway.Update(ctx, p)
	if err != nil {
		if status := failureStatus(err); status != p.SyncStatus {
			if serr := r.store.SetParentSyncStatus(p.ID, status); serr != nil {
				logging.Warn("mark parent sync failed", zap.String("id", string(p.ID)), zap.Error(serr))
			}
		}
		return err
	}
	if err := r.store.UpsertParent(remote); err != nil {
		return err
	}
	r.publishPending()
	return nil
}
