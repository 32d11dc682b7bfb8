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
	"github.com/storynest/storynest/internal/uuid"
)

// VoiceProfileGateway is the remote surface the voice profile
// repository depends on. remote.VoiceProfileAPI implements it.
type VoiceProfileGateway interface {
	List(ctx context.Context, parentID models.ID) ([]*models.VoiceProfile, error)
	Get(ctx context.Context, id models.ID) (*models.VoiceProfile, error)
	CreateWithSample(ctx context.Context, vp *models.VoiceProfile, sample []byte) (*models.VoiceProfile, error)
	Update(ctx context.Context, vp *models.VoiceProfile) (*models.VoiceProfile, error)
	Delete(ctx context.Context, id models.ID) error
}

// VoiceProfileRepository owns voice profile reads, cloning submission,
// renames, and the voice profile sync pass.
type VoiceProfileRepository struct {
	base
	gateway VoiceProfileGateway
}

// NewVoiceProfileRepository wires a voice profile repository.
func NewVoiceProfileRepository(store *db.Store, gateway VoiceProfileGateway, oracle connectivity.Oracle, pending PendingSink) *VoiceProfileRepository {
	return &VoiceProfileRepository{
		base:    base{store: store, oracle: oracle, pending: pending},
		gateway: gateway,
	}
}

// GetVoiceProfiles returns the local rows immediately and refreshes
// from the server in the background when reachable. The refresh is how
// pending/processing profiles pick up the server's cloning progress.
func (r *VoiceProfileRepository) GetVoiceProfiles(ctx context.Context, parentID models.ID) ([]*models.VoiceProfile, error) {
	profiles, err := r.store.ListVoiceProfiles(parentID)
	if err != nil {
		return nil, err
	}
	if r.reachable() {
		r.spawn(func() { r.refresh(context.Background(), parentID) })
	}
	return profiles, nil
}

// GetVoiceProfile reads locally first and falls back to the server.
// Absence is (nil, nil).
func (r *VoiceProfileRepository) GetVoiceProfile(ctx context.Context, id models.ID) (*models.VoiceProfile, error) {
	vp, err := r.store.GetVoiceProfile(id)
	if err != nil || vp != nil {
		return vp, err
	}
	if !r.reachable() {
		return nil, nil
	}
	// A profile deleted here stays gone even while the remote delete is
	// still journaled.
	deleted, ok := r.journaledDeletes(models.VoiceProfile{}.TableName())
	if !ok {
		return nil, nil
	}
	if _, gone := deleted[id]; gone {
		return nil, nil
	}
	vp, err = r.gateway.Get(ctx, id)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := r.store.UpsertVoiceProfile(vp); err != nil {
		return nil, err
	}
	return vp, nil
}

// WatchVoiceProfiles subscribes to the reactive profile list for a parent.
func (r *VoiceProfileRepository) WatchVoiceProfiles(parentID models.ID) *db.Subscription[*models.VoiceProfile] {
	return r.store.WatchVoiceProfiles(parentID)
}

// CreateVoiceProfile submits a recorded sample for cloning. Duration is
// validated before anything else so a bad recording has zero side
// effects. Cloning requires the server, so there is no offline form:
// an unreachable network fails fast, and an upload failure rolls the
// optimistic row back rather than leaving a profile that will never
// process.
func (r *VoiceProfileRepository) CreateVoiceProfile(ctx context.Context, parentID models.ID, name string, sampleDuration float64, sample []byte, samplePath string) (*models.VoiceProfile, error) {
	if err := models.ValidateSampleDuration(sampleDuration); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errors.New(errors.ErrValidation, "profile name is required")
	}
	if !r.reachable() {
		return nil, offlineErr("voice cloning")
	}

	now := models.Now()
	vp := &models.VoiceProfile{
		ID:             models.ID(uuid.New()),
		ParentID:       parentID,
		Name:           name,
		Status:         models.VoiceProfilePending,
		SampleDuration: sampleDuration,
		LocalAudioPath: samplePath,
		CreatedAt:      now,
		UpdatedAt:      now,
		SyncStatus:     models.SyncStatusPendingSync,
	}
	if err := r.store.UpsertVoiceProfile(vp); err != nil {
		return nil, err
	}

	remote, err := r.gateway.CreateWithSample(ctx, vp, sample)
	if err != nil {
		if derr := r.store.DeleteVoiceProfile(vp.ID); derr != nil {
			logging.Warn("roll back voice profile", zap.String("id", string(vp.ID)), zap.Error(derr))
		}
		return nil, err
	}
	remote.LocalAudioPath = vp.LocalAudioPath
	if err := r.store.ReplaceVoiceProfile(vp.ID, remote); err != nil {
		return nil, err
	}
	r.publishPending()
	return remote, nil
}

// RenameVoiceProfile applies a rename locally and opportunistically
// pushes it. Renames work offline.
func (r *VoiceProfileRepository) RenameVoiceProfile(ctx context.Context, id models.ID, name string) (*models.VoiceProfile, error) {
	if name == "" {
		return nil, errors.New(errors.ErrValidation, "profile name is required")
	}
	vp, err := r.store.GetVoiceProfile(id)
	if err != nil {
		return nil, err
	}
	if vp == nil {
		return nil, errors.Newf(errors.ErrNotFound, "voice profile %s not found", id)
	}
	vp.Name = name
	vp.SyncStatus = models.SyncStatusPendingSync
	vp.Touch()
	if err := r.store.UpsertVoiceProfile(vp); err != nil {
		return nil, err
	}
	r.publishPending()
	if r.reachable() {
		snapshot := *vp
		r.spawn(func() { r.push(context.Background(), &snapshot) })
	}
	return vp, nil
}

// DeleteVoiceProfile removes the row locally no matter what and
// journals the remote delete for replay.
func (r *VoiceProfileRepository) DeleteVoiceProfile(ctx context.Context, id models.ID) error {
	vp, err := r.store.GetVoiceProfile(id)
	if err != nil {
		return err
	}
	if err := r.store.DeleteVoiceProfile(id); err != nil {
		return err
	}
	if vp != nil && !uuid.IsClientID(string(id)) {
		r.journalDelete(models.VoiceProfile{}.TableName(), id)
		if r.reachable() {
			r.spawn(func() {
				res := &syncpkg.Result{}
				r.replayDeletes(context.Background(), models.VoiceProfile{}.TableName(), r.gateway.Delete, res)
			})
		}
	}
	r.publishPending()
	return nil
}

// Sync pushes pending renames, replays journaled deletes, and pulls the
// server's cloning state. Each row fails or succeeds on its own.
func (r *VoiceProfileRepository) Sync(ctx context.Context) *syncpkg.Result {
	res := &syncpkg.Result{Success: true}
	r.replayDeletes(ctx, models.VoiceProfile{}.TableName(), r.gateway.Delete, res)

	profiles, err := r.store.ListVoiceProfilesPendingSync()
	if err != nil {
		res.Success = false
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	for _, vp := range profiles {
		// A client id here means the cloning upload never completed;
		// there is nothing to re-push without the sample, so the row is
		// surfaced as failed instead of silently retried.
		if uuid.IsClientID(string(vp.ID)) {
			if serr := r.store.SetVoiceProfileSyncStatus(vp.ID, models.SyncStatusSyncFailed); serr != nil {
				logging.Warn("mark profile sync failed", zap.String("id", string(vp.ID)), zap.Error(serr))
			}
			res.Errors = append(res.Errors, fmt.Sprintf("voice profile %s: cloning upload incomplete", vp.ID))
			continue
		}
		if err := r.push(ctx, vp); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("voice profile %s: %v", vp.ID, err))
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

// push propagates one profile update to the server.
func (r *VoiceProfileRepository) push(ctx context.Context, vp *models.VoiceProfile) error {
	remote, err := r.gateway.Update(ctx, vp)
	if err != nil {
		if status := failureStatus(err); status != vp.SyncStatus {
			if serr := r.store.SetVoiceProfileSyncStatus(vp.ID, status); serr != nil {
				logging.Warn("mark profile sync failed", zap.String("id", string(vp.ID)), zap.Error(serr))
			}
		}
		return err
	}
	remote.LocalAudioPath = vp.LocalAudioPath
	if err := r.store.UpsertVoiceProfile(remote); err != nil {
		return err
	}
	r.publishPending()
	return nil
}

// refresh folds the server's profile list into the local store, skipping
// rows that hold unpushed local changes and rows with a journaled
// delete.
func (r *VoiceProfileRepository) refresh(ctx context.Context, parentID models.ID) {
	deleted, ok := r.journaledDeletes(models.VoiceProfile{}.TableName())
	if !ok {
		return
	}
	remote, err := r.gateway.List(ctx, parentID)
	if err != nil {
		logging.Debug("voice profile refresh skipped", zap.Error(err))
		return
	}
	for _, vp := range remote {
		if _, gone := deleted[vp.ID]; gone {
			continue
		}
		local, err := r.store.GetVoiceProfile(vp.ID)
		if err != nil {
			logging.Warn("profile refresh read", zap.String("id", string(vp.ID)), zap.Error(err))
			continue
		}
		if local != nil && local.SyncStatus.NeedsSync() {
			continue
		}
		if local != nil {
			vp.LocalAudioPath = local.LocalAudioPath
		}
		if err := r.store.UpsertVoiceProfile(vp); err != nil {
			logging.Warn("profile refresh write", zap.String("id", string(vp.ID)), zap.Error(err))
		}
	}
}
