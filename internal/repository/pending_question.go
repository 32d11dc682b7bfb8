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

// PendingQuestionGateway is the remote surface the pending question
// repository depends on. remote.PendingQuestionAPI implements it.
type PendingQuestionGateway interface {
	List(ctx context.Context, storyID models.ID) ([]*models.PendingQuestion, error)
	Create(ctx context.Context, pq *models.PendingQuestion) (*models.PendingQuestion, error)
	Update(ctx context.Context, pq *models.PendingQuestion) (*models.PendingQuestion, error)
	Delete(ctx context.Context, id models.ID) error
}

// PendingQuestionRepository owns the questions a child asked that fell
// outside a story's scope, captured for the parent to answer later.
type PendingQuestionRepository struct {
	base
	gateway PendingQuestionGateway
}

// NewPendingQuestionRepository wires a pending question repository.
func NewPendingQuestionRepository(store *db.Store, gateway PendingQuestionGateway, oracle connectivity.Oracle, pending PendingSink) *PendingQuestionRepository {
	return &PendingQuestionRepository{
		base:    base{store: store, oracle: oracle, pending: pending},
		gateway: gateway,
	}
}

// GetQuestions returns the local rows immediately and refreshes from
// the server in the background when reachable.
func (r *PendingQuestionRepository) GetQuestions(ctx context.Context, storyID models.ID) ([]*models.PendingQuestion, error) {
	questions, err := r.store.ListPendingQuestions(storyID)
	if err != nil {
		return nil, err
	}
	if r.reachable() {
		r.spawn(func() { r.refresh(context.Background(), storyID) })
	}
	return questions, nil
}

// WatchQuestions subscribes to a story's pending question list.
func (r *PendingQuestionRepository) WatchQuestions(storyID models.ID) *db.Subscription[*models.PendingQuestion] {
	return r.store.WatchPendingQuestions(storyID)
}

// CaptureQuestion records an out-of-scope child question. The capture
// always works offline; losing a child's question because the network
// was down is the one failure this feature exists to prevent.
func (r *PendingQuestionRepository) CaptureQuestion(ctx context.Context, storyID models.ID, question string) (*models.PendingQuestion, error) {
	if err := models.ValidateQuestion(question); err != nil {
		return nil, err
	}
	pq := &models.PendingQuestion{
		ID:         models.ID(uuid.New()),
		StoryID:    storyID,
		Question:   question,
		Status:     models.PendingQuestionPending,
		AskedAt:    models.Now(),
		SyncStatus: models.SyncStatusPendingSync,
	}
	if err := r.store.UpsertPendingQuestion(pq); err != nil {
		return nil, err
	}
	r.publishPending()
	if r.reachable() {
		snapshot := *pq
		r.spawn(func() { r.push(context.Background(), &snapshot) })
	}
	return pq, nil
}

// MarkAnswered flags a question as answered by the parent. Works offline.
func (r *PendingQuestionRepository) MarkAnswered(ctx context.Context, id models.ID) (*models.PendingQuestion, error) {
	pq, err := r.store.GetPendingQuestion(id)
	if err != nil {
		return nil, err
	}
	if pq == nil {
		return nil, errors.Newf(errors.ErrNotFound, "pending question %s not found", id)
	}
	if pq.Status == models.PendingQuestionAnswered {
		return pq, nil
	}
	pq.Status = models.PendingQuestionAnswered
	pq.AnsweredAt = models.Now()
	pq.SyncStatus = models.SyncStatusPendingSync
	if err := r.store.UpsertPendingQuestion(pq); err != nil {
		return nil, err
	}
	r.publishPending()
	if r.reachable() {
		snapshot := *pq
		r.spawn(func() { r.push(context.Background(), &snapshot) })
	}
	return pq, nil
}

// DeleteQuestion removes the row locally no matter what and journals
// the remote delete for replay.
func (r *PendingQuestionRepository) DeleteQuestion(ctx context.Context, id models.ID) error {
	pq, err := r.store.GetPendingQuestion(id)
	if err != nil {
		return err
	}
	if err := r.store.DeletePendingQuestion(id); err != nil {
		return err
	}
	if pq != nil && !uuid.IsClientID(string(id)) {
		r.journalDelete(models.PendingQuestion{}.TableName(), id)
		if r.reachable() {
			r.spawn(func() {
				res := &syncpkg.Result{}
				r.replayDeletes(context.Background(), models.PendingQuestion{}.TableName(), r.gateway.Delete, res)
			})
		}
	}
	r.publishPending()
	return nil
}

// Sync pushes every non-synced question and replays journaled deletes.
func (r *PendingQuestionRepository) Sync(ctx context.Context) *syncpkg.Result {
	res := &syncpkg.Result{Success: true}
	r.replayDeletes(ctx, models.PendingQuestion{}.TableName(), r.gateway.Delete, res)

	questions, err := r.store.ListPendingQuestionsPendingSync()
	if err != nil {
		res.Success = false
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	for _, pq := range questions {
		if err := r.push(ctx, pq); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("pending question %s: %v", pq.ID, err))
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

// push propagates one question, swapping in the server id on create.
func (r *PendingQuestionRepository) push(ctx context.Context, pq *models.PendingQuestion) error {
	var (
		remote *models.PendingQuestion
		err    error
	)
	if uuid.IsClientID(string(pq.ID)) {
		remote, err = r.gateway.Create(ctx, pq)
	} else {
		remote, err = r.gateway.Update(ctx, pq)
	}
	if err != nil {
		if status := failureStatus(err); status != pq.SyncStatus {
			if serr := r.store.SetPendingQuestionSyncStatus(pq.ID, status); serr != nil {
				logging.Warn("mark question sync failed", zap.String("id", string(pq.ID)), zap.Error(serr))
			}
		}
		return err
	}
	if err := r.store.ReplacePendingQuestion(pq.ID, remote); err != nil {
		return err
	}
	r.publishPending()
	return nil
}

// refresh folds the server's question list into the local store,
// skipping rows with unpushed local changes and rows with a journaled
// delete.
func (r *PendingQuestionRepository) refresh(ctx context.Context, storyID models.ID) {
	deleted, ok := r.journaledDeletes(models.PendingQuestion{}.TableName())
	if !ok {
		return
	}
	remote, err := r.gateway.List(ctx, storyID)
	if err != nil {
		logging.Debug("pending question refresh skipped", zap.Error(err))
		return
	}
	for _, pq := range remote {
		if _, gone := deleted[pq.ID]; gone {
			continue
		}
		local, err := r.store.GetPendingQuestion(pq.ID)
		if err != nil {
			logging.Warn("question refresh read", zap.String("id", string(pq.ID)), zap.Error(err))
			continue
		}
		if local != nil && local.SyncStatus.NeedsSync() {
			continue
		}
		if err := r.store.UpsertPendingQuestion(pq); err != nil {
			logging.Warn("question refresh write", zap.String("id", string(pq.ID)), zap.Error(err))
		}
	}
}
