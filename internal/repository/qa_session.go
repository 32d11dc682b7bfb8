package repository

import (
	"context"
	"encoding/json"
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

// QAGateway is the remote surface the Q&A repository depends on.
// remote.QAAPI implements it.
type QAGateway interface {
	CreateSession(ctx context.Context, sess *models.QASession) (*models.QASession, error)
	UpdateSession(ctx context.Context, sess *models.QASession) (*models.QASession, error)
	DeleteSession(ctx context.Context, id models.ID) error
	ListSessions(ctx context.Context, storyID models.ID) ([]*models.QASession, error)
	Ask(ctx context.Context, sessionID models.ID, msg *models.QAMessage) (question, answer *models.QAMessage, err error)
	PushMessage(ctx context.Context, msg *models.QAMessage) (*models.QAMessage, error)
}

// QASessionRepository owns the bounded child Q&A flow: session
// lifecycle, the turn cap, question sending, and the Q&A sync pass.
type QASessionRepository struct {
	base
	gateway QAGateway
}

// NewQASessionRepository wires a Q&A repository.
func NewQASessionRepository(store *db.Store, gateway QAGateway, oracle connectivity.Oracle, pending PendingSink) *QASessionRepository {
	return &QASessionRepository{
		base:    base{store: store, oracle: oracle, pending: pending},
		gateway: gateway,
	}
}

// StartSession opens a session for a story. Sessions are created on
// device, so the local write always succeeds. The push is deferred to
// the first question or the next sync pass: pushing here would re-key
// the session underneath the caller who still holds the client id.
func (r *QASessionRepository) StartSession(ctx context.Context, storyID models.ID) (*models.QASession, error) {
	sess := &models.QASession{
		ID:         models.ID(uuid.New()),
		StoryID:    storyID,
		Status:     models.QASessionActive,
		StartedAt:  models.Now(),
		SyncStatus: models.SyncStatusPendingSync,
	}
	if err := r.store.UpsertQASession(sess); err != nil {
		return nil, err
	}
	r.publishPending()
	return sess, nil
}

// GetSession reads a session from the local store. Sessions only ever
// start on this device, so there is no remote fallback.
func (r *QASessionRepository) GetSession(ctx context.Context, id models.ID) (*models.QASession, error) {
	return r.store.GetQASession(id)
}

// ListSessions returns a story's sessions from the local store.
func (r *QASessionRepository) ListSessions(ctx context.Context, storyID models.ID) ([]*models.QASession, error) {
	return r.store.ListQASessions(storyID)
}

// WatchSessions subscribes to a story's session list.
func (r *QASessionRepository) WatchSessions(storyID models.ID) *db.Subscription[*models.QASession] {
	return r.store.WatchQASessions(storyID)
}

// WatchMessages subscribes to a session's message transcript.
func (r *QASessionRepository) WatchMessages(sessionID models.ID) *db.Subscription[*models.QAMessage] {
	return r.store.WatchQAMessages(sessionID)
}

// AskQuestion sends one child question and returns the assistant's
// answer. The turn cap and terminal-state checks run before any network
// work, so an over-limit session is rejected without contacting the
// server. Answering needs the server, so an unreachable network fails
// fast; the question itself is kept locally and journaled for replay so
// it is never lost to a mid-call failure.
func (r *QASessionRepository) AskQuestion(ctx context.Context, sessionID models.ID, content string) (*models.QAMessage, error) {
	if err := models.ValidateQuestion(content); err != nil {
		return nil, err
	}
	sess, err := r.store.GetQASession(sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, errors.Newf(errors.ErrNotFound, "session %s not found", sessionID)
	}
	if err := sess.CanAppend(); err != nil {
		return nil, err
	}
	if !r.reachable() {
		return nil, offlineErr("asking a question")
	}

	// The server must know the session before it can answer within it.
	if uuid.IsClientID(string(sess.ID)) {
		sess, err = r.pushSession(ctx, sess)
		if err != nil {
			return nil, err
		}
	}

	seq, err := r.store.NextMessageSequence(sess.ID)
	if err != nil {
		return nil, err
	}
	child := &models.QAMessage{
		ID:         models.ID(uuid.New()),
		SessionID:  sess.ID,
		Role:       models.RoleChild,
		Content:    content,
		Sequence:   seq,
		CreatedAt:  models.Now(),
		SyncStatus: models.SyncStatusPendingSync,
	}
	sess.MessageCount++
	sess.SyncStatus = models.SyncStatusPendingSync
	if err := r.store.AppendQAMessage(child, sess); err != nil {
		return nil, err
	}
	r.publishPending()

	question, answer, err := r.gateway.Ask(ctx, sess.ID, child)
	if err != nil {
		r.journalMessage(child)
		return nil, err
	}
	if question == nil || answer == nil {
		r.journalMessage(child)
		return nil, errors.New(errors.ErrServer, "incomplete answer from server")
	}

	question.Sequence = child.Sequence
	if err := r.store.ReplaceQAMessage(child.ID, question); err != nil {
		return nil, err
	}
	if answer.Sequence == 0 {
		answer.Sequence = child.Sequence + 1
	}
	sess.MessageCount++
	sess.SyncStatus = models.SyncStatusSynced
	if err := r.store.AppendQAMessage(answer, sess); err != nil {
		return nil, err
	}
	r.publishPending()
	return answer, nil
}

// CompleteSession moves a session to a terminal state. Works offline.
func (r *QASessionRepository) CompleteSession(ctx context.Context, id models.ID, status models.QASessionStatus) (*models.QASession, error) {
	if status != models.QASessionCompleted && status != models.QASessionTimeout {
		return nil, errors.Newf(errors.ErrValidation, "%s is not a terminal session status", status)
	}
	sess, err := r.store.GetQASession(id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, errors.Newf(errors.ErrNotFound, "session %s not found", id)
	}
	if sess.IsTerminal() {
		return sess, nil
	}
	sess.Status = status
	sess.EndedAt = models.Now()
	sess.SyncStatus = models.SyncStatusPendingSync
	if err := r.store.UpsertQASession(sess); err != nil {
		return nil, err
	}
	r.publishPending()
	if r.reachable() {
		snapshot := *sess
		r.spawn(func() {
			if _, err := r.pushSession(context.Background(), &snapshot); err != nil {
				logging.Debug("session push deferred", zap.String("id", string(snapshot.ID)), zap.Error(err))
			}
		})
	}
	return sess, nil
}

// DeleteSession removes a session and its messages locally no matter
// what, journaling the remote delete for replay.
func (r *QASessionRepository) DeleteSession(ctx context.Context, id models.ID) error {
	sess, err := r.store.GetQASession(id)
	if err != nil {
		return err
	}
	if err := r.store.DeleteQASession(id); err != nil {
		return err
	}
	if sess != nil && !uuid.IsClientID(string(id)) {
		r.journalDelete(models.QASession{}.TableName(), id)
		if r.reachable() {
			r.spawn(func() {
				res := &syncpkg.Result{}
				r.replayDeletes(context.Background(), models.QASession{}.TableName(), r.gateway.DeleteSession, res)
			})
		}
	}
	r.publishPending()
	return nil
}

// Sync replays journaled deletes and question sends, then pushes every
// non-synced session. Each item fails or succeeds on its own.
func (r *QASessionRepository) Sync(ctx context.Context) *syncpkg.Result {
	res := &syncpkg.Result{Success: true}
	r.replayDeletes(ctx, models.QASession{}.TableName(), r.gateway.DeleteSession, res)
	r.replayMessages(ctx, res)

	sessions, err := r.store.ListQASessionsPendingSync()
	if err != nil {
		res.Success = false
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	for _, sess := range sessions {
		if _, err := r.pushSession(ctx, sess); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("session %s: %v", sess.ID, err))
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

// pushSession propagates one session and returns its server form. A
// client id means the server assigns a new id; the local swap re-parents
// the session's messages so the transcript survives the re-key.
func (r *QASessionRepository) pushSession(ctx context.Context, sess *models.QASession) (*models.QASession, error) {
	var (
		remote *models.QASession
		err    error
	)
	created := uuid.IsClientID(string(sess.ID))
	if created {
		remote, err = r.gateway.CreateSession(ctx, sess)
	} else {
		remote, err = r.gateway.UpdateSession(ctx, sess)
	}
	if err != nil {
		if status := failureStatus(err); status != sess.SyncStatus {
			if serr := r.store.SetQASessionSyncStatus(sess.ID, status); serr != nil {
				logging.Warn("mark session sync failed", zap.String("id", string(sess.ID)), zap.Error(serr))
			}
		}
		return nil, err
	}
	// The local turn count is authoritative until every message has
	// been pushed.
	if remote.MessageCount < sess.MessageCount {
		remote.MessageCount = sess.MessageCount
	}
	if err := r.store.ReplaceQASession(sess.ID, remote); err != nil {
		return nil, err
	}
	r.publishPending()
	return remote, nil
}

// journalMessage records a question whose send failed so a later pass
// can replay it. Journaling failure is logged, not surfaced: the row's
// pending tag still marks it for the badge count.
func (r *QASessionRepository) journalMessage(msg *models.QAMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		logging.Warn("encode message for journal", zap.String("id", string(msg.ID)), zap.Error(err))
		return
	}
	op := &models.SyncOperation{
		ID:         models.ID(uuid.New()),
		EntityType: models.QAMessage{}.TableName(),
		EntityID:   msg.ID,
		Operation:  models.SyncOpCreate,
		Payload:    payload,
		MaxRetries: defaultOpRetries,
		Status:     models.SyncOpPending,
		CreatedAt:  models.Now(),
	}
	if err := r.store.EnqueueSyncOperation(op); err != nil {
		logging.Warn("journal message failed", zap.String("id", string(msg.ID)), zap.Error(err))
	}
}

// replayMessages drains the journaled question sends. The current local
// row is pushed rather than the journaled payload, because a session
// re-key may have re-parented the message since it was journaled. A
// message whose row is gone was deleted with its session and completes
// as a no-op.
func (r *QASessionRepository) replayMessages(ctx context.Context, res *syncpkg.Result) {
	ops, err := r.store.ListPendingSyncOperations(models.QAMessage{}.TableName())
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("list message journal: %v", err))
		return
	}
	for _, op := range ops {
		if err := r.store.StartSyncOperation(op.ID); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("start op %s: %v", op.ID, err))
			continue
		}
		msg, err := r.store.GetQAMessage(op.EntityID)
		if err != nil {
			if ferr := r.store.FailSyncOperation(op.ID); ferr != nil {
				logging.Warn("mark op failed", zap.String("op_id", string(op.ID)), zap.Error(ferr))
			}
			res.Errors = append(res.Errors, fmt.Sprintf("read message %s: %v", op.EntityID, err))
			continue
		}
		if msg == nil {
			if cerr := r.store.CompleteSyncOperation(op.ID); cerr != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("complete op %s: %v", op.ID, cerr))
			}
			continue
		}
		// The owning session may itself still be client-keyed when the
		// original send died before the session push.
		if uuid.IsClientID(string(msg.SessionID)) {
			sess, serr := r.store.GetQASession(msg.SessionID)
			if serr != nil || sess == nil {
				res.Errors = append(res.Errors, fmt.Sprintf("message %s: owning session unavailable", msg.ID))
				continue
			}
			if sess, serr = r.pushSession(ctx, sess); serr != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("message %s: push session: %v", msg.ID, serr))
				continue
			}
			msg.SessionID = sess.ID
		}
		remote, err := r.gateway.PushMessage(ctx, msg)
		if err != nil {
			if status := failureStatus(err); status != msg.SyncStatus {
				if serr := r.store.SetQAMessageSyncStatus(msg.ID, status); serr != nil {
					logging.Warn("mark message sync failed", zap.String("id", string(msg.ID)), zap.Error(serr))
				}
			}
			if ferr := r.store.FailSyncOperation(op.ID); ferr != nil {
				logging.Warn("mark op failed", zap.String("op_id", string(op.ID)), zap.Error(ferr))
			}
			res.Errors = append(res.Errors, fmt.Sprintf("message %s: %v", msg.ID, err))
			continue
		}
		remote.Sequence = msg.Sequence
		if err := r.store.ReplaceQAMessage(msg.ID, remote); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("message %s: %v", msg.ID, err))
			continue
		}
		if err := r.store.CompleteSyncOperation(op.ID); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("complete op %s: %v", op.ID, err))
			continue
		}
		res.ItemsSynced++
	}
}
