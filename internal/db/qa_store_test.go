package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storynest/storynest/internal/models"
	"github.com/storynest/storynest/internal/uuid"
)

func testSession(id models.ID) *models.QASession {
	return &models.QASession{
		ID:         id,
		StoryID:    "srv-story-1",
		Status:     models.QASessionActive,
		StartedAt:  models.Now(),
		SyncStatus: models.SyncStatusPendingSync,
	}
}

func testMessage(id, sessionID models.ID, seq int) *models.QAMessage {
	return &models.QAMessage{
		ID:         id,
		SessionID:  sessionID,
		Role:       models.RoleChild,
		Content:    "why did the wolf dress up?",
		Sequence:   seq,
		CreatedAt:  models.Now(),
		SyncStatus: models.SyncStatusPendingSync,
	}
}

func TestAppendQAMessageBumpsCount(t *testing.T) {
	store := newTestStore(t)
	sess := testSession(models.ID(uuid.New()))
	require.NoError(t, store.UpsertQASession(sess))

	for i := 1; i <= 3; i++ {
		sess.MessageCount++
		msg := testMessage(models.ID(uuid.New()), sess.ID, i)
		require.NoError(t, store.AppendQAMessage(msg, sess))
	}

	got, err := store.GetQASession(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.MessageCount)

	msgs, err := store.ListQAMessages(sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i, m := range msgs {
		assert.Equal(t, i+1, m.Sequence)
	}
}

func TestNextMessageSequence(t *testing.T) {
	store := newTestStore(t)
	sess := testSession(models.ID(uuid.New()))
	require.NoError(t, store.UpsertQASession(sess))

	seq, err := store.NextMessageSequence(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, seq)

	require.NoError(t, store.UpsertQAMessage(testMessage(models.ID(uuid.New()), sess.ID, 4)))
	seq, err = store.NextMessageSequence(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, seq)
}

func TestDeleteQASessionRemovesMessages(t *testing.T) {
	store := newTestStore(t)
	sess := testSession(models.ID(uuid.New()))
	require.NoError(t, store.UpsertQASession(sess))
	require.NoError(t, store.UpsertQAMessage(testMessage(models.ID(uuid.New()), sess.ID, 1)))
	require.NoError(t, store.UpsertQAMessage(testMessage(models.ID(uuid.New()), sess.ID, 2)))

	require.NoError(t, store.DeleteQASession(sess.ID))

	got, err := store.GetQASession(sess.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	msgs, err := store.ListQAMessages(sess.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs, "messages must not outlive their session")
}

func TestReplaceQASessionReparentsMessages(t *testing.T) {
	store := newTestStore(t)
	clientID := models.ID(uuid.New())
	sess := testSession(clientID)
	sess.MessageCount = 2
	require.NoError(t, store.UpsertQASession(sess))
	require.NoError(t, store.UpsertQAMessage(testMessage(models.ID(uuid.New()), clientID, 1)))
	require.NoError(t, store.UpsertQAMessage(testMessage(models.ID(uuid.New()), clientID, 2)))

	server := *sess
	server.ID = "srv-sess-1"
	server.SyncStatus = models.SyncStatusSynced
	require.NoError(t, store.ReplaceQASession(clientID, &server))

	msgs, err := store.ListQAMessages("srv-sess-1")
	require.NoError(t, err)
	assert.Len(t, msgs, 2, "transcript must survive the re-key")

	orphans, err := store.ListQAMessages(clientID)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestSyncOperationLifecycle(t *testing.T) {
	store := newTestStore(t)
	op := &models.SyncOperation{
		ID:         models.ID(uuid.New()),
		EntityType: "stories",
		EntityID:   "srv-1",
		Operation:  models.SyncOpDelete,
		MaxRetries: 2,
		Status:     models.SyncOpPending,
		CreatedAt:  models.Now(),
	}
	require.NoError(t, store.EnqueueSyncOperation(op))

	ops, err := store.ListPendingSyncOperations("stories")
	require.NoError(t, err)
	require.Len(t, ops, 1)

	require.NoError(t, store.StartSyncOperation(op.ID))
	require.NoError(t, store.FailSyncOperation(op.ID))

	// First failure: back to pending for the next pass.
	ops, err = store.ListPendingSyncOperations("stories")
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, 1, ops[0].RetryCount)

	require.NoError(t, store.StartSyncOperation(op.ID))
	require.NoError(t, store.FailSyncOperation(op.ID))

	// Retry budget exhausted: no longer eligible.
	ops, err = store.ListPendingSyncOperations("stories")
	require.NoError(t, err)
	assert.Empty(t, ops)

	n, err := store.RequeueFailedSyncOperations()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, store.StartSyncOperation(op.ID))
	require.NoError(t, store.CompleteSyncOperation(op.ID))
	ops, err = store.ListPendingSyncOperations("stories")
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func testDeleteOp(entityType string, entityID models.ID) *models.SyncOperation {
	return &models.SyncOperation{
		ID:         models.ID(uuid.New()),
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  models.SyncOpDelete,
		MaxRetries: 5,
		Status:     models.SyncOpPending,
		CreatedAt:  models.Now(),
	}
}

func TestRecoverInFlightSyncOperations(t *testing.T) {
	store := newTestStore(t)
	op := testDeleteOp("stories", "srv-1")
	require.NoError(t, store.EnqueueSyncOperation(op))
	require.NoError(t, store.StartSyncOperation(op.ID))

	// A crash between Start and Complete leaves the operation invisible
	// to replay while still counted as pending work.
	ops, err := store.ListPendingSyncOperations("stories")
	require.NoError(t, err)
	require.Empty(t, ops)
	n, err := store.CountPendingSync()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	recovered, err := store.RecoverInFlightSyncOperations()
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	ops, err = store.ListPendingSyncOperations("stories")
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, 1, ops[0].RetryCount, "recovery must not refund the spent attempt")

	recovered, err = store.RecoverInFlightSyncOperations()
	require.NoError(t, err)
	assert.Equal(t, 0, recovered)
}

func TestJournaledDeleteIDs(t *testing.T) {
	store := newTestStore(t)

	pending := testDeleteOp("stories", "srv-1")
	require.NoError(t, store.EnqueueSyncOperation(pending))

	inProgress := testDeleteOp("stories", "srv-2")
	require.NoError(t, store.EnqueueSyncOperation(inProgress))
	require.NoError(t, store.StartSyncOperation(inProgress.ID))

	exhausted := testDeleteOp("stories", "srv-3")
	exhausted.MaxRetries = 1
	require.NoError(t, store.EnqueueSyncOperation(exhausted))
	require.NoError(t, store.StartSyncOperation(exhausted.ID))
	require.NoError(t, store.FailSyncOperation(exhausted.ID))

	create := testDeleteOp("qa_messages", "srv-4")
	create.Operation = models.SyncOpCreate
	require.NoError(t, store.EnqueueSyncOperation(create))

	ids, err := store.JournaledDeleteIDs("stories")
	require.NoError(t, err)
	assert.Len(t, ids, 3, "every unreplayed delete counts, whatever its retry state")
	assert.Contains(t, ids, models.ID("srv-1"))
	assert.Contains(t, ids, models.ID("srv-2"))
	assert.Contains(t, ids, models.ID("srv-3"))
	assert.NotContains(t, ids, models.ID("srv-4"))

	require.NoError(t, store.CompleteSyncOperation(pending.ID))
	ids, err = store.JournaledDeleteIDs("stories")
	require.NoError(t, err)
	assert.NotContains(t, ids, models.ID("srv-1"))
}
