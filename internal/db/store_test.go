package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storynest/storynest/internal/models"
	"github.com/storynest/storynest/internal/uuid"
)

// newTestStore opens a migrated on-disk database under t.TempDir.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	m := NewMigrator(database.DB)
	require.NoError(t, m.Initialize())
	require.NoError(t, m.Up())
	return NewStore(database.DB)
}

func testStory(id models.ID) *models.Story {
	now := models.Now()
	return &models.Story{
		ID:         id,
		ParentID:   "parent-1",
		Title:      "小紅帽",
		Content:    strings.Repeat("從前從前有一個小女孩 ", 10),
		Source:     models.StorySourceImported,
		WordCount:  10,
		CreatedAt:  now,
		UpdatedAt:  now,
		SyncStatus: models.SyncStatusPendingSync,
	}
}

func TestUpsertStoryIdempotent(t *testing.T) {
	store := newTestStore(t)
	st := testStory(models.ID(uuid.New()))

	require.NoError(t, store.UpsertStory(st))
	require.NoError(t, store.UpsertStory(st))

	stories, err := store.ListStories("parent-1")
	require.NoError(t, err)
	require.Len(t, stories, 1)
	assert.Equal(t, st.Title, stories[0].Title)

	st.Title = "小紅帽與大野狼"
	require.NoError(t, store.UpsertStory(st))

	got, err := store.GetStory(st.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "小紅帽與大野狼", got.Title)
}

func TestGetStoryAbsent(t *testing.T) {
	store := newTestStore(t)
	got, err := store.GetStory("nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteStoryNoOpWhenAbsent(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.DeleteStory("nope"))
}

func TestListStoriesPendingSync(t *testing.T) {
	store := newTestStore(t)

	pending := testStory(models.ID(uuid.New()))
	failed := testStory(models.ID(uuid.New()))
	failed.SyncStatus = models.SyncStatusSyncFailed
	synced := testStory("srv-1")
	synced.SyncStatus = models.SyncStatusSynced

	for _, st := range []*models.Story{pending, failed, synced} {
		require.NoError(t, store.UpsertStory(st))
	}

	got, err := store.ListStoriesPendingSync()
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, st := range got {
		assert.True(t, st.SyncStatus.NeedsSync())
	}
}

func TestReplaceStorySwapsIDAtomically(t *testing.T) {
	store := newTestStore(t)
	clientID := models.ID(uuid.New())
	st := testStory(clientID)
	require.NoError(t, store.UpsertStory(st))

	server := *st
	server.ID = "srv-1"
	server.SyncStatus = models.SyncStatusSynced
	require.NoError(t, store.ReplaceStory(clientID, &server))

	old, err := store.GetStory(clientID)
	require.NoError(t, err)
	assert.Nil(t, old, "client-id row must be gone")

	got, err := store.GetStory("srv-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.SyncStatusSynced, got.SyncStatus)

	stories, err := store.ListStories("parent-1")
	require.NoError(t, err)
	assert.Len(t, stories, 1, "replacement must not duplicate the row")
}

func TestCountPendingSync(t *testing.T) {
	store := newTestStore(t)

	n, err := store.CountPendingSync()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, store.UpsertStory(testStory(models.ID(uuid.New()))))
	require.NoError(t, store.UpsertPendingQuestion(&models.PendingQuestion{
		ID:         models.ID(uuid.New()),
		StoryID:    "srv-1",
		Question:   "why?",
		Status:     models.PendingQuestionPending,
		AskedAt:    models.Now(),
		SyncStatus: models.SyncStatusPendingSync,
	}))

	n, err = store.CountPendingSync()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSetStorySyncStatus(t *testing.T) {
	store := newTestStore(t)
	st := testStory(models.ID(uuid.New()))
	require.NoError(t, store.UpsertStory(st))

	require.NoError(t, store.SetStorySyncStatus(st.ID, models.SyncStatusSyncFailed))
	got, err := store.GetStory(st.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSyncFailed, got.SyncStatus)
}
