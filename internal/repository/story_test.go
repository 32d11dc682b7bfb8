package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storynest/storynest/internal/connectivity"
	"github.com/storynest/storynest/internal/errors"
	"github.com/storynest/storynest/internal/models"
	"github.com/storynest/storynest/internal/uuid"
)

// fakeStoryGateway is an in-memory server double. failWith, when set,
// makes every mutation fail; failTitles scopes the failure to specific
// stories so partial-failure behavior can be exercised.
type fakeStoryGateway struct {
	mu         sync.Mutex
	stories    map[models.ID]*models.Story
	nextID     int
	calls      int
	deletes    []models.ID
	failWith   error
	failTitles map[string]error
}

func newFakeStoryGateway() *fakeStoryGateway {
	return &fakeStoryGateway{
		stories:    make(map[models.ID]*models.Story),
		failTitles: make(map[string]error),
	}
}

func (g *fakeStoryGateway) failureFor(title string) error {
	if g.failWith != nil {
		return g.failWith
	}
	return g.failTitles[title]
}

func (g *fakeStoryGateway) List(ctx context.Context, parentID models.ID) ([]*models.Story, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.failWith != nil {
		return nil, g.failWith
	}
	var out []*models.Story
	for _, st := range g.stories {
		if st.ParentID == parentID {
			cp := *st
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (g *fakeStoryGateway) Get(ctx context.Context, id models.ID) (*models.Story, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.failWith != nil {
		return nil, g.failWith
	}
	st, ok := g.stories[id]
	if !ok {
		return nil, errors.Newf(errors.ErrNotFound, "story %s not found", id)
	}
	cp := *st
	return &cp, nil
}

func (g *fakeStoryGateway) Create(ctx context.Context, st *models.Story) (*models.Story, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if err := g.failureFor(st.Title); err != nil {
		return nil, err
	}
	g.nextID++
	cp := *st
	cp.ID = models.ID(fmt.Sprintf("srv-%d", g.nextID))
	cp.SyncStatus = models.SyncStatusSynced
	g.stories[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (g *fakeStoryGateway) Update(ctx context.Context, st *models.Story) (*models.Story, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if err := g.failureFor(st.Title); err != nil {
		return nil, err
	}
	cp := *st
	cp.SyncStatus = models.SyncStatusSynced
	g.stories[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (g *fakeStoryGateway) Delete(ctx context.Context, id models.ID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.failWith != nil {
		return g.failWith
	}
	delete(g.stories, id)
	g.deletes = append(g.deletes, id)
	return nil
}

func (g *fakeStoryGateway) Generate(ctx context.Context, parentID models.ID, keywords []string) (*models.Story, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.failWith != nil {
		return nil, g.failWith
	}
	g.nextID++
	st := &models.Story{
		ID:         models.ID(fmt.Sprintf("srv-%d", g.nextID)),
		ParentID:   parentID,
		Title:      strings.Join(keywords, " "),
		Content:    strings.Repeat("Once upon a time there was a brave little fox. ", 5),
		Source:     models.StorySourceAIGenerated,
		Keywords:   strings.Join(keywords, ","),
		CreatedAt:  models.Now(),
		UpdatedAt:  models.Now(),
		SyncStatus: models.SyncStatusSynced,
	}
	g.stories[st.ID] = st
	cp := *st
	return &cp, nil
}

func (g *fakeStoryGateway) DownloadAudio(ctx context.Context, audioURL string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.failWith != nil {
		return nil, g.failWith
	}
	return []byte("narrated-audio-bytes"), nil
}

func (g *fakeStoryGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func newStoryRepo(t *testing.T, reachable bool) (*StoryRepository, *fakeStoryGateway, *connectivity.Static) {
	t.Helper()
	gw := newFakeStoryGateway()
	oracle := connectivity.NewStatic(reachable)
	repo := NewStoryRepository(newTestStore(t), gw, oracle, &countingSink{}, t.TempDir(), []byte("test-key"))
	return repo, gw, oracle
}

const validContent = "從前從前，森林邊的小村子裡住著一個愛穿紅斗篷的小女孩，大家都叫她小紅帽。有一天媽媽請她送蛋糕給住在森林另一頭的外婆。"

func TestImportStoryOfflineSucceedsLocally(t *testing.T) {
	repo, gw, _ := newStoryRepo(t, false)
	ctx := context.Background()

	st, err := repo.ImportStory(ctx, "parent-1", "小紅帽", validContent, "狼,森林")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusPendingSync, st.SyncStatus)
	assert.True(t, uuid.IsClientID(string(st.ID)))
	assert.Equal(t, 0, gw.callCount(), "offline import must not touch the network")

	stories, err := repo.GetStories(ctx, "parent-1")
	require.NoError(t, err)
	require.Len(t, stories, 1)
	assert.Equal(t, "小紅帽", stories[0].Title)
}

func TestImportStoryValidationHasNoSideEffects(t *testing.T) {
	repo, gw, _ := newStoryRepo(t, false)
	ctx := context.Background()

	_, err := repo.ImportStory(ctx, "parent-1", "too short", strings.Repeat("a", 49), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStoryContentInvalid))

	stories, err := repo.GetStories(ctx, "parent-1")
	require.NoError(t, err)
	assert.Empty(t, stories, "rejected import must leave no row behind")
	assert.Equal(t, 0, gw.callCount())
}

func TestWatchSeesOptimisticImport(t *testing.T) {
	repo, gw, _ := newStoryRepo(t, false)
	ctx := context.Background()

	sub := repo.WatchStories("parent-1")
	defer sub.Close()

	// Initial empty snapshot.
	select {
	case rows := <-sub.C:
		assert.Empty(t, rows)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}

	_, err := repo.ImportStory(ctx, "parent-1", "小紅帽", validContent, "")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		select {
		case rows := <-sub.C:
			return len(rows) == 1 && rows[0].SyncStatus == models.SyncStatusPendingSync
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, gw.callCount(), "the watcher saw the row before any network work")
}

func TestSyncReplacesClientIDWithServerID(t *testing.T) {
	repo, _, oracle := newStoryRepo(t, false)
	ctx := context.Background()

	st, err := repo.ImportStory(ctx, "parent-1", "小紅帽", validContent, "")
	require.NoError(t, err)
	clientID := st.ID

	oracle.Set(true)
	res := repo.Sync(ctx)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.ItemsSynced)
	assert.Empty(t, res.Errors)

	old, err := repo.GetStory(ctx, clientID)
	require.NoError(t, err)
	assert.Nil(t, old, "client-id row must be replaced")

	stories, err := repo.GetStories(ctx, "parent-1")
	require.NoError(t, err)
	require.Len(t, stories, 1)
	assert.Equal(t, models.ID("srv-1"), stories[0].ID)
	assert.Equal(t, models.SyncStatusSynced, stories[0].SyncStatus)
	assert.Equal(t, "小紅帽", stories[0].Title)
}

func TestSyncIsolatesPerRowFailures(t *testing.T) {
	repo, gw, oracle := newStoryRepo(t, false)
	ctx := context.Background()

	_, err := repo.ImportStory(ctx, "parent-1", "good story", validContent, "")
	require.NoError(t, err)
	_, err = repo.ImportStory(ctx, "parent-1", "bad story", validContent, "")
	require.NoError(t, err)
	gw.failTitles["bad story"] = errors.New(errors.ErrNetwork, "connection reset")

	oracle.Set(true)
	res := repo.Sync(ctx)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.ItemsSynced)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "bad story")

	stories, err := repo.GetStories(ctx, "parent-1")
	require.NoError(t, err)
	require.Len(t, stories, 2)
	byTitle := map[string]models.SyncStatus{}
	for _, st := range stories {
		byTitle[st.Title] = st.SyncStatus
	}
	assert.Equal(t, models.SyncStatusSynced, byTitle["good story"])
	assert.Equal(t, models.SyncStatusPendingSync, byTitle["bad story"], "a retryable failure stays pending")
}

func TestSyncMarksNonRetryableRowsFailed(t *testing.T) {
	repo, gw, oracle := newStoryRepo(t, false)
	ctx := context.Background()

	st, err := repo.ImportStory(ctx, "parent-1", "rejected story", validContent, "")
	require.NoError(t, err)
	gw.failTitles["rejected story"] = errors.New(errors.ErrValidation, "title rejected by server")

	oracle.Set(true)
	res := repo.Sync(ctx)
	assert.False(t, res.Success)

	got, err := repo.GetStory(ctx, st.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.SyncStatusSyncFailed, got.SyncStatus)
}

func TestGenerateStoryOfflineFailsFast(t *testing.T) {
	repo, gw, _ := newStoryRepo(t, false)
	ctx := context.Background()

	_, err := repo.GenerateStory(ctx, "parent-1", []string{"fox", "moon"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNetwork))
	assert.Equal(t, 0, gw.callCount())

	stories, err := repo.GetStories(ctx, "parent-1")
	require.NoError(t, err)
	assert.Empty(t, stories, "a failed generation must not fake a local story")
}

func TestGenerateStoryCachesResult(t *testing.T) {
	repo, _, _ := newStoryRepo(t, true)
	ctx := context.Background()

	st, err := repo.GenerateStory(ctx, "parent-1", []string{"fox", "moon"})
	require.NoError(t, err)
	assert.Equal(t, models.StorySourceAIGenerated, st.Source)
	assert.Equal(t, models.SyncStatusSynced, st.SyncStatus)
	assert.Greater(t, st.WordCount, 0)

	got, err := repo.GetStory(ctx, st.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, st.ID, got.ID)
}

func TestDeleteStoryOfflineReplaysRemoteDelete(t *testing.T) {
	repo, gw, oracle := newStoryRepo(t, false)
	ctx := context.Background()

	// A server-known story cached locally.
	st, err := repo.ImportStory(ctx, "parent-1", "小紅帽", validContent, "")
	require.NoError(t, err)
	oracle.Set(true)
	require.True(t, repo.Sync(ctx).Success)
	oracle.Set(false)
	_ = st

	require.NoError(t, repo.DeleteStory(ctx, "srv-1"))

	got, err := repo.GetStory(ctx, "srv-1")
	require.NoError(t, err)
	assert.Nil(t, got, "local delete must not wait for the server")

	oracle.Set(true)
	res := repo.Sync(ctx)
	assert.True(t, res.Success)

	gw.mu.Lock()
	deletes := append([]models.ID(nil), gw.deletes...)
	gw.mu.Unlock()
	assert.Contains(t, deletes, models.ID("srv-1"))
}

func TestRefreshDoesNotResurrectDeletedStory(t *testing.T) {
	repo, gw, oracle := newStoryRepo(t, false)
	ctx := context.Background()

	_, err := repo.ImportStory(ctx, "parent-1", "小紅帽", validContent, "")
	require.NoError(t, err)
	oracle.Set(true)
	require.True(t, repo.Sync(ctx).Success)

	// Delete while offline: the remote delete sits in the log and the
	// server still lists the story.
	oracle.Set(false)
	require.NoError(t, repo.DeleteStory(ctx, "srv-1"))
	oracle.Set(true)

	repo.refresh(ctx, "parent-1")
	got, err := repo.GetStory(ctx, "srv-1")
	require.NoError(t, err)
	assert.Nil(t, got, "a journaled delete outranks the server listing")

	stories, err := repo.store.ListStories("parent-1")
	require.NoError(t, err)
	assert.Empty(t, stories)

	// After the delete replays the guard clears and the row stays gone.
	require.True(t, repo.Sync(ctx).Success)
	gw.mu.Lock()
	deletes := append([]models.ID(nil), gw.deletes...)
	gw.mu.Unlock()
	assert.Contains(t, deletes, models.ID("srv-1"))

	repo.refresh(ctx, "parent-1")
	stories, err = repo.store.ListStories("parent-1")
	require.NoError(t, err)
	assert.Empty(t, stories)
}

func TestDeleteClientOnlyStorySkipsRemote(t *testing.T) {
	repo, gw, oracle := newStoryRepo(t, false)
	ctx := context.Background()

	st, err := repo.ImportStory(ctx, "parent-1", "小紅帽", validContent, "")
	require.NoError(t, err)
	require.NoError(t, repo.DeleteStory(ctx, st.ID))

	oracle.Set(true)
	res := repo.Sync(ctx)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.ItemsSynced)
	assert.Equal(t, 0, gw.callCount(), "the server never saw this story")
}

func TestDownloadAudioEncryptsAndRoundTrips(t *testing.T) {
	repo, _, _ := newStoryRepo(t, true)
	ctx := context.Background()

	st, err := repo.GenerateStory(ctx, "parent-1", []string{"fox"})
	require.NoError(t, err)
	st.RemoteAudioURL = "https://cdn.example.com/narrations/1.mp3"
	require.NoError(t, repo.store.UpsertStory(st))

	got, err := repo.DownloadAudio(ctx, st.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDownloaded)
	require.NotEmpty(t, got.LocalAudioPath)
	assert.Equal(t, models.SyncStatusSynced, got.SyncStatus, "caching audio is not a content edit")

	audio, err := repo.OpenAudio(got)
	require.NoError(t, err)
	assert.Equal(t, []byte("narrated-audio-bytes"), audio)
}

func TestKeywordList(t *testing.T) {
	assert.Nil(t, KeywordList(""))
	assert.Equal(t, []string{"fox", "moon"}, KeywordList("fox, moon"))
	assert.Equal(t, []string{"fox"}, KeywordList("fox,,"))
}
