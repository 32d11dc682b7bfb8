package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/storynest/storynest/internal/connectivity"
	"github.com/storynest/storynest/internal/crypto"
	"github.com/storynest/storynest/internal/db"
	"github.com/storynest/storynest/internal/errors"
	"github.com/storynest/storynest/internal/logging"
	"github.com/storynest/storynest/internal/models"
	syncpkg "github.com/storynest/storynest/internal/sync"
	"github.com/storynest/storynest/internal/uuid"
)

// StoryGateway is the remote surface the story repository depends on.
// remote.StoryAPI implements it.
type StoryGateway interface {
	List(ctx context.Context, parentID models.ID) ([]*models.Story, error)
	Get(ctx context.Context, id models.ID) (*models.Story, error)
	Create(ctx context.Context, st *models.Story) (*models.Story, error)
	Update(ctx context.Context, st *models.Story) (*models.Story, error)
	Delete(ctx context.Context, id models.ID) error
	Generate(ctx context.Context, parentID models.ID, keywords []string) (*models.Story, error)
	DownloadAudio(ctx context.Context, audioURL string) ([]byte, error)
}

// StoryRepository owns story reads, imports, generation, narration audio
// caching, and the story sync pass.
type StoryRepository struct {
	base
	gateway  StoryGateway
	audioDir string
	audioKey []byte
}

// NewStoryRepository wires a story repository. audioDir and audioKey
// back the encrypted narration cache.
func NewStoryRepository(store *db.Store, gateway StoryGateway, oracle connectivity.Oracle, pending PendingSink, audioDir string, audioKey []byte) *StoryRepository {
	return &StoryRepository{
		base:     base{store: store, oracle: oracle, pending: pending},
		gateway:  gateway,
		audioDir: audioDir,
		audioKey: audioKey,
	}
}

// GetStories returns the local rows immediately. When the network is
// reachable a background refresh pulls the server copy afterwards, so
// the caller never waits on a round trip.
func (r *StoryRepository) GetStories(ctx context.Context, parentID models.ID) ([]*models.Story, error) {
	stories, err := r.store.ListStories(parentID)
	if err != nil {
		return nil, err
	}
	if r.reachable() {
		r.spawn(func() { r.refresh(context.Background(), parentID) })
	}
	return stories, nil
}

// GetStory reads locally first and falls back to the server for rows
// this device has never seen. Absence is (nil, nil).
func (r *StoryRepository) GetStory(ctx context.Context, id models.ID) (*models.Story, error) {
	st, err := r.store.GetStory(id)
	if err != nil || st != nil {
		return st, err
	}
	if !r.reachable() {
		return nil, nil
	}
	// A story deleted here stays gone even while the remote delete is
	// still journaled.
	deleted, ok := r.journaledDeletes(models.Story{}.TableName())
	if !ok {
		return nil, nil
	}
	if _, gone := deleted[id]; gone {
		return nil, nil
	}
	st, err = r.gateway.Get(ctx, id)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := r.store.UpsertStory(st); err != nil {
		return nil, err
	}
	return st, nil
}

// WatchStories subscribes to the reactive story list for a parent.
func (r *StoryRepository) WatchStories(parentID models.ID) *db.Subscription[*models.Story] {
	return r.store.WatchStories(parentID)
}

// ImportStory validates and persists a typed-in story. The local write
// succeeds regardless of connectivity; the push to the server is
// opportunistic and runs in the background.
func (r *StoryRepository) ImportStory(ctx context.Context, parentID models.ID, title, content, keywords string) (*models.Story, error) {
	if err := models.ValidateImport(title, content); err != nil {
		return nil, err
	}
	now := models.Now()
	st := &models.Story{
		ID:         models.ID(uuid.New()),
		ParentID:   parentID,
		Title:      title,
		Content:    content,
		Source:     models.StorySourceImported,
		WordCount:  models.CountWords(content),
		Keywords:   keywords,
		CreatedAt:  now,
		UpdatedAt:  now,
		SyncStatus: models.SyncStatusPendingSync,
	}
	if err := r.store.UpsertStory(st); err != nil {
		return nil, err
	}
	r.publishPending()
	if r.reachable() {
		snapshot := *st
		r.spawn(func() { r.push(context.Background(), &snapshot) })
	}
	return st, nil
}

// GenerateStory asks the server to write a story from keywords. There is
// no offline form of generation, so an unreachable network fails fast.
func (r *StoryRepository) GenerateStory(ctx context.Context, parentID models.ID, keywords []string) (*models.Story, error) {
	if len(keywords) == 0 {
		return nil, errors.New(errors.ErrValidation, "at least one keyword is required")
	}
	if !r.reachable() {
		return nil, offlineErr("story generation")
	}
	st, err := r.gateway.Generate(ctx, parentID, keywords)
	if err != nil {
		return nil, err
	}
	if st.WordCount == 0 {
		st.WordCount = models.CountWords(st.Content)
	}
	if err := r.store.UpsertStory(st); err != nil {
		return nil, err
	}
	return st, nil
}

// UpdateStory applies an edit locally and opportunistically pushes it.
func (r *StoryRepository) UpdateStory(ctx context.Context, st *models.Story) (*models.Story, error) {
	if err := models.ValidateImport(st.Title, st.Content); err != nil {
		return nil, err
	}
	st.WordCount = models.CountWords(st.Content)
	st.SyncStatus = models.SyncStatusPendingSync
	st.Touch()
	if err := r.store.UpsertStory(st); err != nil {
		return nil, err
	}
	r.publishPending()
	if r.reachable() {
		snapshot := *st
		r.spawn(func() { r.push(context.Background(), &snapshot) })
	}
	return st, nil
}

// DeleteStory removes the row locally no matter what. The remote delete
// is journaled and replayed by sync passes, and its failure never
// resurrects the row on this device.
func (r *StoryRepository) DeleteStory(ctx context.Context, id models.ID) error {
	st, err := r.store.GetStory(id)
	if err != nil {
		return err
	}
	if err := r.store.DeleteStory(id); err != nil {
		return err
	}
	if st != nil && st.LocalAudioPath != "" {
		if rmErr := os.Remove(st.LocalAudioPath); rmErr != nil && !os.IsNotExist(rmErr) {
			logging.Warn("remove cached audio", zap.String("path", st.LocalAudioPath), zap.Error(rmErr))
		}
	}
	// Rows the server never saw need no remote delete.
	if st != nil && !uuid.IsClientID(string(id)) {
		r.journalDelete(models.Story{}.TableName(), id)
		if r.reachable() {
			r.spawn(func() { r.pushDelete(context.Background(), id) })
		}
	}
	r.publishPending()
	return nil
}

// DownloadAudio fetches the narrated audio for a story and caches it
// encrypted on disk. Online-only.
func (r *StoryRepository) DownloadAudio(ctx context.Context, id models.ID) (*models.Story, error) {
	st, err := r.store.GetStory(id)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, errors.Newf(errors.ErrNotFound, "story %s not found", id)
	}
	if st.RemoteAudioURL == "" {
		return nil, errors.Newf(errors.ErrValidation, "story %s has no narration audio", id)
	}
	if !r.reachable() {
		return nil, offlineErr("audio download")
	}
	data, err := r.gateway.DownloadAudio(ctx, st.RemoteAudioURL)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(r.audioDir, 0o700); err != nil {
		return nil, errors.Wrap(errors.ErrCache, "create audio cache dir", err)
	}
	path := filepath.Join(r.audioDir, fmt.Sprintf("story_%s.bin", id))
	if err := crypto.EncryptToFile(path, data, r.audioKey); err != nil {
		return nil, errors.Wrap(errors.ErrCryptoFailed, "encrypt narration audio", err)
	}
	// Device-local cache state, not a content edit: the sync tag is
	// left alone.
	st.LocalAudioPath = path
	st.IsDownloaded = true
	if err := r.store.UpsertStory(st); err != nil {
		return nil, err
	}
	return st, nil
}

// OpenAudio decrypts the cached narration for playback.
func (r *StoryRepository) OpenAudio(st *models.Story) ([]byte, error) {
	if st.LocalAudioPath == "" {
		return nil, errors.Newf(errors.ErrNotFound, "story %s has no cached audio", st.ID)
	}
	data, err := crypto.DecryptFile(st.LocalAudioPath, r.audioKey)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCryptoFailed, "decrypt narration audio", err)
	}
	return data, nil
}

// Sync pushes every non-synced story and replays journaled deletes.
// Each row fails or succeeds on its own.
func (r *StoryRepository) Sync(ctx context.Context) *syncpkg.Result {
	res := &syncpkg.Result{Success: true}
	r.replayDeletes(ctx, models.Story{}.TableName(), r.gateway.Delete, res)

	stories, err := r.store.ListStoriesPendingSync()
	if err != nil {
		res.Success = false
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	for _, st := range stories {
		if err := r.push(ctx, st); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("story %s: %v", st.ID, err))
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

// push propagates one story to the server. A client id means the row
// was created on this device: the server assigns the authoritative id
// and the local row is swapped atomically, re-keying nothing else
// because stories have no child rows.
func (r *StoryRepository) push(ctx context.Context, st *models.Story) error {
	var (
		remote *models.Story
		err    error
	)
	if uuid.IsClientID(string(st.ID)) {
		remote, err = r.gateway.Create(ctx, st)
	} else {
		remote, err = r.gateway.Update(ctx, st)
	}
	if err != nil {
		if status := failureStatus(err); status != st.SyncStatus {
			if serr := r.store.SetStorySyncStatus(st.ID, status); serr != nil {
				logging.Warn("mark story sync failed", zap.String("id", string(st.ID)), zap.Error(serr))
			}
		}
		return err
	}
	// Preserve device-local cache fields the server knows nothing about.
	remote.LocalAudioPath = st.LocalAudioPath
	remote.IsDownloaded = st.IsDownloaded
	if err := r.store.ReplaceStory(st.ID, remote); err != nil {
		return err
	}
	r.publishPending()
	return nil
}

// pushDelete runs one best-effort remote delete right away so the
// journal entry clears without waiting for the next full pass.
func (r *StoryRepository) pushDelete(ctx context.Context, id models.ID) {
	res := &syncpkg.Result{}
	r.replayDeletes(ctx, models.Story{}.TableName(), r.gateway.Delete, res)
	if len(res.Errors) > 0 {
		logging.Debug("story delete push deferred", zap.Strings("errors", res.Errors))
	}
}

// refresh pulls the server's story list and folds it into the local
// store. Rows holding unpushed local changes are skipped so a pull can
// never clobber an edit that has not reached the server yet, and rows
// with a journaled delete are skipped so a pull can never resurrect a
// story deleted on this device.
func (r *StoryRepository) refresh(ctx context.Context, parentID models.ID) {
	deleted, ok := r.journaledDeletes(models.Story{}.TableName())
	if !ok {
		return
	}
	remote, err := r.gateway.List(ctx, parentID)
	if err != nil {
		logging.Debug("story refresh skipped", zap.Error(err))
		return
	}
	for _, st := range remote {
		if _, gone := deleted[st.ID]; gone {
			continue
		}
		local, err := r.store.GetStory(st.ID)
		if err != nil {
			logging.Warn("story refresh read", zap.String("id", string(st.ID)), zap.Error(err))
			continue
		}
		if local != nil && local.SyncStatus.NeedsSync() {
			continue
		}
		if local != nil {
			st.LocalAudioPath = local.LocalAudioPath
			st.IsDownloaded = local.IsDownloaded
		}
		if err := r.store.UpsertStory(st); err != nil {
			logging.Warn("story refresh write", zap.String("id", string(st.ID)), zap.Error(err))
		}
	}
}

// KeywordList splits the stored comma-separated keywords.
func KeywordList(keywords string) []string {
	if keywords == "" {
		return nil
	}
	parts := strings.Split(keywords, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
