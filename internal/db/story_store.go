package db

import (
	"database/sql"

	"github.com/storynest/storynest/internal/models"
)

const storyColumns = `id, parent_id, title, content, source, word_count, keywords,
	estimated_duration, remote_audio_url, local_audio_path, is_downloaded,
	created_at, updated_at, sync_status`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStory(row rowScanner) (*models.Story, error) {
	var st models.Story
	var keywords, remoteAudioURL, localAudioPath sql.NullString
	var estimatedDuration sql.NullInt64
	err := row.Scan(
		&st.ID, &st.ParentID, &st.Title, &st.Content, &st.Source, &st.WordCount,
		&keywords, &estimatedDuration, &remoteAudioURL, &localAudioPath,
		&st.IsDownloaded, &st.CreatedAt, &st.UpdatedAt, &st.SyncStatus,
	)
	if err != nil {
		return nil, err
	}
	st.Keywords = keywords.String
	st.EstimatedDuration = int(estimatedDuration.Int64)
	st.RemoteAudioURL = remoteAudioURL.String
	st.LocalAudioPath = localAudioPath.String
	return &st, nil
}

func upsertStoryTx(tx *sql.Tx, st *models.Story) error {
	query := `
	INSERT INTO stories (id, parent_id, title, content, source, word_count, keywords,
		estimated_duration, remote_audio_url, local_audio_path, is_downloaded,
		created_at, updated_at, sync_status)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		parent_id = excluded.parent_id,
		title = excluded.title,
		content = excluded.content,
		source = excluded.source,
		word_count = excluded.word_count,
		keywords = excluded.keywords,
		estimated_duration = excluded.estimated_duration,
		remote_audio_url = excluded.remote_audio_url,
		local_audio_path = excluded.local_audio_path,
		is_downloaded = excluded.is_downloaded,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at,
		sync_status = excluded.sync_status
	`
	_, err := tx.Exec(query, st.ID, st.ParentID, st.Title, st.Content, st.Source,
		st.WordCount, st.Keywords, st.EstimatedDuration, st.RemoteAudioURL,
		st.LocalAudioPath, st.IsDownloaded, st.CreatedAt, st.UpdatedAt, st.SyncStatus)
	return err
}

// UpsertStory inserts or replaces a story row by id. Applying the same
// payload twice yields one row holding the latest values.
func (s *Store) UpsertStory(st *models.Story) error {
	err := s.inTx(func(tx *sql.Tx) error {
		if err := upsertStoryTx(tx, st); err != nil {
			return cacheErr("failed to upsert story", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notifier.notify(models.Story{}.TableName())
	return nil
}

// GetStory retrieves a story by id. Absence is a normal (nil, nil) result.
func (s *Store) GetStory(id models.ID) (*models.Story, error) {
	query := `SELECT ` + storyColumns + ` FROM stories WHERE id = ?`
	st, err := scanStory(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cacheErr("failed to get story", err)
	}
	return st, nil
}

// ListStories returns all stories for a parent, newest first. An empty
// parent id lists every story.
func (s *Store) ListStories(parentID models.ID) ([]*models.Story, error) {
	query := `SELECT ` + storyColumns + ` FROM stories`
	var args []interface{}
	if parentID != "" {
		query += ` WHERE parent_id = ?`
		args = append(args, parentID)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, cacheErr("failed to list stories", err)
	}
	defer rows.Close()

	var stories []*models.Story
	for rows.Next() {
		st, err := scanStory(rows)
		if err != nil {
			return nil, cacheErr("failed to scan story", err)
		}
		stories = append(stories, st)
	}
	if err := rows.Err(); err != nil {
		return nil, cacheErr("failed to iterate stories", err)
	}
	return stories, nil
}

// ListStoriesPendingSync returns stories still awaiting propagation.
func (s *Store) ListStoriesPendingSync() ([]*models.Story, error) {
	query := `SELECT ` + storyColumns + ` FROM stories WHERE sync_status != 'synced' ORDER BY created_at, id`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, cacheErr("failed to list pending stories", err)
	}
	defer rows.Close()

	var stories []*models.Story
	for rows.Next() {
		st, err := scanStory(rows)
		if err != nil {
			return nil, cacheErr("failed to scan story", err)
		}
		stories = append(stories, st)
	}
	if err := rows.Err(); err != nil {
		return nil, cacheErr("failed to iterate stories", err)
	}
	return stories, nil
}

// SetStorySyncStatus rewrites only the sync tag of a story row.
func (s *Store) SetStorySyncStatus(id models.ID, status models.SyncStatus) error {
	_, err := s.db.Exec(`UPDATE stories SET sync_status = ? WHERE id = ?`, status, id)
	if err != nil {
		return cacheErr("failed to set story sync status", err)
	}
	s.notifier.notify(models.Story{}.TableName())
	return nil
}

// DeleteStory removes a story row. Deleting an absent row is a no-op.
func (s *Store) DeleteStory(id models.ID) error {
	_, err := s.db.Exec(`DELETE FROM stories WHERE id = ?`, id)
	if err != nil {
		return cacheErr("failed to delete story", err)
	}
	s.notifier.notify(models.Story{}.TableName())
	return nil
}

// ReplaceStory swaps a client-id row for its server-authoritative form in
// one transaction, so readers never observe both rows or neither.
func (s *Store) ReplaceStory(oldID models.ID, st *models.Story) error {
	err := s.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM stories WHERE id = ?`, oldID); err != nil {
			return cacheErr("failed to remove stale story row", err)
		}
		if err := upsertStoryTx(tx, st); err != nil {
			return cacheErr("failed to upsert replacement story", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notifier.notify(models.Story{}.TableName())
	return nil
}

// WatchStories subscribes to the story set of a parent. The subscription
// re-emits after any write to the stories table.
func (s *Store) WatchStories(parentID models.ID) *Subscription[*models.Story] {
	return newSubscription(s.notifier, models.Story{}.TableName(), func() ([]*models.Story, error) {
		return s.ListStories(parentID)
	})
}
