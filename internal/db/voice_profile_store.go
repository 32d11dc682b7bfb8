package db

import (
	"database/sql"

	"github.com/storynest/storynest/internal/models"
)

const voiceProfileColumns = `id, parent_id, name, status, sample_duration,
	local_audio_path, remote_model_url, error_message, created_at, updated_at, sync_status`

func scanVoiceProfile(row rowScanner) (*models.VoiceProfile, error) {
	var vp models.VoiceProfile
	var sampleDuration sql.NullFloat64
	var localAudioPath, remoteModelURL, errorMessage sql.NullString
	err := row.Scan(
		&vp.ID, &vp.ParentID, &vp.Name, &vp.Status, &sampleDuration,
		&localAudioPath, &remoteModelURL, &errorMessage,
		&vp.CreatedAt, &vp.UpdatedAt, &vp.SyncStatus,
	)
	if err != nil {
		return nil, err
	}
	vp.SampleDuration = sampleDuration.Float64
	vp.LocalAudioPath = localAudioPath.String
	vp.RemoteModelURL = remoteModelURL.String
	vp.ErrorMessage = errorMessage.String
	return &vp, nil
}

func upsertVoiceProfileTx(tx *sql.Tx, vp *models.VoiceProfile) error {
	query := `
	INSERT INTO voice_profiles (id, parent_id, name, status, sample_duration,
		local_audio_path, remote_model_url, error_message, created_at, updated_at, sync_status)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		parent_id = excluded.parent_id,
		name = excluded.name,
		status = excluded.status,
		sample_duration = excluded.sample_duration,
		local_audio_path = excluded.local_audio_path,
		remote_model_url = excluded.remote_model_url,
		error_message = excluded.error_message,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at,
		sync_status = excluded.sync_status
	`
	_, err := tx.Exec(query, vp.ID, vp.ParentID, vp.Name, vp.Status, vp.SampleDuration,
		vp.LocalAudioPath, vp.RemoteModelURL, vp.ErrorMessage,
		vp.CreatedAt, vp.UpdatedAt, vp.SyncStatus)
	return err
}

// UpsertVoiceProfile inserts or replaces a voice profile row by id.
func (s *Store) UpsertVoiceProfile(vp *models.VoiceProfile) error {
	err := s.inTx(func(tx *sql.Tx) error {
		if err := upsertVoiceProfileTx(tx, vp); err != nil {
			return cacheErr("failed to upsert voice profile", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notifier.notify(models.VoiceProfile{}.TableName())
	return nil
}

// GetVoiceProfile retrieves a voice profile by id, (nil, nil) when absent.
func (s *Store) GetVoiceProfile(id models.ID) (*models.VoiceProfile, error) {
	query := `SELECT ` + voiceProfileColumns + ` FROM voice_profiles WHERE id = ?`
	vp, err := scanVoiceProfile(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cacheErr("failed to get voice profile", err)
	}
	return vp, nil
}

// ListVoiceProfiles returns all voice profiles for a parent, newest first.
func (s *Store) ListVoiceProfiles(parentID models.ID) ([]*models.VoiceProfile, error) {
	query := `SELECT ` + voiceProfileColumns + ` FROM voice_profiles`
	var args []interface{}
	if parentID != "" {
		query += ` WHERE parent_id = ?`
		args = append(args, parentID)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, cacheErr("failed to list voice profiles", err)
	}
	defer rows.Close()

	var profiles []*models.VoiceProfile
	for rows.Next() {
		vp, err := scanVoiceProfile(rows)
		if err != nil {
			return nil, cacheErr("failed to scan voice profile", err)
		}
		profiles = append(profiles, vp)
	}
	if err := rows.Err(); err != nil {
		return nil, cacheErr("failed to iterate voice profiles", err)
	}
	return profiles, nil
}

// ListVoiceProfilesPendingSync returns profiles still awaiting propagation.
func (s *Store) ListVoiceProfilesPendingSync() ([]*models.VoiceProfile, error) {
	query := `SELECT ` + voiceProfileColumns + ` FROM voice_profiles WHERE sync_status != 'synced' ORDER BY created_at, id`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, cacheErr("failed to list pending voice profiles", err)
	}
	defer rows.Close()

	var profiles []*models.VoiceProfile
	for rows.Next() {
		vp, err := scanVoiceProfile(rows)
		if err != nil {
			return nil, cacheErr("failed to scan voice profile", err)
		}
		profiles = append(profiles, vp)
	}
	if err := rows.Err(); err != nil {
		return nil, cacheErr("failed to iterate voice profiles", err)
	}
	return profiles, nil
}

// SetVoiceProfileSyncStatus rewrites only the sync tag of a profile row.
func (s *Store) SetVoiceProfileSyncStatus(id models.ID, status models.SyncStatus) error {
	_, err := s.db.Exec(`UPDATE voice_profiles SET sync_status = ? WHERE id = ?`, status, id)
	if err != nil {
		return cacheErr("failed to set voice profile sync status", err)
	}
	s.notifier.notify(models.VoiceProfile{}.TableName())
	return nil
}

// DeleteVoiceProfile removes a voice profile row. Absent rows are a no-op.
func (s *Store) DeleteVoiceProfile(id models.ID) error {
	_, err := s.db.Exec(`DELETE FROM voice_profiles WHERE id = ?`, id)
	if err != nil {
		return cacheErr("failed to delete voice profile", err)
	}
	s.notifier.notify(models.VoiceProfile{}.TableName())
	return nil
}

// ReplaceVoiceProfile swaps a client-id row for its server-authoritative
// form in one transaction.
func (s *Store) ReplaceVoiceProfile(oldID models.ID, vp *models.VoiceProfile) error {
	err := s.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM voice_profiles WHERE id = ?`, oldID); err != nil {
			return cacheErr("failed to remove stale voice profile row", err)
		}
		if err := upsertVoiceProfileTx(tx, vp); err != nil {
			return cacheErr("failed to upsert replacement voice profile", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notifier.notify(models.VoiceProfile{}.TableName())
	return nil
}

// WatchVoiceProfiles subscribes to the voice profile set of a parent.
func (s *Store) WatchVoiceProfiles(parentID models.ID) *Subscription[*models.VoiceProfile] {
	return newSubscription(s.notifier, models.VoiceProfile{}.TableName(), func() ([]*models.VoiceProfile, error) {
		return s.ListVoiceProfiles(parentID)
	})
}
