package db

import (
	"database/sql"

	"github.com/storynest/storynest/internal/models"
)

const qaSessionColumns = `id, story_id, status, message_count, started_at, ended_at, sync_status`

const qaMessageColumns = `id, session_id, role, content, in_scope, audio_url,
	local_audio_path, sequence, created_at, sync_status`

func scanQASession(row rowScanner) (*models.QASession, error) {
	var sess models.QASession
	var endedAt sql.NullInt64
	err := row.Scan(&sess.ID, &sess.StoryID, &sess.Status, &sess.MessageCount,
		&sess.StartedAt, &endedAt, &sess.SyncStatus)
	if err != nil {
		return nil, err
	}
	sess.EndedAt = endedAt.Int64
	return &sess, nil
}

func scanQAMessage(row rowScanner) (*models.QAMessage, error) {
	var msg models.QAMessage
	var inScope sql.NullBool
	var audioURL, localAudioPath sql.NullString
	err := row.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &inScope,
		&audioURL, &localAudioPath, &msg.Sequence, &msg.CreatedAt, &msg.SyncStatus)
	if err != nil {
		return nil, err
	}
	if inScope.Valid {
		v := inScope.Bool
		msg.InScope = &v
	}
	msg.AudioURL = audioURL.String
	msg.LocalAudioPath = localAudioPath.String
	return &msg, nil
}

func upsertQASessionTx(tx *sql.Tx, sess *models.QASession) error {
	query := `
	INSERT INTO qa_sessions (id, story_id, status, message_count, started_at, ended_at, sync_status)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		story_id = excluded.story_id,
		status = excluded.status,
		message_count = excluded.message_count,
		started_at = excluded.started_at,
		ended_at = excluded.ended_at,
		sync_status = excluded.sync_status
	`
	var endedAt interface{}
	if sess.EndedAt != 0 {
		endedAt = sess.EndedAt
	}
	_, err := tx.Exec(query, sess.ID, sess.StoryID, sess.Status, sess.MessageCount,
		sess.StartedAt, endedAt, sess.SyncStatus)
	return err
}

func upsertQAMessageTx(tx *sql.Tx, msg *models.QAMessage) error {
	query := `
	INSERT INTO qa_messages (id, session_id, role, content, in_scope, audio_url,
		local_audio_path, sequence, created_at, sync_status)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		session_id = excluded.session_id,
		role = excluded.role,
		content = excluded.content,
		in_scope = excluded.in_scope,
		audio_url = excluded.audio_url,
		local_audio_path = excluded.local_audio_path,
		sequence = excluded.sequence,
		created_at = excluded.created_at,
		sync_status = excluded.sync_status
	`
	var inScope interface{}
	if msg.InScope != nil {
		inScope = *msg.InScope
	}
	_, err := tx.Exec(query, msg.ID, msg.SessionID, msg.Role, msg.Content, inScope,
		msg.AudioURL, msg.LocalAudioPath, msg.Sequence, msg.CreatedAt, msg.SyncStatus)
	return err
}

// UpsertQASession inserts or replaces a session row by id.
func (s *Store) UpsertQASession(sess *models.QASession) error {
	err := s.inTx(func(tx *sql.Tx) error {
		if err := upsertQASessionTx(tx, sess); err != nil {
			return cacheErr("failed to upsert qa session", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notifier.notify(models.QASession{}.TableName())
	return nil
}

// GetQASession retrieves a session by id, (nil, nil) when absent.
func (s *Store) GetQASession(id models.ID) (*models.QASession, error) {
	query := `SELECT ` + qaSessionColumns + ` FROM qa_sessions WHERE id = ?`
	sess, err := scanQASession(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cacheErr("failed to get qa session", err)
	}
	return sess, nil
}

// ListQASessions returns sessions for a story, newest first. An empty story
// id lists every session.
func (s *Store) ListQASessions(storyID models.ID) ([]*models.QASession, error) {
	query := `SELECT ` + qaSessionColumns + ` FROM qa_sessions`
	var args []interface{}
	if storyID != "" {
		query += ` WHERE story_id = ?`
		args = append(args, storyID)
	}
	query += ` ORDER BY started_at DESC, id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, cacheErr("failed to list qa sessions", err)
	}
	defer rows.Close()

	var sessions []*models.QASession
	for rows.Next() {
		sess, err := scanQASession(rows)
		if err != nil {
			return nil, cacheErr("failed to scan qa session", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, cacheErr("failed to iterate qa sessions", err)
	}
	return sessions, nil
}

// ListQASessionsPendingSync returns sessions still awaiting propagation.
func (s *Store) ListQASessionsPendingSync() ([]*models.QASession, error) {
	query := `SELECT ` + qaSessionColumns + ` FROM qa_sessions WHERE sync_status != 'synced' ORDER BY started_at, id`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, cacheErr("failed to list pending qa sessions", err)
	}
	defer rows.Close()

	var sessions []*models.QASession
	for rows.Next() {
		sess, err := scanQASession(rows)
		if err != nil {
			return nil, cacheErr("failed to scan qa session", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, cacheErr("failed to iterate qa sessions", err)
	}
	return sessions, nil
}

// SetQASessionSyncStatus rewrites only the sync tag of a session row.
func (s *Store) SetQASessionSyncStatus(id models.ID, status models.SyncStatus) error {
	_, err := s.db.Exec(`UPDATE qa_sessions SET sync_status = ? WHERE id = ?`, status, id)
	if err != nil {
		return cacheErr("failed to set qa session sync status", err)
	}
	s.notifier.notify(models.QASession{}.TableName())
	return nil
}

// DeleteQASession removes a session row and its messages. The schema has no
// cascade deletes; message cleanup happens here in the same transaction.
func (s *Store) DeleteQASession(id models.ID) error {
	err := s.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM qa_messages WHERE session_id = ?`, id); err != nil {
			return cacheErr("failed to delete session messages", err)
		}
		if _, err := tx.Exec(`DELETE FROM qa_sessions WHERE id = ?`, id); err != nil {
			return cacheErr("failed to delete qa session", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notifier.notify(models.QASession{}.TableName(), models.QAMessage{}.TableName())
	return nil
}

// ReplaceQASession swaps a client-id session row for its server form and
// re-parents the session's messages in one transaction.
func (s *Store) ReplaceQASession(oldID models.ID, sess *models.QASession) error {
	err := s.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM qa_sessions WHERE id = ?`, oldID); err != nil {
			return cacheErr("failed to remove stale qa session row", err)
		}
		if err := upsertQASessionTx(tx, sess); err != nil {
			return cacheErr("failed to upsert replacement qa session", err)
		}
		if _, err := tx.Exec(`UPDATE qa_messages SET session_id = ? WHERE session_id = ?`, sess.ID, oldID); err != nil {
			return cacheErr("failed to re-parent qa messages", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notifier.notify(models.QASession{}.TableName(), models.QAMessage{}.TableName())
	return nil
}

// UpsertQAMessage inserts or replaces a message row by id.
func (s *Store) UpsertQAMessage(msg *models.QAMessage) error {
	err := s.inTx(func(tx *sql.Tx) error {
		if err := upsertQAMessageTx(tx, msg); err != nil {
			return cacheErr("failed to upsert qa message", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notifier.notify(models.QAMessage{}.TableName())
	return nil
}

// AppendQAMessage writes a message and bumps the owning session's message
// count in one transaction, keeping the count monotonic.
func (s *Store) AppendQAMessage(msg *models.QAMessage, sess *models.QASession) error {
	err := s.inTx(func(tx *sql.Tx) error {
		if err := upsertQAMessageTx(tx, msg); err != nil {
			return cacheErr("failed to append qa message", err)
		}
		if err := upsertQASessionTx(tx, sess); err != nil {
			return cacheErr("failed to update session on append", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notifier.notify(models.QAMessage{}.TableName(), models.QASession{}.TableName())
	return nil
}

// GetQAMessage retrieves a message by id, (nil, nil) when absent.
func (s *Store) GetQAMessage(id models.ID) (*models.QAMessage, error) {
	query := `SELECT ` + qaMessageColumns + ` FROM qa_messages WHERE id = ?`
	msg, err := scanQAMessage(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cacheErr("failed to get qa message", err)
	}
	return msg, nil
}

// ListQAMessages returns a session's messages in sequence order.
func (s *Store) ListQAMessages(sessionID models.ID) ([]*models.QAMessage, error) {
	query := `SELECT ` + qaMessageColumns + ` FROM qa_messages WHERE session_id = ? ORDER BY sequence`
	rows, err := s.db.Query(query, sessionID)
	if err != nil {
		return nil, cacheErr("failed to list qa messages", err)
	}
	defer rows.Close()

	var messages []*models.QAMessage
	for rows.Next() {
		msg, err := scanQAMessage(rows)
		if err != nil {
			return nil, cacheErr("failed to scan qa message", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, cacheErr("failed to iterate qa messages", err)
	}
	return messages, nil
}

// NextMessageSequence returns the next monotonic sequence number within a
// session.
func (s *Store) NextMessageSequence(sessionID models.ID) (int, error) {
	var seq int
	err := s.db.QueryRow(
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM qa_messages WHERE session_id = ?`,
		sessionID).Scan(&seq)
	if err != nil {
		return 0, cacheErr("failed to compute message sequence", err)
	}
	return seq, nil
}

// SetQAMessageSyncStatus rewrites only the sync tag of a message row.
func (s *Store) SetQAMessageSyncStatus(id models.ID, status models.SyncStatus) error {
	_, err := s.db.Exec(`UPDATE qa_messages SET sync_status = ? WHERE id = ?`, status, id)
	if err != nil {
		return cacheErr("failed to set qa message sync status", err)
	}
	s.notifier.notify(models.QAMessage{}.TableName())
	return nil
}

// ReplaceQAMessage swaps a client-id message row for its server form.
func (s *Store) ReplaceQAMessage(oldID models.ID, msg *models.QAMessage) error {
	err := s.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM qa_messages WHERE id = ?`, oldID); err != nil {
			return cacheErr("failed to remove stale qa message row", err)
		}
		if err := upsertQAMessageTx(tx, msg); err != nil {
			return cacheErr("failed to upsert replacement qa message", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notifier.notify(models.QAMessage{}.TableName())
	return nil
}

// WatchQAMessages subscribes to a session's message list.
func (s *Store) WatchQAMessages(sessionID models.ID) *Subscription[*models.QAMessage] {
	return newSubscription(s.notifier, models.QAMessage{}.TableName(), func() ([]*models.QAMessage, error) {
		return s.ListQAMessages(sessionID)
	})
}

// WatchQASessions subscribes to the session set of a story.
func (s *Store) WatchQASessions(storyID models.ID) *Subscription[*models.QASession] {
	return newSubscription(s.notifier, models.QASession{}.TableName(), func() ([]*models.QASession, error) {
		return s.ListQASessions(storyID)
	})
}
