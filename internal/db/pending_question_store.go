package db

import (
	"database/sql"

	"github.com/storynest/storynest/internal/models"
)

const pendingQuestionColumns = `id, story_id, question, status, asked_at, answered_at, sync_status`

func scanPendingQuestion(row rowScanner) (*models.PendingQuestion, error) {
	var pq models.PendingQuestion
	var answeredAt sql.NullInt64
	err := row.Scan(&pq.ID, &pq.StoryID, &pq.Question, &pq.Status,
		&pq.AskedAt, &answeredAt, &pq.SyncStatus)
	if err != nil {
		return nil, err
	}
	pq.AnsweredAt = answeredAt.Int64
	return &pq, nil
}

func upsertPendingQuestionTx(tx *sql.Tx, pq *models.PendingQuestion) error {
	query := `
	INSERT INTO pending_questions (id, story_id, question, status, asked_at, answered_at, sync_status)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		story_id = excluded.story_id,
		question = excluded.question,
		status = excluded.status,
		asked_at = excluded.asked_at,
		answered_at = excluded.answered_at,
		sync_status = excluded.sync_status
	`
	var answeredAt interface{}
	if pq.AnsweredAt != 0 {
		answeredAt = pq.AnsweredAt
	}
	_, err := tx.Exec(query, pq.ID, pq.StoryID, pq.Question, pq.Status,
		pq.AskedAt, answeredAt, pq.SyncStatus)
	return err
}

// UpsertPendingQuestion inserts or replaces a pending question row by id.
func (s *Store) UpsertPendingQuestion(pq *models.PendingQuestion) error {
	err := s.inTx(func(tx *sql.Tx) error {
		if err := upsertPendingQuestionTx(tx, pq); err != nil {
			return cacheErr("failed to upsert pending question", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notifier.notify(models.PendingQuestion{}.TableName())
	return nil
}

// GetPendingQuestion retrieves a pending question by id, (nil, nil) when
// absent.
func (s *Store) GetPendingQuestion(id models.ID) (*models.PendingQuestion, error) {
	query := `SELECT ` + pendingQuestionColumns + ` FROM pending_questions WHERE id = ?`
	pq, err := scanPendingQuestion(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cacheErr("failed to get pending question", err)
	}
	return pq, nil
}

// ListPendingQuestions returns questions for a story, oldest first. An
// empty story id lists every question.
func (s *Store) ListPendingQuestions(storyID models.ID) ([]*models.PendingQuestion, error) {
	query := `SELECT ` + pendingQuestionColumns + ` FROM pending_questions`
	var args []interface{}
	if storyID != "" {
		query += ` WHERE story_id = ?`
		args = append(args, storyID)
	}
	query += ` ORDER BY asked_at, id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, cacheErr("failed to list pending questions", err)
	}
	defer rows.Close()

	var questions []*models.PendingQuestion
	for rows.Next() {
		pq, err := scanPendingQuestion(rows)
		if err != nil {
			return nil, cacheErr("failed to scan pending question", err)
		}
		questions = append(questions, pq)
	}
	if err := rows.Err(); err != nil {
		return nil, cacheErr("failed to iterate pending questions", err)
	}
	return questions, nil
}

// ListPendingQuestionsPendingSync returns questions still awaiting
// propagation.
func (s *Store) ListPendingQuestionsPendingSync() ([]*models.PendingQuestion, error) {
	query := `SELECT ` + pendingQuestionColumns + ` FROM pending_questions WHERE sync_status != 'synced' ORDER BY asked_at, id`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, cacheErr("failed to list pending-sync questions", err)
	}
	defer rows.Close()

	var questions []*models.PendingQuestion
	for rows.Next() {
		pq, err := scanPendingQuestion(rows)
		if err != nil {
			return nil, cacheErr("failed to scan pending question", err)
		}
		questions = append(questions, pq)
	}
	if err := rows.Err(); err != nil {
		return nil, cacheErr("failed to iterate pending questions", err)
	}
	return questions, nil
}

// SetPendingQuestionSyncStatus rewrites only the sync tag of a question row.
func (s *Store) SetPendingQuestionSyncStatus(id models.ID, status models.SyncStatus) error {
	_, err := s.db.Exec(`UPDATE pending_questions SET sync_status = ? WHERE id = ?`, status, id)
	if err != nil {
		return cacheErr("failed to set pending question sync status", err)
	}
	s.notifier.notify(models.PendingQuestion{}.TableName())
	return nil
}

// DeletePendingQuestion removes a question row. Absent rows are a no-op.
func (s *Store) DeletePendingQuestion(id models.ID) error {
	_, err := s.db.Exec(`DELETE FROM pending_questions WHERE id = ?`, id)
	if err != nil {
		return cacheErr("failed to delete pending question", err)
	}
	s.notifier.notify(models.PendingQuestion{}.TableName())
	return nil
}

// ReplacePendingQuestion swaps a client-id row for its server form.
func (s *Store) ReplacePendingQuestion(oldID models.ID, pq *models.PendingQuestion) error {
	err := s.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM pending_questions WHERE id = ?`, oldID); err != nil {
			return cacheErr("failed to remove stale pending question row", err)
		}
		if err := upsertPendingQuestionTx(tx, pq); err != nil {
			return cacheErr("failed to upsert replacement pending question", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notifier.notify(models.PendingQuestion{}.TableName())
	return nil
}

// WatchPendingQuestions subscribes to the question set of a story.
func (s *Store) WatchPendingQuestions(storyID models.ID) *Subscription[*models.PendingQuestion] {
	return newSubscription(s.notifier, models.PendingQuestion{}.TableName(), func() ([]*models.PendingQuestion, error) {
		return s.ListPendingQuestions(storyID)
	})
}
