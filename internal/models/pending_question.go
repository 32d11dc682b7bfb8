package models

// PendingQuestionStatus is the answer lifecycle of a deferred question.
type PendingQuestionStatus string

const (
	PendingQuestionPending  PendingQuestionStatus = "pending"
	PendingQuestionAnswered PendingQuestionStatus = "answered"
)

// PendingQuestion represents a child question captured for the parent to
// answer later.
type PendingQuestion struct {
	ID         ID                    `db:"id" json:"id"`
	StoryID    ID                    `db:"story_id" json:"story_id"`
	Question   string                `db:"question" json:"question"`
	Status     PendingQuestionStatus `db:"status" json:"status"`
	AskedAt    int64                 `db:"asked_at" json:"asked_at"`
	AnsweredAt int64                 `db:"answered_at" json:"answered_at,omitempty"` // 0 = unanswered
	SyncStatus SyncStatus            `db:"sync_status" json:"sync_status"`
}

// TableName returns the table name for PendingQuestion.
func (PendingQuestion) TableName() string {
	return "pending_questions"
}
