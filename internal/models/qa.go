package models

import (
	"unicode/utf8"

	"github.com/storynest/storynest/internal/errors"
)

// QASessionStatus is the session lifecycle. Completed and timeout are
// terminal: no further messages may be appended.
type QASessionStatus string

const (
	QASessionActive    QASessionStatus = "active"
	QASessionCompleted QASessionStatus = "completed"
	QASessionTimeout   QASessionStatus = "timeout"
)

// MessageRole identifies the speaker of a Q&A message.
type MessageRole string

const (
	RoleChild     MessageRole = "child"
	RoleAssistant MessageRole = "assistant"
)

// Q&A bounds.
const (
	MaxSessionMessages = 10
	MaxMessageLength   = 500
)

// QASession represents a bounded child Q&A conversation about a story.
type QASession struct {
	ID           ID              `db:"id" json:"id"`
	StoryID      ID              `db:"story_id" json:"story_id"`
	Status       QASessionStatus `db:"status" json:"status"`
	MessageCount int             `db:"message_count" json:"message_count"`
	StartedAt    int64           `db:"started_at" json:"started_at"`
	EndedAt      int64           `db:"ended_at" json:"ended_at,omitempty"` // 0 = still open
	SyncStatus   SyncStatus      `db:"sync_status" json:"sync_status"`
}

// TableName returns the table name for QASession.
func (QASession) TableName() string {
	return "qa_sessions"
}

// IsTerminal reports whether the session can accept no more messages.
func (s *QASession) IsTerminal() bool {
	return s.Status == QASessionCompleted || s.Status == QASessionTimeout
}

// CanAppend returns an error if the session cannot accept another question.
func (s *QASession) CanAppend() error {
	if s.IsTerminal() {
		return errors.Newf(errors.ErrSessionClosed, "session %s is %s", s.ID, s.Status)
	}
	if s.MessageCount >= MaxSessionMessages {
		return errors.Newf(errors.ErrSessionLimitReached,
			"session %s reached the %d message limit", s.ID, MaxSessionMessages)
	}
	return nil
}

// QAMessage represents a single turn within a session. Sequence is
// monotonic within the owning session.
type QAMessage struct {
	ID             ID          `db:"id" json:"id"`
	SessionID      ID          `db:"session_id" json:"session_id"`
	Role           MessageRole `db:"role" json:"role"`
	Content        string      `db:"content" json:"content"`
	InScope        *bool       `db:"in_scope" json:"in_scope,omitempty"`
	AudioURL       string      `db:"audio_url" json:"audio_url,omitempty"`
	LocalAudioPath string      `db:"local_audio_path" json:"local_audio_path,omitempty"`
	Sequence       int         `db:"sequence" json:"sequence"`
	CreatedAt      int64       `db:"created_at" json:"created_at"`
	SyncStatus     SyncStatus  `db:"sync_status" json:"sync_status"`
}

// TableName returns the table name for QAMessage.
func (QAMessage) TableName() string {
	return "qa_messages"
}

// ValidateQuestion enforces the question length bound.
func ValidateQuestion(content string) error {
	n := utf8.RuneCountInString(content)
	if n == 0 || n > MaxMessageLength {
		return errors.Newf(errors.ErrValidation,
			"question must be 1-%d characters, got %d", MaxMessageLength, n)
	}
	return nil
}
