package models

import (
	"strings"
	"unicode/utf8"

	"github.com/storynest/storynest/internal/errors"
)

// StorySource distinguishes typed-in stories from AI-generated ones.
type StorySource string

const (
	StorySourceImported    StorySource = "imported"
	StorySourceAIGenerated StorySource = "ai_generated"
)

// Story content bounds in characters (runes, so CJK titles count correctly).
const (
	MinContentLength = 50
	MaxContentLength = 5000
	MaxTitleLength   = 200
)

// Story represents a narratable story owned by a parent.
type Story struct {
	ID                ID          `db:"id" json:"id"`
	ParentID          ID          `db:"parent_id" json:"parent_id"`
	Title             string      `db:"title" json:"title"`
	Content           string      `db:"content" json:"content"`
	Source            StorySource `db:"source" json:"source"`
	WordCount         int         `db:"word_count" json:"word_count"`
	Keywords          string      `db:"keywords" json:"keywords,omitempty"` // Comma-separated
	EstimatedDuration int         `db:"estimated_duration" json:"estimated_duration,omitempty"` // seconds, 0 = unset
	RemoteAudioURL    string      `db:"remote_audio_url" json:"remote_audio_url,omitempty"`
	LocalAudioPath    string      `db:"local_audio_path" json:"local_audio_path,omitempty"`
	IsDownloaded      bool        `db:"is_downloaded" json:"is_downloaded"`
	CreatedAt         int64       `db:"created_at" json:"created_at"`
	UpdatedAt         int64       `db:"updated_at" json:"updated_at"`
	SyncStatus        SyncStatus  `db:"sync_status" json:"sync_status"`
}

// TableName returns the table name for Story.
func (Story) TableName() string {
	return "stories"
}

// Touch updates the UpdatedAt timestamp.
func (s *Story) Touch() {
	s.UpdatedAt = Now()
}

// ValidateImport enforces title and content bounds for an imported story.
// Checked before any local write so a rejected import has zero side effects.
func ValidateImport(title, content string) error {
	if title == "" || utf8.RuneCountInString(title) > MaxTitleLength {
		return errors.Newf(errors.ErrStoryTitleInvalid,
			"title must be 1-%d characters", MaxTitleLength)
	}
	n := utf8.RuneCountInString(content)
	if n < MinContentLength || n > MaxContentLength {
		return errors.Newf(errors.ErrStoryContentInvalid,
			"content must be %d-%d characters, got %d",
			MinContentLength, MaxContentLength, n)
	}
	return nil
}

// CountWords returns the whitespace-delimited word count of content.
func CountWords(content string) int {
	return len(strings.Fields(content))
}
