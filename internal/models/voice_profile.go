package models

import "github.com/storynest/storynest/internal/errors"

// VoiceProfileStatus is the server-driven cloning lifecycle, distinct from
// the row's SyncStatus.
type VoiceProfileStatus string

const (
	VoiceProfilePending    VoiceProfileStatus = "pending"
	VoiceProfileProcessing VoiceProfileStatus = "processing"
	VoiceProfileReady      VoiceProfileStatus = "ready"
	VoiceProfileFailed     VoiceProfileStatus = "failed"
)

// Voice sample duration bounds in seconds.
const (
	MinSampleDuration = 30.0
	MaxSampleDuration = 60.0
)

// VoiceProfile represents a cloned parental voice.
type VoiceProfile struct {
	ID             ID                 `db:"id" json:"id"`
	ParentID       ID                 `db:"parent_id" json:"parent_id"`
	Name           string             `db:"name" json:"name"`
	Status         VoiceProfileStatus `db:"status" json:"status"`
	SampleDuration float64            `db:"sample_duration" json:"sample_duration,omitempty"` // seconds, 0 = unset
	LocalAudioPath string             `db:"local_audio_path" json:"local_audio_path,omitempty"`
	RemoteModelURL string             `db:"remote_model_url" json:"remote_model_url,omitempty"`
	ErrorMessage   string             `db:"error_message" json:"error_message,omitempty"`
	CreatedAt      int64              `db:"created_at" json:"created_at"`
	UpdatedAt      int64              `db:"updated_at" json:"updated_at"`
	SyncStatus     SyncStatus         `db:"sync_status" json:"sync_status"`
}

// TableName returns the table name for VoiceProfile.
func (VoiceProfile) TableName() string {
	return "voice_profiles"
}

// Touch updates the UpdatedAt timestamp.
func (v *VoiceProfile) Touch() {
	v.UpdatedAt = Now()
}

// ValidateSampleDuration enforces the [30,60] second recording bound.
// Checked before any local write so a rejected recording has zero side
// effects.
func ValidateSampleDuration(seconds float64) error {
	if seconds < MinSampleDuration {
		return errors.Newf(errors.ErrRecordingTooShort,
			"recording is %.1fs, minimum is %.0fs", seconds, MinSampleDuration)
	}
	if seconds > MaxSampleDuration {
		return errors.Newf(errors.ErrRecordingTooLong,
			"recording is %.1fs, maximum is %.0fs", seconds, MaxSampleDuration)
	}
	return nil
}
