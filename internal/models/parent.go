package models

// Parent represents an account holder who records voice samples and owns
// stories and voice profiles.
type Parent struct {
	ID         ID         `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"`
	Email      string     `db:"email" json:"email,omitempty"`
	CreatedAt  int64      `db:"created_at" json:"created_at"`
	UpdatedAt  int64      `db:"updated_at" json:"updated_at"`
	SyncStatus SyncStatus `db:"sync_status" json:"sync_status"`
}

// TableName returns the table name for Parent.
func (Parent) TableName() string {
	return "parents"
}

// Touch updates the UpdatedAt timestamp.
func (p *Parent) Touch() {
	p.UpdatedAt = Now()
}
