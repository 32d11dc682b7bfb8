// Package sync coordinates best-effort propagation of local mutations
// across all features.
package sync

import (
	"context"
	"time"
)

// DataType is the closed set of syncable feature keys. Handlers are
// registered once at composition time so the syncable surface stays
// statically auditable.
type DataType string

const (
	DataTypeParents          DataType = "parents"
	DataTypeVoiceProfiles    DataType = "voice_profiles"
	DataTypeStories          DataType = "stories"
	DataTypeQASessions       DataType = "qa_sessions"
	DataTypePendingQuestions DataType = "pending_questions"
)

// Result is the outcome of one feature's sync pass. A pass never raises:
// per-row failures are collected here instead.
type Result struct {
	Success     bool
	ItemsSynced int
	Errors      []string
}

// Merge folds another result into r.
func (r *Result) Merge(key DataType, other *Result) {
	if other == nil {
		return
	}
	r.ItemsSynced += other.ItemsSynced
	for _, e := range other.Errors {
		r.Errors = append(r.Errors, string(key)+": "+e)
	}
	if !other.Success {
		r.Success = false
	}
}

// State is the manager's lifecycle position. The only valid walk is
// idle -> syncing -> (completed | failed) -> idle.
type State string

const (
	StateIdle      State = "idle"
	StateSyncing   State = "syncing"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Status is the sync surface consumed by presentation.
type Status struct {
	State        State
	LastSyncAt   time.Time
	PendingCount int
	LastError    string
}

// Handler is one feature's sync entry point, exposed by its repository.
// The manager never touches storage directly.
type Handler interface {
	Sync(ctx context.Context) *Result
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context) *Result

// Sync calls f.
func (f HandlerFunc) Sync(ctx context.Context) *Result {
	return f(ctx)
}
